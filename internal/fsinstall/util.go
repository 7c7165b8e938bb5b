package fsinstall

import (
	"fmt"
	"io"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Sprintf(format string, a ...any) string
}

// cFprintf prints with a colored style or falls back to fmt.Fprintf when nil
func cFprintf(w io.Writer, p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Fprintf(w, format, a...)
		return
	}
	fmt.Fprint(w, p.Sprintf(format, a...))
}

// arrowf prints the "-> " marker followed by a success-styled line.
func arrowf(w io.Writer, format string, a ...any) {
	fmt.Fprint(w, colArrow.Sprint("-> "))
	cFprintf(w, colSuccess, format, a...)
}
