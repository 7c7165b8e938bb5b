package fsinstall

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// showOutput presents captured build output. With usePager set and stdout a
// terminal too short for the output, it opens a scrollable viewer;
// otherwise the output is written verbatim to w.
func showOutput(w io.Writer, title string, output []byte, usePager bool) error {
	text := strings.TrimRight(string(output), "\n")
	if !usePager {
		_, err := fmt.Fprintln(w, text)
		return err
	}

	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	// Two lines go to the border.
	if _, height, err := term.GetSize(fd); err == nil && strings.Count(text, "\n")+1 <= height-2 {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	return runPager(title, text)
}

func runPager(title, text string) error {
	app := tview.NewApplication()

	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	textView.SetBorder(true).SetTitle(" " + title + " ")

	// Build tools colour their output.
	fmt.Fprint(tview.ANSIWriter(textView), tview.Escape(text))
	textView.ScrollToEnd()

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Use ↑/↓, PgUp/PgDn, Home/End to scroll. Press 'q' or 'Esc' to quit.[white]")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, true).
		AddItem(footer, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	if err := app.SetRoot(flex, true).SetFocus(textView).Run(); err != nil {
		return fmt.Errorf("pager execution failed: %w", err)
	}
	return nil
}
