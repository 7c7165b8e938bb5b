package fsinstall

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter answers yes/no questions the intent left open.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// terminalPrompter asks on an interactive stream, re-asking until the answer
// is exactly "yes" or "no".
type terminalPrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter returns a prompter reading answers from in.
func NewTerminalPrompter(in io.Reader, out io.Writer) Prompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) Confirm(question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		fmt.Fprint(p.out, colArrow.Sprint("-> "))
		cFprintf(p.out, colNote, "%s [yes/no]: ", question)

		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if err != nil && (answer == "" || !errors.Is(err, io.EOF)) {
			fmt.Fprintln(p.out)
			return false, fmt.Errorf("no answer to %q: %w", question, err)
		}

		switch answer {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
		cFprintf(p.out, colWarn, "please type yes or no (you typed %s)\n", answer)
		if err != nil {
			return false, fmt.Errorf("no answer to %q: %w", question, err)
		}
	}
}
