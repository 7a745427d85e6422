package conflict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// StdinPrompter reads answers line by line. An answer is an option number,
// an option label, or the first letter of a one-word label.
type StdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewStdinPrompter(in io.Reader, out io.Writer) *StdinPrompter {
	return &StdinPrompter{in: bufio.NewReader(in), out: out}
}

func (p *StdinPrompter) Choose(question string, options []string) (int, error) {
	for {
		_, _ = fmt.Fprintln(p.out, question)
		for i, o := range options {
			_, _ = fmt.Fprintf(p.out, "  %d) %s\n", i+1, o)
		}
		_, _ = fmt.Fprint(p.out, "> ")

		line, err := p.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer != "" {
			if idx, ok := match(answer, options); ok {
				return idx, nil
			}
			_, _ = fmt.Fprintf(p.out, "invalid answer %q\n", answer)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
}

func match(answer string, options []string) (int, bool) {
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}

	for i, o := range options {
		if answer == strings.ToLower(o) {
			return i, true
		}
	}

	for i, o := range options {
		if !strings.Contains(o, "-") && strings.HasPrefix(strings.ToLower(o), answer[:1]) && len(answer) == 1 {
			return i, true
		}
	}

	return 0, false
}
