package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type line struct {
	text string
	err  error
}

// Prompter asks questions on out and reads answers from in, one line each.
type Prompter struct {
	out io.Writer
	in  io.Reader

	once  sync.Once
	lines chan line
}

// NewPrompter returns a Prompter.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out, lines: make(chan line)}
}

// read runs until in is exhausted. A line left unread when the session
// ends is dropped with the goroutine.
func (p *Prompter) read() {
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- line{text: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	for {
		p.lines <- line{err: err}
	}
}

// Ask prints question and returns the trimmed answer. It returns ctx.Err()
// when ctx is done first and io.EOF when input is closed.
func (p *Prompter) Ask(ctx context.Context, question string) (string, error) {
	p.once.Do(func() { go p.read() })

	if _, err := fmt.Fprint(p.out, question); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(p.out)
		return "", ctx.Err()
	case l := <-p.lines:
		if l.err != nil {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}

// Confirm asks a yes/no question. An empty answer selects def; anything
// other than y, yes, n or no is asked again.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		answer, err := p.Ask(ctx, fmt.Sprintf("%s %s: ", question, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		_, _ = fmt.Fprintln(p.out, "Please answer y or n.")
	}
}
