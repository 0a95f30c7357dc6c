// Package prompt reads operator answers from a line-oriented terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// ErrNoInput is returned when the input stream ends before an answer is read.
var ErrNoInput = errors.New("no input")

// Terminal asks questions on Out and reads answers from In, one per line.
// A single goroutine owns In; a question abandoned through ctx leaves the
// next line for the following question.
type Terminal struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan answer
}

type answer struct {
	text string
	err  error
}

func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) start() {
	t.lines = make(chan answer)
	go func() {
		defer close(t.lines)
		for {
			line, err := t.in.ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				if errors.Is(err, io.EOF) {
					err = ErrNoInput
				}
				t.lines <- answer{err: err}
				return
			}
			t.lines <- answer{text: strings.TrimSpace(line)}
		}
	}()
}

// readLine waits for the next line or for ctx to end, whichever comes first.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.once.Do(t.start)
	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return "", ctx.Err()
	case a, ok := <-t.lines:
		if !ok {
			return "", ErrNoInput
		}
		return a.text, a.err
	}
}

// Select lists options numbered from 1 and returns the zero-based index chosen.
// Invalid answers are asked again.
func (t *Terminal) Select(ctx context.Context, label string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to select from")
	}
	for {
		fmt.Fprintln(t.out, label)
		for i, opt := range options {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
		}
		fmt.Fprintf(t.out, "Choice [1-%d]: ", len(options))
		answer, err := t.readLine(ctx)
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(t.out, "Please enter a number between 1 and %d.\n", len(options))
	}
}

// Input returns the trimmed answer, or def when the answer is empty.
func (t *Terminal) Input(ctx context.Context, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(t.out, "%s: ", label)
	}
	answer, err := t.readLine(ctx)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm accepts y/yes and n/no in any case. An empty answer returns def.
func (t *Terminal) Confirm(ctx context.Context, label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		fmt.Fprintf(t.out, "%s (%s): ", label, hint)
		answer, err := t.readLine(ctx)
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
	}
}
