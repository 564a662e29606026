// Package prompt asks the operator yes/no questions before destructive steps.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Default is the answer assumed for an empty reply.
type Default string

const (
	DefaultYes  Default = "yes"
	DefaultNo   Default = "no"
	DefaultNone Default = ""
)

var answers = map[string]bool{"yes": true, "y": true, "ye": true, "no": false, "n": false}

// ErrNoAnswer is returned when input ends before a valid answer. A
// default never applies to closed input.
var ErrNoAnswer = errors.New("no answer given")

// Confirmer asks yes/no questions.
type Confirmer interface {
	Confirm(question string, def Default) (bool, error)
}

// Terminal reads answers line by line from In and writes prompts to Out.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal wraps an input and output stream.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm prints question with a [Y/n]-style hint and loops until it reads
// yes, y, ye, no or n (any case). An empty line picks def when def is set;
// end of input without an answer returns ErrNoAnswer.
func (t *Terminal) Confirm(question string, def Default) (bool, error) {
	var hint string
	switch def {
	case DefaultNone:
		hint = "[y/n]"
	case DefaultNo:
		hint = "[y/N]"
	default:
		hint = "[Y/n]"
		def = DefaultYes
	}

	for {
		if def == DefaultNone {
			fmt.Fprintf(t.out, "%s %s?\n", question, hint)
		} else {
			fmt.Fprintf(t.out, "%s %s (default='%s')?\n", question, hint, def)
		}

		line, err := t.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read answer: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		choice := strings.ToLower(strings.TrimSpace(line))
		if eof && choice == "" {
			// Closed input is not an empty reply.
			return false, ErrNoAnswer
		}
		if choice == "" && def != DefaultNone {
			return answers[string(def)], nil
		}
		if v, ok := answers[choice]; ok {
			return v, nil
		}
		if eof {
			return false, ErrNoAnswer
		}
		fmt.Fprintln(t.out, "Please respond with 'yes', 'no', 'y' or 'n'")
	}
}

// Fixed answers every question the same way without reading input.
type Fixed bool

// Confirm returns the fixed answer.
func (f Fixed) Confirm(string, Default) (bool, error) { return bool(f), nil }

// Defaults answers every question with its default; questions without a
// default are declined.
type Defaults struct{}

// Confirm returns the question's default.
func (Defaults) Confirm(_ string, def Default) (bool, error) {
	return def != DefaultNo && def != DefaultNone, nil
}
