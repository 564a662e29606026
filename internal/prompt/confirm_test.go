package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		def       Default
		want      bool
		reprompts int
	}{
		{name: "empty takes yes default", input: "\n", def: DefaultYes, want: true},
		{name: "empty takes no default", input: "\n", def: DefaultNo, want: false},
		{name: "n declines", input: "n\n", def: DefaultYes, want: false},
		{name: "upper YES accepts", input: "YES\n", def: DefaultNo, want: true},
		{name: "ye accepts", input: "ye\n", def: DefaultNo, want: true},
		{name: "maybe reprompts", input: "maybe\ny\n", def: DefaultNo, want: true, reprompts: 1},
		{name: "no default requires answer", input: "\nno\n", def: DefaultNone, want: false, reprompts: 1},
		{name: "answer without newline", input: "n", def: DefaultYes, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := NewTerminal(strings.NewReader(tt.input), &out).Confirm("Overwrite 'x'", tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reprompts, strings.Count(out.String(), "Please respond with"))
		})
	}
}

func TestConfirmPromptText(t *testing.T) {
	var out bytes.Buffer
	_, err := NewTerminal(strings.NewReader("\n"), &out).Confirm("Do you want to overwrite 'cache-x'", DefaultYes)
	require.NoError(t, err)
	assert.Equal(t, "Do you want to overwrite 'cache-x' [Y/n] (default='yes')?\n", out.String())

	out.Reset()
	_, err = NewTerminal(strings.NewReader("y\n"), &out).Confirm("Continue", DefaultNone)
	require.NoError(t, err)
	assert.Equal(t, "Continue [y/n]?\n", out.String())
}

func TestConfirmUnknownDefaultBecomesYes(t *testing.T) {
	var out bytes.Buffer
	got, err := NewTerminal(strings.NewReader("\n"), &out).Confirm("q", Default("sure"))
	require.NoError(t, err)
	assert.True(t, got)
	assert.Contains(t, out.String(), "[Y/n]")
}

func TestConfirmEOFWithoutDefault(t *testing.T) {
	var out bytes.Buffer
	_, err := NewTerminal(strings.NewReader("maybe"), &out).Confirm("q", DefaultNone)
	assert.True(t, errors.Is(err, ErrNoAnswer))
}

func TestConfirmClosedInputIgnoresDefault(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		def   Default
	}{
		{name: "empty input yes default", input: "", def: DefaultYes},
		{name: "empty input no default", input: "", def: DefaultNo},
		{name: "blank without newline", input: "  ", def: DefaultYes},
		{name: "invalid then closed", input: "maybe\n", def: DefaultYes},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := NewTerminal(strings.NewReader(tt.input), &out).Confirm("Overwrite 'x'", tt.def)
			assert.True(t, errors.Is(err, ErrNoAnswer))
			assert.False(t, got)
		})
	}
}

func TestFixedAndDefaults(t *testing.T) {
	yes, _ := Fixed(true).Confirm("q", DefaultNo)
	assert.True(t, yes)
	no, _ := Fixed(false).Confirm("q", DefaultYes)
	assert.False(t, no)

	d, _ := Defaults{}.Confirm("q", DefaultYes)
	assert.True(t, d)
	d, _ = Defaults{}.Confirm("q", DefaultNone)
	assert.False(t, d)
}
