package extract

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lextrain/internal/pipe"
)

func noMonitor(string) (string, error) { return "", exec.ErrNotFound }

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(ExtractSentences)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	called := false
	r.Register(ExtractSentences, func(_ context.Context, call Call) error {
		called = true
		_, err := call.Stdout.Write([]byte(call.Inputs[0]))
		return err
	})

	var out bytes.Buffer
	require.NoError(t, r.Run(context.Background(), ExtractSentences, Call{Inputs: []string{"pt"}, Stdout: &out}))
	assert.True(t, called)
	assert.Equal(t, "pt", out.String())
	assert.Equal(t, []Tag{ExtractSentences}, r.Registered())
}

func TestRegistryRunWrapsFailure(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register(NgramsToRules, func(context.Context, Call) error { return boom })

	err := r.Run(context.Background(), NgramsToRules, Call{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ngrams-to-rules")
}

func writeScripts(t *testing.T, dir string, tags ...Tag) {
	t.Helper()
	for _, tag := range tags {
		require.NoError(t, os.WriteFile(ScriptPath(dir, tag), []byte("#\n"), 0o644))
	}
}

func TestDefaultRegistersEveryTag(t *testing.T) {
	r := Default(t.TempDir(), "python3", pipe.New(pipe.WithLookPath(noMonitor)))
	assert.ElementsMatch(t, Tags(), r.Registered())
}

func TestScriptPassesInputsThenParams(t *testing.T) {
	dir := t.TempDir()
	// sh stands in for the interpreter: it runs the script with the args.
	script := filepath.Join(dir, "ngram-count-patterns.py")
	require.NoError(t, os.WriteFile(script, []byte("echo \"$@\"\necho diag >&2\n"), 0o644))

	var out, errOut bytes.Buffer
	fn := Script("sh", script, pipe.New(pipe.WithLookPath(noMonitor)))
	err := fn(context.Background(), Call{
		Inputs: []string{"lex", "candidates"},
		Params: []string{"1.5", "10"},
		Stdout: &out,
		Stderr: &errOut,
	})
	require.NoError(t, err)
	assert.Equal(t, "lex candidates 1.5 10\n", out.String())
	assert.Equal(t, "diag\n", errOut.String())
}

func TestScriptFailureIsReturned(t *testing.T) {
	script := filepath.Join(t.TempDir(), "s.py")
	require.NoError(t, os.WriteFile(script, []byte("exit 4\n"), 0o644))

	err := Script("sh", script, pipe.New(pipe.WithLookPath(noMonitor)))(context.Background(), Call{})
	require.Error(t, err)
	assert.Equal(t, 4, pipe.ExitCode(err))
}

func TestFindScriptDir(t *testing.T) {
	partial := t.TempDir()
	writeScripts(t, partial, ExtractSentences)
	assert.Len(t, MissingScripts(partial), len(Tags())-1)

	_, err := FindScriptDir(partial)
	require.Error(t, err)

	full := t.TempDir()
	writeScripts(t, full, Tags()...)
	assert.Empty(t, MissingScripts(full))

	got, err := FindScriptDir(full)
	require.NoError(t, err)
	assert.Equal(t, full, got)

	orig := ScriptDirs
	t.Cleanup(func() { ScriptDirs = orig })
	ScriptDirs = []string{partial, full}
	got, err = FindScriptDir("")
	require.NoError(t, err)
	assert.Equal(t, full, got)
}
