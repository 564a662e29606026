package pipe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lextrain/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

// fakeMonitor writes a pv stand-in that emits a progress marker on stderr
// and copies stdin to stdout.
func fakeMonitor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pv")
	script := "#!/bin/sh\necho PROGRESS-REDRAW >&2\nexec cat\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func lookPathFor(name, path string) func(string) (string, error) {
	return func(n string) (string, error) {
		if n == name {
			return path, nil
		}
		return "", exec.ErrNotFound
	}
}

func noMonitor(string) (string, error) { return "", exec.ErrNotFound }

func TestStartEmptyChainIsNoop(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	chain, err := e.Start(context.Background(), nil, Options{ExpectedLines: 10})
	require.NoError(t, err)
	assert.Nil(t, chain)

	require.NoError(t, e.Run(context.Background(), []Spec{}, Options{}))
}

func TestChainConnectsStages(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	var out, errOut bytes.Buffer
	specs := []Spec{
		Command("yes", "olleh"),
		Command("head", "-2"),
		Command("rev"),
	}
	chain, err := e.Start(context.Background(), specs, Options{Stdout: &out, Stderr: &errOut})
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.Equal(t, 3, chain.Len())
	assert.False(t, chain.Monitored())

	// yes never stops on its own; Wait returning proves the interior
	// stage was reaped after its reader went away.
	require.NoError(t, chain.Wait())
	assert.Equal(t, "hello\nhello\n", out.String())
}

func TestChainReadsCallerStdin(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	var out bytes.Buffer
	specs := []Spec{Command("tr", "a-z", "A-Z"), Command("sort")}
	err := e.Run(context.Background(), specs, Options{
		Stdin:  strings.NewReader("b\na\n"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "A\nB\n", out.String())
}

func TestChainSharesStderr(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	var out, errOut bytes.Buffer
	specs := []Spec{
		Command("sh", "-c", "echo first >&2; echo data"),
		Command("sh", "-c", "echo second >&2; cat"),
	}
	require.NoError(t, e.Run(context.Background(), specs, Options{Stdout: &out, Stderr: &errOut}))

	assert.Equal(t, "data\n", out.String())
	assert.Contains(t, errOut.String(), "first")
	assert.Contains(t, errOut.String(), "second")
}

func TestMonitorAppendedWhenAvailable(t *testing.T) {
	var diag bytes.Buffer
	monitor := fakeMonitor(t)
	e := New(WithLookPath(lookPathFor("pv", monitor)), WithDiagnostics(&diag))

	var out, errOut bytes.Buffer
	specs := []Spec{Command("sh", "-c", "echo stage-err >&2; printf 'a\\nb\\n'")}
	chain, err := e.Start(context.Background(), specs, Options{
		Stdout:        &out,
		Stderr:        &errOut,
		ExpectedLines: 2,
	})
	require.NoError(t, err)
	require.NoError(t, chain.Wait())

	assert.True(t, chain.Monitored())
	assert.Equal(t, 2, chain.Len())
	stages := chain.Stages()
	assert.Equal(t, monitor, stages[1].Name)
	assert.Equal(t, []string{"-l", "-s", "2"}, stages[1].Args)

	assert.Equal(t, "a\nb\n", out.String())
	assert.Equal(t, "stage-err\n", errOut.String())
	assert.Contains(t, diag.String(), "PROGRESS-REDRAW")
}

func TestSharedStderrIndependentOfMonitor(t *testing.T) {
	specs := []Spec{
		Command("sh", "-c", "echo tagger-warning >&2; printf 'x\\ny\\n'"),
		Command("cat"),
	}

	run := func(e *Executor) (string, string) {
		var out, errOut bytes.Buffer
		require.NoError(t, e.Run(context.Background(), specs, Options{
			Stdout:        &out,
			Stderr:        &errOut,
			ExpectedLines: 2,
		}))
		return out.String(), errOut.String()
	}

	var diag bytes.Buffer
	withOut, withErr := run(New(WithLookPath(lookPathFor("pv", fakeMonitor(t))), WithDiagnostics(&diag)))
	assert.Contains(t, diag.String(), "PROGRESS-REDRAW")
	plainOut, plainErr := run(New(WithLookPath(noMonitor)))

	assert.Equal(t, plainOut, withOut)
	assert.Equal(t, plainErr, withErr)
	assert.NotEmpty(t, diag.String())
}

func TestMonitorSkippedWithoutExpectedLines(t *testing.T) {
	e := New(WithLookPath(lookPathFor("pv", fakeMonitor(t))))

	var out bytes.Buffer
	chain, err := e.Start(context.Background(), []Spec{Command("echo", "hi")}, Options{Stdout: &out})
	require.NoError(t, err)
	require.NoError(t, chain.Wait())
	assert.False(t, chain.Monitored())
	assert.Equal(t, 1, chain.Len())
}

func TestMonitorStartedFromResolvedPath(t *testing.T) {
	// Only the lookup knows where the monitor lives.
	monitor := fakeMonitor(t)
	var diag bytes.Buffer
	e := New(WithLookPath(lookPathFor("pv", monitor)), WithMonitor("pv"), WithDiagnostics(&diag))

	var out bytes.Buffer
	chain, err := e.Start(context.Background(), []Spec{Command("printf", "a\\n")}, Options{
		Stdout:        &out,
		ExpectedLines: 1,
	})
	require.NoError(t, err)
	require.NoError(t, chain.Wait())
	assert.Equal(t, monitor, chain.Stages()[1].Name)
	assert.Equal(t, "a\n", out.String())
	assert.Contains(t, diag.String(), "PROGRESS-REDRAW")
}

func TestMonitorDisabled(t *testing.T) {
	e := New(WithLookPath(lookPathFor("pv", fakeMonitor(t))), WithMonitor(""))

	var out bytes.Buffer
	chain, err := e.Start(context.Background(), []Spec{Command("echo", "hi")}, Options{Stdout: &out, ExpectedLines: 1})
	require.NoError(t, err)
	require.NoError(t, chain.Wait())
	assert.False(t, chain.Monitored())
	assert.Equal(t, "hi\n", out.String())
}

func TestStartFailureIsFatal(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	var out bytes.Buffer
	specs := []Spec{
		Command("yes"),
		Command("definitely-not-a-real-binary-lextrain"),
		Command("cat"),
	}
	chain, err := e.Start(context.Background(), specs, Options{Stdout: &out})
	require.Error(t, err)
	assert.Nil(t, chain)

	var startErr *StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, 1, startErr.Index)
	assert.Equal(t, "definitely-not-a-real-binary-lextrain", startErr.Spec.Name)
}

func TestWaitReturnsLastStageStatus(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	err := e.Run(context.Background(), []Spec{Command("echo", "x"), Command("sh", "-c", "cat >/dev/null; exit 3")}, Options{})
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
}

func TestWaitIgnoresInteriorFailure(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	var out bytes.Buffer
	err := e.Run(context.Background(), []Spec{Command("sh", "-c", "exit 2"), Command("cat")}, Options{Stdout: &out})
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestWaitIsIdempotent(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	chain, err := e.Start(context.Background(), []Spec{Command("false")}, Options{})
	require.NoError(t, err)
	first := chain.Wait()
	second := chain.Wait()
	require.Error(t, first)
	assert.Equal(t, first, second)
}

func TestSpecEnvIsScoped(t *testing.T) {
	e := New(WithLookPath(noMonitor))

	var out bytes.Buffer
	spec := Spec{Name: "sh", Args: []string{"-c", "printf %s \"$LEXTRAIN_SCOPED\""}, Env: []string{"LEXTRAIN_SCOPED=only-here"}}
	require.NoError(t, e.Run(context.Background(), []Spec{spec}, Options{Stdout: &out}))
	assert.Equal(t, "only-here", out.String())

	_, set := os.LookupEnv("LEXTRAIN_SCOPED")
	assert.False(t, set)
}

func TestFlatten(t *testing.T) {
	after := []Spec{Command("lrx-proc", "-m", "x.bin"), Command("apertium-transfer", "-b", "t1x", "t1x.bin")}
	ranker := []Spec{Command("irstlm-ranker", "lm", "in", "-f")}

	got := Flatten(after, ranker)
	require.Len(t, got, 3)
	assert.Equal(t, "lrx-proc", got[0].Name)
	assert.Equal(t, "irstlm-ranker", got[2].Name)

	assert.Empty(t, Flatten())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, -1, ExitCode(errors.New("boom")))
}
