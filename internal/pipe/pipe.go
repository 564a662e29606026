package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/lextrain/internal/log"
)

// DefaultMonitor is the line-counting progress tool appended to monitored chains.
const DefaultMonitor = "pv"

// Spec is one process in a chain: an executable and its arguments.
type Spec struct {
	Name string
	Args []string
	// Env holds extra KEY=VALUE pairs layered over the inherited environment
	// of this process only.
	Env []string
}

// Command is shorthand for a Spec without extra environment.
func Command(name string, args ...string) Spec {
	return Spec{Name: name, Args: args}
}

// String renders the spec for logs. It is not shell-quoted.
func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	return s.Name + " " + strings.Join(s.Args, " ")
}

// Flatten joins chain fragments into one linear chain, preserving order.
// Mode-graph sub-chains and trailing stages are composed this way instead of
// by string concatenation.
func Flatten(fragments ...[]Spec) []Spec {
	return lo.Flatten(fragments)
}

// Options wires the ends of a chain.
type Options struct {
	// Stdin feeds the first stage. Nil leaves it unredirected, which for a
	// child process means the null device.
	Stdin io.Reader
	// Stdout receives the last stage's output.
	Stdout io.Writer
	// Stderr is shared by every non-monitor stage.
	Stderr io.Writer
	// ExpectedLines enables the monitor stage when positive.
	ExpectedLines int
}

// StartError reports a stage that could not be launched.
type StartError struct {
	Index int
	Spec  Spec
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start stage %d (%s): %v", e.Index, e.Spec.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Executor constructs process chains. It holds no per-chain state and is
// safe for concurrent use.
type Executor struct {
	lookPath    func(string) (string, error)
	monitor     string
	diagnostics io.Writer
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLookPath replaces exec.LookPath for monitor discovery.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Executor) { e.lookPath = fn }
}

// WithMonitor sets the monitor executable name. An empty name disables monitoring.
func WithMonitor(name string) Option {
	return func(e *Executor) { e.monitor = name }
}

// WithDiagnostics sets the stream that receives the monitor's stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(e *Executor) { e.diagnostics = w }
}

// New creates an Executor that discovers pv on PATH and sends its progress
// output to os.Stderr.
func New(opts ...Option) *Executor {
	e := &Executor{
		lookPath:    exec.LookPath,
		monitor:     DefaultMonitor,
		diagnostics: os.Stderr,
		logger:      log.WithComponent("pipe"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// monitorPath resolves the monitor executable. The monitor stage is started
// from the resolved path, not the bare name.
func (e *Executor) monitorPath() (string, bool) {
	if e.monitor == "" {
		return "", false
	}
	path, err := e.lookPath(e.monitor)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

// Run starts the chain and waits for it. An empty chain is a no-op.
func (e *Executor) Run(ctx context.Context, specs []Spec, opts Options) error {
	chain, err := e.Start(ctx, specs, opts)
	if err != nil {
		return err
	}
	if chain == nil {
		return nil
	}
	return chain.Wait()
}

// Start launches every stage of the chain and returns a handle to it.
// An empty spec list returns (nil, nil) without creating any process.
func (e *Executor) Start(ctx context.Context, specs []Spec, opts Options) (*Chain, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	stages := append([]Spec(nil), specs...)
	monitored := false
	if opts.ExpectedLines > 0 {
		if path, ok := e.monitorPath(); ok {
			stages = append(stages, Command(path, "-l", "-s", strconv.Itoa(opts.ExpectedLines)))
			monitored = true
		}
	}

	stderr := shareWriter(opts.Stderr)
	last := len(stages) - 1
	cmds := make([]*exec.Cmd, 0, len(stages))

	// abort kills and reaps whatever is already running.
	abort := func() {
		for _, cmd := range cmds {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	}

	var prevOut *os.File
	for i, spec := range stages {
		cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
		if len(spec.Env) > 0 {
			cmd.Env = append(os.Environ(), spec.Env...)
		}

		if i == 0 {
			if opts.Stdin != nil {
				cmd.Stdin = opts.Stdin
			}
		} else {
			cmd.Stdin = prevOut
		}

		var pipeR, pipeW *os.File
		if i == last {
			cmd.Stdout = opts.Stdout
		} else {
			r, w, err := os.Pipe()
			if err != nil {
				closeFile(prevOut)
				abort()
				return nil, &StartError{Index: i, Spec: spec, Err: fmt.Errorf("create pipe: %w", err)}
			}
			pipeR, pipeW = r, w
			cmd.Stdout = w
		}

		if monitored && i == last {
			cmd.Stderr = e.diagnostics
		} else {
			cmd.Stderr = stderr
		}

		e.logger.Debug("starting stage", "index", i, "command", spec.String())
		err := cmd.Start()

		// The child holds its own copies now. Dropping ours lets EOF and
		// SIGPIPE propagate between neighbours.
		closeFile(pipeW)
		closeFile(prevOut)

		if err != nil {
			closeFile(pipeR)
			abort()
			return nil, &StartError{Index: i, Spec: spec, Err: err}
		}
		cmds = append(cmds, cmd)
		prevOut = pipeR
	}

	return &Chain{
		cmds:      cmds,
		stages:    stages,
		monitored: monitored,
		logger:    e.logger,
	}, nil
}

// Chain is a running process chain.
type Chain struct {
	cmds      []*exec.Cmd
	stages    []Spec
	monitored bool
	logger    *slog.Logger

	once sync.Once
	err  error
}

// Len returns the number of running stages, including a monitor.
func (c *Chain) Len() int { return len(c.cmds) }

// Monitored reports whether a monitor stage was appended.
func (c *Chain) Monitored() bool { return c.monitored }

// Stages returns the specs actually started, in order.
func (c *Chain) Stages() []Spec { return append([]Spec(nil), c.stages...) }

// Wait blocks until every stage has exited and returns the last stage's
// result. Calling Wait more than once returns the first result.
func (c *Chain) Wait() error {
	c.once.Do(func() {
		last := len(c.cmds) - 1

		var interior errgroup.Group
		for i, cmd := range c.cmds[:last] {
			name := c.stages[i].Name
			interior.Go(func() error {
				if err := cmd.Wait(); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				return nil
			})
		}

		if err := c.cmds[last].Wait(); err != nil {
			c.err = fmt.Errorf("%s: %w", c.stages[last].Name, err)
		}
		if err := interior.Wait(); err != nil {
			c.logger.Debug("interior stage exited abnormally", "error", err)
		}
	})
	return c.err
}

// ExitCode extracts a process exit code from a Wait error, or -1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func closeFile(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

// shareWriter serializes writes from concurrently running stages when the
// writer is not a file. Files are handed to children directly.
func shareWriter(w io.Writer) io.Writer {
	if w == nil {
		return nil
	}
	if _, ok := w.(*os.File); ok {
		return w
	}
	return &lockedWriter{w: w}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
