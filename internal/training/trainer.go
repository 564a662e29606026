package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mattjoyce/lextrain/internal/cache"
	"github.com/mattjoyce/lextrain/internal/config"
	"github.com/mattjoyce/lextrain/internal/corpus"
	"github.com/mattjoyce/lextrain/internal/extract"
	"github.com/mattjoyce/lextrain/internal/ledger"
	"github.com/mattjoyce/lextrain/internal/lock"
	"github.com/mattjoyce/lextrain/internal/log"
	"github.com/mattjoyce/lextrain/internal/metrics"
	"github.com/mattjoyce/lextrain/internal/pipe"
	"github.com/mattjoyce/lextrain/internal/prompt"
	"github.com/mattjoyce/lextrain/internal/resources"
)

// Deps are the collaborators a Trainer drives. Zero values get defaults
// from New.
type Deps struct {
	Executor   *pipe.Executor
	Confirmer  prompt.Confirmer
	Discoverer resources.Discoverer
	Stages     *extract.Registry
	// Out receives operator-facing progress lines.
	Out io.Writer
	// WorkDir holds the cache directory and the rule file.
	WorkDir string
	// CheckFilesystem rejects a WorkDir the lock and ledger cannot live on.
	CheckFilesystem func(string) error
}

// Result describes a completed run.
type Result struct {
	RulesPath     string
	CacheDir      string
	RunID         string
	Mode          string
	TrainingLines int
}

// Trainer runs one training recipe end to end. A Trainer is single-use.
type Trainer struct {
	cfg    *config.Config
	deps   Deps
	key    cache.Key
	caches *cache.Manager
	logger *slog.Logger
	state  State

	dir     cache.Dir
	logFile *os.File
	ledger  *ledger.Ledger
	metrics *metrics.Recorder
	runID   string
	lines   int
}

// New builds a Trainer for a validated config.
func New(cfg *config.Config, deps Deps) (*Trainer, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Executor == nil {
		deps.Executor = pipe.New()
	}
	if deps.Confirmer == nil {
		deps.Confirmer = prompt.Fixed(false)
	}
	if deps.Discoverer == nil {
		deps.Discoverer = resources.NewBundle(cfg.LangData)
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.CheckFilesystem == nil {
		deps.CheckFilesystem = ledger.CheckLocalFilesystem
	}
	if deps.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		deps.WorkDir = wd
	}
	if deps.Stages == nil {
		dir, err := extract.FindScriptDir(cfg.LexToolsDir)
		if err != nil {
			return nil, err
		}
		deps.Stages = extract.Default(dir, cfg.Python, deps.Executor)
	}

	caches, err := cache.NewManager(deps.WorkDir)
	if err != nil {
		return nil, err
	}

	key := cache.Key{Corpus: cfg.Corpus, SL: cfg.SL, TL: cfg.TL, Parallel: cfg.Parallel()}
	return &Trainer{
		cfg:    cfg,
		deps:   deps,
		key:    key,
		caches: caches,
		logger: log.WithComponent("training").With(runFields(cfg, key)...),
		state:  Idle,
	}, nil
}

// State returns the current state.
func (t *Trainer) State() State { return t.state }

// Key returns the run key.
func (t *Trainer) Key() cache.Key { return t.key }

func (t *Trainer) move(to State) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", t.state, to)
	}
	t.logger.Info("state transition", "from", t.state.String(), "to", to.String())
	t.state = to
	return nil
}

func (t *Trainer) abort(err error) {
	if t.state == Complete || t.state == Aborted {
		return
	}
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		t.logger.Info("run aborted", "from", t.state.String(), "path", abortErr.Path)
	} else {
		t.logger.Error("run aborted", "from", t.state.String(), "error", err)
	}
	t.state = Aborted
}

// Run executes the whole pipeline. Declined overwrites return *AbortError;
// stage failures return *StageError and leave the cache directory in place.
func (t *Trainer) Run(ctx context.Context) (result *Result, err error) {
	if t.state != Idle {
		return nil, fmt.Errorf("trainer already used (state %s)", t.state)
	}
	defer func() {
		if err != nil {
			t.abort(err)
		}
	}()

	if err := t.move(Validated); err != nil {
		return nil, err
	}

	if err := t.deps.CheckFilesystem(t.deps.WorkDir); err != nil {
		if errors.Is(err, ledger.ErrNetworkFilesystem) {
			return nil, err
		}
		t.logger.Warn("filesystem check skipped", "error", err)
	}

	held, err := lock.Acquire(t.caches.LockPath(t.key))
	if err != nil {
		return nil, err
	}
	defer held.Release()

	if err := t.preflight(); err != nil {
		return nil, err
	}
	if err := t.prepare(ctx); err != nil {
		t.close()
		return nil, err
	}
	defer t.close()

	runErr := t.runPlan(ctx)

	rulesPath := ""
	if runErr == nil {
		rulesPath = t.caches.RulesPath(t.key)
	}
	bookkeeping := context.WithoutCancel(ctx)
	if err := t.ledger.FinishRun(bookkeeping, t.runID, rulesPath, runErr); err != nil {
		t.logger.Warn("failed to record run result", "error", err)
	}
	if err := t.metrics.WriteFile(t.dir.File(cache.MetricsFile)); err != nil {
		t.logger.Warn("failed to write metrics", "error", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	if err := t.move(Complete); err != nil {
		return nil, err
	}
	return &Result{
		RulesPath:     rulesPath,
		CacheDir:      t.dir.Path,
		RunID:         t.runID,
		Mode:          t.key.Mode(),
		TrainingLines: t.lines,
	}, nil
}

// preflight asks every overwrite question before anything is touched.
func (t *Trainer) preflight() error {
	exists, err := t.caches.Exists(t.key)
	if err != nil {
		return err
	}
	if exists {
		name := t.key.DirName()
		ok, err := t.deps.Confirmer.Confirm(fmt.Sprintf("Do you want to overwrite the files in '%s'", name), prompt.DefaultYes)
		if err != nil {
			return fmt.Errorf("confirm cache overwrite: %w", err)
		}
		if !ok {
			return &AbortError{
				Path: t.caches.DirPath(t.key),
				Hint: fmt.Sprintf("(re)move %s and re-run lextrain train", name),
				Code: 0,
			}
		}
	}

	exists, err = t.caches.RulesExist(t.key)
	if err != nil {
		return err
	}
	if exists {
		name := t.key.RulesName()
		ok, err := t.deps.Confirmer.Confirm(fmt.Sprintf("Do you want to overwrite '%s'", name), prompt.DefaultYes)
		if err != nil {
			return fmt.Errorf("confirm rule file overwrite: %w", err)
		}
		if !ok {
			return &AbortError{
				Path: t.caches.RulesPath(t.key),
				Hint: fmt.Sprintf("(re)move %s and re-run lextrain train", name),
				Code: 1,
			}
		}
	}
	return nil
}

// prepare performs the destructive half of pre-flight and opens the run's
// log, ledger, and metrics.
func (t *Trainer) prepare(ctx context.Context) error {
	if err := t.caches.RemoveRules(t.key); err != nil {
		return err
	}
	dir, err := t.caches.Prepare(ctx, t.key)
	if err != nil {
		return err
	}
	t.dir = dir
	if err := t.move(CachePrepared); err != nil {
		return err
	}

	if t.logFile, err = dir.OpenLog(); err != nil {
		return err
	}
	if t.ledger, err = ledger.Open(ctx, dir.File(cache.LedgerDB)); err != nil {
		return err
	}
	t.metrics = metrics.New()

	fingerprint, err := t.cfg.Fingerprint()
	if err != nil {
		return err
	}
	run, err := t.ledger.StartRun(ctx, ledger.Run{
		Corpus:        t.cfg.Corpus,
		Pair:          t.key.Pair(),
		Mode:          t.key.Mode(),
		Fingerprint:   fingerprint,
		TrainingLines: t.cfg.TrainingLines,
	})
	if err != nil {
		return err
	}
	t.runID = run.ID
	t.logger = log.WithRun(run.ID).With(append(runFields(t.cfg, t.key), "component", "training")...)

	if t.lines, err = t.clampLines(); err != nil {
		return err
	}
	if t.lines != t.cfg.TrainingLines {
		if err := t.ledger.SetTrainingLines(ctx, t.runID, t.lines); err != nil {
			return err
		}
	}
	t.metrics.SetTrainingLines(t.lines)
	return nil
}

// clampLines caps the line budget at the source corpus length.
func (t *Trainer) clampLines() (int, error) {
	total, err := corpus.CountFileLines(t.cfg.CorpusSL)
	if err != nil {
		return 0, err
	}
	n := t.cfg.TrainingLines
	if n > total {
		fmt.Fprintf(t.deps.Out, "Warning: %d(training_lines) > %d\n", n, total)
		t.logger.Warn("training_lines exceeds corpus length", "training_lines", n, "corpus_lines", total)
		n = total
	}
	return n, nil
}

func (t *Trainer) close() {
	if t.ledger != nil {
		if err := t.ledger.Close(); err != nil {
			t.logger.Warn("failed to close ledger", "error", err)
		}
		t.ledger = nil
	}
	if t.logFile != nil {
		_ = t.logFile.Close()
		t.logFile = nil
	}
}

func (t *Trainer) runPlan(ctx context.Context) error {
	plan := t.plan()
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid %s plan: %w", t.key.Mode(), err)
	}
	recipe := NonParallelRecipe
	if t.key.Parallel {
		recipe = ParallelRecipe
		fmt.Fprintf(t.deps.Out, "Using %d lines from the corpora\n", t.lines)
	}
	if err := t.move(recipe); err != nil {
		return err
	}
	return t.execute(ctx, plan)
}

func (t *Trainer) plan() Plan {
	if t.key.Parallel {
		return t.parallelPlan()
	}
	return t.nonParallelPlan()
}

// execute runs the plan in order, recording every stage in the ledger.
func (t *Trainer) execute(ctx context.Context, plan Plan) error {
	bookkeeping := context.WithoutCancel(ctx)
	for i, st := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.Banner != "" {
			fmt.Fprintln(t.deps.Out, st.Banner)
		}
		logger := log.WithStage(st.Name).With(append(runFields(t.cfg, t.key), "run_id", t.runID)...)

		stageID, err := t.ledger.BeginStage(ctx, t.runID, i+1, st.Name)
		if err != nil {
			return err
		}

		started := time.Now()
		runErr := st.Run(ctx)
		if runErr == nil {
			runErr = t.dir.Remove(st.Removes...)
		}
		elapsed := time.Since(started)

		out := ledger.Outcome{Status: ledger.StatusSucceeded}
		primary, hasPrimary := primaryArtifact(st)
		switch {
		case errors.Is(runErr, errSkipped):
			out.Status = ledger.StatusSkipped
			runErr = nil
		case runErr != nil:
			out.Status = ledger.StatusFailed
			out.Err = runErr
		case hasPrimary:
			path := t.artifactPath(primary)
			out.Artifact = path
			out.Bytes = cache.FileSize(path)
			if out.Bytes >= 0 {
				if sum, err := config.ComputeBlake3Hash(path); err == nil {
					out.Blake3 = sum
				} else {
					logger.Warn("failed to hash artifact", "artifact", path, "error", err)
				}
			}
			t.metrics.SetArtifactBytes(filepath.Base(path), out.Bytes)
		}

		t.metrics.ObserveStage(st.Name, string(out.Status), elapsed)
		if err := t.ledger.FinishStage(bookkeeping, stageID, out); err != nil {
			logger.Warn("failed to record stage result", "error", err)
		}

		if runErr != nil {
			se := &StageError{Stage: st.Name, Log: t.dir.LogPath(), Err: runErr}
			if hasPrimary {
				se.Artifact = t.artifactPath(primary)
			}
			return se
		}
		logger.Info("stage finished", "status", string(out.Status), "duration", elapsed)
	}
	return nil
}

// primaryArtifact is the artifact a stage is recorded under: its last
// product, or its last rewrite for stages that only rewrite.
func primaryArtifact(st Stage) (cache.Artifact, bool) {
	if n := len(st.Produces); n > 0 {
		return st.Produces[n-1], true
	}
	if n := len(st.Rewrites); n > 0 {
		return st.Rewrites[n-1], true
	}
	return "", false
}

func (t *Trainer) artifactPath(a cache.Artifact) string {
	switch {
	case a == rulesArtifact:
		return t.caches.RulesPath(t.key)
	case a == cache.LanguageModel && t.cfg.TLModel != "":
		return t.cfg.TLModel
	default:
		return t.dir.File(a)
	}
}

func runFields(cfg *config.Config, key cache.Key) []any {
	return []any{"corpus", cfg.Corpus, "pair", key.Pair(), "mode", key.Mode()}
}

// runChain runs specs with stdin from in (empty for none) and stdout into
// out. Diagnostics go to the training log.
func (t *Trainer) runChain(ctx context.Context, specs []pipe.Spec, in, out string, expected int) error {
	var stdin io.Reader
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("open %s: %w", in, err)
		}
		defer f.Close()
		stdin = f
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	runErr := t.deps.Executor.Run(ctx, specs, pipe.Options{
		Stdin:         stdin,
		Stdout:        f,
		Stderr:        t.logFile,
		ExpectedLines: expected,
	})
	closeErr := f.Close()

	if err := t.tolerateExit(ctx, specs, runErr); err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", out, closeErr)
	}
	return nil
}

// tolerateExit lets a chain's non-zero exit through with a warning. Start
// failures and cancellation stay fatal.
func (t *Trainer) tolerateExit(ctx context.Context, specs []pipe.Spec, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	t.logger.Warn("chain exited non-zero", "command", specs[len(specs)-1].String(), "exit_code", exitErr.ExitCode())
	return nil
}

// runExtract runs an extraction stage with stdout into out.
func (t *Trainer) runExtract(ctx context.Context, tag extract.Tag, out string, inputs []string, params ...string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	runErr := t.deps.Stages.Run(ctx, tag, extract.Call{
		Inputs: inputs,
		Params: params,
		Stdout: f,
		Stderr: t.logFile,
	})
	closeErr := f.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", out, closeErr)
	}
	return nil
}

func (t *Trainer) crisphold() string {
	return strconv.FormatFloat(t.cfg.Crisphold, 'g', -1, 64)
}

func (t *Trainer) tagger(direction string) pipe.Spec {
	return pipe.Command("apertium", "-d", t.cfg.LangData, direction+"-tagger")
}
