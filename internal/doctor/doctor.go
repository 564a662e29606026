// Package doctor checks that a training run can start: tools on PATH, the
// language-data bundle, the corpora, and the lex-tools scripts.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/mattjoyce/lextrain/internal/config"
	"github.com/mattjoyce/lextrain/internal/corpus"
	"github.com/mattjoyce/lextrain/internal/extract"
	"github.com/mattjoyce/lextrain/internal/ledger"
	"github.com/mattjoyce/lextrain/internal/pipe"
	"github.com/mattjoyce/lextrain/internal/resources"
)

// Result holds the outcome of a check run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks a loaded config against the environment.
type Doctor struct {
	cfg      *config.Config
	bundle   resources.Discoverer
	workDir  string
	lookPath func(string) (string, error)
	checkFS  func(string) error
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(d *Doctor) { d.lookPath = fn }
}

// WithFilesystemCheck replaces the local-filesystem check.
func WithFilesystemCheck(fn func(string) error) Option {
	return func(d *Doctor) { d.checkFS = fn }
}

// New creates a Doctor. workDir is where the cache directory and rule file
// will be created.
func New(cfg *config.Config, bundle resources.Discoverer, workDir string, opts ...Option) *Doctor {
	d := &Doctor{
		cfg:      cfg,
		bundle:   bundle,
		workDir:  workDir,
		lookPath: exec.LookPath,
		checkFS:  ledger.CheckLocalFilesystem,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkTools(r)
	d.checkBundle(r)
	d.checkCorpora(r)
	d.checkScripts(r)
	d.checkWorkDir(r)
	d.warnMonitor(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// RequiredTools lists the executables the configured recipe launches.
func RequiredTools(cfg *config.Config) []string {
	tools := []string{"head", "apertium", "apertium-pretransfer", cfg.Python}
	if cfg.Parallel() {
		tools = append(tools, "tr", cfg.FastAlign, "process-tagger-output")
	} else {
		tools = append(tools, "multitrans", "irstlm-ranker")
		if cfg.TLModel == "" && cfg.IRSTLMDir != "" {
			tools = append(tools, filepath.Join(cfg.IRSTLMDir, "bin", "build-lm.sh"))
		}
	}
	return lo.Uniq(lo.Compact(tools))
}

func (d *Doctor) checkTools(r *Result) {
	for _, tool := range RequiredTools(d.cfg) {
		if _, err := d.lookPath(tool); err != nil {
			d.addError(r, "tools", "", fmt.Sprintf("%s not found: %v", tool, err))
		}
	}
}

func (d *Doctor) checkBundle(r *Result) {
	modes, err := d.bundle.Modes()
	if err != nil {
		d.addError(r, "bundle", "lang_data", err.Error())
		return
	}

	directions := []string{d.cfg.Pair()}
	if d.cfg.Parallel() {
		directions = append(directions, d.cfg.ReversePair())
	}

	for _, dir := range directions {
		if tagger := dir + "-tagger"; !lo.Contains(modes, tagger) {
			d.addError(r, "bundle", "lang_data", fmt.Sprintf("mode %s not declared", tagger))
		}
		autobil, err := d.bundle.Autobil(dir)
		if err != nil {
			d.addError(r, "bundle", "lang_data", err.Error())
			continue
		}
		if _, err := os.Stat(autobil); err != nil {
			d.addError(r, "bundle", "lang_data", fmt.Sprintf("%s dictionary missing: %s (is the bundle compiled?)", dir, autobil))
		}
	}

	if d.cfg.Parallel() {
		return
	}
	after, err := d.bundle.AfterBiltrans(d.cfg.Pair())
	if err != nil {
		d.addError(r, "bundle", "lang_data", err.Error())
		return
	}
	names := lo.Uniq(lo.Map(after, func(s pipe.Spec, _ int) string { return s.Name }))
	for _, name := range names {
		if _, err := d.lookPath(name); err != nil {
			d.addError(r, "tools", "", fmt.Sprintf("%s (from mode %s) not found: %v", name, d.cfg.Pair(), err))
		}
	}
}

func (d *Doctor) checkCorpora(r *Result) {
	slLines, err := corpus.CountFileLines(d.cfg.CorpusSL)
	if err != nil {
		d.addError(r, "corpus", "corpus_sl", err.Error())
		return
	}
	if slLines == 0 {
		d.addError(r, "corpus", "corpus_sl", "corpus is empty")
		return
	}
	if d.cfg.TrainingLines > slLines {
		d.addWarning(r, "corpus", "training_lines",
			fmt.Sprintf("%d exceeds the %d lines in %s; %d will be used", d.cfg.TrainingLines, slLines, d.cfg.CorpusSL, slLines))
	}

	if !d.cfg.Parallel() || d.cfg.CorpusTL == "" {
		return
	}
	tlLines, err := corpus.CountFileLines(d.cfg.CorpusTL)
	if err != nil {
		d.addError(r, "corpus", "corpus_tl", err.Error())
		return
	}
	if tlLines != slLines {
		d.addWarning(r, "corpus", "corpus_tl",
			fmt.Sprintf("line counts differ (%d source, %d target); sentences may be misaligned", slLines, tlLines))
	}
}

func (d *Doctor) checkScripts(r *Result) {
	_, err := extract.FindScriptDir(d.cfg.LexToolsDir)
	if err == nil {
		return
	}
	if d.cfg.LexToolsDir != "" {
		missing := lo.Map(extract.MissingScripts(d.cfg.LexToolsDir), func(t extract.Tag, _ int) string { return string(t) })
		d.addError(r, "scripts", "lex_tools_dir", fmt.Sprintf("missing in %s: %s", d.cfg.LexToolsDir, strings.Join(missing, ", ")))
		return
	}
	d.addError(r, "scripts", "lex_tools_dir", err.Error())
}

func (d *Doctor) checkWorkDir(r *Result) {
	if err := d.checkFS(d.workDir); err != nil {
		d.addError(r, "filesystem", "", err.Error())
	}
}

func (d *Doctor) warnMonitor(r *Result) {
	if _, err := d.lookPath(pipe.DefaultMonitor); err != nil {
		d.addWarning(r, "tools", "", "pv not found; tagging runs without a progress bar")
	}
}

// FormatHuman returns a human-readable report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Ready to train.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Ready to train")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Not ready (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
