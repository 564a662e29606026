// Package inspect renders the ledger of a cache directory for operators.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/lextrain/internal/cache"
	"github.com/mattjoyce/lextrain/internal/ledger"
)

// Report is the structured JSON representation of a cache directory's latest run.
type Report struct {
	CacheDir      string     `json:"cache_dir"`
	RunID         string     `json:"run_id"`
	Corpus        string     `json:"corpus"`
	Pair          string     `json:"pair"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	Fingerprint   string     `json:"fingerprint"`
	TrainingLines int        `json:"training_lines"`
	RulesPath     string     `json:"rules_path,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Stages        []Step     `json:"stages"`
	Files         []string   `json:"files"`
}

// Step is one stage of the run.
type Step struct {
	Seq       int     `json:"seq"`
	Stage     string  `json:"stage"`
	Status    string  `json:"status"`
	Seconds   float64 `json:"duration_seconds"`
	Artifact  string  `json:"artifact,omitempty"`
	Bytes     int64   `json:"bytes,omitempty"`
	Blake3    string  `json:"blake3,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}

// BuildReport renders a terminal-friendly report of the latest run in cacheDir.
func BuildReport(ctx context.Context, cacheDir string) (string, error) {
	report, err := Gather(ctx, cacheDir)
	if err != nil {
		return "", err
	}
	theme := NewDefaultTheme()

	var out strings.Builder
	fmt.Fprintf(&out, "%s\n", theme.Title.Render("Training Run"))
	fmt.Fprintf(&out, "Cache dir     : %s\n", report.CacheDir)
	fmt.Fprintf(&out, "Run ID        : %s\n", report.RunID)
	fmt.Fprintf(&out, "Corpus        : %s (%s, %s)\n", report.Corpus, report.Pair, report.Mode)
	fmt.Fprintf(&out, "Status        : %s\n", theme.Status(report.Status).Render(report.Status))
	fmt.Fprintf(&out, "Fingerprint   : %s\n", report.Fingerprint)
	fmt.Fprintf(&out, "Lines         : %d\n", report.TrainingLines)
	fmt.Fprintf(&out, "Rules         : %s\n", renderUnset(report.RulesPath, "<none>"))
	if report.LastError != "" {
		fmt.Fprintf(&out, "Error         : %s\n", theme.StatusFailed.Render(report.LastError))
	}
	fmt.Fprintf(&out, "\n")

	for _, step := range report.Stages {
		fmt.Fprintf(&out, "[%d] %s %s (%.2fs)\n", step.Seq, theme.Header.Render(step.Stage),
			theme.Status(step.Status).Render(step.Status), step.Seconds)
		if step.Artifact != "" {
			fmt.Fprintf(&out, "    artifact : %s (%d bytes)\n", step.Artifact, step.Bytes)
			fmt.Fprintf(&out, "    blake3   : %s\n", renderUnset(step.Blake3, "<none>"))
		}
		if step.LastError != "" {
			fmt.Fprintf(&out, "    error    : %s\n", step.LastError)
		}
	}

	fmt.Fprintf(&out, "\n%s\n", theme.Dim.Render("Files:"))
	if len(report.Files) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, f := range report.Files {
		fmt.Fprintf(&out, "  - %s\n", f)
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable report.
func BuildJSONReport(ctx context.Context, cacheDir string) (string, error) {
	report, err := Gather(ctx, cacheDir)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// Gather reads the latest run of cacheDir without modifying it.
func Gather(ctx context.Context, cacheDir string) (*Report, error) {
	if strings.TrimSpace(cacheDir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	abs, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cacheDir, err)
	}

	// Opening would create an empty ledger; refuse instead.
	dbPath := filepath.Join(abs, cache.Key{}.FileName(cache.LedgerDB))
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no ledger in %s", abs)
	}
	l, err := ledger.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	run, err := l.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	stages, err := l.Stages(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		CacheDir:      abs,
		RunID:         run.ID,
		Corpus:        run.Corpus,
		Pair:          run.Pair,
		Mode:          run.Mode,
		Status:        string(run.Status),
		Fingerprint:   run.Fingerprint,
		TrainingLines: run.TrainingLines,
		RulesPath:     run.RulesPath,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		LastError:     run.LastError,
		Stages:        make([]Step, 0, len(stages)),
	}
	for _, s := range stages {
		report.Stages = append(report.Stages, Step{
			Seq:       s.Seq,
			Stage:     s.Stage,
			Status:    string(s.Status),
			Seconds:   s.Duration().Seconds(),
			Artifact:  s.Artifact,
			Bytes:     s.Bytes,
			Blake3:    s.Blake3,
			LastError: s.LastError,
		})
	}

	files, err := listFiles(abs)
	if err != nil {
		return nil, fmt.Errorf("list cache files: %w", err)
	}
	report.Files = files
	return report, nil
}

func listFiles(dir string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
