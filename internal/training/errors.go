package training

import (
	"fmt"
)

// AbortError reports a declined overwrite. Nothing was changed on disk.
type AbortError struct {
	// Path is the file or directory the operator refused to overwrite.
	Path string
	// Hint tells the operator how to proceed.
	Hint string
	// Code is the process exit status the run should end with.
	Code int
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("not overwriting %s", e.Path)
}

// StageError reports a stage that failed. The cache directory is left in
// place for inspection.
type StageError struct {
	Stage    string
	Artifact string
	Log      string
	Err      error
}

func (e *StageError) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed writing %s: %v", e.Stage, e.Artifact, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Hint tells the operator where to look and how to rerun.
func (e *StageError) Hint(cacheDir string) string {
	hint := fmt.Sprintf("inspect %s, then (re)move %s and re-run lextrain train", e.Log, cacheDir)
	if e.Artifact != "" {
		hint = fmt.Sprintf("check %s; ", e.Artifact) + hint
	}
	return hint
}
