package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/mattjoyce/lextrain/internal/pipe"
)

// ScriptDirs are the install locations searched for the lex-tools scripts,
// most preferred first.
var ScriptDirs = []string{
	"/usr/share/apertium-lex-tools",
	"/usr/local/share/apertium-lex-tools",
	"/opt/local/share/apertium-lex-tools",
}

// ScriptPath returns where the script for tag lives under dir.
func ScriptPath(dir string, tag Tag) string {
	return filepath.Join(dir, string(tag)+".py")
}

// FindScriptDir returns the first directory holding every script. An
// explicit dir is checked alone.
func FindScriptDir(explicit string) (string, error) {
	candidates := ScriptDirs
	if explicit != "" {
		candidates = []string{explicit}
	}
	for _, dir := range candidates {
		if len(MissingScripts(dir)) == 0 {
			return dir, nil
		}
	}
	return "", fmt.Errorf("lex-tools scripts not found in %v", candidates)
}

// MissingScripts lists the tags whose script is absent from dir.
func MissingScripts(dir string) []Tag {
	return lo.Filter(Tags(), func(tag Tag, _ int) bool {
		info, err := os.Stat(ScriptPath(dir, tag))
		return err != nil || info.IsDir()
	})
}

// Default returns a registry with every tag bound to its lex-tools script,
// run as `<python> <dir>/<tag>.py inputs... params...`.
func Default(dir, python string, executor *pipe.Executor) *Registry {
	r := NewRegistry()
	for _, tag := range Tags() {
		r.Register(tag, Script(python, ScriptPath(dir, tag), executor))
	}
	return r
}

// Script adapts an external script to Func.
func Script(python, script string, executor *pipe.Executor) Func {
	return func(ctx context.Context, call Call) error {
		args := append([]string{script}, call.Inputs...)
		args = append(args, call.Params...)
		return executor.Run(ctx, []pipe.Spec{pipe.Command(python, args...)}, pipe.Options{
			Stdout: call.Stdout,
			Stderr: call.Stderr,
		})
	}
}
