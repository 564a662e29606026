package corpus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ParallelFiles names the artifacts touched by the parallel merge.
type ParallelFiles struct {
	Lines  string
	Source string
	Target string
	Merged string
}

// MergeParallelFiles filters the tagged source and target files in place,
// writes the surviving line numbers to Lines, and writes the fast_align
// bitext to Merged.
func MergeParallelFiles(files ParallelFiles, n int) (Stats, error) {
	src, err := os.Open(files.Source)
	if err != nil {
		return Stats{}, err
	}
	defer src.Close()
	tgt, err := os.Open(files.Target)
	if err != nil {
		return Stats{}, err
	}
	defer tgt.Close()

	outs, err := createAll(files.Lines, files.Source, files.Target, files.Merged)
	if err != nil {
		return Stats{}, err
	}
	st, err := FilterParallel(src, tgt, n, ParallelOutput{
		Lines:  outs[0],
		Source: outs[1],
		Target: outs[2],
		Merged: outs[3],
	})
	if err != nil {
		abortAll(outs)
		return st, err
	}
	return st, commitAll(outs)
}

// CleanMonolingualFiles filters the tagged source file in place and writes
// the surviving line numbers to lines.
func CleanMonolingualFiles(linesPath, sourcePath string, n int) (Stats, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return Stats{}, err
	}
	defer src.Close()

	outs, err := createAll(linesPath, sourcePath)
	if err != nil {
		return Stats{}, err
	}
	st, err := FilterMonolingual(src, n, MonolingualOutput{Lines: outs[0], Source: outs[1]})
	if err != nil {
		abortAll(outs)
		return st, err
	}
	return st, commitAll(outs)
}

// UnescapeFile restores Separator to spaces throughout a file.
func UnescapeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := newAtomicFile(path)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(out, Unescape(string(data))); err != nil {
		out.abort()
		return fmt.Errorf("rewrite %s: %w", filepath.Base(path), err)
	}
	return out.commit()
}

// JoinPhraseTableFiles joins the three inputs into the phrase table at out.
func JoinPhraseTableFiles(out, target, source, alignment string) (int, error) {
	var readers []io.Reader
	for _, p := range []string{target, source, alignment} {
		f, err := os.Open(p)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		readers = append(readers, f)
	}

	w, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	n, err := JoinPhraseTable(w, readers[0], readers[1], readers[2])
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// CountFileLines counts the lines of the file at path.
func CountFileLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return CountLines(f)
}

// atomicFile writes to a temp file beside target and renames it over
// target on commit, so a file can be rewritten from itself.
type atomicFile struct {
	*os.File
	target string
}

func newAtomicFile(target string) (*atomicFile, error) {
	dir, base := filepath.Split(target)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+strings.TrimPrefix(base, ".")+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", base, err)
	}
	return &atomicFile{File: f, target: target}, nil
}

func (a *atomicFile) commit() error {
	if err := a.Close(); err != nil {
		_ = os.Remove(a.Name())
		return err
	}
	if err := os.Rename(a.Name(), a.target); err != nil {
		_ = os.Remove(a.Name())
		return fmt.Errorf("replace %s: %w", filepath.Base(a.target), err)
	}
	return nil
}

func (a *atomicFile) abort() {
	_ = a.Close()
	_ = os.Remove(a.Name())
}

func createAll(paths ...string) ([]*atomicFile, error) {
	outs := make([]*atomicFile, 0, len(paths))
	for _, p := range paths {
		f, err := newAtomicFile(p)
		if err != nil {
			abortAll(outs)
			return nil, err
		}
		outs = append(outs, f)
	}
	return outs, nil
}

func commitAll(outs []*atomicFile) error {
	for i, f := range outs {
		if err := f.commit(); err != nil {
			abortAll(outs[i+1:])
			return err
		}
	}
	return nil
}

func abortAll(outs []*atomicFile) {
	for _, f := range outs {
		f.abort()
	}
}
