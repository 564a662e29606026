// Package corpus holds the line-oriented text passes between tagging and
// alignment: counting, filtering untagged lines, separator escaping, and
// the phrase-table join.
//
// Unequal stream lengths are treated as paste(1) does: a missing line reads
// as an empty field.
package corpus

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Separator stands in for spaces inside lexical units while fast_align runs.
const Separator = "~~"

// TagMarker opens a morphological tag in tagger output.
const TagMarker = "<"

var unitEnd = regexp.MustCompile(`\$[^\^]*`)

// HasTag reports whether a tagged field carries at least one analysis.
func HasTag(field string) bool { return strings.Contains(field, TagMarker) }

// Escape hides spaces as Separator and leaves exactly one space after each
// lexical unit's closing $.
func Escape(tagged string) string {
	return unitEnd.ReplaceAllLiteralString(strings.ReplaceAll(tagged, " ", Separator), "$ ")
}

// Unescape restores spaces hidden by Escape.
func Unescape(s string) string { return strings.ReplaceAll(s, Separator, " ") }

// MergeLine builds one fast_align input line, target side first.
func MergeLine(source, target string) string { return target + "||| " + source }

// Stats counts lines seen and lines kept by a filter.
type Stats struct {
	Read int
	Kept int
}

// Dropped returns the number of filtered lines.
func (s Stats) Dropped() int { return s.Read - s.Kept }

// ParallelOutput receives the surviving parallel lines.
type ParallelOutput struct {
	Lines  io.Writer
	Source io.Writer
	Target io.Writer
	Merged io.Writer
}

// FilterParallel numbers line pairs from 1 to n and keeps a pair only when
// both sides contain a tag. Kept sides are escaped; their original numbers
// go to Lines and the fast_align bitext to Merged.
func FilterParallel(source, target io.Reader, n int, out ParallelOutput) (Stats, error) {
	var st Stats
	lines := bufio.NewWriter(out.Lines)
	src := bufio.NewWriter(out.Source)
	tgt := bufio.NewWriter(out.Target)
	merged := bufio.NewWriter(out.Merged)

	err := zipLines([]io.Reader{source, target}, func(i int, fields []string) error {
		st.Read++
		sl, tl := fields[0], fields[1]
		if !HasTag(sl) || !HasTag(tl) {
			return nil
		}
		st.Kept++
		sl, tl = Escape(sl), Escape(tl)
		for _, w := range []struct {
			b    *bufio.Writer
			text string
		}{
			{lines, number(i, 1, n)}, {src, sl}, {tgt, tl}, {merged, MergeLine(sl, tl)},
		} {
			if _, err := w.b.WriteString(w.text + "\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	return st, flushAll(lines, src, tgt, merged)
}

// MonolingualOutput receives the surviving source lines.
type MonolingualOutput struct {
	Lines  io.Writer
	Source io.Writer
}

// FilterMonolingual numbers lines from 0 to n-1 and keeps those whose tagged
// field contains a tag. Nothing is escaped.
func FilterMonolingual(source io.Reader, n int, out MonolingualOutput) (Stats, error) {
	var st Stats
	lines := bufio.NewWriter(out.Lines)
	src := bufio.NewWriter(out.Source)

	err := zipLines([]io.Reader{source}, func(i int, fields []string) error {
		st.Read++
		if !HasTag(fields[0]) {
			return nil
		}
		st.Kept++
		if _, err := lines.WriteString(number(i, 0, n) + "\n"); err != nil {
			return err
		}
		_, err := src.WriteString(fields[0] + "\n")
		return err
	})
	if err != nil {
		return st, err
	}
	return st, flushAll(lines, src)
}

// JoinPhraseTable writes one " ||| "-joined line per sentence from the
// target biltrans, source biltrans, and alignment streams.
func JoinPhraseTable(w io.Writer, target, source, alignment io.Reader) (int, error) {
	bw := bufio.NewWriter(w)
	count := 0
	err := zipLines([]io.Reader{target, source, alignment}, func(_ int, fields []string) error {
		count++
		// Tabs already inside a field become delimiters too.
		_, err := bw.WriteString(strings.ReplaceAll(strings.Join(fields, "\t"), "\t", " ||| ") + "\n")
		return err
	})
	if err != nil {
		return count, err
	}
	return count, bw.Flush()
}

// CountLines counts lines in r. A final line without a newline counts.
func CountLines(r io.Reader) (int, error) {
	buf := make([]byte, 64*1024)
	count := 0
	last := byte('\n')
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			count += bytes.Count(chunk, []byte{'\n'})
			last = chunk[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count lines: %w", err)
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

// number renders the i-th (0-based) line number of a 'seq first first+n-1'
// column, or "" past its end.
func number(i, first, n int) string {
	if i >= n {
		return ""
	}
	return strconv.Itoa(first + i)
}

// zipLines reads the streams in lockstep until all are exhausted, calling fn
// with the line index and one field per stream.
func zipLines(readers []io.Reader, fn func(i int, fields []string) error) error {
	brs := make([]*bufio.Reader, len(readers))
	done := make([]bool, len(readers))
	for i, r := range readers {
		brs[i] = bufio.NewReaderSize(r, 256*1024)
	}

	for i := 0; ; i++ {
		fields := make([]string, len(readers))
		more := false
		for j, br := range brs {
			if done[j] {
				continue
			}
			line, err := br.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read stream %d: %w", j, err)
			}
			if errors.Is(err, io.EOF) {
				done[j] = true
				if line == "" {
					continue
				}
			}
			more = true
			fields[j] = strings.TrimSuffix(line, "\n")
		}
		if !more {
			return nil
		}
		if err := fn(i, fields); err != nil {
			return err
		}
	}
}

func flushAll(ws ...*bufio.Writer) error {
	for _, w := range ws {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
