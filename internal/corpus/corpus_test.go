package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single unit", "^casa<n><f><sg>$", "^casa<n><f><sg>$ "},
		{"units separated by space", "^la<det>$ ^casa<n>$", "^la<det>$ ^casa<n>$ "},
		{"multiword unit", "^a fin de<pr>$ ^eso<prn>$", "^a~~fin~~de<pr>$ ^eso<prn>$ "},
		{"trailing punctuation swallowed", "^hola<ij>$ .", "^hola<ij>$ "},
		{"no units", "plain text", "plain~~text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "^a fin de<pr>$ ", Unescape("^a~~fin~~de<pr>$ "))
	assert.Equal(t, "nothing", Unescape("nothing"))
}

func TestMergeLine(t *testing.T) {
	assert.Equal(t, "^house<n>$ ||| ^casa<n>$ ", MergeLine("^casa<n>$ ", "^house<n>$ "))
}

func TestHasTag(t *testing.T) {
	assert.True(t, HasTag("^casa<n>$"))
	assert.False(t, HasTag("^*casa$"))
	assert.False(t, HasTag(""))
}

func TestFilterParallelKeepsOnlyDoublyTagged(t *testing.T) {
	source := "^uno<num>$\n^*dos$\n^tres<num>$\n^cuatro<num>$\n"
	target := "^one<num>$\n^two<num>$\n^three<num>$\n^*four$\n"

	var lines, src, tgt, merged bytes.Buffer
	st, err := FilterParallel(strings.NewReader(source), strings.NewReader(target), 4, ParallelOutput{
		Lines: &lines, Source: &src, Target: &tgt, Merged: &merged,
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Read: 4, Kept: 2}, st)
	assert.Equal(t, 2, st.Dropped())
	assert.Equal(t, "1\n3\n", lines.String())
	assert.Equal(t, "^uno<num>$ \n^tres<num>$ \n", src.String())
	assert.Equal(t, "^one<num>$ \n^three<num>$ \n", tgt.String())
	assert.Equal(t, "^one<num>$ ||| ^uno<num>$ \n^three<num>$ ||| ^tres<num>$ \n", merged.String())
	assert.NotContains(t, src.String()+tgt.String()+merged.String(), "dos")
	assert.NotContains(t, src.String()+tgt.String()+merged.String(), "four")
}

func TestFilterParallelUnevenStreams(t *testing.T) {
	var lines, src, tgt, merged bytes.Buffer
	st, err := FilterParallel(
		strings.NewReader("^a<n>$\n^b<n>$\n^c<n>$"),
		strings.NewReader("^x<n>$\n"),
		2,
		ParallelOutput{Lines: &lines, Source: &src, Target: &tgt, Merged: &merged},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Read)
	assert.Equal(t, 1, st.Kept)
	assert.Equal(t, "1\n", lines.String())
}

func TestFilterParallelNumbersPastBudgetAreEmpty(t *testing.T) {
	var lines, src, tgt, merged bytes.Buffer
	_, err := FilterParallel(
		strings.NewReader("^a<n>$\n^b<n>$\n"),
		strings.NewReader("^x<n>$\n^y<n>$\n"),
		1,
		ParallelOutput{Lines: &lines, Source: &src, Target: &tgt, Merged: &merged},
	)
	require.NoError(t, err)
	assert.Equal(t, "1\n\n", lines.String())
}

func TestFilterMonolingualZeroIndexed(t *testing.T) {
	var lines, src bytes.Buffer
	st, err := FilterMonolingual(strings.NewReader("^a b<n>$\n^*x$\n^c<n>$\n"), 3, MonolingualOutput{Lines: &lines, Source: &src})
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 3, Kept: 2}, st)
	assert.Equal(t, "0\n2\n", lines.String())
	// No escaping on this path.
	assert.Equal(t, "^a b<n>$\n^c<n>$\n", src.String())
}

func TestJoinPhraseTable(t *testing.T) {
	var out bytes.Buffer
	n, err := JoinPhraseTable(&out,
		strings.NewReader("t1\nt2\n"),
		strings.NewReader("s1\ns2\n"),
		strings.NewReader("0-0\n0-0 1-1\n"),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "t1 ||| s1 ||| 0-0\nt2 ||| s2 ||| 0-0 1-1\n", out.String())
}

func TestJoinPhraseTableReplacesEmbeddedTabs(t *testing.T) {
	var out bytes.Buffer
	_, err := JoinPhraseTable(&out, strings.NewReader("a\tb\n"), strings.NewReader("c\n"), strings.NewReader("d\n"))
	require.NoError(t, err)
	assert.Equal(t, "a ||| b ||| c ||| d\n", out.String())
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one\n", 1},
		{"one\ntwo", 2},
		{"one\ntwo\n", 2},
		{"\n\n", 2},
	}
	for _, tt := range tests {
		got, err := CountLines(strings.NewReader(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "CountLines(%q)", tt.in)
	}
}

func TestMergeParallelFilesRewritesInPlace(t *testing.T) {
	dir := t.TempDir()
	files := ParallelFiles{
		Lines:  filepath.Join(dir, "c.lines"),
		Source: filepath.Join(dir, "c.tagged.en"),
		Target: filepath.Join(dir, "c.tagged.es"),
		Merged: filepath.Join(dir, "c.tagged-merged.en-es"),
	}
	require.NoError(t, os.WriteFile(files.Source, []byte("^the<det>$ ^cat<n>$\n^*zzz$\n^a dog<n>$\n"), 0o644))
	require.NoError(t, os.WriteFile(files.Target, []byte("^el<det>$ ^gato<n>$\n^*zzz$\n^un perro<n>$\n"), 0o644))

	st, err := MergeParallelFiles(files, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Kept)

	read := func(p string) string {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "1\n3\n", read(files.Lines))
	assert.Equal(t, "^the<det>$ ^cat<n>$ \n^a~~dog<n>$ \n", read(files.Source))
	assert.Equal(t, "^el<det>$ ^gato<n>$ ||| ^the<det>$ ^cat<n>$ \n^un~~perro<n>$ ||| ^a~~dog<n>$ \n", read(files.Merged))

	require.NoError(t, UnescapeFile(files.Source))
	assert.Equal(t, "^the<det>$ ^cat<n>$ \n^a dog<n>$ \n", read(files.Source))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "no temp files left behind")
}

func TestMergeParallelFilesMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := MergeParallelFiles(ParallelFiles{
		Lines:  filepath.Join(dir, "l"),
		Source: filepath.Join(dir, "missing"),
		Target: filepath.Join(dir, "missing2"),
		Merged: filepath.Join(dir, "m"),
	}, 1)
	require.Error(t, err)
}

func TestCleanMonolingualFiles(t *testing.T) {
	dir := t.TempDir()
	lines := filepath.Join(dir, "c.lines")
	src := filepath.Join(dir, "c.tagged.en")
	require.NoError(t, os.WriteFile(src, []byte("^*x$\n^y<n>$\n"), 0o644))

	st, err := CleanMonolingualFiles(lines, src, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Kept)

	b, err := os.ReadFile(lines)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(b))
	b, err = os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "^y<n>$\n", string(b))
}

func TestJoinPhraseTableFiles(t *testing.T) {
	dir := t.TempDir()
	paths := map[string]string{"t": "t1\n", "s": "s1\n", "a": "0-0\n"}
	for name, body := range paths {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	out := filepath.Join(dir, "pt")
	n, err := JoinPhraseTableFiles(out, filepath.Join(dir, "t"), filepath.Join(dir, "s"), filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "t1 ||| s1 ||| 0-0\n", string(b))
}

func TestCountFileLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "corpus")
	require.NoError(t, os.WriteFile(p, []byte("a\nb\nc"), 0o644))
	n, err := CountFileLines(p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = CountFileLines(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}
