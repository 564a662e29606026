package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lextrain/internal/inspect"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Report: &inspect.Report{
			RunID:         "run-1",
			Corpus:        "toy",
			Pair:          "en-es",
			Status:        "running",
			TrainingLines: 3,
			Stages: []inspect.Step{
				{Seq: 1, Stage: "tag-source", Status: "succeeded", Seconds: 1.5, Artifact: "toy.tagged.en", Bytes: 42},
				{Seq: 2, Stage: "tag-target", Status: "running"},
			},
		},
		LogTail: "tagging\nalmost done\n",
	}
}

func sized(t *testing.T, m *Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func TestViewBeforeSize(t *testing.T) {
	m := NewMonitor("cache-toy-en-es", time.Second)
	assert.Equal(t, "Initializing...", m.View())
}

func TestSnapshotFillsTable(t *testing.T) {
	m := NewMonitor("cache-toy-en-es", time.Second)
	sm := sized(t, m)

	next, cmd := sm.Update(snapshotMsg(sampleSnapshot()))
	require.NotNil(t, cmd)
	got := next.(Model)

	rows := got.stageTable.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "tag-source", rows[0][2])
	assert.Equal(t, "42", rows[0][5])
	assert.Equal(t, "1.5s", rows[0][4])
	assert.Equal(t, "-", rows[1][4])
	assert.Equal(t, "-", rows[1][5])

	view := got.View()
	for _, needle := range []string{"run-1", "toy en-es", "tag-target", "almost done"} {
		assert.Contains(t, view, needle)
	}
}

func TestErrorIsShownAndCleared(t *testing.T) {
	m := NewMonitor("missing", time.Second)
	sm := sized(t, m)

	next, _ := sm.Update(errMsg{errors.New("no ledger in missing")})
	got := next.(Model)
	assert.Contains(t, got.View(), "no ledger in missing")
	assert.Contains(t, got.View(), "Waiting for missing")

	next, _ = got.Update(snapshotMsg(sampleSnapshot()))
	assert.NotContains(t, next.(Model).View(), "no ledger in missing")
}

func TestQuitKeys(t *testing.T) {
	m := NewMonitor("cache", time.Second)
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestPollUsesLoader(t *testing.T) {
	m := NewMonitor("cache", time.Second)
	m.load = func(_ context.Context, dir string) (Snapshot, error) {
		assert.Equal(t, "cache", dir)
		return sampleSnapshot(), nil
	}
	msg := m.poll()()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok)
	assert.Equal(t, "run-1", snap.Report.RunID)

	m.load = func(context.Context, string) (Snapshot, error) {
		return Snapshot{}, errors.New("boom")
	}
	_, ok = m.poll()().(errMsg)
	assert.True(t, ok)
}

func TestLoadSnapshotWithoutLedger(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSnapshot(context.Background(), dir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "ledger.db"))
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.log")
	require.NoError(t, os.WriteFile(path, []byte("first line\nsecond line\nthird\n"), 0o644))

	all, err := readTail(path, 1024)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line\nthird\n", all)

	tail, err := readTail(path, 10)
	require.NoError(t, err)
	assert.Equal(t, "third\n", tail)

	missing, err := readTail(filepath.Join(t.TempDir(), "nope"), 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
