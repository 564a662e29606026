package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache-toy-en-es", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(1500 * time.Millisecond)
		return clock
	}
	return l
}

func TestOpenBootstrapsTables(t *testing.T) {
	l := openTest(t)
	for _, table := range []string{"runs", "stage_runs"} {
		var name string
		err := l.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", table).Scan(&name)
		require.NoError(t, err, "table %q missing", table)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	_, err := l.LatestRun(ctx)
	assert.True(t, errors.Is(err, ErrRunNotFound))

	run, err := l.StartRun(ctx, Run{Corpus: "toy", Pair: "en-es", Mode: "parallel", Fingerprint: "abc", TrainingLines: 100})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	require.NoError(t, l.SetTrainingLines(ctx, run.ID, 3))

	stageID, err := l.BeginStage(ctx, run.ID, 1, "tag-source")
	require.NoError(t, err)
	require.NoError(t, l.FinishStage(ctx, stageID, Outcome{Artifact: "toy.tagged.en", Bytes: 42, Blake3: "ff00"}))

	failedID, err := l.BeginStage(ctx, run.ID, 2, "tag-target")
	require.NoError(t, err)
	require.NoError(t, l.FinishStage(ctx, failedID, Outcome{Err: errors.New("apertium: exit status 1")}))

	require.NoError(t, l.FinishRun(ctx, run.ID, "", errors.New("tag-target failed")))

	latest, err := l.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, StatusFailed, latest.Status)
	assert.Equal(t, 3, latest.TrainingLines)
	assert.Equal(t, "tag-target failed", latest.LastError)
	require.NotNil(t, latest.CompletedAt)

	stages, err := l.Stages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.Equal(t, "tag-source", stages[0].Stage)
	assert.Equal(t, StatusSucceeded, stages[0].Status)
	assert.Equal(t, int64(42), stages[0].Bytes)
	assert.Equal(t, "ff00", stages[0].Blake3)
	assert.Equal(t, 1500*time.Millisecond, stages[0].Duration())

	assert.Equal(t, StatusFailed, stages[1].Status)
	assert.Equal(t, int64(-1), stages[1].Bytes)
	assert.Empty(t, stages[1].Artifact)
	assert.Contains(t, stages[1].LastError, "exit status 1")
}

func TestLatestRunPicksNewest(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	first, err := l.StartRun(ctx, Run{ID: "run-a", Corpus: "toy", Pair: "en-es", Mode: "parallel", Fingerprint: "x"})
	require.NoError(t, err)
	require.NoError(t, l.FinishRun(ctx, first.ID, "/work/toy.en-es.ngrams-lm-1.lrx", nil))

	_, err = l.StartRun(ctx, Run{ID: "run-b", Corpus: "toy", Pair: "en-es", Mode: "parallel", Fingerprint: "x"})
	require.NoError(t, err)

	latest, err := l.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-b", latest.ID)
	assert.Equal(t, StatusRunning, latest.Status)
	assert.Nil(t, latest.CompletedAt)
}

func TestSkippedStageAndUnknownStage(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	run, err := l.StartRun(ctx, Run{Corpus: "toy", Pair: "en-es", Mode: "non-parallel", Fingerprint: "x"})
	require.NoError(t, err)
	id, err := l.BeginStage(ctx, run.ID, 1, "language-model")
	require.NoError(t, err)
	require.NoError(t, l.FinishStage(ctx, id, Outcome{Status: StatusSkipped}))

	stages, err := l.Stages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, StatusSkipped, stages[0].Status)

	err = l.FinishStage(ctx, "missing", Outcome{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
