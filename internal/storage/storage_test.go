package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "satrunner/pkg/logx"
)

func sampleRun(id, task string, at time.Time, state string) RunRecord {
	return RunRecord{
		ID:         id,
		Task:       task,
		Trigger:    "schedule",
		Schedule:   "0 7 * * *",
		State:      state,
		StartedAt:  at,
		FinishedAt: at.Add(2 * time.Second),
		DurationMS: 2000,
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	require.Error(t, err)
}

func testStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)

	require.NoError(t, st.RecordRun(ctx, sampleRun("a", "report", base, "succeeded")))
	failed := sampleRun("b", "report", base.Add(12*time.Hour), "failed")
	failed.FailedStep = "install"
	failed.ExitCode = 1
	failed.Error = "install: exit status 1"
	require.NoError(t, st.RecordRun(ctx, failed))
	require.NoError(t, st.RecordRun(ctx, sampleRun("c", "other", base.Add(time.Hour), "succeeded")))

	runs, err := st.RecentRuns(ctx, "report", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "install", runs[0].FailedStep)
	assert.Equal(t, 1, runs[0].ExitCode)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(12*time.Hour)))
	assert.Equal(t, "a", runs[1].ID)

	runs, err = st.RecentRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	all, err := st.RecentRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "history.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	testStore(t, st)
	_, err = os.Stat(filepath.Join(dir, "history.runs.jsonl"))
	require.NoError(t, err)
}

func TestFileStoreCompacts(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "h"), Keep: 3}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"1", "2", "3", "4", "5", "6"} {
		require.NoError(t, st.RecordRun(ctx, sampleRun(id, "t", base.Add(time.Duration(i)*time.Second), "succeeded")))
	}
	runs, err := st.RecentRuns(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "6", runs[0].ID)
	assert.Equal(t, "4", runs[2].ID)
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.ErrorIs(t, st.RecordRun(context.Background(), sampleRun("x", "t", time.Now(), "failed")), ErrClosed)
}

func TestSQLiteStore(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	testStore(t, st)

	// Re-recording an ID updates it in place.
	ctx := context.Background()
	r := sampleRun("a", "report", time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC), "failed")
	r.ExitCode = 3
	require.NoError(t, st.RecordRun(ctx, r))
	runs, err := st.RecentRuns(ctx, "report", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[1].ExitCode)
}
