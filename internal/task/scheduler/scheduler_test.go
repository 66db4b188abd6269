package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satrunner/internal/task/engine"
	logx "satrunner/pkg/logx"
)

type fakeEngine struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
}

func (f *fakeEngine) Enqueue(t engine.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func noop(context.Context) error { return nil }

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		kind    SpecKind
		cron    string
		every   time.Duration
		wantErr bool
	}{
		{in: "0 7 * * *", kind: SpecCron, cron: "0 7 * * *"},
		{in: "@daily", kind: SpecCron, cron: "@daily"},
		{in: "cron: 0 19 * * *", kind: SpecCron, cron: "0 19 * * *"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute},
		{in: "every: 1h", kind: SpecInterval, every: time.Hour},
		{in: "interval:00:05", kind: SpecInterval, every: 5 * time.Minute},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ps, err := ParseSchedule(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ps.Kind)
			assert.Equal(t, tt.cron, ps.Cron)
			assert.Equal(t, tt.every, ps.Every)
		})
	}
}

func TestTwoDailySchedulesFireTwicePerDay(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	var all []time.Time
	for _, spec := range []string{"0 7 * * *", "0 19 * * *"} {
		occ, err := Occurrences(spec, from, to, time.UTC)
		require.NoError(t, err)
		require.Len(t, occ, 1)
		all = append(all, occ...)
	}
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC),
	}, all)

	// A window starting mid-day still sees exactly two.
	from = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	n := 0
	for _, spec := range []string{"0 7 * * *", "0 19 * * *"} {
		occ, err := Occurrences(spec, from, from.Add(24*time.Hour), time.UTC)
		require.NoError(t, err)
		n += len(occ)
	}
	assert.Equal(t, 2, n)
}

func TestOccurrencesBoundaries(t *testing.T) {
	from := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	occ, err := Occurrences("0 7 * * *", from, from.Add(24*time.Hour), time.UTC)
	require.NoError(t, err)
	require.Len(t, occ, 1, "window is [from, to)")
	assert.Equal(t, from, occ[0])

	occ, err = Occurrences("1h", from, from.Add(3*time.Hour), time.UTC)
	require.NoError(t, err)
	assert.Len(t, occ, 2)
}

func TestOccurrencesTimezone(t *testing.T) {
	jkt, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	occ, err := Occurrences("0 7 * * *", from, from.Add(24*time.Hour), jkt)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	// 07:00 WIB is midnight UTC, which is exactly from.
	assert.Equal(t, from, occ[0].UTC())

	occ, err = Occurrences("0 7 * * *", from.Add(time.Second), from.Add(24*time.Hour+time.Second), jkt)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, from.Add(24*time.Hour), occ[0].UTC())
}

func TestAddScheduleValidates(t *testing.T) {
	s := New(Config{Enabled: true}, &fakeEngine{}, logx.Nop())
	_, err := s.AddSchedule("", "@daily", Job{Run: noop})
	require.Error(t, err)
	_, err = s.AddSchedule("a", "@daily", Job{})
	require.Error(t, err)
	_, err = s.AddSchedule("a", "61 * * * *", Job{Run: noop})
	require.Error(t, err)
}

func TestAddScheduleReplacesByName(t *testing.T) {
	s := New(Config{Enabled: true}, &fakeEngine{}, logx.Nop())
	_, err := s.AddSchedule("report#0", "0 7 * * *", Job{Task: "report", Run: noop})
	require.NoError(t, err)
	_, err = s.AddSchedule("report#0", "0 8 * * *", Job{Task: "report", Run: noop})
	require.NoError(t, err)
	_, err = s.AddSchedule("report#1", "0 19 * * *", Job{Task: "report", Run: noop})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 2)
	assert.Equal(t, "0 8 * * *", snap.Schedules[0].Spec)
	assert.Equal(t, "UTC", snap.Timezone)

	assert.True(t, s.Remove("report#1"))
	assert.False(t, s.Remove("report#1"))
	assert.Equal(t, 1, s.RemoveTask("report"))
	assert.Empty(t, s.Snapshot().Schedules)
}

func TestRunningSchedulerEnqueues(t *testing.T) {
	eng := &fakeEngine{}
	s := New(Config{Enabled: true}, eng, logx.Nop())
	_, err := s.AddSchedule("every-second", "* * * * * *", Job{Task: "report", Timeout: time.Minute, Run: noop})
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	require.True(t, snap.Running)
	require.False(t, snap.Schedules[0].Next.IsZero())

	require.Eventually(t, func() bool { return eng.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	eng.mu.Lock()
	task := eng.tasks[0]
	eng.mu.Unlock()
	assert.Equal(t, "report", task.Name)
	assert.Equal(t, time.Minute, task.Timeout)
}

func TestDisabledSchedulerDoesNotStart(t *testing.T) {
	s := New(Config{}, &fakeEngine{}, logx.Nop())
	s.Start(context.Background())
	assert.False(t, s.Snapshot().Running)
	s.Stop(context.Background())
}

func TestEnqueueErrorsAreSwallowed(t *testing.T) {
	eng := &fakeEngine{err: errors.New("queue full")}
	s := New(Config{Enabled: true}, eng, logx.Nop())
	s.reportEnqueueError("x", eng.err)
	s.reportEnqueueError("x", engine.ErrOverlapSkip)
	assert.Zero(t, eng.count())
}
