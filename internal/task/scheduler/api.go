package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"satrunner/internal/task/engine"
	logx "satrunner/pkg/logx"
)

// AddSchedule registers job under name. An existing schedule with the same
// name is replaced, so re-registering on config reload never duplicates.
//
// Supported schedule formats:
//   - Cron: "0 7 * * *", "*/5 * * * *", "@daily", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job.Run == nil {
		return "", errors.New("job Run required")
	}
	if strings.TrimSpace(job.Task) == "" {
		job.Task = name
	}

	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = fmt.Sprintf("@every %s", ps.Every)
	} else if _, err := cronParser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid cron %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, job: job})
	if s.c != nil {
		d := &s.defs[len(s.defs)-1]
		s.registerLocked(d)
		s.log.Debug("schedule registered",
			logx.String("name", name),
			logx.String("task", job.Task),
			logx.String("spec", spec),
			logx.String("next", s.previewNextRunsLocked(spec, 3)),
		)
	}
	return name, nil
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// RemoveTask unschedules every schedule that fires task.
func (s *Service) RemoveTask(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, d := range s.defs {
		if d.job.Task == task {
			names = append(names, d.name)
		}
	}
	for _, n := range names {
		s.removeLocked(n)
	}
	return len(names)
}

func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// registerLocked adds d to the running cron. Interval schedules get a random
// startup spread so a restart doesn't fire everything at once.
func (s *Service) registerLocked(d *scheduleDef) {
	name, job := d.name, d.job
	fire := cron.FuncJob(func() {
		if s.eng == nil {
			return
		}
		err := s.eng.Enqueue(engine.Task{
			Name:    job.Task,
			Timeout: job.Timeout,
			Run:     job.Run,
			Opt:     job.Opt,
		})
		if err != nil {
			s.reportEnqueueError(name, err)
			return
		}
		s.log.Debug("schedule fired", logx.String("schedule", name), logx.String("task", job.Task))
	})

	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(strings.TrimSpace(every)); err == nil && dur > 0 {
			sched, jitter := makeIntervalScheduleWithSpread(dur, time.Now().In(s.loc), d.name)
			d.startupSpread = jitter
			d.entryID = s.c.Schedule(sched, fire)
			return
		}
	}

	d.startupSpread = 0
	eid, err := s.c.AddJob(d.spec, fire)
	if err != nil {
		// AddSchedule already validated the schedule; this only trips on a
		// parser change between registration and start.
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
}

// previewNextRunsLocked lists upcoming fire times for debug logs.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05 MST"))
	}
	return strings.Join(parts, ", ")
}
