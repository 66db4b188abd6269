package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tz := s.cfg.Timezone
	if tz == "" {
		tz = time.UTC.String()
	}
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{
			Name:          d.name,
			Task:          d.job.Task,
			Spec:          d.spec,
			Timeout:       d.job.Timeout,
			StartupSpread: d.startupSpread,
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	return Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: tz, Schedules: items}
}
