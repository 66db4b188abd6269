package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule string: a cron expression or a fixed interval.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule accepts:
//   - cron, 5 or 6 fields or a descriptor: "0 7 * * *", "@daily", "@every 1h"
//   - a Go duration interval: "55m"
//   - an HH:MM interval: "02:30"
//
// The prefixes "cron:", "interval:" and "every:" force a kind.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errors.New("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, errors.New("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if ps, err := parseInterval(s); err == nil {
		return ps, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 7 * * *', HH:MM like '02:30', or duration like '55m')", raw)
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, errors.New("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, errors.New("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m')", v)
	}
	if d <= 0 {
		return ParsedSpec{}, errors.New("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

// maxOccurrences bounds Occurrences for dense specs over long windows.
const maxOccurrences = 10000

// Occurrences returns the fire times of schedule within [from, to), evaluated in loc.
// Intervals are anchored at from (no startup spread).
func Occurrences(schedule string, from, to time.Time, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}

	var sched cron.Schedule
	if ps.Kind == SpecInterval {
		sched = cron.Every(ps.Every)
	} else {
		sched, err = cronParser.Parse(ps.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
		// An explicit CRON_TZ= prefix keeps its own zone.
		if sc, ok := sched.(*cron.SpecSchedule); ok && sc.Location == time.Local {
			sc.Location = loc
		}
	}

	var out []time.Time
	t := from.In(loc)
	if _, ok := sched.(*cron.SpecSchedule); ok {
		// Next is strictly after t; step back so a fire time equal to from counts.
		t = t.Add(-time.Nanosecond)
	}
	for len(out) < maxOccurrences {
		t = sched.Next(t)
		if t.IsZero() || !t.Before(to) {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
