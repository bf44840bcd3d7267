package checker

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// WakeSpec decides when a checker loop wakes up. Three forms are accepted:
// a plain duration ("5m"), a daily time ("06:30"), or a cron expression
// ("*/10 * * * *").
type WakeSpec struct {
	every time.Duration
	sched cron.Schedule
}

func ParseWakeSpec(raw string) (WakeSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return WakeSpec{}, fmt.Errorf("empty wake spec")
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return WakeSpec{}, fmt.Errorf("wake interval must be positive, got %s", raw)
		}
		return WakeSpec{every: d}, nil
	}
	if hh, mm, ok := parseDailyTime(raw); ok {
		spec := fmt.Sprintf("%d %d * * *", mm, hh)
		sched, err := cronParser.Parse(spec)
		if err != nil {
			return WakeSpec{}, fmt.Errorf("daily wake spec %q: %w", raw, err)
		}
		return WakeSpec{sched: sched}, nil
	}
	sched, err := cronParser.Parse(raw)
	if err != nil {
		return WakeSpec{}, fmt.Errorf("wake spec %q: %w", raw, err)
	}
	return WakeSpec{sched: sched}, nil
}

// Next returns the instant of the wake after t.
func (w WakeSpec) Next(t time.Time) time.Time {
	if w.every > 0 {
		return t.Add(w.every)
	}
	return w.sched.Next(t)
}

func parseDailyTime(raw string) (hh, mm int, ok bool) {
	if _, err := fmt.Sscanf(raw, "%d:%d", &hh, &mm); err != nil {
		return 0, 0, false
	}
	if strings.Count(raw, ":") != 1 {
		return 0, 0, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}
