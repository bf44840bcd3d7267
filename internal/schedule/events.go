package schedule

import (
	"sort"
	"time"
)

// EventKind says what happens at an event instant.
type EventKind string

const (
	EventOff EventKind = "off_start" // interruption begins
	EventOn  EventKind = "on_start"  // service restoration begins
)

// Event is a single instant derived from the window list: the start of an
// interruption or the moment service is expected back.
type Event struct {
	At   time.Time
	Kind EventKind
}

// Events expands the payload's windows into a time-ordered event list.
// Every interruption (and partial) window yields an off_start at its start
// and an on_start at its end; restoration windows yield only on_start.
func Events(p Payload) []Event {
	evs := make([]Event, 0, 2*len(p.Windows))
	for _, w := range p.Windows {
		switch w.Kind {
		case KindRestoration:
			evs = append(evs, Event{At: w.Start, Kind: EventOn})
		default:
			evs = append(evs, Event{At: w.Start, Kind: EventOff})
			if w.End.After(w.Start) {
				evs = append(evs, Event{At: w.End, Kind: EventOn})
			}
		}
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].At.Before(evs[j].At) })
	return evs
}

// NextEvent returns the earliest event within [now, now+lead], the alert
// window: close enough to warn about, including one starting this very
// instant. ok is false when no event qualifies.
func NextEvent(p Payload, now time.Time, lead time.Duration) (Event, bool) {
	if lead <= 0 {
		return Event{}, false
	}
	horizon := now.Add(lead)
	for _, ev := range Events(p) {
		if ev.At.Before(now) {
			continue
		}
		if ev.At.After(horizon) {
			return Event{}, false
		}
		return ev, true
	}
	return Event{}, false
}
