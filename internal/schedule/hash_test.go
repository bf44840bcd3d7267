package schedule

import (
	"testing"
	"time"
)

func day(h, m int) time.Time {
	return time.Date(2025, 11, 3, h, m, 0, 0, time.UTC)
}

func TestHashStableUnderSlotOrder(t *testing.T) {
	t.Parallel()
	a := Payload{Provider: "dtek", Zone: "3.1", Windows: []Window{
		{Start: day(8, 0), End: day(12, 0), Kind: KindInterruption},
		{Start: day(16, 0), End: day(20, 0), Kind: KindInterruption},
	}}
	b := Payload{Provider: "dtek", Zone: "3.1", Windows: []Window{
		{Start: day(16, 0), End: day(20, 0), Kind: KindInterruption},
		{Start: day(8, 0), End: day(12, 0), Kind: KindInterruption},
	}}
	if Hash(a) != Hash(b) {
		t.Fatalf("hash changed under slot reordering: %s vs %s", Hash(a), Hash(b))
	}
}

func TestHashIgnoresZoneAndProvider(t *testing.T) {
	t.Parallel()
	// The hash covers the schedule content only; the same windows observed
	// under another zone label must compare equal for change detection.
	a := Payload{Provider: "dtek", Zone: "3.1", Windows: []Window{{Start: day(8, 0), End: day(12, 0), Kind: KindInterruption}}}
	b := Payload{Provider: "dtek", Zone: "5.2", Windows: a.Windows}
	if Hash(a) != Hash(b) {
		t.Fatal("zone label leaked into content hash")
	}
}

func TestHashChangesWithContent(t *testing.T) {
	t.Parallel()
	a := Payload{Windows: []Window{{Start: day(8, 0), End: day(12, 0), Kind: KindInterruption}}}
	b := Payload{Windows: []Window{{Start: day(8, 0), End: day(13, 0), Kind: KindInterruption}}}
	if Hash(a) == Hash(b) {
		t.Fatal("different windows produced identical hash")
	}
}

func TestHashEmptySentinel(t *testing.T) {
	t.Parallel()
	if got := Hash(Payload{}); got != HashEmpty {
		t.Fatalf("empty payload hash = %q, want %q", got, HashEmpty)
	}
}

func TestEventsExpansion(t *testing.T) {
	t.Parallel()
	p := Payload{Windows: []Window{
		{Start: day(8, 0), End: day(12, 0), Kind: KindInterruption},
		{Start: day(14, 0), End: day(14, 0), Kind: KindRestoration},
	}}
	evs := Events(p)
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(evs), evs)
	}
	if evs[0].Kind != EventOff || !evs[0].At.Equal(day(8, 0)) {
		t.Fatalf("unexpected first event: %+v", evs[0])
	}
	if evs[1].Kind != EventOn || !evs[1].At.Equal(day(12, 0)) {
		t.Fatalf("unexpected second event: %+v", evs[1])
	}
}

func TestNextEventWindow(t *testing.T) {
	t.Parallel()
	p := Payload{Windows: []Window{{Start: day(8, 0), End: day(12, 0), Kind: KindInterruption}}}

	tests := []struct {
		name string
		now  time.Time
		lead time.Duration
		want EventKind
		ok   bool
	}{
		{name: "inside lead", now: day(7, 40), lead: 30 * time.Minute, want: EventOff, ok: true},
		{name: "too far", now: day(6, 0), lead: 30 * time.Minute, ok: false},
		{name: "already started, restoration next", now: day(11, 45), lead: 30 * time.Minute, want: EventOn, ok: true},
		{name: "zero lead", now: day(7, 40), lead: 0, ok: false},
		{name: "all past", now: day(13, 0), lead: time.Hour, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := NextEvent(p, tt.now, tt.lead)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && ev.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", ev.Kind, tt.want)
			}
		})
	}
}
