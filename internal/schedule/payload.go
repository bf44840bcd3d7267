package schedule

import (
	"sort"
	"time"
)

// WindowKind classifies a scheduled window.
type WindowKind string

const (
	KindInterruption WindowKind = "interruption"
	KindRestoration  WindowKind = "restoration"
	KindPartial      WindowKind = "partial"
)

// Window is one dated service-interruption slot.
type Window struct {
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
	Kind  WindowKind `json:"kind"`
}

// Payload is the schedule a provider reports for one zone.
//
// It is treated as opaque by the cache: only its content hash and its
// event list are inspected elsewhere. Windows are kept in ascending
// start order; Normalize enforces that after decode.
type Payload struct {
	Provider string   `json:"provider"`
	Zone     string   `json:"zone"`
	Windows  []Window `json:"windows"`
}

// Normalize sorts windows ascending by (start, end, kind) so payloads that
// only differ in slot order hash identically.
func (p *Payload) Normalize() {
	sort.Slice(p.Windows, func(i, j int) bool {
		a, b := p.Windows[i], p.Windows[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.Kind < b.Kind
	})
}

// Empty reports whether the payload carries no scheduled windows at all.
func (p Payload) Empty() bool { return len(p.Windows) == 0 }
