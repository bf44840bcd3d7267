// Package notify renders user-facing messages and delivers them through a
// transport adapter under a global rate cap.
package notify

import (
	"fmt"
	"strings"
	"time"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
)

const timeLayout = "15:04"

// RenderChange builds the message telling a user the schedule for a zone
// moved. Every address of theirs in the zone is listed once, so a user
// watching three addresses on the same feeder reads one message.
func RenderChange(zone string, addrs []storage.Address, p schedule.Payload, firstTime bool) string {
	var b strings.Builder
	if firstTime {
		fmt.Fprintf(&b, "✅ Now watching zone *%s*.\n", zone)
	} else {
		fmt.Fprintf(&b, "⚡ Schedule changed for zone *%s*.\n", zone)
	}
	writeAddresses(&b, addrs)

	if p.Empty() {
		b.WriteString("\nNo outages are currently scheduled.")
		return b.String()
	}

	b.WriteString("\nPlanned windows:\n")
	var lastDay string
	for _, w := range p.Windows {
		day := w.Start.Format("Mon 02 Jan")
		if day != lastDay {
			fmt.Fprintf(&b, "*%s*\n", day)
			lastDay = day
		}
		fmt.Fprintf(&b, "  %s–%s %s (%s)\n",
			w.Start.Format(timeLayout), w.End.Format(timeLayout),
			windowLabel(w.Kind), formatDuration(w.End.Sub(w.Start)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderAlert builds the lead-time warning for one upcoming event.
func RenderAlert(zone string, addrs []storage.Address, ev schedule.Event, now time.Time) string {
	var b strings.Builder
	left := ev.At.Sub(now).Round(time.Minute)
	if left < time.Minute {
		left = time.Minute
	}
	switch ev.Kind {
	case schedule.EventOn:
		fmt.Fprintf(&b, "🔔 Power in zone *%s* comes back at %s (in %s).\n",
			zone, ev.At.Format(timeLayout), formatDuration(left))
	default:
		fmt.Fprintf(&b, "🔔 Outage in zone *%s* starts at %s (in %s).\n",
			zone, ev.At.Format(timeLayout), formatDuration(left))
	}
	writeAddresses(&b, addrs)
	return strings.TrimRight(b.String(), "\n")
}

func writeAddresses(b *strings.Builder, addrs []storage.Address) {
	if len(addrs) == 0 {
		return
	}
	b.WriteString("Addresses:\n")
	for _, a := range addrs {
		fmt.Fprintf(b, "  • %s, %s, %s\n", a.City, a.Street, a.House)
	}
}

func windowLabel(k schedule.WindowKind) string {
	switch k {
	case schedule.KindRestoration:
		return "power on"
	case schedule.KindPartial:
		return "possible outage"
	default:
		return "outage"
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
