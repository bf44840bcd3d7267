package checker

import (
	"sort"
	"time"

	"outagebot/internal/storage"
)

// Group collapses all of one user's watches that resolve to the same zone.
// Both checkers send at most one message per group, regardless of how many
// subscription rows (address-level, zone-level, or both) reference it.
type Group struct {
	UserID   int64
	Provider string
	Zone     string

	// Subs are every row folded into this group.
	Subs []storage.Subscription
	// Addresses are the user's distinct addresses in the zone, empty when
	// only a zone subscription exists.
	Addresses []storage.Address
}

// BuildGroups groups subscriptions by (user, provider, resolved zone).
// zoneOf maps a subscription to the zone its work item resolved to;
// subscriptions it has no answer for (failed resolution) are skipped.
// The result is ordered by (user, provider, zone) for deterministic
// notification order.
func BuildGroups(subs []storage.Subscription, zoneOf func(storage.Subscription) (string, bool)) []*Group {
	type gkey struct {
		user     int64
		provider string
		zone     string
	}
	byKey := map[gkey]*Group{}

	for _, sub := range subs {
		zone, ok := zoneOf(sub)
		if !ok || zone == "" {
			continue
		}
		k := gkey{user: sub.UserID(), provider: sub.Provider(), zone: zone}
		g := byKey[k]
		if g == nil {
			g = &Group{UserID: k.user, Provider: k.provider, Zone: k.zone}
			byKey[k] = g
		}
		g.Subs = append(g.Subs, sub)
		if sub.Addr != nil && sub.Address != nil {
			g.Addresses = appendAddressOnce(g.Addresses, *sub.Address)
		}
	}

	out := make([]*Group, 0, len(byKey))
	for _, g := range byKey {
		sort.Slice(g.Addresses, func(i, j int) bool { return g.Addresses[i].ID < g.Addresses[j].ID })
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.Zone < b.Zone
	})
	return out
}

func appendAddressOnce(list []storage.Address, a storage.Address) []storage.Address {
	for _, have := range list {
		if have.ID == a.ID {
			return list
		}
	}
	return append(list, a)
}

// ChangedSubs returns the rows in the group whose own last_hash differs
// from the zone's new hash. Zone reassignment is deliberately irrelevant
// here: comparison is always against the row's own hash, never against
// whatever cache entry the row previously rode on.
func (g *Group) ChangedSubs(newHash string) []storage.Subscription {
	var out []storage.Subscription
	for _, sub := range g.Subs {
		if sub.LastHash() != newHash {
			out = append(out, sub)
		}
	}
	return out
}

// MinLeadTime returns the smallest positive lead time in the group.
func (g *Group) MinLeadTime() (time.Duration, bool) {
	var min time.Duration
	var ok bool
	for _, sub := range g.Subs {
		lt := sub.LeadTime()
		if lt <= 0 {
			continue
		}
		if !ok || lt < min {
			min = lt
			ok = true
		}
	}
	return min, ok
}
