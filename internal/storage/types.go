package storage

import (
	"time"
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Address is one unique (provider, city, street, house) row.
// Zone is empty while the provider has not yet told us which zone the
// address belongs to.
type Address struct {
	ID        int64
	Provider  string
	City      string
	Street    string
	House     string
	Zone      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ZoneCacheEntry is the durable copy of the most recent schedule payload
// observed for a (zone, provider) pair.
type ZoneCacheEntry struct {
	Zone        string
	Provider    string
	ContentHash string
	Payload     []byte // schedule.Payload JSON
	LastUpdated time.Time
}

// AddressSub watches a concrete address.
type AddressSub struct {
	ID                  int64
	UserID              int64
	AddressID           int64
	Interval            time.Duration
	NextCheck           time.Time
	LastHash            string
	LeadTime            time.Duration
	LastAlertEventStart time.Time // zero when no alert fired yet
}

// ZoneSub watches a zone directly, no address involved.
type ZoneSub struct {
	ID                  int64
	UserID              int64
	Provider            string
	Zone                string
	Interval            time.Duration
	NextCheck           time.Time
	LastHash            string
	LeadTime            time.Duration
	LastAlertEventStart time.Time
}

// Subscription is the tagged union the checkers operate on. Exactly one of
// Addr/Zone is set; Address carries the joined address row for the Addr
// variant.
type Subscription struct {
	Addr    *AddressSub
	Zone    *ZoneSub
	Address *Address
}

func (s Subscription) UserID() int64 {
	if s.Addr != nil {
		return s.Addr.UserID
	}
	return s.Zone.UserID
}

func (s Subscription) Provider() string {
	if s.Addr != nil {
		return s.Address.Provider
	}
	return s.Zone.Provider
}

// KnownZone returns the zone this subscription currently maps to, empty for
// address subscriptions whose address has no zone yet.
func (s Subscription) KnownZone() string {
	if s.Addr != nil {
		return s.Address.Zone
	}
	return s.Zone.Zone
}

func (s Subscription) Interval() time.Duration {
	if s.Addr != nil {
		return s.Addr.Interval
	}
	return s.Zone.Interval
}

func (s Subscription) LastHash() string {
	if s.Addr != nil {
		return s.Addr.LastHash
	}
	return s.Zone.LastHash
}

func (s Subscription) LeadTime() time.Duration {
	if s.Addr != nil {
		return s.Addr.LeadTime
	}
	return s.Zone.LeadTime
}

func (s Subscription) LastAlertEventStart() time.Time {
	if s.Addr != nil {
		return s.Addr.LastAlertEventStart
	}
	return s.Zone.LastAlertEventStart
}

// CheckUpdate is one subscription's persistence outcome for a finished
// check cycle. SetHash is true only when the resolved hash differed from
// the row's last_hash; NextCheck always advances.
type CheckUpdate struct {
	Sub       Subscription
	NextCheck time.Time
	NewHash   string
	SetHash   bool
}
