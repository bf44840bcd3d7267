// Package zonecache holds the most recently observed schedule payload per
// (zone, provider), with a single TTL shared by all zones.
//
// The in-process map is the hot path; every put is mirrored to the durable
// zone_cache table so a restart starts warm instead of hammering the fetch
// adapter. The cache object is created once at startup and handed to both
// checkers by reference.
package zonecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

// State classifies a lookup result.
type State int

const (
	Absent State = iota // no entry for the key
	Stale               // entry exists but its age exceeds the TTL
	Fresh               // entry exists and is within the TTL
)

// Entry is one cached schedule observation.
type Entry struct {
	Zone        string
	Provider    string
	Hash        string
	Payload     schedule.Payload
	LastUpdated time.Time
}

type store interface {
	PutZoneCache(ctx context.Context, e storage.ZoneCacheEntry) error
	AllZoneCache(ctx context.Context) ([]storage.ZoneCacheEntry, error)
}

type Cache struct {
	ttl time.Duration
	st  store
	log logx.Logger

	mu      sync.RWMutex
	entries map[key]Entry

	now func() time.Time // test hook
}

type key struct{ zone, provider string }

func New(ttl time.Duration, st store, log logx.Logger) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		ttl:     ttl,
		st:      st,
		log:     log,
		entries: map[key]Entry{},
		now:     time.Now,
	}
}

// Warm loads the durable cache into memory. Entries keep their stored
// last_updated, so anything older than the TTL is immediately Stale —
// present for inspection but never served as fresh.
func (c *Cache) Warm(ctx context.Context) error {
	if c.st == nil {
		return nil
	}
	rows, err := c.st.AllZoneCache(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		var p schedule.Payload
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			c.log.Warn("dropping undecodable cache entry",
				logx.String("zone", row.Zone), logx.String("provider", row.Provider), logx.Err(err))
			continue
		}
		c.entries[key{row.Zone, row.Provider}] = Entry{
			Zone:        row.Zone,
			Provider:    row.Provider,
			Hash:        row.ContentHash,
			Payload:     p,
			LastUpdated: row.LastUpdated,
		}
	}
	c.log.Info("zone cache warmed", logx.Int("entries", len(c.entries)))
	return nil
}

// Get returns the entry and its freshness state. Only Fresh results carry a
// usable payload for the "no fetch needed" path; Stale still returns the
// entry so callers can log or fall back deliberately.
func (c *Cache) Get(zone, provider string) (Entry, State) {
	c.mu.RLock()
	e, ok := c.entries[key{zone, provider}]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, Absent
	}
	if c.now().Sub(e.LastUpdated) > c.ttl {
		return e, Stale
	}
	return e, Fresh
}

// Put upserts the observation, last-writer-wins with a per-key monotonic
// timestamp: a racing writer carrying an older observation loses both in
// memory and in the durable mirror.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	c.mu.Lock()
	prev, ok := c.entries[key{e.Zone, e.Provider}]
	if ok && prev.LastUpdated.After(e.LastUpdated) {
		c.mu.Unlock()
		return nil
	}
	c.entries[key{e.Zone, e.Provider}] = e
	c.mu.Unlock()

	if c.st == nil {
		return nil
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return c.st.PutZoneCache(ctx, storage.ZoneCacheEntry{
		Zone:        e.Zone,
		Provider:    e.Provider,
		ContentHash: e.Hash,
		Payload:     raw,
		LastUpdated: e.LastUpdated,
	})
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Len reports the number of in-memory entries (fresh or stale).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
