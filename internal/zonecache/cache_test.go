package zonecache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	rows []storage.ZoneCacheEntry
}

func (m *memStore) PutZoneCache(ctx context.Context, e storage.ZoneCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.Zone == e.Zone && row.Provider == e.Provider {
			m.rows[i] = e
			return nil
		}
	}
	m.rows = append(m.rows, e)
	return nil
}

func (m *memStore) AllZoneCache(ctx context.Context) ([]storage.ZoneCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.ZoneCacheEntry(nil), m.rows...), nil
}

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func entryAt(zone string, at time.Time) Entry {
	return Entry{
		Zone:        zone,
		Provider:    "dtek",
		Hash:        "h-" + zone,
		Payload:     schedule.Payload{Provider: "dtek", Zone: zone},
		LastUpdated: at,
	}
}

func newTestCache(st store) *Cache {
	c := New(15*time.Minute, st, logx.Nop())
	c.now = func() time.Time { return base }
	return c
}

func TestGetFreshnessStates(t *testing.T) {
	t.Parallel()
	c := newTestCache(nil)
	ctx := context.Background()

	if _, state := c.Get("3.1", "dtek"); state != Absent {
		t.Fatalf("state = %v, want Absent", state)
	}
	if err := c.Put(ctx, entryAt("3.1", base.Add(-10*time.Minute))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, state := c.Get("3.1", "dtek"); state != Fresh {
		t.Errorf("age 10m under 15m TTL should be Fresh, got %v", state)
	}
	if err := c.Put(ctx, entryAt("5.2", base.Add(-16*time.Minute))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e, state := c.Get("5.2", "dtek"); state != Stale || e.Hash != "h-5.2" {
		t.Errorf("age 16m over TTL should be Stale with the entry, got %v %+v", state, e)
	}
}

func TestPutKeepsNewerEntry(t *testing.T) {
	t.Parallel()
	c := newTestCache(nil)
	ctx := context.Background()

	newer := entryAt("3.1", base)
	older := entryAt("3.1", base.Add(-time.Hour))
	older.Hash = "older"

	if err := c.Put(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, older); err != nil {
		t.Fatal(err)
	}
	e, _ := c.Get("3.1", "dtek")
	if e.Hash != "h-3.1" {
		t.Errorf("hash = %q, an older racing write must lose", e.Hash)
	}
}

func TestPutMirrorsToStore(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	c := newTestCache(st)

	if err := c.Put(context.Background(), entryAt("3.1", base)); err != nil {
		t.Fatal(err)
	}
	rows, _ := st.AllZoneCache(context.Background())
	if len(rows) != 1 || rows[0].ContentHash != "h-3.1" {
		t.Fatalf("mirror rows = %+v, want the put entry", rows)
	}
	var p schedule.Payload
	if err := json.Unmarshal(rows[0].Payload, &p); err != nil {
		t.Fatalf("mirrored payload is not valid JSON: %v", err)
	}
}

func TestWarmLoadsDurableRows(t *testing.T) {
	t.Parallel()
	st := &memStore{rows: []storage.ZoneCacheEntry{
		{
			Zone: "3.1", Provider: "dtek", ContentHash: "h1",
			Payload:     []byte(`{"provider":"dtek","zone":"3.1","windows":null}`),
			LastUpdated: base.Add(-5 * time.Minute),
		},
		{
			Zone: "bad", Provider: "dtek", ContentHash: "h2",
			Payload:     []byte(`{not json`),
			LastUpdated: base,
		},
	}}
	c := newTestCache(st)
	if err := c.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("entries = %d, want 1 (undecodable row skipped)", c.Len())
	}
	if _, state := c.Get("3.1", "dtek"); state != Fresh {
		t.Errorf("warmed entry within TTL should be Fresh, got %v", state)
	}
}
