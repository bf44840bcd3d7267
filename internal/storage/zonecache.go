package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetZoneCache returns the durable cache entry for (zone, provider).
func (s *Store) GetZoneCache(ctx context.Context, zone, provider string) (ZoneCacheEntry, bool, error) {
	var e ZoneCacheEntry
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT zone, provider, content_hash, payload, last_updated
		 FROM zone_cache WHERE zone = ? AND provider = ?`,
		zone, provider,
	).Scan(&e.Zone, &e.Provider, &e.ContentHash, &e.Payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ZoneCacheEntry{}, false, nil
	}
	if err != nil {
		return ZoneCacheEntry{}, false, fmt.Errorf("storage: zone cache get: %w", err)
	}
	e.LastUpdated = timeOf(updated)
	return e, true, nil
}

// PutZoneCache upserts the entry. last_updated never moves backwards for a
// key: a racing writer with an older observation loses.
func (s *Store) PutZoneCache(ctx context.Context, e ZoneCacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zone_cache(zone, provider, content_hash, payload, last_updated)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(zone, provider) DO UPDATE SET
			content_hash = excluded.content_hash,
			payload      = excluded.payload,
			last_updated = excluded.last_updated
		 WHERE excluded.last_updated >= zone_cache.last_updated`,
		e.Zone, e.Provider, e.ContentHash, e.Payload, msOf(e.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("storage: zone cache put: %w", err)
	}
	return nil
}

// AllZoneCache streams every durable entry; used to warm the in-process
// cache at startup.
func (s *Store) AllZoneCache(ctx context.Context) ([]ZoneCacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zone, provider, content_hash, payload, last_updated FROM zone_cache`)
	if err != nil {
		return nil, fmt.Errorf("storage: zone cache list: %w", err)
	}
	defer rows.Close()

	var out []ZoneCacheEntry
	for rows.Next() {
		var e ZoneCacheEntry
		var updated int64
		if err := rows.Scan(&e.Zone, &e.Provider, &e.ContentHash, &e.Payload, &updated); err != nil {
			return nil, fmt.Errorf("storage: zone cache scan: %w", err)
		}
		e.LastUpdated = timeOf(updated)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: zone cache list: %w", err)
	}
	return out, nil
}
