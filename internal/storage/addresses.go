package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureAddress looks up the address by its uniqueness key and inserts it
// when absent. Concurrent calls with identical input are safe: the insert
// rides on the unique constraint (INSERT OR IGNORE), then a reselect
// returns whichever row won.
func (s *Store) EnsureAddress(ctx context.Context, provider, city, street, house string) (Address, error) {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO addresses(provider, city, street, house, created_at, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(provider, city, street, house) DO NOTHING`,
		provider, city, street, house, now, now,
	)
	if err != nil {
		return Address{}, fmt.Errorf("storage: ensure address: %w", err)
	}
	return s.getAddressByKey(ctx, provider, city, street, house)
}

func (s *Store) getAddressByKey(ctx context.Context, provider, city, street, house string) (Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, city, street, house, COALESCE(zone, ''), created_at, updated_at
		 FROM addresses WHERE provider = ? AND city = ? AND street = ? AND house = ?`,
		provider, city, street, house,
	)
	return scanAddress(row)
}

// GetAddress returns the address row by id.
func (s *Store) GetAddress(ctx context.Context, id int64) (Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, city, street, house, COALESCE(zone, ''), created_at, updated_at
		 FROM addresses WHERE id = ?`, id)
	return scanAddress(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAddress(row rowScanner) (Address, error) {
	var a Address
	var created, updated int64
	err := row.Scan(&a.ID, &a.Provider, &a.City, &a.Street, &a.House, &a.Zone, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Address{}, fmt.Errorf("storage: address not found: %w", err)
	}
	if err != nil {
		return Address{}, fmt.Errorf("storage: scan address: %w", err)
	}
	a.CreatedAt = timeOf(created)
	a.UpdatedAt = timeOf(updated)
	return a, nil
}

// UpdateAddressZone overwrites the zone mapping. The WHERE clause makes an
// unchanged value a no-op so repeated fetches do not churn updated_at.
func (s *Store) UpdateAddressZone(ctx context.Context, id int64, zone string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE addresses SET zone = ?, updated_at = ?
		 WHERE id = ? AND (zone IS NULL OR zone <> ?)`,
		nullStr(zone), time.Now().UnixMilli(), id, zone,
	)
	if err != nil {
		return fmt.Errorf("storage: update zone: %w", err)
	}
	return nil
}

// SampleAddressForZone returns any address known to belong to the zone.
// Used to resolve zone-only subscriptions, since providers are queried by
// address, not by zone.
func (s *Store) SampleAddressForZone(ctx context.Context, provider, zone string) (Address, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, city, street, house, COALESCE(zone, ''), created_at, updated_at
		 FROM addresses WHERE provider = ? AND zone = ? LIMIT 1`,
		provider, zone,
	)
	a, err := scanAddress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, false, nil
		}
		return Address{}, false, err
	}
	return a, true, nil
}

// DeleteAddress removes the address; address_subscriptions cascade.
func (s *Store) DeleteAddress(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete address: %w", err)
	}
	return nil
}
