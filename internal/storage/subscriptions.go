package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertAddressSubscription creates or refreshes a (user, address) watch.
// On conflict the interval and next_check are taken from the new row but
// the change-detection state (last_hash, last alert) and the lead time
// set via /alerts are preserved.
func (s *Store) UpsertAddressSubscription(ctx context.Context, sub AddressSub) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO address_subscriptions(user_id, address_id, interval_ms, next_check, last_hash, lead_time_ms, last_alert_event_start)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, address_id) DO UPDATE SET
			interval_ms = excluded.interval_ms,
			next_check  = excluded.next_check`,
		sub.UserID, sub.AddressID, sub.Interval.Milliseconds(), msOf(sub.NextCheck),
		nullStr(sub.LastHash), sub.LeadTime.Milliseconds(), nullMs(sub.LastAlertEventStart),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert address sub: %w", err)
	}
	return nil
}

// UpsertZoneSubscription is the zone-variant counterpart.
func (s *Store) UpsertZoneSubscription(ctx context.Context, sub ZoneSub) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zone_subscriptions(user_id, provider, zone, interval_ms, next_check, last_hash, lead_time_ms, last_alert_event_start)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, provider, zone) DO UPDATE SET
			interval_ms = excluded.interval_ms,
			next_check  = excluded.next_check`,
		sub.UserID, sub.Provider, sub.Zone, sub.Interval.Milliseconds(), msOf(sub.NextCheck),
		nullStr(sub.LastHash), sub.LeadTime.Milliseconds(), nullMs(sub.LastAlertEventStart),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert zone sub: %w", err)
	}
	return nil
}

// DeleteUserSubscriptions removes every watch the user holds (both
// variants). Returns how many rows went away.
func (s *Store) DeleteUserSubscriptions(ctx context.Context, userID int64) (int64, error) {
	var total int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM address_subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("storage: delete subs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	res, err = s.db.ExecContext(ctx, `DELETE FROM zone_subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return total, fmt.Errorf("storage: delete subs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

// SetLeadTime updates the alert lead time on all of the user's watches.
func (s *Store) SetLeadTime(ctx context.Context, userID int64, lead time.Duration) error {
	ms := lead.Milliseconds()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE address_subscriptions SET lead_time_ms = ? WHERE user_id = ?`, ms, userID); err != nil {
		return fmt.Errorf("storage: set lead time: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE zone_subscriptions SET lead_time_ms = ? WHERE user_id = ?`, ms, userID); err != nil {
		return fmt.Errorf("storage: set lead time: %w", err)
	}
	return nil
}

const addrSubCols = `s.id, s.user_id, s.address_id, s.interval_ms, s.next_check,
	COALESCE(s.last_hash, ''), s.lead_time_ms, COALESCE(s.last_alert_event_start, 0),
	a.id, a.provider, a.city, a.street, a.house, COALESCE(a.zone, ''), a.created_at, a.updated_at`

const zoneSubCols = `id, user_id, provider, zone, interval_ms, next_check,
	COALESCE(last_hash, ''), lead_time_ms, COALESCE(last_alert_event_start, 0)`

// DueSubscriptions returns every subscription (both variants) with
// next_check <= now, each address variant joined with its address row.
func (s *Store) DueSubscriptions(ctx context.Context, now time.Time) ([]Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+addrSubCols+`
		 FROM address_subscriptions s JOIN addresses a ON a.id = s.address_id
		 WHERE s.next_check <= ?`,
		`SELECT `+zoneSubCols+` FROM zone_subscriptions WHERE next_check <= ?`,
		now.UnixMilli(),
	)
}

// AlertSubscriptions returns every subscription with a non-zero lead time.
func (s *Store) AlertSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+addrSubCols+`
		 FROM address_subscriptions s JOIN addresses a ON a.id = s.address_id
		 WHERE s.lead_time_ms > ?`,
		`SELECT `+zoneSubCols+` FROM zone_subscriptions WHERE lead_time_ms > ?`,
		0,
	)
}

// UserSubscriptions lists everything one user watches.
func (s *Store) UserSubscriptions(ctx context.Context, userID int64) ([]Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+addrSubCols+`
		 FROM address_subscriptions s JOIN addresses a ON a.id = s.address_id
		 WHERE s.user_id = ?`,
		`SELECT `+zoneSubCols+` FROM zone_subscriptions WHERE user_id = ?`,
		userID,
	)
}

func (s *Store) querySubscriptions(ctx context.Context, addrQuery, zoneQuery string, arg any) ([]Subscription, error) {
	var out []Subscription

	rows, err := s.db.QueryContext(ctx, addrQuery, arg)
	if err != nil {
		return nil, fmt.Errorf("storage: address subs: %w", err)
	}
	out, err = appendAddrSubs(out, rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, zoneQuery, arg)
	if err != nil {
		return nil, fmt.Errorf("storage: zone subs: %w", err)
	}
	return appendZoneSubs(out, rows)
}

func appendAddrSubs(out []Subscription, rows *sql.Rows) ([]Subscription, error) {
	defer rows.Close()
	for rows.Next() {
		var sub AddressSub
		var addr Address
		var intervalMs, nextMs, leadMs, alertMs, createdMs, updatedMs int64
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.AddressID, &intervalMs, &nextMs,
			&sub.LastHash, &leadMs, &alertMs,
			&addr.ID, &addr.Provider, &addr.City, &addr.Street, &addr.House, &addr.Zone,
			&createdMs, &updatedMs,
		); err != nil {
			return nil, fmt.Errorf("storage: scan address sub: %w", err)
		}
		sub.Interval = time.Duration(intervalMs) * time.Millisecond
		sub.NextCheck = timeOf(nextMs)
		sub.LeadTime = time.Duration(leadMs) * time.Millisecond
		sub.LastAlertEventStart = timeOf(alertMs)
		addr.CreatedAt = timeOf(createdMs)
		addr.UpdatedAt = timeOf(updatedMs)
		a := addr
		v := sub
		out = append(out, Subscription{Addr: &v, Address: &a})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: address subs: %w", err)
	}
	return out, nil
}

func appendZoneSubs(out []Subscription, rows *sql.Rows) ([]Subscription, error) {
	defer rows.Close()
	for rows.Next() {
		var sub ZoneSub
		var intervalMs, nextMs, leadMs, alertMs int64
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.Provider, &sub.Zone, &intervalMs, &nextMs,
			&sub.LastHash, &leadMs, &alertMs,
		); err != nil {
			return nil, fmt.Errorf("storage: scan zone sub: %w", err)
		}
		sub.Interval = time.Duration(intervalMs) * time.Millisecond
		sub.NextCheck = timeOf(nextMs)
		sub.LeadTime = time.Duration(leadMs) * time.Millisecond
		sub.LastAlertEventStart = timeOf(alertMs)
		v := sub
		out = append(out, Subscription{Zone: &v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: zone subs: %w", err)
	}
	return out, nil
}

// ApplyCheckResults persists a finished cycle's outcomes in one
// transaction: next_check always advances, last_hash only for rows whose
// zone's hash changed.
func (s *Store) ApplyCheckResults(ctx context.Context, updates []CheckUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: apply check results: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		switch {
		case u.Sub.Addr != nil && u.SetHash:
			_, err = tx.ExecContext(ctx,
				`UPDATE address_subscriptions SET next_check = ?, last_hash = ? WHERE id = ?`,
				msOf(u.NextCheck), u.NewHash, u.Sub.Addr.ID)
		case u.Sub.Addr != nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE address_subscriptions SET next_check = ? WHERE id = ?`,
				msOf(u.NextCheck), u.Sub.Addr.ID)
		case u.Sub.Zone != nil && u.SetHash:
			_, err = tx.ExecContext(ctx,
				`UPDATE zone_subscriptions SET next_check = ?, last_hash = ? WHERE id = ?`,
				msOf(u.NextCheck), u.NewHash, u.Sub.Zone.ID)
		case u.Sub.Zone != nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE zone_subscriptions SET next_check = ? WHERE id = ?`,
				msOf(u.NextCheck), u.Sub.Zone.ID)
		}
		if err != nil {
			return fmt.Errorf("storage: apply check results: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: apply check results: %w", err)
	}
	return nil
}

// SetLastAlert marks the fired event on every subscription in a grouped
// alert, in one transaction, so a restart cannot re-fire the same event.
func (s *Store) SetLastAlert(ctx context.Context, subs []Subscription, eventStart time.Time) error {
	if len(subs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: set last alert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ms := msOf(eventStart)
	for _, sub := range subs {
		if sub.Addr != nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE address_subscriptions SET last_alert_event_start = ? WHERE id = ?`, ms, sub.Addr.ID)
		} else if sub.Zone != nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE zone_subscriptions SET last_alert_event_start = ? WHERE id = ?`, ms, sub.Zone.ID)
		}
		if err != nil {
			return fmt.Errorf("storage: set last alert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: set last alert: %w", err)
	}
	return nil
}
