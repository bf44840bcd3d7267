// Package registry is the single source of truth for the address→zone
// mapping. Addresses are created at most once per (provider, city, street,
// house) and reused thereafter; only fresh fetch results may move an
// address to another zone.
package registry

import (
	"context"

	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

// store is the slice of the persistence layer the registry needs.
type store interface {
	EnsureAddress(ctx context.Context, provider, city, street, house string) (storage.Address, error)
	UpdateAddressZone(ctx context.Context, id int64, zone string) error
	SampleAddressForZone(ctx context.Context, provider, zone string) (storage.Address, bool, error)
}

type Registry struct {
	st  store
	log logx.Logger
}

func New(st store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{st: st, log: log}
}

// ResolveOrCreate returns the stable address row for the key, inserting it
// when absent. Idempotent under concurrency: the unique constraint decides,
// and the loser simply reselects.
func (r *Registry) ResolveOrCreate(ctx context.Context, provider, city, street, house string) (storage.Address, error) {
	return r.st.EnsureAddress(ctx, provider, city, street, house)
}

// UpdateZone records the zone a fresh fetch revealed. Unchanged values are
// a no-op at the storage layer. A failed write is returned to the caller:
// a newly discovered zone must never be dropped silently, the whole check
// cycle retries later instead.
func (r *Registry) UpdateZone(ctx context.Context, addressID int64, zone string) error {
	if zone == "" {
		return nil
	}
	if err := r.st.UpdateAddressZone(ctx, addressID, zone); err != nil {
		return err
	}
	r.log.Debug("address zone updated", logx.Int64("address_id", addressID), logx.String("zone", zone))
	return nil
}

// SampleAddress returns any address known to live in the zone, used to
// resolve zone-only subscriptions through the address-keyed fetch adapter.
func (r *Registry) SampleAddress(ctx context.Context, provider, zone string) (storage.Address, bool, error) {
	return r.st.SampleAddressForZone(ctx, provider, zone)
}
