// Package resolver orchestrates "get the schedule for this address":
// registry for the zone, cache for fresh data, fetch adapter on miss.
package resolver

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"outagebot/internal/registry"
	"outagebot/internal/schedule"
	"outagebot/internal/source"
	"outagebot/internal/zonecache"
	logx "outagebot/pkg/logx"
)

// Result is one resolved schedule.
type Result struct {
	AddressID int64 // 0 when resolved by zone only
	Zone      string
	Hash      string
	Payload   schedule.Payload
	FromCache bool
}

type Resolver struct {
	reg   *registry.Registry
	cache *zonecache.Cache
	src   source.Source
	log   logx.Logger

	// sf collapses concurrent fetches for the same key into one adapter
	// call; late arrivals wait on the winner's result.
	sf           singleflight.Group
	fetchTimeout time.Duration

	now func() time.Time // test hook
}

func New(reg *registry.Registry, cache *zonecache.Cache, src source.Source, fetchTimeout time.Duration, log logx.Logger) *Resolver {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{
		reg:          reg,
		cache:        cache,
		src:          src,
		log:          log,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// Resolve returns the current schedule for the address, creating the
// address row on first sight. A fresh cache hit short-circuits the fetch
// adapter entirely.
func (r *Resolver) Resolve(ctx context.Context, provider, city, street, house string) (Result, error) {
	addr, err := r.reg.ResolveOrCreate(ctx, provider, city, street, house)
	if err != nil {
		return Result{}, err
	}

	if addr.Zone != "" {
		if e, st := r.cache.Get(addr.Zone, provider); st == zonecache.Fresh {
			return Result{AddressID: addr.ID, Zone: addr.Zone, Hash: e.Hash, Payload: e.Payload, FromCache: true}, nil
		}
	}

	// Miss/stale: hit the adapter. Keyed by zone when known so every
	// waiter for that zone shares one call; unknown zones key by address.
	sfKey := provider + "|zone|" + addr.Zone
	if addr.Zone == "" {
		sfKey = provider + "|addr|" + strconv.FormatInt(addr.ID, 10)
	}

	v, err, shared := r.sf.Do(sfKey, func() (any, error) {
		return r.fetchAndStore(ctx, addr.ID, addr.Zone, provider, city, street, house)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	res.AddressID = addr.ID
	if shared {
		r.log.Debug("fetch coalesced", logx.String("key", sfKey))
		// The winner only fixed up its own address; followers that rode the
		// same zone key still need their mapping corrected.
		if res.Zone != addr.Zone {
			if err := r.reg.UpdateZone(ctx, addr.ID, res.Zone); err != nil {
				return Result{}, err
			}
		}
	}
	return res, nil
}

// ResolveZone returns the current schedule for a zone with no address of
// its own (zone-only subscriptions). It borrows any known address in the
// zone as the fetch sample; with no sample and no cache entry it fails as
// a fetch error so callers back off normally.
func (r *Resolver) ResolveZone(ctx context.Context, provider, zone string) (Result, error) {
	if e, st := r.cache.Get(zone, provider); st == zonecache.Fresh {
		return Result{Zone: zone, Hash: e.Hash, Payload: e.Payload, FromCache: true}, nil
	}

	addr, ok, err := r.reg.SampleAddress(ctx, provider, zone)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// No address ever mapped to this zone: nothing to query the
		// provider with. Serve stale data if we have it.
		if e, st := r.cache.Get(zone, provider); st == zonecache.Stale {
			r.log.Debug("serving stale cache for sampleless zone",
				logx.String("zone", zone), logx.String("provider", provider))
			return Result{Zone: zone, Hash: e.Hash, Payload: e.Payload, FromCache: true}, nil
		}
		return Result{}, &source.FetchError{Provider: provider, Err: errNoSample(zone)}
	}

	v, err, _ := r.sf.Do(provider+"|zone|"+zone, func() (any, error) {
		return r.fetchAndStore(ctx, addr.ID, zone, provider, addr.City, addr.Street, addr.House)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// fetchAndStore calls the adapter with a timeout and, on success, writes
// the payload through the cache and fixes up the address→zone mapping.
// On failure nothing is written: an existing fresh entry is never
// overwritten by an error, and the zone mapping stays as it was.
func (r *Resolver) fetchAndStore(ctx context.Context, addressID int64, knownZone, provider, city, street, house string) (Result, error) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	payload, err := r.src.Fetch(fctx, provider, city, street, house)
	if err != nil {
		return Result{}, err
	}

	hash := schedule.Hash(payload)
	now := r.now()

	if err := r.cache.Put(ctx, zonecache.Entry{
		Zone:        payload.Zone,
		Provider:    provider,
		Hash:        hash,
		Payload:     payload,
		LastUpdated: now,
	}); err != nil {
		// The payload is still good; a durable-mirror failure only costs
		// warm restarts.
		r.log.Warn("zone cache write failed", logx.String("zone", payload.Zone), logx.Err(err))
	}

	if addressID != 0 && payload.Zone != knownZone {
		if err := r.reg.UpdateZone(ctx, addressID, payload.Zone); err != nil {
			return Result{}, err
		}
	}

	return Result{AddressID: addressID, Zone: payload.Zone, Hash: hash, Payload: payload}, nil
}

type errNoSample string

func (e errNoSample) Error() string { return "no known address in zone " + string(e) }
