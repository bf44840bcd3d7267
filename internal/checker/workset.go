package checker

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"outagebot/internal/resolver"
	"outagebot/internal/source"
	"outagebot/internal/storage"
)

// workKey identifies one upstream fetch. Subscriptions with a known zone
// share a zone key; address subscriptions whose zone is still unknown get
// their own key until the first fetch reveals it.
type workKey struct {
	provider string
	zone     string
	addrID   int64
}

type workItem struct {
	key  workKey
	addr *storage.Address // set for address-keyed items
	subs []storage.Subscription

	res resolver.Result
	err error
}

// buildWorkSet folds due subscriptions into the minimal set of fetches.
func buildWorkSet(subs []storage.Subscription) []*workItem {
	byKey := map[workKey]*workItem{}
	var order []workKey

	for _, sub := range subs {
		var k workKey
		if zone := sub.KnownZone(); zone != "" {
			k = workKey{provider: sub.Provider(), zone: zone}
		} else {
			// Only address subscriptions can lack a zone.
			k = workKey{provider: sub.Provider(), addrID: sub.Address.ID}
		}
		item := byKey[k]
		if item == nil {
			item = &workItem{key: k}
			byKey[k] = item
			order = append(order, k)
		}
		if item.addr == nil && sub.Addr != nil {
			item.addr = sub.Address
		}
		item.subs = append(item.subs, sub)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.provider != b.provider {
			return a.provider < b.provider
		}
		if a.zone != b.zone {
			return a.zone < b.zone
		}
		return a.addrID < b.addrID
	})
	out := make([]*workItem, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

var errNoResolvedZone = errors.New("resolved payload has no zone")

// scheduleResolver is the slice of resolver the checkers use.
type scheduleResolver interface {
	Resolve(ctx context.Context, provider, city, street, house string) (resolver.Result, error)
	ResolveZone(ctx context.Context, provider, zone string) (resolver.Result, error)
}

// resolveWorkSet fetches every item with bounded parallelism. Upstream
// failures stay on the item; any other error (storage, cache persistence)
// aborts the whole pass so nothing is committed against a broken store.
func resolveWorkSet(ctx context.Context, res scheduleResolver, items []*workItem, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for _, item := range items {
		item := item
		g.Go(func() error {
			var r resolver.Result
			var err error
			if addr := item.addr; addr != nil {
				r, err = res.Resolve(gctx, addr.Provider, addr.City, addr.Street, addr.House)
			} else {
				r, err = res.ResolveZone(gctx, item.key.provider, item.key.zone)
			}
			if err != nil && !source.IsFetchError(err) {
				return err
			}
			if err == nil && r.Zone == "" {
				// A payload with no zone can't be grouped or cached; treat
				// it like an upstream failure so the rows back off instead
				// of going hot.
				err = &source.FetchError{Provider: item.key.provider, Err: errNoResolvedZone}
			}
			mu.Lock()
			item.res, item.err = r, err
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
