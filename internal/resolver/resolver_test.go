package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"outagebot/internal/registry"
	"outagebot/internal/schedule"
	"outagebot/internal/source"
	"outagebot/internal/storage"
	"outagebot/internal/zonecache"
	logx "outagebot/pkg/logx"
)

type memRegistry struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*storage.Address
	byID   map[int64]*storage.Address
}

func newMemRegistry() *memRegistry {
	return &memRegistry{byKey: map[string]*storage.Address{}, byID: map[int64]*storage.Address{}}
}

func (m *memRegistry) EnsureAddress(ctx context.Context, provider, city, street, house string) (storage.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := provider + "|" + city + "|" + street + "|" + house
	if a, ok := m.byKey[k]; ok {
		return *a, nil
	}
	m.nextID++
	a := &storage.Address{ID: m.nextID, Provider: provider, City: city, Street: street, House: house}
	m.byKey[k] = a
	m.byID[a.ID] = a
	return *a, nil
}

func (m *memRegistry) UpdateAddressZone(ctx context.Context, id int64, zone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		a.Zone = zone
	}
	return nil
}

func (m *memRegistry) SampleAddressForZone(ctx context.Context, provider, zone string) (storage.Address, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Provider == provider && a.Zone == zone {
			return *a, true, nil
		}
	}
	return storage.Address{}, false, nil
}

func (m *memRegistry) zoneOf(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		return a.Zone
	}
	return ""
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	zone  string
	err   error
}

func (s *countingSource) Fetch(ctx context.Context, provider, city, street, house string) (schedule.Payload, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return schedule.Payload{}, &source.FetchError{Provider: provider, Err: ctx.Err()}
		}
	}
	if s.err != nil {
		return schedule.Payload{}, s.err
	}
	p := schedule.Payload{
		Provider: provider,
		Zone:     s.zone,
		Windows: []schedule.Window{{
			Start: time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
			Kind:  schedule.KindInterruption,
		}},
	}
	return p, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestResolver(mem *memRegistry, src source.Source) (*Resolver, *zonecache.Cache) {
	cache := zonecache.New(15*time.Minute, nil, logx.Nop())
	reg := registry.New(mem, logx.Nop())
	return New(reg, cache, src, 5*time.Second, logx.Nop()), cache
}

func TestResolveCreatesAddressAndLearnsZone(t *testing.T) {
	t.Parallel()

	mem := newMemRegistry()
	src := &countingSource{zone: "3.1"}
	r, cache := newTestResolver(mem, src)

	res, err := r.Resolve(context.Background(), "dtek", "Kyiv", "Main St", "10")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Zone != "3.1" || res.FromCache {
		t.Errorf("result = %+v, want fetched zone 3.1", res)
	}
	if got := mem.zoneOf(res.AddressID); got != "3.1" {
		t.Errorf("address zone = %q, the fetch must fix the mapping", got)
	}
	if _, state := cache.Get("3.1", "dtek"); state != zonecache.Fresh {
		t.Error("a successful fetch must land in the cache")
	}
}

func TestResolveFreshCacheSkipsFetch(t *testing.T) {
	t.Parallel()

	mem := newMemRegistry()
	src := &countingSource{zone: "3.1"}
	r, _ := newTestResolver(mem, src)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "dtek", "Kyiv", "Main St", "10"); err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(ctx, "dtek", "Kyiv", "Main St", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache {
		t.Error("second resolve should ride the fresh cache")
	}
	if src.count() != 1 {
		t.Errorf("source calls = %d, want 1", src.count())
	}
}

func TestResolveCoalescesConcurrentFetches(t *testing.T) {
	t.Parallel()

	mem := newMemRegistry()
	// Pre-create the addresses in one zone so all resolvers share a key.
	ctx := context.Background()
	for _, house := range []string{"10", "11", "12"} {
		a, _ := mem.EnsureAddress(ctx, "dtek", "Kyiv", "Main St", house)
		_ = mem.UpdateAddressZone(ctx, a.ID, "3.1")
	}

	src := &countingSource{zone: "3.1", delay: 50 * time.Millisecond}
	r, _ := newTestResolver(mem, src)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, house := range []string{"10", "11", "12"} {
		wg.Add(1)
		go func(i int, house string) {
			defer wg.Done()
			_, errs[i] = r.Resolve(ctx, "dtek", "Kyiv", "Main St", house)
		}(i, house)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if src.count() != 1 {
		t.Errorf("source calls = %d, want 1 shared fetch", src.count())
	}
}

func TestResolveFetchErrorWritesNothing(t *testing.T) {
	t.Parallel()

	mem := newMemRegistry()
	boom := &source.FetchError{Provider: "dtek", Err: errors.New("503")}
	src := &countingSource{err: boom}
	r, cache := newTestResolver(mem, src)

	_, err := r.Resolve(context.Background(), "dtek", "Kyiv", "Main St", "10")
	if !source.IsFetchError(err) {
		t.Fatalf("error = %v, want fetch error", err)
	}
	if cache.Len() != 0 {
		t.Error("a failed fetch must not populate the cache")
	}
	a, _ := mem.EnsureAddress(context.Background(), "dtek", "Kyiv", "Main St", "10")
	if a.Zone != "" {
		t.Error("a failed fetch must not move the zone mapping")
	}
}

func TestResolveZoneUsesSample(t *testing.T) {
	t.Parallel()

	mem := newMemRegistry()
	ctx := context.Background()
	a, _ := mem.EnsureAddress(ctx, "dtek", "Kyiv", "Main St", "10")
	_ = mem.UpdateAddressZone(ctx, a.ID, "3.1")

	src := &countingSource{zone: "3.1"}
	r, _ := newTestResolver(mem, src)

	res, err := r.ResolveZone(ctx, "dtek", "3.1")
	if err != nil {
		t.Fatalf("ResolveZone: %v", err)
	}
	if res.Zone != "3.1" || src.count() != 1 {
		t.Errorf("result = %+v calls = %d, want one sampled fetch", res, src.count())
	}
}

func TestResolveZoneWithoutSampleFailsAsFetchError(t *testing.T) {
	t.Parallel()

	mem := newMemRegistry()
	src := &countingSource{zone: "9.9"}
	r, _ := newTestResolver(mem, src)

	_, err := r.ResolveZone(context.Background(), "dtek", "9.9")
	if !source.IsFetchError(err) {
		t.Fatalf("error = %v, want fetch error for sampleless zone", err)
	}
	if src.count() != 0 {
		t.Error("no sample means nothing to query the provider with")
	}
}
