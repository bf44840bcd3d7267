package checker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"outagebot/internal/resolver"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

type fakeAlertStore struct {
	mu      sync.Mutex
	subs    []storage.Subscription
	subsErr error
	marked  []time.Time
}

func (f *fakeAlertStore) AlertSubscriptions(ctx context.Context) ([]storage.Subscription, error) {
	return f.subs, f.subsErr
}

func (f *fakeAlertStore) SetLastAlert(ctx context.Context, subs []storage.Subscription, eventStart time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, eventStart)
	return nil
}

func alertSub(subID, userID, addrID int64, zone string, lead time.Duration, lastAlert time.Time) storage.Subscription {
	s := addrSub(subID, userID, addrID, zone, "h")
	s.Addr.LeadTime = lead
	s.Addr.LastAlertEventStart = lastAlert
	return s
}

func newTestAlerts(st *fakeAlertStore, res *fakeResolver, nt *fakeNotifier) *AlertChecker {
	a := NewAlertChecker(st, res, nt, nil, AlertOptions{
		Wake:    WakeSpec{every: time.Minute},
		Workers: 2,
	}, logx.Nop())
	a.now = func() time.Time { return testBase }
	return a
}

func TestAlertFiresInsideLeadWindow(t *testing.T) {
	t.Parallel()

	// payloadFor schedules the outage 4h out; a 5h lead catches it.
	st := &fakeAlertStore{subs: []storage.Subscription{
		alertSub(1, 100, 11, "3.1", 5*time.Hour, time.Time{}),
	}}
	res := &fakeResolver{byZone: map[string]resolver.Result{"3.1": resultFor("3.1")}}
	nt := &fakeNotifier{}

	if err := newTestAlerts(st, res, nt).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(nt.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(nt.alerts))
	}
	wantStart := testBase.Add(4 * time.Hour)
	if len(st.marked) != 1 || !st.marked[0].Equal(wantStart) {
		t.Fatalf("marked = %v, want [%v]", st.marked, wantStart)
	}
}

func TestAlertOutsideLeadWindowStaysQuiet(t *testing.T) {
	t.Parallel()

	st := &fakeAlertStore{subs: []storage.Subscription{
		alertSub(1, 100, 11, "3.1", 30*time.Minute, time.Time{}),
	}}
	res := &fakeResolver{byZone: map[string]resolver.Result{"3.1": resultFor("3.1")}}
	nt := &fakeNotifier{}

	if err := newTestAlerts(st, res, nt).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(nt.alerts) != 0 || len(st.marked) != 0 {
		t.Error("no event within the lead window, nothing may fire")
	}
}

func TestAlertDedupsByEventStart(t *testing.T) {
	t.Parallel()

	eventStart := testBase.Add(4 * time.Hour)
	st := &fakeAlertStore{subs: []storage.Subscription{
		alertSub(1, 100, 11, "3.1", 5*time.Hour, eventStart),
	}}
	res := &fakeResolver{byZone: map[string]resolver.Result{"3.1": resultFor("3.1")}}
	nt := &fakeNotifier{}

	if err := newTestAlerts(st, res, nt).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(nt.alerts) != 0 {
		t.Error("an already-announced event start must not fire twice")
	}
}

func TestAlertRefiresForNewGroupMember(t *testing.T) {
	t.Parallel()

	// Row 1 already saw the event, row 2 joined the zone afterwards. The
	// group fires once more so the newcomer hears about it.
	eventStart := testBase.Add(4 * time.Hour)
	st := &fakeAlertStore{subs: []storage.Subscription{
		alertSub(1, 100, 11, "3.1", 5*time.Hour, eventStart),
		alertSub(2, 100, 12, "3.1", 5*time.Hour, time.Time{}),
	}}
	res := &fakeResolver{byZone: map[string]resolver.Result{"3.1": resultFor("3.1")}}
	nt := &fakeNotifier{}

	if err := newTestAlerts(st, res, nt).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(nt.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(nt.alerts))
	}
}

func TestAlertDeliveryFailureRetriesNextTick(t *testing.T) {
	t.Parallel()

	st := &fakeAlertStore{subs: []storage.Subscription{
		alertSub(1, 100, 11, "3.1", 5*time.Hour, time.Time{}),
	}}
	res := &fakeResolver{byZone: map[string]resolver.Result{"3.1": resultFor("3.1")}}
	nt := &fakeNotifier{failUsers: map[int64]bool{100: true}}

	if err := newTestAlerts(st, res, nt).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(st.marked) != 0 {
		t.Error("failed delivery must leave last_alert untouched for a retry")
	}
}

func TestAlertStoreErrorAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("db locked")
	st := &fakeAlertStore{subsErr: boom}
	err := newTestAlerts(st, &fakeResolver{}, &fakeNotifier{}).RunCycle(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("RunCycle error = %v, want %v", err, boom)
	}
}
