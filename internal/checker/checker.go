package checker

import (
	"context"
	"time"

	"outagebot/internal/eventbus"
	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

// Notifier delivers rendered messages to users. Implementations must treat
// a delivery failure as that user's problem only: the checker logs it and
// keeps going.
type Notifier interface {
	ScheduleChanged(ctx context.Context, userID int64, zone string, addrs []storage.Address, p schedule.Payload, firstTime bool) error
	UpcomingEvent(ctx context.Context, userID int64, zone string, addrs []storage.Address, ev schedule.Event) error
}

type checkStore interface {
	DueSubscriptions(ctx context.Context, now time.Time) ([]storage.Subscription, error)
	ApplyCheckResults(ctx context.Context, updates []storage.CheckUpdate) error
}

// Options tune the subscription check loop.
type Options struct {
	Wake        WakeSpec
	Workers     int
	FailBackoff time.Duration
}

// Checker is the periodic loop that re-fetches schedules for due
// subscriptions, compares hashes, and notifies on change.
type Checker struct {
	st   checkStore
	res  scheduleResolver
	nt   Notifier
	bus  eventbus.Bus
	opts Options
	log  logx.Logger

	now func() time.Time // test hook
}

func New(st checkStore, res scheduleResolver, nt Notifier, bus eventbus.Bus, opts Options, log logx.Logger) *Checker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FailBackoff <= 0 {
		opts.FailBackoff = 10 * time.Minute
	}
	return &Checker{
		st:   st,
		res:  res,
		nt:   nt,
		bus:  bus,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// Run wakes on the configured spec until ctx is canceled. A cycle already
// in flight finishes its persistence step even during shutdown.
func (c *Checker) Run(ctx context.Context) {
	for {
		next := c.opts.Wake.Next(c.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := c.RunCycle(ctx); err != nil {
			c.log.Error("check cycle failed", logx.Err(err))
		}
	}
}

// RunCycle performs one full pass: scan, resolve, group, notify, persist.
// A storage error at any point aborts the cycle with nothing committed;
// the unadvanced rows simply stay due for the next wake.
func (c *Checker) RunCycle(ctx context.Context) error {
	now := c.now()
	subs, err := c.st.DueSubscriptions(ctx, now)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	c.log.Debug("check cycle start", logx.Int("due", len(subs)))

	items := buildWorkSet(subs)
	if err := resolveWorkSet(ctx, c.res, items, c.opts.Workers); err != nil {
		return err
	}

	updates := make([]storage.CheckUpdate, 0, len(subs))
	zoneBySub := map[subKey]string{}
	hashByZone := map[string]string{}
	payloadByZone := map[string]schedule.Payload{}
	var fetchFailed int

	for _, item := range items {
		if item.err != nil {
			fetchFailed++
			c.log.Warn("resolution failed",
				logx.String("provider", item.key.provider),
				logx.String("zone", item.key.zone),
				logx.Int64("address_id", item.key.addrID),
				logx.Err(item.err))
			c.publish(eventbus.TypeFetchFailed, item.key.provider)
			for _, sub := range item.subs {
				updates = append(updates, storage.CheckUpdate{
					Sub:       sub,
					NextCheck: now.Add(c.opts.FailBackoff),
				})
			}
			continue
		}
		zk := item.key.provider + "|" + item.res.Zone
		hashByZone[zk] = item.res.Hash
		payloadByZone[zk] = item.res.Payload
		for _, sub := range item.subs {
			zoneBySub[keyOf(sub)] = item.res.Zone
		}
	}

	groups := BuildGroups(subs, func(s storage.Subscription) (string, bool) {
		z, ok := zoneBySub[keyOf(s)]
		return z, ok
	})

	var notified int
	for _, g := range groups {
		zk := g.Provider + "|" + g.Zone
		newHash := hashByZone[zk]
		changed := g.ChangedSubs(newHash)
		if len(changed) > 0 && c.shouldNotify(payloadByZone[zk], changed) {
			if err := c.nt.ScheduleChanged(ctx, g.UserID, g.Zone, g.Addresses, payloadByZone[zk], allFirstTime(changed)); err != nil {
				c.log.Warn("change notification failed",
					logx.Int64("user_id", g.UserID),
					logx.String("zone", g.Zone),
					logx.Err(err))
			} else {
				notified++
				c.publish(eventbus.TypeNotifySent, g.UserID)
			}
		}
		for _, sub := range g.Subs {
			updates = append(updates, storage.CheckUpdate{
				Sub:       sub,
				NextCheck: now.Add(sub.Interval()),
				NewHash:   newHash,
				SetHash:   sub.LastHash() != newHash,
			})
		}
	}

	// Keep persistence alive through shutdown so resolved work is not
	// retried and re-notified on the next start.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := c.st.ApplyCheckResults(pctx, updates); err != nil {
		return err
	}

	c.log.Info("check cycle done",
		logx.Int("due", len(subs)),
		logx.Int("fetches", len(items)),
		logx.Int("fetch_failed", fetchFailed),
		logx.Int("notified", notified),
		logx.Duration("took", c.now().Sub(now)))
	c.publish(eventbus.TypeCycleFinished, len(subs))
	return nil
}

// shouldNotify decides whether a hash change is worth a message. Real
// windows always are. An empty payload is only announced to rows that
// have never been checked, so a fresh subscription gets its confirmation
// but nobody is pinged just because a published schedule was withdrawn.
func (c *Checker) shouldNotify(p schedule.Payload, changed []storage.Subscription) bool {
	if !p.Empty() {
		return true
	}
	for _, sub := range changed {
		if sub.LastHash() == "" {
			return true
		}
	}
	return false
}

func allFirstTime(changed []storage.Subscription) bool {
	for _, sub := range changed {
		if sub.LastHash() != "" {
			return false
		}
	}
	return true
}

func (c *Checker) publish(typ string, data any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: typ, Time: c.now(), Data: data})
}

// subKey identifies a subscription row across both kinds.
type subKey struct {
	addrSubID int64
	zoneSubID int64
}

func keyOf(s storage.Subscription) subKey {
	if s.Addr != nil {
		return subKey{addrSubID: s.Addr.ID}
	}
	return subKey{zoneSubID: s.Zone.ID}
}
