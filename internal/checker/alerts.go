package checker

import (
	"context"
	"time"

	"outagebot/internal/eventbus"
	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

type alertStore interface {
	AlertSubscriptions(ctx context.Context) ([]storage.Subscription, error)
	SetLastAlert(ctx context.Context, subs []storage.Subscription, eventStart time.Time) error
}

// AlertOptions tune the lead-time alert loop.
type AlertOptions struct {
	Wake    WakeSpec
	Workers int
}

// AlertChecker warns users shortly before an outage window starts or
// ends. It runs on its own, tighter wake cadence than the schedule
// checker since its whole point is timeliness.
type AlertChecker struct {
	st   alertStore
	res  scheduleResolver
	nt   Notifier
	bus  eventbus.Bus
	opts AlertOptions
	log  logx.Logger

	now func() time.Time // test hook
}

func NewAlertChecker(st alertStore, res scheduleResolver, nt Notifier, bus eventbus.Bus, opts AlertOptions, log logx.Logger) *AlertChecker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &AlertChecker{
		st:   st,
		res:  res,
		nt:   nt,
		bus:  bus,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

func (a *AlertChecker) Run(ctx context.Context) {
	for {
		next := a.opts.Wake.Next(a.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := a.RunCycle(ctx); err != nil {
			a.log.Error("alert cycle failed", logx.Err(err))
		}
	}
}

// RunCycle scans every subscription with a positive lead time, resolves
// each distinct (provider, zone) once, and fires at most one alert per
// (user, zone) per event start.
func (a *AlertChecker) RunCycle(ctx context.Context) error {
	now := a.now()
	subs, err := a.st.AlertSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	items := buildWorkSet(subs)
	if err := resolveWorkSet(ctx, a.res, items, a.opts.Workers); err != nil {
		return err
	}

	zoneBySub := map[subKey]string{}
	payloadByZone := map[string]schedule.Payload{}
	for _, item := range items {
		if item.err != nil {
			// Skip quietly; the next tick retries and the window is
			// wide enough to absorb a transient upstream failure.
			a.log.Debug("alert resolution failed",
				logx.String("provider", item.key.provider),
				logx.String("zone", item.key.zone),
				logx.Err(item.err))
			continue
		}
		payloadByZone[item.key.provider+"|"+item.res.Zone] = item.res.Payload
		for _, sub := range item.subs {
			zoneBySub[keyOf(sub)] = item.res.Zone
		}
	}

	groups := BuildGroups(subs, func(s storage.Subscription) (string, bool) {
		z, ok := zoneBySub[keyOf(s)]
		return z, ok
	})

	for _, g := range groups {
		lead, ok := g.MinLeadTime()
		if !ok {
			continue
		}
		p, ok := payloadByZone[g.Provider+"|"+g.Zone]
		if !ok {
			continue
		}
		ev, ok := schedule.NextEvent(p, now, lead)
		if !ok {
			continue
		}
		if alreadyAlerted(g.Subs, ev.At) {
			continue
		}
		if err := a.nt.UpcomingEvent(ctx, g.UserID, g.Zone, g.Addresses, ev); err != nil {
			// Leave last_alert untouched so the next tick retries while
			// the event is still ahead.
			a.log.Warn("alert delivery failed",
				logx.Int64("user_id", g.UserID),
				logx.String("zone", g.Zone),
				logx.Err(err))
			continue
		}
		if err := a.st.SetLastAlert(ctx, g.Subs, ev.At); err != nil {
			return err
		}
		a.publish(eventbus.TypeAlertFired, g.UserID)
		a.log.Info("alert fired",
			logx.Int64("user_id", g.UserID),
			logx.String("zone", g.Zone),
			logx.String("event", string(ev.Kind)),
			logx.Time("event_at", ev.At))
	}
	return nil
}

// alreadyAlerted reports whether every row in the group has this event
// start recorded. One un-alerted row (say a fresh subscription joining an
// existing zone) is enough to fire again for the whole group.
func alreadyAlerted(subs []storage.Subscription, eventStart time.Time) bool {
	for _, sub := range subs {
		if !sub.LastAlertEventStart().Equal(eventStart) {
			return false
		}
	}
	return true
}

func (a *AlertChecker) publish(typ string, data any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.Event{Type: typ, Time: a.now(), Data: data})
}
