package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

// Deliverer sends rendered messages through the transport adapter. A
// single token bucket caps the total outbound rate so a large cycle
// cannot trip the platform's flood limits.
type Deliverer struct {
	adapter kit.Adapter
	limiter *rate.Limiter
	log     logx.Logger

	now func() time.Time // test hook
}

const defaultRatePerSec = 20

func NewDeliverer(adapter kit.Adapter, perSec int, log logx.Logger) *Deliverer {
	if perSec < 1 {
		perSec = defaultRatePerSec
	}
	return &Deliverer{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		log:     log,
		now:     time.Now,
	}
}

// SetRate re-applies the outbound cap on a live deliverer; the app calls
// it when the config file is reloaded. Safe under concurrent sends.
func (d *Deliverer) SetRate(perSec int) {
	if perSec < 1 {
		perSec = defaultRatePerSec
	}
	d.limiter.SetLimit(rate.Limit(perSec))
	d.limiter.SetBurst(perSec)
}

var markdown = &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true}

func (d *Deliverer) ScheduleChanged(ctx context.Context, userID int64, zone string, addrs []storage.Address, p schedule.Payload, firstTime bool) error {
	return d.send(ctx, userID, RenderChange(zone, addrs, p, firstTime))
}

func (d *Deliverer) UpcomingEvent(ctx context.Context, userID int64, zone string, addrs []storage.Address, ev schedule.Event) error {
	return d.send(ctx, userID, RenderAlert(zone, addrs, ev, d.now()))
}

// Send pushes an arbitrary text to a user under the same rate cap. The
// command router uses it for replies.
func (d *Deliverer) Send(ctx context.Context, userID int64, text string) error {
	return d.send(ctx, userID, text)
}

func (d *Deliverer) send(ctx context.Context, userID int64, text string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := d.adapter.SendText(ctx, kit.ChatTarget{ChatID: userID}, text, markdown)
	return err
}
