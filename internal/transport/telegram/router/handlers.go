package router

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"outagebot/internal/notify"
	"outagebot/internal/source"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

const helpText = `Power outage schedule bot.

/subscribe City, Street, House [interval] — watch an address
/subscribe <zone> [interval] — watch a zone directly, e.g. /subscribe 3.1
/unsubscribe — drop all your subscriptions
/check City, Street, House — one-off schedule lookup (also /check 3.1)
/alerts <minutes> — warn before outage events (0 turns off)
/status — list your subscriptions

Interval examples: 30m, 1h, 2h30m.`

func (r *Router) handleHelp(ctx context.Context, req *request) error {
	return r.reply(ctx, req, helpText)
}

func (r *Router) handleSubscribe(ctx context.Context, req *request) error {
	addrPart, interval, err := splitInterval(req.args, r.opts.DefaultInterval)
	if err != nil {
		return r.reply(ctx, req, "Could not read the interval: "+err.Error())
	}
	if zone, ok := parseZone(addrPart); ok {
		return r.subscribeZone(ctx, req, zone, interval)
	}
	city, street, house, ok := parseAddress(addrPart)
	if !ok {
		return r.reply(ctx, req, "Usage: /subscribe City, Street, House [interval] — or /subscribe 3.1")
	}

	addr, err := r.st.EnsureAddress(ctx, r.opts.Provider, city, street, house)
	if err != nil {
		return err
	}
	res, rerr := r.res.Resolve(ctx, r.opts.Provider, city, street, house)
	if rerr != nil && !source.IsFetchError(rerr) {
		return rerr
	}

	now := r.now()
	sub := storage.AddressSub{
		UserID:    req.userID,
		AddressID: addr.ID,
		Interval:  interval,
		NextCheck: now,
	}
	if rerr == nil {
		// Seed the hash so the first cycle doesn't re-announce what the
		// user is about to read in the confirmation.
		sub.LastHash = res.Hash
		sub.NextCheck = now.Add(interval)
	}
	if err := r.st.UpsertAddressSubscription(ctx, sub); err != nil {
		return err
	}

	if rerr != nil {
		return r.reply(ctx, req, fmt.Sprintf(
			"Subscribed to %s, %s, %s (every %s). The schedule service is unreachable right now; you'll get the schedule as soon as a check succeeds.",
			city, street, house, interval))
	}
	return r.reply(ctx, req, fmt.Sprintf("Subscribed to %s, %s, %s (every %s).\n\n%s",
		city, street, house, interval,
		notify.RenderChange(res.Zone, nil, res.Payload, true)))
}

// subscribeZone files a watch on the zone itself, no address attached.
// The schedule may not be fetchable yet when no address in the zone is
// known; the subscription still goes in and the checker backs off until
// one appears.
func (r *Router) subscribeZone(ctx context.Context, req *request, zone string, interval time.Duration) error {
	res, rerr := r.res.ResolveZone(ctx, r.opts.Provider, zone)
	if rerr != nil && !source.IsFetchError(rerr) {
		return rerr
	}

	now := r.now()
	sub := storage.ZoneSub{
		UserID:    req.userID,
		Provider:  r.opts.Provider,
		Zone:      zone,
		Interval:  interval,
		NextCheck: now,
	}
	if rerr == nil {
		sub.LastHash = res.Hash
		sub.NextCheck = now.Add(interval)
	}
	if err := r.st.UpsertZoneSubscription(ctx, sub); err != nil {
		return err
	}

	if rerr != nil {
		return r.reply(ctx, req, fmt.Sprintf(
			"Subscribed to zone %s (every %s). No schedule is available for it yet; you'll get one as soon as a check succeeds.",
			zone, interval))
	}
	return r.reply(ctx, req, fmt.Sprintf("Subscribed to zone %s (every %s).\n\n%s",
		zone, interval,
		notify.RenderChange(res.Zone, nil, res.Payload, true)))
}

func (r *Router) handleUnsubscribe(ctx context.Context, req *request) error {
	n, err := r.st.DeleteUserSubscriptions(ctx, req.userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.reply(ctx, req, "You had no subscriptions.")
	}
	return r.reply(ctx, req, fmt.Sprintf("Removed %d subscription(s).", n))
}

func (r *Router) handleCheck(ctx context.Context, req *request) error {
	if zone, ok := parseZone(req.args); ok {
		res, err := r.res.ResolveZone(ctx, r.opts.Provider, zone)
		if err != nil {
			if source.IsFetchError(err) {
				r.log.Debug("zone check fetch failed", logx.Int64("user_id", req.userID), logx.Err(err))
				return r.reply(ctx, req, fmt.Sprintf("No schedule is available for zone %s right now.", zone))
			}
			return err
		}
		return r.reply(ctx, req, notify.RenderChange(res.Zone, nil, res.Payload, true))
	}
	city, street, house, ok := parseAddress(req.args)
	if !ok {
		return r.reply(ctx, req, "Usage: /check City, Street, House — or /check 3.1")
	}
	res, err := r.res.Resolve(ctx, r.opts.Provider, city, street, house)
	if err != nil {
		if source.IsFetchError(err) {
			r.log.Debug("check fetch failed", logx.Int64("user_id", req.userID), logx.Err(err))
			return r.reply(ctx, req, "Could not fetch the schedule for that address right now.")
		}
		return err
	}
	return r.reply(ctx, req, notify.RenderChange(res.Zone, nil, res.Payload, true))
}

func (r *Router) handleAlerts(ctx context.Context, req *request) error {
	if req.args == "" {
		return r.reply(ctx, req, "Usage: /alerts <minutes>, e.g. /alerts 15. Zero turns alerts off.")
	}
	minutes, err := strconv.Atoi(req.args)
	if err != nil || minutes < 0 || minutes > 24*60 {
		return r.reply(ctx, req, "Minutes must be a whole number between 0 and 1440.")
	}
	if err := r.st.SetLeadTime(ctx, req.userID, time.Duration(minutes)*time.Minute); err != nil {
		return err
	}
	if minutes == 0 {
		return r.reply(ctx, req, "Alerts are off.")
	}
	return r.reply(ctx, req, fmt.Sprintf("You'll be warned %d minutes before outage events.", minutes))
}

func (r *Router) handleStatus(ctx context.Context, req *request) error {
	subs, err := r.st.UserSubscriptions(ctx, req.userID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return r.reply(ctx, req, "No subscriptions. Add one with /subscribe City, Street, House.")
	}
	var b strings.Builder
	b.WriteString("Your subscriptions:\n")
	for _, sub := range subs {
		if sub.Addr != nil {
			fmt.Fprintf(&b, "• %s, %s, %s", sub.Address.City, sub.Address.Street, sub.Address.House)
			if z := sub.Address.Zone; z != "" {
				fmt.Fprintf(&b, " (zone %s)", z)
			}
		} else {
			fmt.Fprintf(&b, "• zone %s", sub.Zone.Zone)
		}
		fmt.Fprintf(&b, " — every %s", sub.Interval())
		if lt := sub.LeadTime(); lt > 0 {
			fmt.Fprintf(&b, ", alerts %d min ahead", int(lt.Minutes()))
		}
		b.WriteByte('\n')
	}
	return r.reply(ctx, req, strings.TrimRight(b.String(), "\n"))
}

// zonePattern matches a bare zone token: queue digit 1-6, a dot, comma
// or space separator, sub-queue digit 1-2, nothing else. "3,1" and
// "3 1" normalize to "3.1"; anything longer is treated as an address.
var zonePattern = regexp.MustCompile(`^([1-6])\s*[.,\s]\s*([12])$`)

func parseZone(s string) (string, bool) {
	m := zonePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1] + "." + m[2], true
}

// parseAddress splits "City, Street, House" into its parts. The house
// token may not contain a comma; everything else passes through as-is so
// prefixes like "st." stay part of the street name.
func parseAddress(s string) (city, street, house string, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return "", "", "", false
	}
	city = strings.TrimSpace(parts[0])
	street = strings.TrimSpace(parts[1])
	house = strings.TrimSpace(parts[2])
	if city == "" || street == "" || house == "" {
		return "", "", "", false
	}
	return city, street, house, true
}

// splitInterval peels a trailing duration token off the address part, if
// present: "City, Street, 5 30m" -> ("City, Street, 5", 30m).
func splitInterval(s string, def time.Duration) (addr string, interval time.Duration, err error) {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return s, def, nil
	}
	tail := s[i+1:]
	d, perr := time.ParseDuration(tail)
	if perr != nil {
		// Not a duration, treat it as part of the house token.
		return s, def, nil
	}
	if d < time.Minute || d > 24*time.Hour {
		return "", 0, fmt.Errorf("interval %s is outside 1m..24h", tail)
	}
	return strings.TrimSpace(s[:i]), d, nil
}
