// Package router dispatches inbound bot commands to handlers on a bounded
// worker pool.
package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"

	"outagebot/internal/resolver"
	"outagebot/internal/runtime/supervisor"
	"outagebot/internal/storage"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

// Store is the subscription surface the commands need.
type Store interface {
	EnsureAddress(ctx context.Context, provider, city, street, house string) (storage.Address, error)
	UpsertAddressSubscription(ctx context.Context, sub storage.AddressSub) error
	UpsertZoneSubscription(ctx context.Context, sub storage.ZoneSub) error
	DeleteUserSubscriptions(ctx context.Context, userID int64) (int64, error)
	SetLeadTime(ctx context.Context, userID int64, lead time.Duration) error
	UserSubscriptions(ctx context.Context, userID int64) ([]storage.Subscription, error)
}

// Resolver fetches a schedule for an address (creating the address row
// as a side effect) or for a bare zone.
type Resolver interface {
	Resolve(ctx context.Context, provider, city, street, house string) (resolver.Result, error)
	ResolveZone(ctx context.Context, provider, zone string) (resolver.Result, error)
}

// Sender delivers replies under the global outbound rate cap.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Options configure command behavior.
type Options struct {
	// Provider is the outage provider new subscriptions are filed under.
	Provider string
	// DefaultInterval is used when /subscribe doesn't name one.
	DefaultInterval time.Duration
	// CommandTimeout bounds one handler invocation. Default 30s.
	CommandTimeout time.Duration
	// Workers sizes the dispatch pool. Default NumCPU, min 2.
	Workers int
}

type handlerFunc func(ctx context.Context, req *request) error

type request struct {
	userID int64
	chatID int64
	args   string // raw text after the command word
}

type Router struct {
	st   Store
	res  Resolver
	send Sender
	opts Options
	log  logx.Logger

	commands map[string]handlerFunc
	jobs     chan func()

	now func() time.Time // test hook
}

func New(st Store, res Resolver, send Sender, opts Options, log logx.Logger) *Router {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = time.Hour
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Workers < 2 {
		opts.Workers = 2
	}
	r := &Router{
		st:   st,
		res:  res,
		send: send,
		opts: opts,
		log:  log,
		jobs: make(chan func(), 256),
		now:  time.Now,
	}
	r.commands = map[string]handlerFunc{
		"start":       r.handleHelp,
		"help":        r.handleHelp,
		"subscribe":   r.handleSubscribe,
		"unsubscribe": r.handleUnsubscribe,
		"check":       r.handleCheck,
		"alerts":      r.handleAlerts,
		"status":      r.handleStatus,
	}
	return r
}

// DispatchLoop consumes updates until ctx is canceled or the channel
// closes. Handlers run on a bounded pool so one slow upstream fetch
// cannot stall the rest of the chat.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "router"))))

	for i := 0; i < r.opts.Workers; i++ {
		sup.Go("command.worker."+strconv.Itoa(i), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		})
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.opts.Workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	word, args, _ := strings.Cut(text[1:], " ")
	// "/check@my_bot" addresses this bot in a group chat.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	h := r.commands[strings.ToLower(word)]
	if h == nil {
		return
	}

	req := &request{userID: msg.FromID, chatID: msg.ChatID, args: strings.TrimSpace(args)}
	job := func() {
		ctx, cancel := context.WithTimeout(root, r.opts.CommandTimeout)
		defer cancel()
		if err := h(ctx, req); err != nil {
			r.log.Warn("command failed",
				logx.String("command", word),
				logx.Int64("user_id", req.userID),
				logx.Err(err))
		}
	}
	select {
	case r.jobs <- job:
	default:
		r.log.Warn("command dropped, queue full", logx.Int64("user_id", req.userID))
	}
}

func (r *Router) reply(ctx context.Context, req *request, text string) error {
	return r.send.Send(ctx, req.chatID, text)
}
