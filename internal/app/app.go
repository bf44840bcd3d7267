// Package app wires configuration, storage, the schedule pipeline and the
// Telegram front-end into one startable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"outagebot/internal/checker"
	"outagebot/internal/config"
	"outagebot/internal/eventbus"
	"outagebot/internal/notify"
	"outagebot/internal/registry"
	"outagebot/internal/resolver"
	"outagebot/internal/runtime/supervisor"
	"outagebot/internal/source"
	"outagebot/internal/storage"
	kit "outagebot/internal/transport"
	telegram "outagebot/internal/transport/telegram"
	"outagebot/internal/transport/telegram/router"
	"outagebot/internal/zonecache"
	logx "outagebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log      logx.Logger
	logClose func() error

	bus     eventbus.Bus
	store   *storage.Store
	cache   *zonecache.Cache
	res     *resolver.Resolver
	deliver *notify.Deliverer

	checker *checker.Checker
	alerts  *checker.AlertChecker
	routerd *router.Router

	adapter *telegram.Adapter
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	log, logClose := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	rt, err := mapRuntime(cfg)
	if err != nil {
		logClose()
		return nil, err
	}

	st, err := storage.Open(rt.storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		logClose()
		return nil, err
	}

	src, err := source.New(rt.source)
	if err != nil {
		st.Close()
		logClose()
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: rt.pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		st.Close()
		logClose()
		return nil, err
	}

	bus := eventbus.New()
	reg := registry.New(st, log.With(logx.String("comp", "registry")))
	cache := zonecache.New(rt.cacheTTL, st, log.With(logx.String("comp", "zonecache")))
	res := resolver.New(reg, cache, src, rt.source.Timeout, log.With(logx.String("comp", "resolver")))
	deliver := notify.NewDeliverer(ad, cfg.Delivery.RatePerSec, log.With(logx.String("comp", "notify")))

	chk := checker.New(st, res, deliver, bus, checker.Options{
		Wake:        rt.checkerWake,
		Workers:     rt.workers,
		FailBackoff: rt.failBackoff,
	}, log.With(logx.String("comp", "checker")))

	alerts := checker.NewAlertChecker(st, res, deliver, bus, checker.AlertOptions{
		Wake:    rt.alertsWake,
		Workers: rt.workers,
	}, log.With(logx.String("comp", "alerts")))

	rtr := router.New(st, res, deliver, router.Options{
		Provider:        cfg.Source.Provider,
		DefaultInterval: rt.defaultInterval,
	}, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logClose: logClose,
		bus:      bus,
		store:    st,
		cache:    cache,
		res:      res,
		deliver:  deliver,
		checker:  chk,
		alerts:   alerts,
		routerd:  rtr,
		adapter:  ad,
		updates:  make(chan kit.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log))

	if err := a.cache.Warm(a.sup.Context()); err != nil {
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("checker.run", a.checker.Run)
	a.sup.Go("alerts.run", a.alerts.Run)
	a.sup.Go("router.dispatch", func(c context.Context) {
		_ = a.routerd.DispatchLoop(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	})
	a.sup.Go("config.apply", func(c context.Context) {
		reloads := a.cfgm.Subscribe(1)
		defer a.cfgm.Unsubscribe(reloads)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-reloads:
				if !ok {
					return
				}
				// Runtime knobs that don't need a restart. Anything
				// structural (storage path, token, source) only takes
				// effect on the next start.
				a.deliver.SetRate(cfg.Delivery.RatePerSec)
				a.log.Info("reloaded config applied",
					logx.Int("rate_per_sec", cfg.Delivery.RatePerSec))
			}
		}
	})
	a.sup.Go("eventbus.log", func(c context.Context) {
		events, unsub := a.bus.Subscribe(128)
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("started",
		logx.Int("cached_zones", a.cache.Len()),
		logx.Duration("cache_ttl", a.cache.TTL()))
	return nil
}

// Done is closed once the app's run context unwinds.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Stop unwinds in reverse start order: loops first, then the adapter,
// then storage. A checker cycle in flight gets to finish its persistence
// step before the store closes.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := a.sup.Wait(wctx); err != nil {
		a.log.Warn("shutdown wait", logx.Err(err))
	}

	actx, acancel := context.WithTimeout(ctx, 3*time.Second)
	if err := a.adapter.Stop(actx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	acancel()

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	if a.logClose != nil {
		_ = a.logClose()
	}
	return nil
}

// validate rejects a config before it is committed or hot-reloaded.
func validate(_ context.Context, cfg *config.Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if cfg.Source.Provider == "" {
		return fmt.Errorf("source.provider is required")
	}
	switch cfg.Source.Kind {
	case "api":
		if cfg.Source.BaseURL == "" {
			return fmt.Errorf("source.base_url is required for kind api")
		}
	case "static":
		if cfg.Source.Path == "" {
			return fmt.Errorf("source.path is required for kind static")
		}
	default:
		return fmt.Errorf("source.kind must be api or static, got %q", cfg.Source.Kind)
	}
	if cfg.Delivery.RatePerSec < 0 {
		return fmt.Errorf("delivery.rate_per_sec must be >= 0")
	}
	_, err := mapRuntime(cfg)
	return err
}
