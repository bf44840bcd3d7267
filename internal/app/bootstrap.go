package app

import (
	"time"

	"outagebot/internal/checker"
	"outagebot/internal/config"
	"outagebot/internal/source"
	"outagebot/internal/storage"
)

// runtimeConfig holds the parsed form of every string-typed field the
// config file carries. Parsing happens once here so a bad duration is
// rejected at load and hot-reload time, never deep inside a component.
type runtimeConfig struct {
	pollTimeout time.Duration
	storage     storage.Config
	source      source.Config
	cacheTTL    time.Duration

	checkerWake     checker.WakeSpec
	alertsWake      checker.WakeSpec
	defaultInterval time.Duration
	failBackoff     time.Duration
	workers         int
}

func mapRuntime(cfg *config.Config) (runtimeConfig, error) {
	var rt runtimeConfig
	var err error

	if rt.pollTimeout, err = config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second); err != nil {
		return rt, err
	}

	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return rt, err
	}
	rt.storage = storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}

	fetchTimeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 30*time.Second)
	if err != nil {
		return rt, err
	}
	rt.source = source.Config{
		Kind:     cfg.Source.Kind,
		Provider: cfg.Source.Provider,
		BaseURL:  cfg.Source.BaseURL,
		Path:     cfg.Source.Path,
		Timeout:  fetchTimeout,
	}

	if rt.cacheTTL, err = config.ParseDurationOrDefault("cache.ttl", cfg.Cache.TTL, 15*time.Minute); err != nil {
		return rt, err
	}

	if rt.checkerWake, err = parseWakeOrDefault(cfg.Checker.Wake, "5m"); err != nil {
		return rt, err
	}
	if rt.alertsWake, err = parseWakeOrDefault(cfg.Alerts.Wake, "1m"); err != nil {
		return rt, err
	}
	if rt.defaultInterval, err = config.ParseDurationOrDefault("checker.default_interval", cfg.Checker.DefaultInterval, time.Hour); err != nil {
		return rt, err
	}
	if rt.failBackoff, err = config.ParseDurationOrDefault("checker.fail_backoff", cfg.Checker.FailBackoff, 10*time.Minute); err != nil {
		return rt, err
	}
	rt.workers = cfg.Checker.Workers
	if rt.workers <= 0 {
		rt.workers = 4
	}
	return rt, nil
}

func parseWakeOrDefault(raw, def string) (checker.WakeSpec, error) {
	if raw == "" {
		raw = def
	}
	return checker.ParseWakeSpec(raw)
}
