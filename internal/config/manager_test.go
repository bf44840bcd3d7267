package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleYAML = `
telegram:
  token: "123:abc"
  poll_timeout: 10s
logging:
  level: debug
  console: true
storage:
  path: ./bot.db
source:
  kind: api
  provider: dtek
  base_url: https://api.example.com
cache:
  ttl: 20m
checker:
  wake: 5m
  default_interval: 1h
  workers: 8
alerts:
  wake: 1m
delivery:
  rate_per_sec: 10
`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Source.Kind != "api" || cfg.Source.Provider != "dtek" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Cache.TTL != "20m" {
		t.Errorf("cache ttl = %q", cfg.Cache.TTL)
	}
	if cfg.Checker.Workers != 8 {
		t.Errorf("workers = %d", cfg.Checker.Workers)
	}
	if cfg.Delivery.RatePerSec != 10 {
		t.Errorf("rate = %d", cfg.Delivery.RatePerSec)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json",
		`{"telegram":{"token":"t"},"storage":{"path":"./x.db"},"source":{"kind":"static","provider":"cek","path":"./fixture.json"}}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source.Kind != "static" || cfg.Source.Path != "./fixture.json" {
		t.Errorf("source = %+v", cfg.Source)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", "telegram:\n  token: t\n  typo_field: oops\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown field accepted, want strict-decode error")
	}
}

func TestLoadCommitsAndGetReturnsIt(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Error("Get must return the committed config")
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	want := &Config{}
	want.Delivery.RatePerSec = 42
	m.publish(want)

	select {
	case got := <-ch:
		if got.Delivery.RatePerSec != 42 {
			t.Errorf("received rate = %d, want 42", got.Delivery.RatePerSec)
		}
	default:
		t.Fatal("subscriber did not receive the published config")
	}
}

func TestPublishDropsStaleForSlowSubscriber(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	old := &Config{}
	old.Delivery.RatePerSec = 1
	cur := &Config{}
	cur.Delivery.RatePerSec = 2
	m.publish(old)
	m.publish(cur)

	got := <-ch
	if got.Delivery.RatePerSec != 2 {
		t.Errorf("slow subscriber got rate %d, want the newest (2)", got.Delivery.RatePerSec)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", "90s"); err != nil || d.Seconds() != 90 {
		t.Errorf("90s -> %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "ninety"); err == nil {
		t.Error("garbage duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 5); err != nil || d != 5 {
		t.Errorf("default path -> %v %v", d, err)
	}
}
