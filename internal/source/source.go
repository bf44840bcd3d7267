package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outagebot/internal/schedule"
)

// Source is the external fetch adapter: given an address it returns the
// dated schedule plus the zone the provider currently assigns to it.
// Implementations must honor ctx cancellation; callers bound every fetch
// with a timeout.
type Source interface {
	Fetch(ctx context.Context, provider, city, street, house string) (schedule.Payload, error)
}

// FetchError marks transient fetch failures: adapter unreachable, timeout,
// or malformed data. The checkers retry these next cycle with backoff.
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Config selects the implementation. See config.SourceConfig for the
// documented kinds.
type Config struct {
	Kind     string
	Provider string
	BaseURL  string
	Path     string
	Timeout  time.Duration
}

// normalizeKind coerces unrecognized window kinds to interruption so
// every source hands out the same three-kind vocabulary.
func normalizeKind(raw string) schedule.WindowKind {
	switch k := schedule.WindowKind(raw); k {
	case schedule.KindInterruption, schedule.KindRestoration, schedule.KindPartial:
		return k
	default:
		return schedule.KindInterruption
	}
}

// New builds the configured source. The rest of the system never branches
// on the kind: it only sees the Source interface.
func New(cfg Config) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "api":
		return newAPISource(cfg)
	case "static":
		return newStaticSource(cfg)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
