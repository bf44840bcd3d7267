package source

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"outagebot/internal/schedule"
)

// staticSource serves schedules from a local JSON fixture file keyed by
// "city|street|house". It exists for development and smoke tests where no
// provider endpoint is reachable.
type staticSource struct {
	provider string
	path     string
}

func newStaticSource(cfg Config) (*staticSource, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("source: path is required for the static source")
	}
	return &staticSource{provider: cfg.Provider, path: cfg.Path}, nil
}

type staticFile map[string]apiResponse

func (s *staticSource) Fetch(ctx context.Context, provider, city, street, house string) (schedule.Payload, error) {
	if err := ctx.Err(); err != nil {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: err}
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: err}
	}
	var file staticFile
	if err := json.Unmarshal(b, &file); err != nil {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: err}
	}
	key := city + "|" + street + "|" + house
	entry, ok := file[key]
	if !ok {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: errors.New("address not in fixture: " + key)}
	}
	if strings.TrimSpace(entry.Zone) == "" {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: errors.New("fixture entry has no zone: " + key)}
	}

	p := schedule.Payload{Provider: provider, Zone: entry.Zone}
	for _, w := range entry.Windows {
		p.Windows = append(p.Windows, schedule.Window{Start: w.Start, End: w.End, Kind: normalizeKind(w.Kind)})
	}
	p.Normalize()
	return p, nil
}
