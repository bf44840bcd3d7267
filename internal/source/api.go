package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"outagebot/internal/schedule"
)

// apiSource queries a provider HTTP endpoint that reports the schedule for
// one concrete address, including the zone the address currently belongs to.
type apiSource struct {
	provider string
	baseURL  string
	http     *http.Client
}

func newAPISource(cfg Config) (*apiSource, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("source: base_url is required for the api source")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &apiSource{
		provider: cfg.Provider,
		baseURL:  base,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// apiWindow mirrors the provider's wire format for one slot.
type apiWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Kind  string    `json:"kind"`
}

type apiResponse struct {
	Zone    string      `json:"zone"`
	Windows []apiWindow `json:"windows"`
}

func (s *apiSource) Fetch(ctx context.Context, provider, city, street, house string) (schedule.Payload, error) {
	q := url.Values{}
	q.Set("city", city)
	q.Set("street", street)
	q.Set("house", house)
	u := s.baseURL + "/schedule?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return schedule.Payload{}, &FetchError{
			Provider: provider,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var body apiResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&body); err != nil {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: fmt.Errorf("decode: %w", err)}
	}
	if strings.TrimSpace(body.Zone) == "" {
		return schedule.Payload{}, &FetchError{Provider: provider, Err: errors.New("response has no zone")}
	}

	p := schedule.Payload{Provider: provider, Zone: body.Zone}
	for _, w := range body.Windows {
		p.Windows = append(p.Windows, schedule.Window{Start: w.Start, End: w.End, Kind: normalizeKind(w.Kind)})
	}
	p.Normalize()
	return p, nil
}
