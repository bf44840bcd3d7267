package config

import (
	"fmt"
	"strings"
	"time"
)

// Every cadence in the config file (cache TTL, fetch timeout, default
// subscription interval, fail backoff) is a plain Go duration string. A
// field left empty means "use the built-in default": this daemon has no
// meaningful "as fast as possible" cadence, so zero never survives
// parsing as an operational value.

// ParseDurationField parses one duration-valued field. Empty input comes
// back as zero so callers can tell "unset" apart from "set"; negative
// values are rejected outright.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault collapses the unset case to def, which is how
// the bootstrap reads every cadence field.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
