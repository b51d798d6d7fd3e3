package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations in the config file are Go duration strings held as plain
// strings ("2s", "45s", "1m30s"); the consuming component parses them
// with the config path in hand so errors name the offending field,
// e.g. "scheduler.delivery_timeout: invalid duration "soon"".

// ParseDurationField parses one such field. Empty means unset and
// yields zero; negative durations are rejected (no notifyd timeout or
// busy_timeout can meaningfully be negative).
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for the
// unset case. A malformed value is still an error, never the default:
// a typo in scheduler.delivery_timeout should fail the boot, not
// silently run with 30s.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
