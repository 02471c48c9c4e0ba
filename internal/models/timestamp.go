package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical form of every stored ts value. All values
// share one width and zone, so byte-wise string order equals time order.
const TimestampLayout = "2006-01-02T15:04:05Z"

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// CanonicalTimestamp parses an RFC 3339 timestamp with second precision and
// returns it in UTC using TimestampLayout. Fractional seconds are rejected.
func CanonicalTimestamp(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("%w: must be RFC 3339, e.g. 2024-01-01T00:00:00Z", ErrInvalidTimestamp)
	}
	if t.Nanosecond() != 0 {
		return "", fmt.Errorf("%w: fractional seconds are not supported", ErrInvalidTimestamp)
	}

	return t.UTC().Format(TimestampLayout), nil
}
