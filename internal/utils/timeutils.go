package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp accepts RFC3339 (with optional fractional seconds) or unix seconds.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: expected RFC3339 or unix seconds", value)
	}
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos).UTC(), nil
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
