package utils

import (
	"fmt"
	"strconv"
	"time"
)

// Clock supplies the current time. Orchestrators take a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns time.Now
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.T
}

// GetCurrentTimeMillis returns current time in milliseconds since epoch
func GetCurrentTimeMillis() int64 {
	return time.Now().UnixMilli()
}

// MillisToTime converts milliseconds since epoch to time.Time
func MillisToTime(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}

// TimeToMillis converts time.Time to milliseconds since epoch
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FormatMillis formats epoch millis in ISO 8601 (UTC, millisecond precision)
func FormatMillis(millis int64) string {
	return MillisToTime(millis).Format("2006-01-02T15:04:05.000Z")
}

// ParseTime parses ISO 8601 formatted time string
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(time.RFC3339, timeStr)
}

// ParseTimeParam parses a query/body time value given as epoch millis,
// RFC3339, or a plain date (YYYY-MM-DD, start of day UTC), returning epoch millis
func ParseTimeParam(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("time value cannot be empty")
	}
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		return millis, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid time value: %s", value)
}

// IsExpiredAt reports whether expiresAt (epoch millis) is at or before now.
// A zero expiresAt never expires.
func IsExpiredAt(expiresAt int64, now time.Time) bool {
	if expiresAt == 0 {
		return false
	}
	return now.UnixMilli() >= expiresAt
}
