// Package partition derives hour-granularity partition keys for time-bucketed
// object layouts.
package partition

import (
	"fmt"
	"time"
)

// KeyLayout is the time layout of a partition key: YYYY/MM/DD/HH.
const KeyLayout = "2006/01/02/15"

// DefaultWindow is the number of future hourly partitions registered beyond
// the reference hour.
const DefaultWindow = 12

// Key is a formatted hour bucket, e.g. "2024/03/01/05".
type Key string

// String returns the key text.
func (k Key) String() string {
	return string(k)
}

// Time returns the start of the hour the key denotes, in UTC.
func (k Key) Time() (time.Time, error) {
	return ParseKey(string(k))
}

// Truncate returns t normalised to UTC and truncated to the hour.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// KeyOf returns the partition key for the hour containing t.
func KeyOf(t time.Time) Key {
	return Key(Truncate(t).Format(KeyLayout))
}

// ParseKey parses a YYYY/MM/DD/HH key back into the start of its hour.
func ParseKey(s string) (time.Time, error) {
	t, err := time.ParseInLocation(KeyLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("partition: invalid key %q: %w", s, err)
	}
	return t, nil
}

// KeysFor returns window+1 strictly increasing keys covering the reference
// hour and the window hours following it. The window only looks forward:
// upcoming partitions are registered before data lands in them.
func KeysFor(ref time.Time, window int) ([]Key, error) {
	if window < 0 {
		return nil, fmt.Errorf("partition: window must be >= 0, got %d", window)
	}

	start := Truncate(ref)
	keys := make([]Key, 0, window+1)
	for i := 0; i <= window; i++ {
		keys = append(keys, Key(start.Add(time.Duration(i)*time.Hour).Format(KeyLayout)))
	}
	return keys, nil
}

// Strings converts keys to plain strings.
func Strings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
