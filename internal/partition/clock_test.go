package partition

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestKeysFor_Window(t *testing.T) {
	ref := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)

	keys, err := KeysFor(ref, 2)
	if err != nil {
		t.Fatalf("KeysFor failed: %v", err)
	}

	want := []Key{"2024/03/01/05", "2024/03/01/06", "2024/03/01/07"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: got %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestKeysFor_ZeroWindow(t *testing.T) {
	ref := time.Date(2024, 3, 1, 5, 42, 17, 0, time.UTC)

	keys, err := KeysFor(ref, 0)
	if err != nil {
		t.Fatalf("KeysFor failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "2024/03/01/05" {
		t.Errorf("expected only the reference hour, got %v", keys)
	}
}

func TestKeysFor_NegativeWindow(t *testing.T) {
	if _, err := KeysFor(time.Now(), -1); err == nil {
		t.Error("expected error for negative window")
	}
}

func TestKeysFor_NormalisesToUTC(t *testing.T) {
	pst := time.FixedZone("PST", -8*3600)
	ref := time.Date(2024, 2, 29, 22, 30, 0, 0, pst) // 2024-03-01T06:30Z

	keys, err := KeysFor(ref, 0)
	if err != nil {
		t.Fatalf("KeysFor failed: %v", err)
	}
	if keys[0] != "2024/03/01/06" {
		t.Errorf("expected UTC bucket 2024/03/01/06, got %s", keys[0])
	}
}

func TestKeysFor_CrossesDayAndYear(t *testing.T) {
	ref := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)

	keys, err := KeysFor(ref, 2)
	if err != nil {
		t.Fatalf("KeysFor failed: %v", err)
	}
	want := []Key{"2023/12/31/23", "2024/01/01/00", "2024/01/01/01"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: got %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	ts, err := ParseKey("2024/03/01/05")
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if !ts.Equal(time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected time %v", ts)
	}
	if KeyOf(ts) != "2024/03/01/05" {
		t.Errorf("KeyOf mismatch: %s", KeyOf(ts))
	}

	for _, bad := range []string{"", "2024/03/01", "2024-03-01-05", "2024/13/01/00", "abcd/ef/gh/ij"} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("expected error parsing %q", bad)
		}
	}
}

// TestProperty_ClockMonotonicity validates that for any reference time T and
// window N >= 0, KeysFor returns exactly N+1 strictly increasing keys whose
// first element is T's hour-truncated UTC bucket.
func TestProperty_ClockMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("KeysFor yields N+1 strictly increasing hour keys", prop.ForAll(
		func(unixSec int64, window int) bool {
			ref := time.Unix(unixSec, 0)
			keys, err := KeysFor(ref, window)
			if err != nil {
				return false
			}
			if len(keys) != window+1 {
				return false
			}
			if keys[0] != Key(ref.UTC().Truncate(time.Hour).Format(KeyLayout)) {
				return false
			}
			for i := 1; i < len(keys); i++ {
				// Fixed-width layout: lexical order equals time order.
				if keys[i-1] >= keys[i] {
					return false
				}
				prev, _ := keys[i-1].Time()
				curr, _ := keys[i].Time()
				if curr.Sub(prev) != time.Hour {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 4102444800), // 1970 .. 2100
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}
