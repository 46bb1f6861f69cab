// Package observability tracks per-table registration outcomes for the
// health and stats endpoints.
package observability

import (
	"sort"
	"sync"
	"time"
)

// TickStats tracks tick outcomes per table.
type TickStats struct {
	mu     sync.RWMutex
	tables map[string]*TableStats
}

// TableStats holds the counters of one table.
type TableStats struct {
	Table               string        `json:"table"`
	Succeeded           int64         `json:"succeeded"`
	Failed              int64         `json:"failed"`
	Manual              int64         `json:"manual"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	LastTick            time.Time     `json:"last_tick"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastDuration        time.Duration `json:"last_duration_ns"`
	LastError           string        `json:"last_error,omitempty"`
}

// NewTickStats creates an empty tracker.
func NewTickStats() *TickStats {
	return &TickStats{tables: make(map[string]*TableStats)}
}

// Record records one tick of table finishing at at. Thread-safe.
func (s *TickStats) Record(table string, at time.Time, d time.Duration, err error, manual bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, exists := s.tables[table]
	if !exists {
		stats = &TableStats{Table: table}
		s.tables[table] = stats
	}

	stats.LastTick = at
	stats.LastDuration = d
	if manual {
		stats.Manual++
	}
	if err != nil {
		stats.Failed++
		stats.ConsecutiveFailures++
		stats.LastError = err.Error()
		return
	}
	stats.Succeeded++
	stats.ConsecutiveFailures = 0
	stats.LastSuccess = at
	stats.LastError = ""
}

// Get returns a copy of one table's stats.
func (s *TickStats) Get(table string) (TableStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.tables[table]
	if !ok {
		return TableStats{}, false
	}
	return *stats, true
}

// Snapshot returns copies of all stats sorted by table name.
func (s *TickStats) Snapshot() []TableStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TableStats, 0, len(s.tables))
	for _, stats := range s.tables {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Table < out[j].Table
	})
	return out
}

// Failing returns the tables whose latest tick failed, most consecutive
// failures first.
func (s *TickStats) Failing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var failing []*TableStats
	for _, stats := range s.tables {
		if stats.ConsecutiveFailures > 0 {
			failing = append(failing, stats)
		}
	}
	sort.Slice(failing, func(i, j int) bool {
		if failing[i].ConsecutiveFailures != failing[j].ConsecutiveFailures {
			return failing[i].ConsecutiveFailures > failing[j].ConsecutiveFailures
		}
		return failing[i].Table < failing[j].Table
	})

	names := make([]string, len(failing))
	for i, stats := range failing {
		names[i] = stats.Table
	}
	return names
}
