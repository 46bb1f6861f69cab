// Package reconcile compares the partition directories present in object
// storage with the partitions registered in the catalog.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/streamhouse/streamhouse/internal/catalog"
	"github.com/streamhouse/streamhouse/internal/partition"
	"github.com/streamhouse/streamhouse/internal/storage"
)

// Target identifies the table to check.
type Target struct {
	Database string
	Table    string
	// Prefix is the table's object path prefix within the storage backend.
	Prefix string
}

// DriftReport is the result of comparing storage with the catalog.
type DriftReport struct {
	Database string
	Table    string
	// Unregistered are hour keys with objects but no catalog partition;
	// their data is invisible to queries.
	Unregistered []string
	// Empty are registered hour keys without objects, the normal result of
	// registering ahead of delivery.
	Empty []string
	// Registered is the number of catalog partitions checked.
	Registered int
	// StorageKeys is the number of distinct hour keys found in storage.
	StorageKeys int
	// Objects is the number of storage objects scanned.
	Objects int
	// Ignored are objects that do not sit under an hour key directory.
	Ignored []string
	RunAt   time.Time
}

// HasDrift returns true if any stored partition is missing from the catalog.
func (r *DriftReport) HasDrift() bool {
	return len(r.Unregistered) > 0
}

// Drift builds a report for one table. It only reads.
func Drift(ctx context.Context, lister catalog.PartitionLister, store storage.ObjectStorage, target Target) (*DriftReport, error) {
	report := &DriftReport{
		Database: target.Database,
		Table:    target.Table,
		RunAt:    time.Now(),
	}

	parts, err := lister.ListPartitions(ctx, target.Database, target.Table)
	if err != nil {
		return nil, fmt.Errorf("reconcile: failed to list catalog partitions: %w", err)
	}
	report.Registered = len(parts)

	registered := make(map[string]bool, len(parts))
	for _, p := range parts {
		registered[p.Value] = true
	}

	objects, err := store.ListObjects(ctx, target.Prefix)
	if err != nil {
		return nil, fmt.Errorf("reconcile: failed to list storage objects: %w", err)
	}
	report.Objects = len(objects)

	stored := make(map[string]bool)
	for _, obj := range objects {
		key, ok := hourKeyOf(target.Prefix, obj)
		if !ok {
			report.Ignored = append(report.Ignored, obj)
			continue
		}
		stored[key] = true
	}
	report.StorageKeys = len(stored)

	for key := range stored {
		if !registered[key] {
			report.Unregistered = append(report.Unregistered, key)
		}
	}
	for key := range registered {
		if !stored[key] {
			report.Empty = append(report.Empty, key)
		}
	}
	sort.Strings(report.Unregistered)
	sort.Strings(report.Empty)
	return report, nil
}

// hourKeyOf extracts the YYYY/MM/DD/HH directory of an object below prefix.
func hourKeyOf(prefix, object string) (string, bool) {
	rel := strings.TrimPrefix(object, prefix)
	if rel == object && prefix != "" {
		return "", false
	}
	segments := strings.Split(strings.TrimPrefix(rel, "/"), "/")
	if len(segments) < 5 {
		return "", false
	}
	key := strings.Join(segments[:4], "/")
	if _, err := partition.ParseKey(key); err != nil {
		return "", false
	}
	return key, true
}
