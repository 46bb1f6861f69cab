// Package catalog submits partition registration statements to a query
// catalog. Two implementations exist: Athena for deployed stages and a local
// SQLite catalog for development.
package catalog

import (
	"context"
	"time"
)

// Client executes a single catalog statement and waits for it to finish.
// Failures are reported as catalog errors from internal/errors.
type Client interface {
	Execute(ctx context.Context, statement string) error
}

// Partition is one registered partition as seen by the catalog.
type Partition struct {
	Database     string
	Table        string
	KeyName      string
	Value        string
	Location     string
	RegisteredAt time.Time
}

// PartitionLister lists the partitions registered for a table.
type PartitionLister interface {
	ListPartitions(ctx context.Context, database, table string) ([]Partition, error)
}
