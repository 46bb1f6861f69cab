package warehouse

import (
	"github.com/streamhouse/streamhouse/pkg/types"
)

// Table is a declared table with its schema and storage location.
type Table struct {
	Name          string
	Columns       []types.ColumnDef
	PartitionKeys []types.PartitionKeyDef
	Format        types.StorageFormat
	// Location is the base storage URI; partitions live at Location/<key>/.
	Location string
}

func (t *Table) clone() *Table {
	cp := *t
	cp.Columns = append([]types.ColumnDef(nil), t.Columns...)
	cp.PartitionKeys = append([]types.PartitionKeyDef(nil), t.PartitionKeys...)
	return &cp
}

// InputStreamBinding ties a streaming table to its ingestion channel.
type InputStreamBinding struct {
	Table      string
	ShardCount int
	Database   string
	// TargetTable is the catalog table the delivery pipeline feeds.
	TargetTable string
	// SinkLocation is where the delivery pipeline writes; equal to the table location.
	SinkLocation string
}

// RegistrarConfig is everything a partition registrar needs for one table.
type RegistrarConfig struct {
	Database         string
	Table            string
	Location         string
	PartitionKeyName string
	Schedule         string
	Window           int
	ResultsLocation  string
	Region           string
}

// TableArgs are the arguments of AddTable.
type TableArgs struct {
	Columns       []types.ColumnDef
	PartitionKeys []types.PartitionKeyDef
	// Format defaults to parquet.
	Format types.StorageFormat
	// Location overrides the resolved <root>/<name> location.
	Location string
}

// StreamingTableArgs are the arguments of AddStreamingTable.
type StreamingTableArgs struct {
	Columns    []types.ColumnDef
	ShardCount int
	// PartitionKeyName defaults to inserted_at.
	PartitionKeyName string
	// Window overrides the warehouse default when non-nil.
	Window *int
	// Schedule overrides the warehouse default when non-empty.
	Schedule string
	// Format defaults to json, the delivery pipeline's output.
	Format types.StorageFormat
}
