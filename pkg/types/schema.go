// Package types holds the schema vocabulary shared by the warehouse model,
// the DDL builder and the configuration layer.
package types

import (
	"fmt"
	"regexp"
)

// DefaultPartitionKeyName is the partition key used by streaming tables
// unless the caller overrides it.
const DefaultPartitionKeyName = "inserted_at"

// DefaultPartitionKeyType is the catalog type of time-bucket partition keys.
const DefaultPartitionKeyType = "string"

// StorageFormat is the on-disk format of a table's objects.
type StorageFormat string

const (
	// FormatParquet is columnar-binary storage.
	FormatParquet StorageFormat = "parquet"

	// FormatJSON is line-delimited JSON storage.
	FormatJSON StorageFormat = "json"
)

// Valid reports whether f is a known storage format.
func (f StorageFormat) Valid() bool {
	return f == FormatParquet || f == FormatJSON
}

// ColumnDef defines a single column in a table schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name" yaml:"name"`

	// Type is the catalog type, e.g. string, bigint, timestamp
	Type string `json:"type" yaml:"type"`
}

// PartitionKeyDef defines a partition key column. It is never stored in the
// data objects themselves, only in the directory layout.
type PartitionKeyDef struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is usable unquoted as a catalog
// database, table or column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidateColumns checks column and partition key names for shape and uniqueness.
func ValidateColumns(columns []ColumnDef, partitionKeys []PartitionKeyDef) error {
	if len(columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	seen := make(map[string]bool, len(columns)+len(partitionKeys))
	for _, c := range columns {
		if !ValidIdentifier(c.Name) {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		if c.Type == "" {
			return fmt.Errorf("column %q has no type", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range partitionKeys {
		if !ValidIdentifier(k.Name) {
			return fmt.Errorf("invalid partition key name %q", k.Name)
		}
		if k.Type == "" {
			return fmt.Errorf("partition key %q has no type", k.Name)
		}
		if seen[k.Name] {
			return fmt.Errorf("partition key %q collides with a column", k.Name)
		}
		seen[k.Name] = true
	}
	return nil
}
