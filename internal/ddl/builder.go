// Package ddl renders and parses the partition registration statement sent to
// the query catalog.
package ddl

import (
	"fmt"
	"strings"

	"github.com/streamhouse/streamhouse/pkg/types"
)

// AddPartitions describes one "add these partitions if absent" statement.
type AddPartitions struct {
	Database string
	Table    string
	// Location is the table's base storage URI, e.g. s3://bucket/clicks.
	Location string
	// KeyName is the partition key column, e.g. inserted_at.
	KeyName string
	// Keys are partition values; each maps to Location/<key>/.
	Keys []string
}

// PartitionLocation returns the storage location registered for one key.
func PartitionLocation(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key + "/"
}

// Validate checks the statement inputs.
func (a AddPartitions) Validate() error {
	if !types.ValidIdentifier(a.Database) {
		return fmt.Errorf("ddl: invalid database name %q", a.Database)
	}
	if !types.ValidIdentifier(a.Table) {
		return fmt.Errorf("ddl: invalid table name %q", a.Table)
	}
	if !types.ValidIdentifier(a.KeyName) {
		return fmt.Errorf("ddl: invalid partition key name %q", a.KeyName)
	}
	if strings.TrimRight(a.Location, "/") == "" {
		return fmt.Errorf("ddl: location is required")
	}
	if strings.ContainsAny(a.Location, "'\n") {
		return fmt.Errorf("ddl: location %q contains a quote or newline", a.Location)
	}
	if len(a.Keys) == 0 {
		return fmt.Errorf("ddl: at least one partition key is required")
	}
	for _, k := range a.Keys {
		if k == "" || strings.ContainsAny(k, "'\n") {
			return fmt.Errorf("ddl: invalid partition value %q", k)
		}
	}
	return nil
}

// BuildAddPartitions renders a single ALTER TABLE ... ADD IF NOT EXISTS
// statement with one PARTITION clause per key, in input order.
// The output is byte-identical for identical input and always carries the
// IF NOT EXISTS qualifier, so re-executing it is harmless.
func BuildAddPartitions(a AddPartitions) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s.%s ADD IF NOT EXISTS", a.Database, a.Table)
	for _, k := range a.Keys {
		fmt.Fprintf(&b, "\nPARTITION (%s = '%s') LOCATION '%s'", a.KeyName, k, PartitionLocation(a.Location, k))
	}
	b.WriteString(";")
	return b.String(), nil
}
