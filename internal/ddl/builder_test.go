package ddl

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func clicksStatement() AddPartitions {
	return AddPartitions{
		Database: "analytics_dw",
		Table:    "clicks",
		Location: "s3://bucket/clicks",
		KeyName:  "inserted_at",
		Keys:     []string{"2024/03/01/05", "2024/03/01/06", "2024/03/01/07"},
	}
}

func TestBuildAddPartitions_Text(t *testing.T) {
	stmt, err := BuildAddPartitions(clicksStatement())
	if err != nil {
		t.Fatalf("BuildAddPartitions failed: %v", err)
	}

	want := "ALTER TABLE analytics_dw.clicks ADD IF NOT EXISTS" +
		"\nPARTITION (inserted_at = '2024/03/01/05') LOCATION 's3://bucket/clicks/2024/03/01/05/'" +
		"\nPARTITION (inserted_at = '2024/03/01/06') LOCATION 's3://bucket/clicks/2024/03/01/06/'" +
		"\nPARTITION (inserted_at = '2024/03/01/07') LOCATION 's3://bucket/clicks/2024/03/01/07/';"
	if stmt != want {
		t.Errorf("statement mismatch:\ngot:\n%s\nwant:\n%s", stmt, want)
	}
}

func TestBuildAddPartitions_TrailingSlashNormalised(t *testing.T) {
	a := clicksStatement()
	b := clicksStatement()
	b.Location = "s3://bucket/clicks/"

	sa, err := BuildAddPartitions(a)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	sb, err := BuildAddPartitions(b)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if sa != sb {
		t.Errorf("trailing slash should not change the statement:\n%s\n%s", sa, sb)
	}
}

func TestBuildAddPartitions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AddPartitions)
	}{
		{"empty database", func(a *AddPartitions) { a.Database = "" }},
		{"bad table", func(a *AddPartitions) { a.Table = "clicks; DROP" }},
		{"bad key name", func(a *AddPartitions) { a.KeyName = "inserted-at" }},
		{"no location", func(a *AddPartitions) { a.Location = "/" }},
		{"quoted location", func(a *AddPartitions) { a.Location = "s3://b/it's" }},
		{"no keys", func(a *AddPartitions) { a.Keys = nil }},
		{"empty key", func(a *AddPartitions) { a.Keys = []string{""} }},
		{"quoted key", func(a *AddPartitions) { a.Keys = []string{"x'"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := clicksStatement()
			tt.mutate(&a)
			if _, err := BuildAddPartitions(a); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPartitionLocation(t *testing.T) {
	if got := PartitionLocation("s3://b/t", "2024/03/01/05"); got != "s3://b/t/2024/03/01/05/" {
		t.Errorf("got %s", got)
	}
	if got := PartitionLocation("s3://b/t//", "k"); got != "s3://b/t/k/" {
		t.Errorf("got %s", got)
	}
}

// TestProperty_IdempotentStatement validates that building the same statement
// twice is byte-identical and always carries the IF NOT EXISTS qualifier.
func TestProperty_IdempotentStatement(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ident := gen.Identifier().Map(strings.ToLower)
	keys := gen.SliceOfN(5, gen.AlphaString()).SuchThat(func(v []string) bool {
		for _, k := range v {
			if k == "" {
				return false
			}
		}
		return true
	})

	properties.Property("same input renders the same IF NOT EXISTS statement", prop.ForAll(
		func(db, table, key, bucket string, values []string) bool {
			a := AddPartitions{
				Database: db,
				Table:    table,
				Location: "s3://" + bucket + "/" + table,
				KeyName:  key,
				Keys:     values,
			}
			first, err := BuildAddPartitions(a)
			if err != nil {
				return false
			}
			second, err := BuildAddPartitions(a)
			if err != nil {
				return false
			}
			return first == second && strings.Contains(first, "ADD IF NOT EXISTS")
		},
		ident, ident, ident, ident, keys,
	))

	properties.Property("built statements parse back to their inputs", prop.ForAll(
		func(db, table string, values []string) bool {
			a := AddPartitions{
				Database: db,
				Table:    table,
				Location: "s3://bucket/" + table,
				KeyName:  "inserted_at",
				Keys:     values,
			}
			stmt, err := BuildAddPartitions(a)
			if err != nil {
				return false
			}
			parsed, err := ParseAddPartitions(stmt)
			if err != nil {
				return false
			}
			if parsed.Database != db || parsed.Table != table || !parsed.IfNotExists {
				return false
			}
			if len(parsed.Partitions) != len(values) {
				return false
			}
			for i, v := range values {
				if parsed.Partitions[i].Value != v || parsed.Partitions[i].Location != PartitionLocation(a.Location, v) {
					return false
				}
			}
			return true
		},
		ident, ident, keys,
	))

	properties.TestingRun(t)
}
