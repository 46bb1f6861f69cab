package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/streamhouse/streamhouse/internal/ddl"
	sherrors "github.com/streamhouse/streamhouse/internal/errors"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func buildStatement(t *testing.T, keys ...string) string {
	t.Helper()
	stmt, err := ddl.BuildAddPartitions(ddl.AddPartitions{
		Database: "analytics",
		Table:    "clicks",
		Location: "s3://bucket/clicks",
		KeyName:  "inserted_at",
		Keys:     keys,
	})
	if err != nil {
		t.Fatalf("failed to build statement: %v", err)
	}
	return stmt
}

func TestSQLiteCatalog_ExecuteRegistersPartitions(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	stmt := buildStatement(t, "2024/03/01/05", "2024/03/01/06")
	if err := c.Execute(ctx, stmt); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	parts, err := c.ListPartitions(ctx, "analytics", "clicks")
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}
	if parts[0].Value != "2024/03/01/05" || parts[0].Location != "s3://bucket/clicks/2024/03/01/05/" {
		t.Errorf("unexpected first partition: %+v", parts[0])
	}
	if parts[1].KeyName != "inserted_at" {
		t.Errorf("expected key inserted_at, got %s", parts[1].KeyName)
	}
}

func TestSQLiteCatalog_DuplicateStatementIsNoOp(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	stmt := buildStatement(t, "2024/03/01/05", "2024/03/01/06")
	for i := 0; i < 3; i++ {
		if err := c.Execute(ctx, stmt); err != nil {
			t.Fatalf("Execute #%d failed: %v", i, err)
		}
	}

	parts, err := c.ListPartitions(ctx, "analytics", "clicks")
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(parts) != 2 {
		t.Errorf("expected partition set unchanged at 2, got %d", len(parts))
	}

	n, err := c.StatementCount(ctx, "analytics", "clicks")
	if err != nil {
		t.Fatalf("StatementCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 statements recorded, got %d", n)
	}
}

func TestSQLiteCatalog_OverlappingWindows(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if err := c.Execute(ctx, buildStatement(t, "2024/03/01/05", "2024/03/01/06")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := c.Execute(ctx, buildStatement(t, "2024/03/01/06", "2024/03/01/07")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	parts, err := c.ListPartitions(ctx, "analytics", "clicks")
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(parts) != 3 {
		t.Errorf("expected union of 3 partitions, got %d", len(parts))
	}
}

func TestSQLiteCatalog_WithoutIfNotExistsRejectsExisting(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if err := c.Execute(ctx, buildStatement(t, "2024/03/01/05")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	plain := "ALTER TABLE analytics.clicks ADD\nPARTITION (inserted_at = '2024/03/01/05') LOCATION 's3://bucket/clicks/2024/03/01/05/'\nPARTITION (inserted_at = '2024/03/01/09') LOCATION 's3://bucket/clicks/2024/03/01/09/';"
	err := c.Execute(ctx, plain)
	if !errors.Is(err, sherrors.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}

	parts, _ := c.ListPartitions(ctx, "analytics", "clicks")
	if len(parts) != 1 {
		t.Errorf("failed statement must not register anything, got %d partitions", len(parts))
	}
}

func TestSQLiteCatalog_RejectsMixedKeyName(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if err := c.Execute(ctx, buildStatement(t, "2024/03/01/05")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	other := "ALTER TABLE analytics.clicks ADD IF NOT EXISTS\nPARTITION (dt = '2024/03/01/05') LOCATION 's3://bucket/clicks/2024/03/01/05/';"
	if err := c.Execute(ctx, other); !errors.Is(err, sherrors.ErrCatalog) {
		t.Errorf("expected catalog error for different key, got %v", err)
	}
}

func TestSQLiteCatalog_UnsupportedStatement(t *testing.T) {
	c := newTestCatalog(t)
	err := c.Execute(context.Background(), "DROP TABLE analytics.clicks;")
	if !errors.Is(err, sherrors.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}
	var se *sherrors.Error
	if !errors.As(err, &se) || se.Detail("statement") != "DROP TABLE analytics.clicks;" {
		t.Error("expected the statement in error details")
	}
}

func TestSQLiteCatalog_ListUnknownTable(t *testing.T) {
	c := newTestCatalog(t)
	parts, err := c.ListPartitions(context.Background(), "analytics", "nothing")
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("expected no partitions, got %d", len(parts))
	}
}

func TestSQLiteCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if err := c.Execute(ctx, buildStatement(t, "2024/03/01/05")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	c.Close()

	c, err = NewSQLiteCatalog(path)
	if err != nil {
		t.Fatalf("failed to reopen catalog: %v", err)
	}
	defer c.Close()

	parts, err := c.ListPartitions(ctx, "analytics", "clicks")
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("expected partitions to persist, got %d", len(parts))
	}
}
