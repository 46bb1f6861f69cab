package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/streamhouse/streamhouse/internal/ddl"
	sherrors "github.com/streamhouse/streamhouse/internal/errors"
)

// SQLiteCatalog is a local catalog that applies partition statements to a
// SQLite database. It accepts only the ADD PARTITION dialect produced by ddl.
type SQLiteCatalog struct {
	db     *sql.DB // single writer
	dbPath string
	mu     sync.Mutex
}

// NewSQLiteCatalog opens (or creates) a catalog database at dbPath.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Execute parses and applies one statement. With IF NOT EXISTS already
// registered partitions are skipped; without it any existing partition fails
// the whole statement and nothing is written.
func (c *SQLiteCatalog) Execute(ctx context.Context, statement string) error {
	parsed, err := ddl.ParseAddPartitions(statement)
	if err != nil {
		return sherrors.Catalog("unsupported statement", err).
			WithDetails(map[string]interface{}{"statement": statement})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return c.execError(ctx, parsed, "begin transaction", err)
	}
	defer tx.Rollback()

	if err := checkKeyName(ctx, tx, parsed); err != nil {
		return err
	}

	insertSQL := `INSERT INTO partitions (database_name, table_name, key_name, value, location, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if parsed.IfNotExists {
		insertSQL = `INSERT OR IGNORE INTO partitions (database_name, table_name, key_name, value, location, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return c.execError(ctx, parsed, "prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	var inserted int64
	for _, p := range parsed.Partitions {
		res, err := stmt.ExecContext(ctx, parsed.Database, parsed.Table, parsed.KeyName, p.Value, p.Location, now)
		if err != nil {
			return c.execError(ctx, parsed, fmt.Sprintf("add partition %s", p.Value), err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO statements (database_name, table_name, partitions, inserted, executed_at) VALUES (?, ?, ?, ?, ?)`,
		parsed.Database, parsed.Table, len(parsed.Partitions), inserted, now); err != nil {
		return c.execError(ctx, parsed, "record statement", err)
	}

	if err := tx.Commit(); err != nil {
		return c.execError(ctx, parsed, "commit", err)
	}

	if inserted > 0 {
		log.Printf("catalog: %s.%s registered %d new partition(s)", parsed.Database, parsed.Table, inserted)
	}
	return nil
}

// checkKeyName rejects a statement whose key column differs from the one
// already registered for the table.
func checkKeyName(ctx context.Context, tx *sql.Tx, parsed *ddl.ParsedAddPartitions) error {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT key_name FROM partitions WHERE database_name = ? AND table_name = ? LIMIT 1`,
		parsed.Database, parsed.Table).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return sherrors.Catalog("lookup partition key", err)
	}
	if existing != parsed.KeyName {
		return sherrors.Catalog(
			fmt.Sprintf("table %s.%s is partitioned by %s, not %s", parsed.Database, parsed.Table, existing, parsed.KeyName), nil)
	}
	return nil
}

func (c *SQLiteCatalog) execError(ctx context.Context, parsed *ddl.ParsedAddPartitions, op string, err error) error {
	msg := fmt.Sprintf("%s.%s: %s", parsed.Database, parsed.Table, op)
	if ctx.Err() != nil {
		return sherrors.CatalogTimeout(msg, ctx.Err())
	}
	return sherrors.Catalog(msg, err)
}

// ListPartitions returns the partitions registered for a table ordered by value.
func (c *SQLiteCatalog) ListPartitions(ctx context.Context, database, table string) ([]Partition, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key_name, value, location, registered_at FROM partitions
		 WHERE database_name = ? AND table_name = ? ORDER BY value`,
		database, table)
	if err != nil {
		return nil, sherrors.Catalog(fmt.Sprintf("list partitions of %s.%s", database, table), err)
	}
	defer rows.Close()

	var out []Partition
	for rows.Next() {
		p := Partition{Database: database, Table: table}
		var registeredAt int64
		if err := rows.Scan(&p.KeyName, &p.Value, &p.Location, &registeredAt); err != nil {
			return nil, sherrors.Catalog("scan partition", err)
		}
		p.RegisteredAt = time.Unix(0, registeredAt).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, sherrors.Catalog("iterate partitions", err)
	}
	return out, nil
}

// StatementCount returns how many statements have been applied to a table.
func (c *SQLiteCatalog) StatementCount(ctx context.Context, database, table string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM statements WHERE database_name = ? AND table_name = ?`,
		database, table).Scan(&n)
	if err != nil {
		return 0, sherrors.Catalog("count statements", err)
	}
	return n, nil
}

// Path returns the database file path.
func (c *SQLiteCatalog) Path() string {
	return c.dbPath
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
