package catalog

// CreatePartitionsTableSQL creates the registered partitions table. A
// partition is identified by (database, table, value); the key column name is
// recorded so mixed-key registrations against one table are rejected.
const CreatePartitionsTableSQL = `
CREATE TABLE IF NOT EXISTS partitions (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    key_name TEXT NOT NULL,
    value TEXT NOT NULL,
    location TEXT NOT NULL,
    registered_at INTEGER NOT NULL,
    PRIMARY KEY (database_name, table_name, value)
)`

// CreateStatementsTableSQL creates the executed statement log.
const CreateStatementsTableSQL = `
CREATE TABLE IF NOT EXISTS statements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    partitions INTEGER NOT NULL,
    inserted INTEGER NOT NULL,
    executed_at INTEGER NOT NULL
)`

var createIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_partitions_table ON partitions(database_name, table_name, value)`,
	`CREATE INDEX IF NOT EXISTS idx_statements_table ON statements(database_name, table_name)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreatePartitionsTableSQL, CreateStatementsTableSQL}
	return append(stmts, createIndexesSQL...)
}
