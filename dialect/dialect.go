package dialect

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
	Memory   = "memory"
)

// ErrNoRows is returned by Tx.Update and Tx.Delete when no row has the
// given identifier.
var ErrNoRows = errors.New("dialect: no rows in result set")

// Row holds column values keyed by column name.
type Row map[string]any

// Columns returns the row column names sorted.
func (r Row) Columns() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TableInfo describes the table a statement is issued against.
type TableInfo struct {
	Name       string
	Columns    []string // All columns in definition order.
	Identifier []string // Identifier columns in key order.
	Generated  string   // Column assigned by storage on insert, if any.
}

// Storage is the storage collaborator of a unit of work.
type Storage interface {
	// Begin starts a transaction.
	Begin(context.Context) (Tx, error)
}

// Tx is a storage transaction. Statements are applied in call order.
type Tx interface {
	// Insert writes a new row and returns the number of affected rows.
	Insert(ctx context.Context, t TableInfo, values Row) (int64, error)
	// Update sets the given values on the row identified by id. It fails
	// with ErrNoRows if the row does not exist.
	Update(ctx context.Context, t TableInfo, values, id Row) error
	// Delete removes the row identified by id. It fails with ErrNoRows if
	// the row does not exist.
	Delete(ctx context.Context, t TableInfo, id Row) error
	// LastInsertID returns the value generated for t by its last insert.
	LastInsertID(ctx context.Context, t TableInfo) (int64, error)
	Commit() error
	Rollback() error
}

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for SQL based storages.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (ConnTx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// ConnTx wraps the Exec and Query operations in transaction.
type ConnTx interface {
	ExecQuerier
	driver.Tx
}

// Normalize returns the canonical dialect name of s, accepting the common
// driver aliases ("postgresql", "pgx", "sqlite3", "mariadb").
func Normalize(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case Postgres, "postgresql", "pgx":
		return Postgres, nil
	case MySQL, "mariadb":
		return MySQL, nil
	case SQLite, "sqlite3":
		return SQLite, nil
	case Memory:
		return Memory, nil
	}
	return "", fmt.Errorf("dialect: unsupported dialect %q", s)
}
