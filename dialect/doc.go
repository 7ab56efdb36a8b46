// Package dialect defines the storage collaborator of the unit of work and
// the driver abstraction used by the SQL storage.
//
// A unit of work writes through a Storage:
//
//	type Storage interface {
//	    Begin(ctx context.Context) (Tx, error)
//	}
//
// Tx issues the three statements a commit needs, keyed by TableInfo:
//
//	type Tx interface {
//	    Insert(ctx context.Context, t TableInfo, values Row) (int64, error)
//	    Update(ctx context.Context, t TableInfo, values, id Row) error
//	    Delete(ctx context.Context, t TableInfo, id Row) error
//	    LastInsertID(ctx context.Context, t TableInfo) (int64, error)
//	    Commit() error
//	    Rollback() error
//	}
//
// The SQL storage in dialect/sql runs on a Driver, which wraps Exec and
// Query of a database connection and can be decorated (Debug, stats).
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//   - Memory: in-process storage from dialect/memory
//
// # Sub-packages
//
//   - dialect/sql: database/sql storage and drivers
//   - dialect/memory: transactional in-memory storage
package dialect
