// Package sql provides the database/sql storage of a unit of work.
//
// Storage renders one statement per scheduled operation with a dialect
// Builder and runs it through a Driver:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	work := uow.New(sql.NewStorage(drv))
//
// # Dialect Support
//
// Statements adapt to the dialect of the driver:
//
//	sql.Dialect(dialect.Postgres).Insert(info, row)
//	// INSERT INTO "users" ("name") VALUES ($1) RETURNING "id"
//
//	sql.Dialect(dialect.MySQL).Insert(info, row)
//	// INSERT INTO `users` (`name`) VALUES (?)
//
// Generated identifiers are read with RETURNING on PostgreSQL and with the
// driver's last insert id elsewhere. The lib/pq ("postgres"), jackc/pgx
// ("pgx"), go-sql-driver/mysql and modernc.org/sqlite drivers are registered
// by this package.
//
// # Decorators
//
// NewStatsDriver collects statement statistics and reports slow statements;
// NewDebugDriver logs every statement with log/slog. OpenConfig opens a
// storage from a config.Config with both applied.
//
// # Errors
//
// IsUniqueConstraintError, IsForeignKeyConstraintError and
// IsCheckConstraintError classify driver errors across the three databases.
package sql
