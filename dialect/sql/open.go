package sql

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/syssam/tether/config"
	"github.com/syssam/tether/dialect"
)

// OpenConfig opens the database described by cfg and returns its storage.
// cfg.Driver selects the database/sql driver ("pgx" or "postgres" for
// PostgreSQL); it defaults to the dialect name.
// The driver is wrapped with statistics collection (slow statements are
// logged) and, if cfg.Debug is set, with debug logging.
func OpenConfig(cfg *config.Config, opts ...StatsOption) (*Storage, *StatsDriver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	dsn := cfg.DSN
	switch cfg.Dialect {
	case dialect.Postgres, dialect.SQLite:
	case dialect.MySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("dialect/sql: mysql dsn: %w", err)
		}
		mc.ParseTime = true
		dsn = mc.FormatDSN()
	default:
		return nil, nil, fmt.Errorf("dialect/sql: dialect %s is not a SQL dialect", cfg.Dialect)
	}
	name := cfg.Driver
	if name == "" {
		name = cfg.Dialect
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, nil, err
	}
	drv := OpenDB(cfg.Dialect, db)
	opts = append([]StatsOption{WithSlowThreshold(cfg.SlowThreshold), WithSlowQueryLog(nil)}, opts...)
	stats := NewStatsDriver(drv, opts...)
	var d dialect.Driver = stats
	if cfg.Debug {
		d = NewDebugDriver(stats)
	}
	return NewStorage(d, WithSessionVars(cfg.Vars)), stats, nil
}
