package sql

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/tether/dialect"
)

// Storage is a dialect.Storage writing through a SQL driver.
type Storage struct {
	drv  dialect.Driver
	b    Builder
	vars map[string]string
}

var _ dialect.Storage = (*Storage)(nil)

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithSessionVars sets session variables at the start of every transaction.
func WithSessionVars(vars map[string]string) StorageOption {
	return func(s *Storage) {
		s.vars = vars
	}
}

// NewStorage returns a Storage on top of drv. The statement dialect is the
// one reported by drv.
func NewStorage(drv dialect.Driver, opts ...StorageOption) *Storage {
	s := &Storage{drv: drv, b: Dialect(drv.Dialect())}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver returns the underlying driver.
func (s *Storage) Driver() dialect.Driver { return s.drv }

// Close closes the underlying driver.
func (s *Storage) Close() error { return s.drv.Close() }

// Begin starts a transaction.
func (s *Storage) Begin(ctx context.Context) (dialect.Tx, error) {
	for _, k := range slices.Sorted(maps.Keys(s.vars)) {
		ctx = WithVar(ctx, k, s.vars[k])
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &storageTx{tx: tx, b: s.b, ids: make(map[string]int64)}, nil
}

// storageTx implements dialect.Tx.
type storageTx struct {
	tx  dialect.ConnTx
	b   Builder
	ids map[string]int64 // last generated value per table
}

func (t *storageTx) Insert(ctx context.Context, info dialect.TableInfo, values dialect.Row) (int64, error) {
	query, args, err := t.b.Insert(info, values)
	if err != nil {
		return 0, err
	}
	if info.Generated != "" && t.b.Returning() {
		id, err := t.returning(ctx, query, args)
		if err != nil {
			return 0, err
		}
		t.ids[info.Name] = id
		return 1, nil
	}
	var res Result
	if err := t.tx.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	if info.Generated != "" {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("dialect/sql: last insert id of %s: %w", info.Name, err)
		}
		t.ids[info.Name] = id
	}
	return res.RowsAffected()
}

func (t *storageTx) returning(ctx context.Context, query string, args []any) (id int64, err error) {
	rows := &Rows{}
	if err := t.tx.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("dialect/sql: insert returned no rows")
	}
	var v NullInt64
	if err := rows.Scan(&v); err != nil {
		return 0, fmt.Errorf("dialect/sql: scan generated value: %w", err)
	}
	return v.Int64, rows.Err()
}

// Update fails with dialect.ErrNoRows if no row was matched. MySQL reports
// changed rows instead of matched rows unless clientFoundRows is set, so an
// update that rewrites the stored values is indistinguishable from a missing
// row there and is not checked.
func (t *storageTx) Update(ctx context.Context, info dialect.TableInfo, values, id dialect.Row) error {
	query, args, err := t.b.Update(info, values, id)
	if err != nil {
		return err
	}
	var res Result
	if err := t.tx.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	if t.b.dialect == dialect.MySQL {
		return nil
	}
	return affected(res, "update", info, id)
}

func (t *storageTx) Delete(ctx context.Context, info dialect.TableInfo, id dialect.Row) error {
	query, args, err := t.b.Delete(info, id)
	if err != nil {
		return err
	}
	var res Result
	if err := t.tx.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	return affected(res, "delete", info, id)
}

// affected fails with dialect.ErrNoRows if res reports no affected rows.
func affected(res Result, op string, info dialect.TableInfo, id dialect.Row) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dialect/sql: rows affected by %s %s: %w", op, info.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s %v", dialect.ErrNoRows, op, info.Name, id)
	}
	return nil
}

func (t *storageTx) LastInsertID(_ context.Context, info dialect.TableInfo) (int64, error) {
	id, ok := t.ids[info.Name]
	if !ok {
		return 0, fmt.Errorf("dialect/sql: no generated value for %s in this transaction", info.Name)
	}
	return id, nil
}

func (t *storageTx) Commit() error   { return t.tx.Commit() }
func (t *storageTx) Rollback() error { return t.tx.Rollback() }
