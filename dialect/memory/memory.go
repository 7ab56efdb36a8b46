// Package memory provides a transactional in-memory dialect.Storage.
//
// Transactions work on a copy of the committed tables and are applied
// atomically on commit. A transaction fails to commit if another one
// committed after it began. Every statement is journaled, which makes the
// storage suitable for asserting what a unit of work wrote.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/tether/dialect"
)

// Errors returned by statements.
var (
	ErrNoRows    = dialect.ErrNoRows
	ErrDuplicate = errors.New("memory: duplicate identifier")
	ErrConflict  = errors.New("memory: concurrent commit")
	ErrTxDone    = errors.New("memory: transaction has already been committed or rolled back")
)

// Op is a statement kind.
type Op string

// Statement kinds.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Statement is a journaled statement.
type Statement struct {
	Tx     int // Sequence number of the transaction, starting at 1.
	Op     Op
	Table  string
	Values dialect.Row
	ID     dialect.Row
}

func (s Statement) String() string {
	switch s.Op {
	case OpInsert:
		return fmt.Sprintf("INSERT %s %v", s.Table, s.Values)
	case OpUpdate:
		return fmt.Sprintf("UPDATE %s %v WHERE %v", s.Table, s.Values, s.ID)
	default:
		return fmt.Sprintf("DELETE %s WHERE %v", s.Table, s.ID)
	}
}

type table struct {
	rows map[string]dialect.Row
	seq  int64
}

func (t *table) clone() *table {
	c := &table{rows: make(map[string]dialect.Row, len(t.rows)), seq: t.seq}
	for k, r := range t.rows {
		c.rows[k] = maps.Clone(r)
	}
	return c
}

type fault struct {
	op    Op
	table string
	err   error
}

// Storage is an in-memory dialect.Storage. It is safe for concurrent use.
type Storage struct {
	mu        sync.Mutex
	tables    map[string]*table
	version   int
	txs       int
	issued    []Statement
	committed []Statement
	commits   int
	rollbacks int
	faults    []fault
	commitErr error
	rbErr     error
}

var _ dialect.Storage = (*Storage)(nil)

// New returns an empty storage.
func New() *Storage {
	return &Storage{tables: make(map[string]*table)}
}

// Begin starts a transaction.
func (s *Storage) Begin(ctx context.Context) (dialect.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++
	tables := make(map[string]*table, len(s.tables))
	for n, t := range s.tables {
		tables[n] = t.clone()
	}
	return &tx{s: s, seq: s.txs, version: s.version, tables: tables, ids: make(map[string]int64)}, nil
}

// FailOn makes the next statement op on table fail with err. An empty
// table matches every table.
func (s *Storage) FailOn(op Op, table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{op: op, table: table, err: err})
}

// FailCommit makes the next commit fail with err. The transaction is
// discarded.
func (s *Storage) FailCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// FailRollback makes the next rollback return err.
func (s *Storage) FailRollback(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rbErr = err
}

// Issued returns every statement issued, including the ones of transactions
// rolled back.
func (s *Storage) Issued() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.issued)
}

// Committed returns the statements of committed transactions.
func (s *Storage) Committed() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.committed)
}

// Transactions returns the number of transactions begun, committed and
// rolled back.
func (s *Storage) Transactions() (begun, committed, rolledBack int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs, s.commits, s.rollbacks
}

// Rows returns copies of the committed rows of the named table ordered by
// rendered identifier.
func (s *Storage) Rows(name string) []dialect.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	rows := make([]dialect.Row, 0, len(t.rows))
	for _, k := range slices.Sorted(maps.Keys(t.rows)) {
		rows = append(rows, maps.Clone(t.rows[k]))
	}
	return rows
}

// Row returns a copy of the committed row of the named table whose
// identifier columns hold the values of id.
func (s *Storage) Row(name string, id dialect.Row) (dialect.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, false
	}
	r, ok := t.rows[renderKey(id.Columns(), id)]
	return maps.Clone(r), ok
}

// Reset drops all tables and the journal.
func (s *Storage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]*table)
	s.version, s.txs, s.commits, s.rollbacks = 0, 0, 0, 0
	s.issued, s.committed, s.faults = nil, nil, nil
	s.commitErr, s.rbErr = nil, nil
}

// fault returns the error of the first fault matching op on table, and
// removes it.
func (s *Storage) fault(op Op, table string) error {
	for i, f := range s.faults {
		if f.op == op && (f.table == "" || f.table == table) {
			s.faults = slices.Delete(s.faults, i, i+1)
			return f.err
		}
	}
	return nil
}

type tx struct {
	s       *Storage
	seq     int
	version int
	tables  map[string]*table
	stmts   []Statement
	ids     map[string]int64
	done    bool
}

func (t *tx) table(info dialect.TableInfo) *table {
	tb, ok := t.tables[info.Name]
	if !ok {
		tb = &table{rows: make(map[string]dialect.Row)}
		t.tables[info.Name] = tb
	}
	return tb
}

// issue journals the statement and returns the injected fault, if any.
func (t *tx) issue(ctx context.Context, st Statement) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	st.Tx = t.seq
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.issued = append(t.s.issued, st)
	if err := t.s.fault(st.Op, st.Table); err != nil {
		return err
	}
	t.stmts = append(t.stmts, st)
	return nil
}

func (t *tx) Insert(ctx context.Context, info dialect.TableInfo, values dialect.Row) (int64, error) {
	if err := checkColumns(info, values); err != nil {
		return 0, err
	}
	if err := t.issue(ctx, Statement{Op: OpInsert, Table: info.Name, Values: maps.Clone(values)}); err != nil {
		return 0, err
	}
	tb := t.table(info)
	row := make(dialect.Row, len(info.Columns))
	for _, c := range info.Columns {
		row[c] = values[c]
	}
	if g := info.Generated; g != "" {
		if v, ok := toInt64(row[g]); ok {
			tb.seq = max(tb.seq, v)
		} else {
			tb.seq++
			row[g] = tb.seq
		}
		t.ids[info.Name] = tb.seq
	}
	key, err := rowKey(info, row)
	if err != nil {
		return 0, err
	}
	if _, ok := tb.rows[key]; ok {
		return 0, fmt.Errorf("%w: %s %s", ErrDuplicate, info.Name, printableKey(key))
	}
	tb.rows[key] = row
	return 1, nil
}

func (t *tx) Update(ctx context.Context, info dialect.TableInfo, values, id dialect.Row) error {
	if len(values) == 0 {
		return fmt.Errorf("memory: update %s: no values", info.Name)
	}
	if err := checkColumns(info, values); err != nil {
		return err
	}
	if err := t.issue(ctx, Statement{Op: OpUpdate, Table: info.Name, Values: maps.Clone(values), ID: maps.Clone(id)}); err != nil {
		return err
	}
	tb := t.table(info)
	key, err := rowKey(info, id)
	if err != nil {
		return err
	}
	row, ok := tb.rows[key]
	if !ok {
		return fmt.Errorf("%w: update %s %s", ErrNoRows, info.Name, printableKey(key))
	}
	updated := maps.Clone(row)
	maps.Copy(updated, values)
	newKey, err := rowKey(info, updated)
	if err != nil {
		return err
	}
	if newKey != key {
		if _, ok := tb.rows[newKey]; ok {
			return fmt.Errorf("%w: %s %s", ErrDuplicate, info.Name, printableKey(newKey))
		}
		delete(tb.rows, key)
	}
	tb.rows[newKey] = updated
	return nil
}

func (t *tx) Delete(ctx context.Context, info dialect.TableInfo, id dialect.Row) error {
	if err := t.issue(ctx, Statement{Op: OpDelete, Table: info.Name, ID: maps.Clone(id)}); err != nil {
		return err
	}
	tb := t.table(info)
	key, err := rowKey(info, id)
	if err != nil {
		return err
	}
	if _, ok := tb.rows[key]; !ok {
		return fmt.Errorf("%w: delete %s %s", ErrNoRows, info.Name, printableKey(key))
	}
	delete(tb.rows, key)
	return nil
}

func (t *tx) LastInsertID(_ context.Context, info dialect.TableInfo) (int64, error) {
	id, ok := t.ids[info.Name]
	if !ok {
		return 0, fmt.Errorf("memory: no generated value for %s in this transaction", info.Name)
	}
	return id, nil
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitErr; err != nil {
		s.commitErr = nil
		return err
	}
	if s.version != t.version {
		return ErrConflict
	}
	s.version++
	s.commits++
	s.tables = t.tables
	s.committed = append(s.committed, t.stmts...)
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	if err := s.rbErr; err != nil {
		s.rbErr = nil
		return err
	}
	return nil
}

func checkColumns(info dialect.TableInfo, values dialect.Row) error {
	for _, c := range values.Columns() {
		if !slices.Contains(info.Columns, c) {
			return fmt.Errorf("memory: unknown column %s.%s", info.Name, c)
		}
	}
	return nil
}

func rowKey(info dialect.TableInfo, row dialect.Row) (string, error) {
	if len(info.Identifier) == 0 {
		return "", fmt.Errorf("memory: table %s has no identifier", info.Name)
	}
	for _, c := range info.Identifier {
		if row[c] == nil {
			return "", fmt.Errorf("memory: identifier %s.%s is not set", info.Name, c)
		}
	}
	return renderKey(slices.Sorted(slices.Values(info.Identifier)), row), nil
}

func renderKey(cols []string, row dialect.Row) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + "=" + fmt.Sprint(row[c])
	}
	return strings.Join(parts, "\x1f")
}

func printableKey(key string) string {
	return "(" + strings.ReplaceAll(key, "\x1f", ", ") + ")"
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	}
	return 0, false
}
