package sql

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/tether/dialect"
)

// Builder renders the statements of the SQL storage for one dialect.
type Builder struct {
	dialect string
}

// Dialect returns a Builder for the given dialect.
func Dialect(name string) Builder {
	return Builder{dialect: name}
}

// Quote quotes an identifier. MySQL uses backticks, the other dialects use
// standard double quotes.
func (b Builder) Quote(ident string) string {
	if b.dialect == dialect.MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(ident)
}

func (b Builder) arg(i int) string {
	if b.dialect == dialect.Postgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// Returning reports whether generated values are read with a RETURNING clause
// instead of the driver's last insert id.
func (b Builder) Returning() bool {
	return b.dialect == dialect.Postgres
}

// Insert returns the INSERT statement of values into t.
func (b Builder) Insert(t dialect.TableInfo, values dialect.Row) (string, []any, error) {
	cols, err := columns(t, values)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.Quote(t.Name))
	args := make([]any, 0, len(cols))
	switch {
	case len(cols) > 0:
		sb.WriteString(" (")
		for i, c := range cols {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.Quote(c))
		}
		sb.WriteString(") VALUES (")
		for i, c := range cols {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.arg(i + 1))
			args = append(args, values[c])
		}
		sb.WriteString(")")
	case b.dialect == dialect.MySQL:
		sb.WriteString(" () VALUES ()")
	default:
		sb.WriteString(" DEFAULT VALUES")
	}
	if t.Generated != "" && b.Returning() {
		sb.WriteString(" RETURNING ")
		sb.WriteString(b.Quote(t.Generated))
	}
	return sb.String(), args, nil
}

// Update returns the UPDATE statement setting values on the row of t
// identified by id.
func (b Builder) Update(t dialect.TableInfo, values, id dialect.Row) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("dialect/sql: update %s: no values", t.Name)
	}
	cols, err := columns(t, values)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.Quote(t.Name))
	sb.WriteString(" SET ")
	args := make([]any, 0, len(cols)+len(id))
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, values[c])
		sb.WriteString(b.Quote(c))
		sb.WriteString(" = ")
		sb.WriteString(b.arg(len(args)))
	}
	args, err = b.where(&sb, t, id, args)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

// Delete returns the DELETE statement of the row of t identified by id.
func (b Builder) Delete(t dialect.TableInfo, id dialect.Row) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.Quote(t.Name))
	args, err := b.where(&sb, t, id, nil)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

func (b Builder) where(sb *strings.Builder, t dialect.TableInfo, id dialect.Row, args []any) ([]any, error) {
	if len(t.Identifier) == 0 {
		return nil, fmt.Errorf("dialect/sql: table %s has no identifier", t.Name)
	}
	sb.WriteString(" WHERE ")
	for i, c := range t.Identifier {
		v, ok := id[c]
		if !ok || v == nil {
			return nil, fmt.Errorf("dialect/sql: identifier %s.%s is not set", t.Name, c)
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}
		args = append(args, v)
		sb.WriteString(b.Quote(c))
		sb.WriteString(" = ")
		sb.WriteString(b.arg(len(args)))
	}
	return args, nil
}

// columns returns the columns of values in table definition order.
func columns(t dialect.TableInfo, values dialect.Row) ([]string, error) {
	cols := make([]string, 0, len(values))
	for _, c := range t.Columns {
		if _, ok := values[c]; ok {
			cols = append(cols, c)
		}
	}
	if len(cols) == len(values) {
		return cols, nil
	}
	var unknown []string
	for c := range values {
		if !slices.Contains(t.Columns, c) {
			unknown = append(unknown, c)
		}
	}
	slices.Sort(unknown)
	errs := make([]error, len(unknown))
	for i, c := range unknown {
		errs[i] = fmt.Errorf("dialect/sql: unknown column %s.%s", t.Name, c)
	}
	return nil, errors.Join(errs...)
}
