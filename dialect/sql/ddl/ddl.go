// Package ddl renders and applies the CREATE TABLE statements of a schema.
//
// Tables are converted to Atlas tables typed for the target dialect and
// planned with the Atlas dialect planners, so the statements carry the
// primary keys, generated identifiers and foreign-key actions of the schema:
//
//	stmts, err := ddl.Statements(ctx, dialect.SQLite, s)
//	// CREATE TABLE `users` (`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, ...)
//
//	err = ddl.Create(ctx, drv, s)
//
// Views are skipped. Tables are ordered so referenced tables come before
// the tables referencing them; a foreign-key cycle across tables is an
// error.
package ddl

import (
	"context"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
)

// Tables converts the tables of s into Atlas tables for the named dialect,
// referenced tables first.
func Tables(name string, s *schema.Schema) ([]*atlas.Table, error) {
	types, ok := typeMaps[name]
	if !ok {
		return nil, fmt.Errorf("ddl: dialect %s is not a SQL dialect", name)
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	order, err := sortTables(s)
	if err != nil {
		return nil, err
	}
	tables := make(map[string]*atlas.Table, len(order))
	out := make([]*atlas.Table, 0, len(order))
	for _, t := range order {
		at := atlas.NewTable(t.Name)
		if t.Comment != "" {
			at.SetComment(t.Comment)
		}
		var pk []*atlas.Column
		for _, f := range t.Fields {
			c, err := types.column(f)
			if err != nil {
				return nil, fmt.Errorf("ddl: %s.%s: %w", t.Name, f.Name, err)
			}
			at.AddColumns(c)
			if f.Identifier {
				pk = append(pk, c)
			}
		}
		if len(pk) > 0 {
			at.SetPrimaryKey(atlas.NewPrimaryKey(pk...))
		}
		tables[t.Name] = at
		out = append(out, at)
	}
	for _, r := range s.Relations {
		owning, referenced := tables[r.OwningTable], tables[r.ReferencedTable]
		if owning == nil || referenced == nil {
			continue
		}
		refField := r.ReferencedField
		if refField == "" {
			refField = s.Table(r.ReferencedTable).Identifier()[0]
		}
		c, _ := owning.Column(r.OwningField)
		rc, _ := referenced.Column(refField)
		owning.AddForeignKeys(atlas.NewForeignKey(fmt.Sprintf("%s_%s_fkey", r.OwningTable, r.OwningField)).
			AddColumns(c).
			SetRefTable(referenced).
			AddRefColumns(rc).
			SetOnDelete(option(r.OnDelete)).
			SetOnUpdate(option(r.OnUpdate)))
	}
	return out, nil
}

// Statements returns the CREATE TABLE statements of s for the named dialect.
func Statements(ctx context.Context, name string, s *schema.Schema) ([]string, error) {
	tables, err := Tables(name, s)
	if err != nil {
		return nil, err
	}
	changes := make([]atlas.Change, len(tables))
	for i, t := range tables {
		changes[i] = &atlas.AddTable{T: t}
	}
	plan, err := planners[name].PlanChanges(ctx, "create", changes, func(o *migrate.PlanOptions) {
		o.SchemaQualifier = new(string)
	})
	if err != nil {
		return nil, fmt.Errorf("ddl: plan: %w", err)
	}
	stmts := make([]string, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		stmts = append(stmts, c.Cmd)
	}
	return stmts, nil
}

// Create creates the tables of s on drv in one transaction.
func Create(ctx context.Context, drv dialect.Driver, s *schema.Schema) (err error) {
	stmts, err := Statements(ctx, drv.Dialect(), s)
	if err != nil {
		return err
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, stmt := range stmts {
		if err := tx.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("ddl: %s: %w", firstLine(stmt), err)
		}
	}
	return tx.Commit()
}

func option(a edge.Action) atlas.ReferenceOption {
	if a == "" {
		return atlas.NoAction
	}
	return atlas.ReferenceOption(a)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// sortTables returns the tables of s, skipping views, with every referenced
// table before the tables owning a reference to it.
func sortTables(s *schema.Schema) ([]*schema.Table, error) {
	deps := make(map[string][]string)
	for _, r := range s.Relations {
		if r.OwningTable != r.ReferencedTable {
			deps[r.OwningTable] = append(deps[r.OwningTable], r.ReferencedTable)
		}
	}
	const (
		visiting = iota + 1
		done
	)
	var (
		order []*schema.Table
		state = make(map[string]int)
		visit func(t *schema.Table) error
	)
	visit = func(t *schema.Table) error {
		switch state[t.Name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("ddl: foreign keys form a cycle through table %s", t.Name)
		}
		state[t.Name] = visiting
		for _, dep := range deps[t.Name] {
			if rt := s.Table(dep); rt != nil && !rt.View {
				if err := visit(rt); err != nil {
					return err
				}
			}
		}
		state[t.Name] = done
		order = append(order, t)
		return nil
	}
	for _, t := range s.Tables {
		if t.View {
			continue
		}
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}

var planners = map[string]migrate.PlanApplier{
	dialect.SQLite:   sqlite.DefaultPlan,
	dialect.Postgres: postgres.DefaultPlan,
	dialect.MySQL:    mysql.DefaultPlan,
}

// typeMap holds the column types of one dialect.
type typeMap struct {
	boolean, integer, float, text, varchar, time, uuid, bytes string
	autoinc                                                   func() atlas.Attr
}

var typeMaps = map[string]typeMap{
	dialect.SQLite: {
		boolean: "bool", integer: "integer", float: "real", text: "text", varchar: "varchar",
		time: "datetime", uuid: "text", bytes: "blob",
		autoinc: func() atlas.Attr { return &sqlite.AutoIncrement{} },
	},
	dialect.Postgres: {
		boolean: "boolean", integer: "bigint", float: "double precision", text: "text", varchar: "character varying",
		time: "timestamp with time zone", uuid: "uuid", bytes: "bytea",
		autoinc: func() atlas.Attr { return &postgres.Identity{Generation: "BY DEFAULT"} },
	},
	dialect.MySQL: {
		boolean: "bool", integer: "bigint", float: "double", text: "varchar", varchar: "varchar",
		time: "timestamp", uuid: "char", bytes: "blob",
		autoinc: func() atlas.Attr { return &mysql.AutoIncrement{} },
	},
}

func (m typeMap) column(f *field.Descriptor) (*atlas.Column, error) {
	var c *atlas.Column
	switch f.Type {
	case field.TypeBool:
		c = atlas.NewBoolColumn(f.Name, m.boolean)
	case field.TypeInt:
		c = atlas.NewIntColumn(f.Name, m.integer)
		if f.Generated {
			c.AddAttrs(m.autoinc())
		}
	case field.TypeFloat:
		c = atlas.NewFloatColumn(f.Name, m.float)
	case field.TypeString, field.TypeEnum:
		switch {
		case f.Size > 0:
			c = atlas.NewStringColumn(f.Name, m.varchar, atlas.StringSize(f.Size))
		case m.text == "varchar":
			// MySQL keys and indexes need a bounded length.
			c = atlas.NewStringColumn(f.Name, m.text, atlas.StringSize(255))
		default:
			c = atlas.NewStringColumn(f.Name, m.text)
		}
	case field.TypeTime:
		c = atlas.NewTimeColumn(f.Name, m.time)
	case field.TypeUUID:
		if m.uuid == "char" {
			c = atlas.NewStringColumn(f.Name, m.uuid, atlas.StringSize(36))
		} else {
			c = atlas.NewColumn(f.Name).SetType(&atlas.UUIDType{T: m.uuid})
		}
	case field.TypeBytes:
		c = atlas.NewBinaryColumn(f.Name, m.bytes)
	default:
		return nil, fmt.Errorf("unsupported type %s", f.Type)
	}
	c.SetNull(f.Optional && !f.Identifier)
	if f.Comment != "" {
		c.SetComment(f.Comment)
	}
	return c, nil
}
