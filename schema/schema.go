package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/tether"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
)

// Event identifies a record lifecycle hook point.
type Event uint8

// Lifecycle events, in the order they fire during a commit.
const (
	PreSave Event = iota
	PreInsert
	PostInsert
	PreUpdate
	PostUpdate
	PostSave
	PreDelete
	PostDelete
)

var eventNames = [...]string{
	PreSave:    "preSave",
	PreInsert:  "preInsert",
	PostInsert: "postInsert",
	PreUpdate:  "preUpdate",
	PostUpdate: "postUpdate",
	PostSave:   "postSave",
	PreDelete:  "preDelete",
	PostDelete: "postDelete",
}

// String returns the event name.
func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", e)
}

// Record is the view of a record handed to hooks.
type Record interface {
	TableName() string
	Get(name string) any
	Set(name string, v any) error
	Exists() bool
	IsModified() bool
	IsFieldModified(name string) bool
}

// Hook is called on a lifecycle event. A non-nil error aborts the commit.
type Hook func(context.Context, Record) error

// EventHook binds a hook to an event.
type EventHook struct {
	Event Event
	Hook  Hook
}

// On returns an EventHook.
func On(e Event, h Hook) EventHook {
	return EventHook{Event: e, Hook: h}
}

// Mixin is a reusable set of fields and hooks.
type Mixin interface {
	Fields() []field.Field
	Hooks() []EventHook
}

// Table is the definition of one table or view.
type Table struct {
	Name    string
	Fields  []*field.Descriptor
	View    bool
	Hooks   []EventHook
	Comment string
}

// Field returns the named field descriptor, or nil.
func (t *Table) Field(name string) *field.Descriptor {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Identifier returns the names of the identifier fields in definition order.
func (t *Table) Identifier() []string {
	var names []string
	for _, f := range t.Fields {
		if f.Identifier {
			names = append(names, f.Name)
		}
	}
	return names
}

// Label returns a human readable singular name, "blog_posts" -> "Blog Post".
func (t *Table) Label() string {
	name := strings.ReplaceAll(inflect.Singularize(t.Name), "_", " ")
	return cases.Title(language.English).String(name)
}

// TableBuilder is the fluent builder of a table definition.
type TableBuilder struct {
	table *Table
}

// NewTable starts a table definition.
func NewTable(name string, fields ...field.Field) *TableBuilder {
	b := &TableBuilder{table: &Table{Name: name}}
	return b.Fields(fields...)
}

// NewView starts a read-only view definition. Records of views are never
// scheduled for save or delete.
func NewView(name string, fields ...field.Field) *TableBuilder {
	b := NewTable(name, fields...)
	b.table.View = true
	return b
}

// Fields appends fields.
func (b *TableBuilder) Fields(fields ...field.Field) *TableBuilder {
	for _, f := range fields {
		b.table.Fields = append(b.table.Fields, f.Descriptor())
	}
	return b
}

// Mixin appends the fields and hooks of the given mixins.
func (b *TableBuilder) Mixin(mixins ...Mixin) *TableBuilder {
	for _, m := range mixins {
		b.Fields(m.Fields()...)
		b.table.Hooks = append(b.table.Hooks, m.Hooks()...)
	}
	return b
}

// Hook registers hooks for an event.
func (b *TableBuilder) Hook(e Event, hooks ...Hook) *TableBuilder {
	for _, h := range hooks {
		b.table.Hooks = append(b.table.Hooks, On(e, h))
	}
	return b
}

// Comment sets the table comment.
func (b *TableBuilder) Comment(c string) *TableBuilder {
	b.table.Comment = c
	return b
}

// Table returns the built definition.
func (b *TableBuilder) Table() *Table {
	return b.table
}

// Schema is a set of tables and the relations between them.
type Schema struct {
	Tables    []*Table
	Relations []*edge.Descriptor
}

// New returns a schema holding the given tables.
func New(tables ...*TableBuilder) *Schema {
	s := &Schema{}
	for _, t := range tables {
		s.Tables = append(s.Tables, t.Table())
	}
	return s
}

// Relate appends relations.
func (s *Schema) Relate(edges ...edge.Edge) *Schema {
	for _, e := range edges {
		s.Relations = append(s.Relations, e.Descriptor())
	}
	return s
}

// Table returns the named table definition, or nil.
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Check validates the schema and resolves default referenced fields.
// All problems are reported at once as an aggregate of SchemaErrors.
func (s *Schema) Check() error {
	var errs []error
	seen := make(map[string]bool, len(s.Tables))
	aliases := make(map[string]map[string]bool)
	for _, t := range s.Tables {
		if t.Name == "" {
			errs = append(errs, tether.NewSchemaError("?", "", "missing table name"))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, tether.NewSchemaError(t.Name, "", "duplicate table"))
			continue
		}
		seen[t.Name] = true
		aliases[t.Name] = make(map[string]bool)
		errs = append(errs, checkTable(t)...)
	}
	for _, r := range s.Relations {
		errs = append(errs, s.checkRelation(r, aliases)...)
	}
	return tether.NewAggregateError(errs...)
}

func checkTable(t *Table) []error {
	var (
		errs      []error
		generated int
		names     = make(map[string]bool, len(t.Fields))
	)
	for _, f := range t.Fields {
		if err := f.Check(); err != nil {
			errs = append(errs, tether.NewSchemaError(t.Name, f.Name, "%v", err))
		}
		if names[f.Name] {
			errs = append(errs, tether.NewSchemaError(t.Name, f.Name, "duplicate field"))
		}
		names[f.Name] = true
		if f.Generated {
			generated++
			if !f.Identifier {
				errs = append(errs, tether.NewSchemaError(t.Name, f.Name, "generated field must be an identifier"))
			}
		}
	}
	ids := t.Identifier()
	switch {
	case len(ids) == 0 && !t.View:
		errs = append(errs, tether.NewSchemaError(t.Name, "", "missing identifier field"))
	case generated > 1 || (generated == 1 && len(ids) > 1):
		errs = append(errs, tether.NewSchemaError(t.Name, "", "a generated identifier must be the only identifier field"))
	}
	return errs
}

func (s *Schema) checkRelation(r *edge.Descriptor, aliases map[string]map[string]bool) []error {
	var errs []error
	if r.Err != nil {
		errs = append(errs, tether.NewSchemaError(r.OwningTable, r.OwningField, "%v", r.Err))
	}
	owning, referenced := s.Table(r.OwningTable), s.Table(r.ReferencedTable)
	if owning == nil {
		return append(errs, tether.NewSchemaError(r.OwningTable, r.OwningField, "relation %s: unknown owning table", r.Name()))
	}
	if referenced == nil {
		return append(errs, tether.NewSchemaError(r.OwningTable, r.OwningField, "relation %s: unknown referenced table %q", r.Name(), r.ReferencedTable))
	}
	fk := owning.Field(r.OwningField)
	if fk == nil {
		errs = append(errs, tether.NewSchemaError(r.OwningTable, r.OwningField, "relation %s: unknown owning field", r.Name()))
	}
	ids := referenced.Identifier()
	if len(ids) != 1 {
		return append(errs, tether.NewSchemaError(r.ReferencedTable, "", "relation %s: referenced table needs exactly one identifier field", r.Name()))
	}
	if r.ReferencedField == "" {
		r.ReferencedField = ids[0]
	}
	if r.ReferencedField != ids[0] {
		errs = append(errs, tether.NewSchemaError(r.ReferencedTable, r.ReferencedField, "relation %s: referenced field must be the identifier %q", r.Name(), ids[0]))
	}
	if fk != nil && !fk.Optional && (r.OnDelete == edge.SetNull || r.OnUpdate == edge.SetNull) {
		errs = append(errs, tether.NewSchemaError(r.OwningTable, r.OwningField, "relation %s: SET NULL requires an optional field", r.Name()))
	}
	for _, a := range []struct{ table, alias string }{{r.OwningTable, r.OwningAlias}, {r.ReferencedTable, r.ReferencedAlias}} {
		switch {
		case a.alias == "":
			errs = append(errs, tether.NewSchemaError(a.table, "", "relation %s: missing alias", r.Name()))
		case aliases[a.table][a.alias]:
			errs = append(errs, tether.NewSchemaError(a.table, a.alias, "relation %s: duplicate alias", r.Name()))
		default:
			aliases[a.table][a.alias] = true
		}
	}
	return errs
}
