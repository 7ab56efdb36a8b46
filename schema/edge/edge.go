package edge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"
)

// Action defines the behavior applied to owning records when the record
// they reference is deleted or its key is updated.
type Action string

// Available actions.
const (
	Cascade  Action = "CASCADE"
	SetNull  Action = "SET NULL"
	Restrict Action = "RESTRICT"
	NoAction Action = "NO ACTION"
)

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	switch a {
	case Cascade, SetNull, Restrict, NoAction:
		return true
	}
	return false
}

// Blocks reports whether the action forbids the operation while owning records exist.
// RESTRICT and NO ACTION behave identically.
func (a Action) Blocks() bool {
	return a == Restrict || a == NoAction
}

// ParseAction parses an action name. Matching is case-insensitive and
// accepts underscores in place of spaces ("set_null").
func ParseAction(s string) (Action, error) {
	if s == "" {
		return NoAction, nil
	}
	a := Action(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")))
	if !a.Valid() {
		return "", fmt.Errorf("edge: unknown action %q", s)
	}
	return a, nil
}

// Cardinality of a relation seen from the referenced side.
type Cardinality uint8

// Relation cardinalities.
const (
	OneToMany Cardinality = iota
	OneToOne
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	if c == OneToOne {
		return "one-to-one"
	}
	return "one-to-many"
}

// Descriptor is the immutable definition of one foreign-key relation.
//
// The owning side holds the foreign key field, the referenced side is
// pointed at. OwningAlias names the reference as seen from an owning record
// (post.author), ReferencedAlias names the owning record(s) as seen from a
// referenced record (user.posts).
type Descriptor struct {
	OwningTable     string
	OwningField     string
	ReferencedTable string
	ReferencedField string // Defaults to the referenced table identifier.
	Cardinality     Cardinality
	OwningAlias     string
	ReferencedAlias string
	OnDelete        Action
	OnUpdate        Action
	Comment         string
	Err             error
}

// Name returns the relation name, "owning_table.field->referenced_table".
func (d *Descriptor) Name() string {
	return d.OwningTable + "." + d.OwningField + "->" + d.ReferencedTable
}

// IsOneToMany reports whether many owning records may reference one record.
func (d *Descriptor) IsOneToMany() bool {
	return d.Cardinality == OneToMany
}

// Edge is implemented by relation builders.
type Edge interface {
	Descriptor() *Descriptor
}

// Builder is the fluent builder of a relation descriptor.
type Builder struct {
	desc *Descriptor
}

// Reference starts a relation whose foreign key is owningField of owningTable.
//
//	edge.Reference("posts", "user_id").To("users").OnDelete(edge.Cascade)
func Reference(owningTable, owningField string) *Builder {
	return &Builder{desc: &Descriptor{
		OwningTable: owningTable,
		OwningField: owningField,
		OnDelete:    NoAction,
		OnUpdate:    NoAction,
	}}
}

// To sets the referenced table.
func (b *Builder) To(table string) *Builder {
	b.desc.ReferencedTable = table
	return b
}

// Field sets the referenced field. It must be the single identifier field
// of the referenced table.
func (b *Builder) Field(name string) *Builder {
	b.desc.ReferencedField = name
	return b
}

// Unique makes the relation one-to-one.
func (b *Builder) Unique() *Builder {
	b.desc.Cardinality = OneToOne
	return b
}

// Alias sets the owning-side and referenced-side aliases. Empty values
// keep the defaults derived from the table names.
func (b *Builder) Alias(owning, referenced string) *Builder {
	b.desc.OwningAlias = owning
	b.desc.ReferencedAlias = referenced
	return b
}

// OnDelete sets the action applied to owning records when the referenced record is deleted.
func (b *Builder) OnDelete(a Action) *Builder {
	if !a.Valid() {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("edge: %s: invalid on-delete action %q", b.desc.Name(), a))
	}
	b.desc.OnDelete = a
	return b
}

// OnUpdate sets the action applied to owning records when the referenced key changes.
func (b *Builder) OnUpdate(a Action) *Builder {
	if !a.Valid() {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("edge: %s: invalid on-update action %q", b.desc.Name(), a))
	}
	b.desc.OnUpdate = a
	return b
}

// Comment sets the relation comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the Edge interface. Missing aliases are derived
// from the table names: a "posts.user_id->users" relation gets "user" on the
// owning side and "posts" on the referenced side ("post" when unique).
func (b *Builder) Descriptor() *Descriptor {
	d := b.desc
	if d.OwningAlias == "" && d.ReferencedTable != "" {
		d.OwningAlias = inflect.Singularize(d.ReferencedTable)
	}
	if d.ReferencedAlias == "" && d.OwningTable != "" {
		alias := inflect.Singularize(d.OwningTable)
		if d.Cardinality == OneToMany {
			alias = inflect.Pluralize(alias)
		}
		d.ReferencedAlias = alias
	}
	return d
}
