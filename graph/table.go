package graph

import (
	"fmt"

	"github.com/syssam/tether"
	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/field"
)

// side is a relation seen from one of its tables.
type side struct {
	rel    *Relation
	owning bool
}

// Table is the runtime form of a table definition. It owns the identity
// registry of its records: internal identifier -> record.
type Table struct {
	graph          *Graph
	def            *schema.Table
	fields         map[string]*field.Descriptor
	ids            []string
	generated      string
	owningRels     []*Relation
	referencedRels []*Relation
	aliases        map[string]side
	hooks          map[schema.Event][]schema.Hook
	registry       map[string]*Record
}

// Name returns the table name.
func (t *Table) Name() string { return t.def.Name }

// Label returns the human readable singular name.
func (t *Table) Label() string { return t.def.Label() }

// Definition returns the schema definition of the table.
func (t *Table) Definition() *schema.Table { return t.def }

// Graph returns the graph the table belongs to.
func (t *Table) Graph() *Graph { return t.graph }

// IsView reports whether the table is a read-only view.
func (t *Table) IsView() bool { return t.def.View }

// Fields returns the field descriptors in definition order.
func (t *Table) Fields() []*field.Descriptor {
	return append([]*field.Descriptor(nil), t.def.Fields...)
}

// Field returns the named field descriptor.
func (t *Table) Field(name string) (*field.Descriptor, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// IdentifierFields returns the names of the identifier fields.
func (t *Table) IdentifierFields() []string {
	return append([]string(nil), t.ids...)
}

// UsesGeneratedIdentifier reports whether storage assigns the identifier on insert.
func (t *Table) UsesGeneratedIdentifier() bool { return t.generated != "" }

// GeneratedField returns the name of the storage generated identifier field, if any.
func (t *Table) GeneratedField() string { return t.generated }

// OwningRelations returns the relations whose foreign key lives in this table.
func (t *Table) OwningRelations() []*Relation {
	return append([]*Relation(nil), t.owningRels...)
}

// ReferencedRelations returns the relations pointing at this table.
func (t *Table) ReferencedRelations() []*Relation {
	return append([]*Relation(nil), t.referencedRels...)
}

// Relations returns every relation the table takes part in, once each.
func (t *Table) Relations() []*Relation {
	rels := append([]*Relation(nil), t.owningRels...)
	for _, r := range t.referencedRels {
		if r.owning != t {
			rels = append(rels, r)
		}
	}
	return rels
}

// Relation returns the relation reachable from this table through alias,
// and whether this table is its owning side.
func (t *Table) Relation(alias string) (*Relation, bool, error) {
	s, ok := t.aliases[alias]
	if !ok {
		return nil, false, tether.NewNotFoundErrorWithID(fmt.Sprintf("%s relation", t.Name()), alias)
	}
	return s.rel, s.owning, nil
}

// Hooks returns the hooks registered for e.
func (t *Table) Hooks(e schema.Event) []schema.Hook {
	return t.hooks[e]
}

// IsKnown reports whether a record with the internal identifier id is registered.
func (t *Table) IsKnown(id string) bool {
	_, ok := t.registry[id]
	return ok
}

// Lookup returns the registered record with the internal identifier id.
func (t *Table) Lookup(id string) (*Record, bool) {
	r, ok := t.registry[id]
	return r, ok
}

// LookupKey returns the registered record whose identifier has the given values.
func (t *Table) LookupKey(key map[string]any) (*Record, bool) {
	values, err := t.convert(key)
	if err != nil {
		return nil, false
	}
	id, err := renderKey(t.ids, values)
	if err != nil {
		return nil, false
	}
	return t.Lookup(id)
}

// RegistryRemove removes r from the identity registry.
func (t *Table) RegistryRemove(r *Record) {
	if cur, ok := t.registry[r.InternalID()]; ok && cur == r {
		delete(t.registry, r.InternalID())
	}
}

// Len returns the number of registered records.
func (t *Table) Len() int { return len(t.registry) }

// New creates a new, never persisted record. Field defaults are applied
// first, then values are set in field definition order.
func (t *Table) New(values map[string]any) (*Record, error) {
	for name := range values {
		if _, ok := t.fields[name]; !ok {
			return nil, tether.NewNotFoundErrorWithID(t.Name()+" field", name)
		}
	}
	r := t.newRecord()
	t.graph.add(r)
	t.registry[r.InternalID()] = r
	for _, f := range t.def.Fields {
		v, ok := values[f.Name]
		if !ok {
			if !f.HasDefault() {
				continue
			}
			v = f.Default()
		}
		if err := r.Set(f.Name, v); err != nil {
			r.Detach()
			return nil, err
		}
	}
	return r, nil
}

// MustNew is like New but panics on error.
func (t *Table) MustNew(values map[string]any) *Record {
	r, err := t.New(values)
	if err != nil {
		panic(err)
	}
	return r
}

// Hydrate returns the record of an existing row. If a record with the same
// identifier is already registered it is returned unchanged; otherwise a new
// record is registered and its foreign keys are entered in the reference maps.
func (t *Table) Hydrate(values map[string]any) (*Record, error) {
	converted, err := t.convert(values)
	if err != nil {
		return nil, err
	}
	id, err := renderKey(t.ids, converted)
	if err != nil {
		return nil, fmt.Errorf("graph: hydrate %s: %w", t.Name(), err)
	}
	if r, ok := t.registry[id]; ok {
		return r, nil
	}
	r := t.newRecord()
	for _, f := range t.def.Fields {
		r.values[f.Name] = converted[f.Name]
	}
	r.exists = true
	r.id = id
	t.graph.add(r)
	t.registry[id] = r
	for _, rel := range t.owningRels {
		if v := r.values[rel.def.OwningField]; v != nil {
			rel.foreignKeyChanged(r, nil, v)
		}
	}
	return r, nil
}

// MustHydrate is like Hydrate but panics on error.
func (t *Table) MustHydrate(values map[string]any) *Record {
	r, err := t.Hydrate(values)
	if err != nil {
		panic(err)
	}
	return r
}

func (t *Table) newRecord() *Record {
	return &Record{
		table:    t,
		values:   make(map[string]any, len(t.def.Fields)),
		modified: make(map[string]any),
		errs:     tether.ErrorStack{},
	}
}

func (t *Table) convert(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		f, ok := t.fields[name]
		if !ok {
			return nil, tether.NewNotFoundErrorWithID(t.Name()+" field", name)
		}
		c, err := f.Convert(v)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

// move re-registers r under newID.
func (t *Table) move(r *Record, oldID, newID string) {
	if cur, ok := t.registry[oldID]; ok && cur == r {
		delete(t.registry, oldID)
	}
	t.registry[newID] = r
}
