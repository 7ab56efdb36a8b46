package graph

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/syssam/tether"
	"github.com/syssam/tether/graph/refmap"
	"github.com/syssam/tether/schema"
)

// Record is one logical row of a table.
type Record struct {
	table    *Table
	oid      refmap.OID
	values   map[string]any
	modified map[string]any // field name -> original value
	exists   bool
	id       string // rendered persisted identifier, empty until first persisted
	errs     tether.ErrorStack
}

var _ schema.Record = (*Record)(nil)

// Table returns the table of the record.
func (r *Record) Table() *Table { return r.table }

// TableName returns the name of the record table.
func (r *Record) TableName() string { return r.table.Name() }

// OID returns the object identity of the record.
func (r *Record) OID() refmap.OID { return r.oid }

// Get returns the value of the named field, nil if unset or unknown.
func (r *Record) Get(name string) any { return r.values[name] }

// Values returns a copy of the field values.
func (r *Record) Values() map[string]any { return maps.Clone(r.values) }

// Set sets the value of the named field. The value is converted to the
// canonical field type. Setting a foreign key field updates the reference
// map of its relation.
func (r *Record) Set(name string, v any) error {
	f, ok := r.table.fields[name]
	if !ok {
		return tether.NewNotFoundErrorWithID(r.TableName()+" field", name)
	}
	c, err := f.Convert(v)
	if err != nil {
		return err
	}
	old := r.values[name]
	if equalValues(old, c) {
		return nil
	}
	if r.exists && f.Immutable {
		return fmt.Errorf("graph: %s.%s is immutable", r.TableName(), name)
	}
	if orig, ok := r.modified[name]; ok {
		if equalValues(orig, c) {
			delete(r.modified, name)
		}
	} else {
		r.modified[name] = old
	}
	r.values[name] = c
	for _, rel := range r.table.owningRels {
		if rel.def.OwningField == name {
			rel.foreignKeyChanged(r, old, c)
		}
	}
	return nil
}

// MustSet is like Set but panics on error.
func (r *Record) MustSet(name string, v any) *Record {
	if err := r.Set(name, v); err != nil {
		panic(err)
	}
	return r
}

// IsModified reports whether any field changed since the record was created,
// hydrated or last written.
func (r *Record) IsModified() bool { return len(r.modified) > 0 }

// IsFieldModified reports whether the named field changed.
func (r *Record) IsFieldModified(name string) bool {
	_, ok := r.modified[name]
	return ok
}

// ModifiedValue returns the original value of a modified field.
func (r *Record) ModifiedValue(name string) (any, bool) {
	v, ok := r.modified[name]
	return v, ok
}

// ModifiedFields returns the names of the modified fields in definition order.
func (r *Record) ModifiedFields() []string {
	var names []string
	for _, f := range r.table.def.Fields {
		if _, ok := r.modified[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

// ClearModified drops the modification tracking.
func (r *Record) ClearModified() { clear(r.modified) }

// Exists reports whether the record is persisted.
func (r *Record) Exists() bool { return r.exists }

// InternalID returns the rendered persisted identifier, or a synthetic
// identifier if the record was never persisted.
func (r *Record) InternalID() string {
	if r.id != "" {
		return r.id
	}
	return syntheticID(r.oid)
}

// Identifier returns the current values of the identifier fields.
func (r *Record) Identifier() map[string]any {
	key := make(map[string]any, len(r.table.ids))
	for _, n := range r.table.ids {
		key[n] = r.values[n]
	}
	return key
}

// OriginalIdentifier returns the identifier values as they were before any
// unsaved change.
func (r *Record) OriginalIdentifier() map[string]any {
	key := r.Identifier()
	for n := range key {
		if v, ok := r.modified[n]; ok {
			key[n] = v
		}
	}
	return key
}

// IdentifierModified reports whether an identifier field changed.
func (r *Record) IdentifierModified() bool {
	for _, n := range r.table.ids {
		if r.IsFieldModified(n) {
			return true
		}
	}
	return false
}

// HasPendingReference reports whether the foreign key field name refers to a
// record that was not assigned its identifier yet.
func (r *Record) HasPendingReference(name string) bool {
	for _, rel := range r.table.owningRels {
		if rel.def.OwningField != name {
			continue
		}
		if _, ok := rel.refs.Pending(r.oid); ok {
			return true
		}
	}
	return false
}

// AssignIdentifier marks the record as persisted with the given identifier
// values. It clears the modification tracking, moves the registry entry and
// re-keys the reference maps from the previous internal identifier. The
// referenced sides of a newly persisted record count as loaded. Owning
// records linked to this record by object identity get the new key in their
// foreign key field; they are returned.
func (r *Record) AssignIdentifier(key map[string]any) ([]*Record, error) {
	t := r.table
	values := maps.Clone(r.values)
	for name, v := range key {
		f, ok := t.fields[name]
		if !ok || !f.Identifier {
			return nil, fmt.Errorf("graph: %s.%s is not an identifier field", t.Name(), name)
		}
		c, err := f.Convert(v)
		if err != nil {
			return nil, err
		}
		values[name] = c
	}
	newID, err := renderKey(t.ids, values)
	if err != nil {
		return nil, fmt.Errorf("graph: assign identifier to %s: %w", t.Name(), err)
	}
	oldID, inserted := r.InternalID(), !r.exists
	r.values = values
	clear(r.modified)
	r.exists = true
	r.id = newID
	t.move(r, oldID, newID)
	for _, rel := range t.Relations() {
		rel.RekeyOnIdentifierChange(r, newID, oldID)
	}
	if inserted {
		// Storage holds no other owning rows for a row it just got.
		for _, rel := range t.referencedRels {
			rel.refs.MarkLoaded(newID)
		}
	}
	var touched []*Record
	for _, rel := range t.referencedRels {
		for _, oid := range rel.refs.PendingFor(r.oid) {
			owner, ok := t.graph.Record(oid)
			if !ok {
				rel.refs.Unlink(oid)
				continue
			}
			if err := owner.Set(rel.def.OwningField, values[rel.def.ReferencedField]); err != nil {
				return touched, err
			}
			rel.resolve(owner, r)
			touched = append(touched, owner)
		}
	}
	return touched, nil
}

// ApplyUpdateDefaults sets the update defaults of the fields that were not
// changed explicitly.
func (r *Record) ApplyUpdateDefaults() error {
	for _, f := range r.table.def.Fields {
		if f.UpdateDefault == nil || r.IsFieldModified(f.Name) {
			continue
		}
		if err := r.Set(f.Name, f.UpdateDefault()); err != nil {
			return err
		}
	}
	return nil
}

// Fire runs the hooks registered for e on the record table.
func (r *Record) Fire(ctx context.Context, e schema.Event) error {
	for _, h := range r.table.hooks[e] {
		if err := h(ctx, r); err != nil {
			return fmt.Errorf("graph: %s hook on %s: %w", e, r.TableName(), err)
		}
	}
	return nil
}

// Errors returns the error stack filled by validation.
func (r *Record) Errors() tether.ErrorStack { return r.errs }

// Detach removes the record from the registry, the reference maps and the
// arena. It is called once the record row is deleted. The persisted
// identifier is kept.
func (r *Record) Detach() {
	t := r.table
	t.RegistryRemove(r)
	for _, rel := range t.Relations() {
		rel.ClearReferenceFor(r)
	}
	r.exists = false
	delete(t.graph.arena, r.oid)
}

// Reference returns the record referenced through alias, nil if none.
func (r *Record) Reference(alias string) (*Record, error) {
	rel, owning, err := r.table.Relation(alias)
	if err != nil {
		return nil, err
	}
	if owning {
		ref, _ := rel.CurrentReferenceFor(r)
		return ref, nil
	}
	if rel.IsOneToMany() {
		return nil, fmt.Errorf("graph: %s.%s is a collection", r.TableName(), alias)
	}
	if r.exists && !rel.refs.IsLoaded(r.InternalID()) {
		return nil, tether.NewNotLoadedError(alias)
	}
	if owners := rel.LoadedOwningRecordsFor(r); len(owners) > 0 {
		return owners[0], nil
	}
	return nil, nil
}

// SetReference points the record at ref through alias. A nil ref clears the
// reference. On the referenced side of a one-to-one relation ref becomes the
// owning record.
func (r *Record) SetReference(alias string, ref *Record) error {
	rel, owning, err := r.table.Relation(alias)
	if err != nil {
		return err
	}
	if owning {
		return rel.setOwning(r, ref)
	}
	if rel.IsOneToMany() {
		return fmt.Errorf("graph: %s.%s is a collection, use Add", r.TableName(), alias)
	}
	for _, prev := range rel.LoadedOwningRecordsFor(r) {
		if prev != ref {
			if err := rel.setOwning(prev, nil); err != nil {
				return err
			}
		}
	}
	if ref == nil {
		return nil
	}
	return rel.setOwning(ref, r)
}

// Collection returns the owning records loaded for the collection alias.
// A persisted record returns a NotLoadedError until the collection is loaded.
func (r *Record) Collection(alias string) ([]*Record, error) {
	rel, err := r.collection(alias)
	if err != nil {
		return nil, err
	}
	if r.exists && !rel.refs.IsLoaded(r.InternalID()) {
		return nil, tether.NewNotLoadedError(alias)
	}
	return rel.LoadedOwningRecordsFor(r), nil
}

// Add attaches owners to the collection alias.
func (r *Record) Add(alias string, owners ...*Record) error {
	rel, err := r.collection(alias)
	if err != nil {
		return err
	}
	for _, o := range owners {
		if err := rel.setOwning(o, r); err != nil {
			return err
		}
	}
	return nil
}

// Remove detaches owner from the collection alias by clearing its foreign key.
func (r *Record) Remove(alias string, owner *Record) error {
	rel, err := r.collection(alias)
	if err != nil {
		return err
	}
	if cur, _ := rel.CurrentReferenceFor(owner); cur != r {
		return nil
	}
	return rel.setOwning(owner, nil)
}

// Load sets the owning records of alias as read from storage and marks the
// side loaded.
func (r *Record) Load(alias string, owners ...*Record) error {
	rel, owning, err := r.table.Relation(alias)
	if err != nil {
		return err
	}
	if owning {
		return fmt.Errorf("graph: %s.%s is the owning side", r.TableName(), alias)
	}
	for _, o := range owners {
		if o.table != rel.owning {
			return fmt.Errorf("graph: cannot load %s into %s.%s", o.TableName(), r.TableName(), alias)
		}
	}
	rel.load(r, owners)
	return nil
}

func (r *Record) collection(alias string) (*Relation, error) {
	rel, owning, err := r.table.Relation(alias)
	if err != nil {
		return nil, err
	}
	if owning || !rel.IsOneToMany() {
		return nil, fmt.Errorf("graph: %s.%s is not a collection", r.TableName(), alias)
	}
	return rel, nil
}

func (r *Record) String() string {
	return fmt.Sprintf("%s%s", r.TableName(), printable(r.InternalID()))
}

func printable(id string) string {
	if IsSynthetic(id) {
		return "(new #" + id[1:] + ")"
	}
	return "(" + id + ")"
}

func equalValues(a, b any) bool {
	switch a := a.(type) {
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}
