package graph

import (
	"fmt"
	"slices"

	"github.com/syssam/tether/graph/refmap"
	"github.com/syssam/tether/schema/edge"
)

// Relation is the runtime form of a relation definition. It holds the
// reference map of the relation.
type Relation struct {
	graph      *Graph
	def        *edge.Descriptor
	owning     *Table
	referenced *Table
	refs       *refmap.Map[*Record]
}

// Name returns the relation name.
func (rel *Relation) Name() string { return rel.def.Name() }

// Definition returns the relation definition.
func (rel *Relation) Definition() *edge.Descriptor { return rel.def }

// OwningTable returns the table holding the foreign key.
func (rel *Relation) OwningTable() *Table { return rel.owning }

// ReferencedTable returns the table pointed at.
func (rel *Relation) ReferencedTable() *Table { return rel.referenced }

// OwningField returns the foreign key field name.
func (rel *Relation) OwningField() string { return rel.def.OwningField }

// ReferencedField returns the referenced key field name.
func (rel *Relation) ReferencedField() string { return rel.def.ReferencedField }

// OwningAlias returns the alias used from the owning side.
func (rel *Relation) OwningAlias() string { return rel.def.OwningAlias }

// ReferencedAlias returns the alias used from the referenced side.
func (rel *Relation) ReferencedAlias() string { return rel.def.ReferencedAlias }

// OnDelete returns the action applied to owning records when the referenced
// record is deleted.
func (rel *Relation) OnDelete() edge.Action { return rel.def.OnDelete }

// OnUpdate returns the action applied to owning records when the referenced
// key changes.
func (rel *Relation) OnUpdate() edge.Action { return rel.def.OnUpdate }

// IsOneToMany reports the relation cardinality.
func (rel *Relation) IsOneToMany() bool { return rel.def.IsOneToMany() }

// IsOwningSide reports whether t holds the foreign key.
func (rel *Relation) IsOwningSide(t *Table) bool { return rel.owning == t }

// IsReferencedSide reports whether t is pointed at.
func (rel *Relation) IsReferencedSide(t *Table) bool { return rel.referenced == t }

// Refs returns the reference map of the relation.
func (rel *Relation) Refs() *refmap.Map[*Record] { return rel.refs }

// KnownOwningRecordsFor returns a snapshot of the owning records known to
// reference ref: the ones keyed by identifier followed by the loaded ones
// still pointing at ref.
func (rel *Relation) KnownOwningRecordsFor(ref *Record) []*Record {
	var owners []*Record
	for _, id := range rel.refs.Owning(ref.InternalID()) {
		if o, ok := rel.owning.Lookup(id); ok {
			owners = append(owners, o)
		}
	}
	for _, o := range rel.LoadedOwningRecordsFor(ref) {
		if slices.Contains(owners, o) {
			continue
		}
		if cur, _ := rel.CurrentReferenceFor(o); cur == ref {
			owners = append(owners, o)
		}
	}
	return owners
}

// LoadedOwningRecordsFor returns the owning records held in memory for ref.
func (rel *Relation) LoadedOwningRecordsFor(ref *Record) []*Record {
	rs, _ := rel.refs.Collection(ref.oid)
	live := rs[:0]
	for _, r := range rs {
		if _, ok := rel.graph.arena[r.oid]; ok {
			live = append(live, r)
		}
	}
	return live
}

// HasLoadedReferenceFor reports whether the record referenced by owning is in memory.
func (rel *Relation) HasLoadedReferenceFor(owning *Record) bool {
	_, ok := rel.CurrentReferenceFor(owning)
	return ok
}

// CurrentReferenceFor returns the in-memory record owning currently references.
func (rel *Relation) CurrentReferenceFor(owning *Record) (*Record, bool) {
	if oid, ok := rel.refs.Pending(owning.oid); ok {
		r, ok := rel.graph.Record(oid)
		return r, ok
	}
	v := owning.values[rel.def.OwningField]
	if v == nil {
		return nil, false
	}
	return rel.referenced.Lookup(renderValue(v))
}

// ClearReferenceFor removes r from both sides of the reference map.
func (rel *Relation) ClearReferenceFor(r *Record) {
	id := r.InternalID()
	if rel.referenced == r.table {
		rel.refs.ForgetReferenced(id)
	}
	if rel.owning == r.table {
		rel.refs.ForgetOwning(id)
	}
	rel.refs.ForgetObject(r.oid, r)
}

// RekeyOnIdentifierChange moves the reference map entries of r from oldID to newID.
func (rel *Relation) RekeyOnIdentifierChange(r *Record, newID, oldID string) {
	if rel.referenced == r.table {
		rel.refs.RekeyReferenced(oldID, newID)
	}
	if rel.owning == r.table {
		rel.refs.RekeyOwning(oldID, newID)
	}
}

func (rel *Relation) String() string {
	return fmt.Sprintf("relation(%s)", rel.Name())
}

// foreignKeyChanged updates the reference map after the foreign key of
// owning changed from old to value.
func (rel *Relation) foreignKeyChanged(owning *Record, old, value any) {
	var prev *Record
	if oid, ok := rel.refs.Pending(owning.oid); ok {
		prev = rel.graph.arena[oid]
	} else if old != nil {
		prev, _ = rel.referenced.Lookup(renderValue(old))
	}
	rel.refs.Unlink(owning.oid)
	if value == nil {
		rel.refs.Move(owning.InternalID(), "")
		if prev != nil {
			rel.refs.RemoveFromCollection(prev.oid, owning)
		}
		return
	}
	refID := renderValue(value)
	next, _ := rel.referenced.Lookup(refID)
	if next == nil && prev != nil && equalValues(prev.values[rel.def.ReferencedField], value) {
		// The referenced key itself changed and is not written yet.
		next, refID = prev, prev.InternalID()
	}
	if prev != nil && prev != next {
		rel.refs.RemoveFromCollection(prev.oid, owning)
	}
	rel.refs.Move(owning.InternalID(), refID)
	if next != nil {
		rel.attach(next, owning)
	}
}

// setOwning points owning at ref, or clears its reference if ref is nil.
// A ref without a usable key yet is linked by object identity.
func (rel *Relation) setOwning(owning, ref *Record) error {
	if owning.table != rel.owning {
		return fmt.Errorf("graph: %s is not the owning side of %s", owning.TableName(), rel.Name())
	}
	if ref != nil && ref.table != rel.referenced {
		return fmt.Errorf("graph: %s cannot reference %s through %s", owning.TableName(), ref.TableName(), rel.Name())
	}
	var v any
	if ref != nil {
		v = ref.Get(rel.def.ReferencedField)
	}
	if err := owning.Set(rel.def.OwningField, v); err != nil {
		return err
	}
	if ref == nil {
		if prev, ok := rel.CurrentReferenceFor(owning); ok {
			rel.refs.RemoveFromCollection(prev.oid, owning)
		}
		rel.refs.Unlink(owning.oid)
		rel.refs.Move(owning.InternalID(), "")
		return nil
	}
	if prev, ok := rel.CurrentReferenceFor(owning); ok && prev != ref {
		rel.refs.RemoveFromCollection(prev.oid, owning)
	}
	if v != nil && ref.exists && renderValue(v) == ref.InternalID() {
		rel.resolve(owning, ref)
		return nil
	}
	rel.refs.Move(owning.InternalID(), "")
	rel.refs.Link(owning.oid, ref.oid)
	rel.attach(ref, owning)
	return nil
}

// resolve turns the object identity link of owning into an identifier keyed
// reference to ref.
func (rel *Relation) resolve(owning, ref *Record) {
	rel.refs.Unlink(owning.oid)
	rel.refs.Move(owning.InternalID(), ref.InternalID())
	rel.attach(ref, owning)
}

// attach adds owning to the in-memory owning records of ref.
func (rel *Relation) attach(ref, owning *Record) {
	if rel.IsOneToMany() {
		rel.refs.AppendCollection(ref.oid, owning)
		return
	}
	rel.refs.SetCollection(ref.oid, []*Record{owning})
}

// load replaces the owning records of ref with owners read from storage.
func (rel *Relation) load(ref *Record, owners []*Record) {
	id := ref.InternalID()
	if rel.IsOneToMany() {
		for _, o := range owners {
			rel.refs.Set(id, o.InternalID())
		}
	} else {
		switch len(owners) {
		case 0:
			rel.refs.SetNull(id)
		default:
			rel.refs.Set(id, owners[0].InternalID())
			owners = owners[:1]
		}
	}
	rel.refs.MarkLoaded(id)
	rel.refs.SetCollection(ref.oid, owners)
}
