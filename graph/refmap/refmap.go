// Package refmap implements the per-relation reference map: a bidirectional
// cache of which owning records currently point at which referenced records.
//
// Records are addressed by their internal identifier, which is either the
// rendered persisted key or a synthetic identifier for records that were
// never written. Links that cannot be expressed by identifier yet are kept
// by object identity (OID) until the referenced record is assigned a key.
package refmap

import (
	"maps"
	"slices"
	"sort"
)

// OID is the object identity token of an in-memory record.
type OID uint64

// Kind selects the payload of a Map.
type Kind uint8

// Map kinds.
const (
	ToOne Kind = iota
	ToMany
)

// String returns the kind name.
func (k Kind) String() string {
	if k == ToMany {
		return "to-many"
	}
	return "to-one"
}

// State describes what a Map knows about the owning side of a referenced record.
type State uint8

// Reference states.
const (
	Unknown State = iota // never loaded
	Null                 // known to have no owning record
	Set                  // at least one owning record is known
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Null:
		return "null"
	case Set:
		return "set"
	}
	return "unknown"
}

type slot struct {
	owning string
	null   bool
}

// toOne maps a referenced identifier to a single owning identifier or an
// explicit null. A missing entry means not loaded.
type toOne struct {
	refs map[string]slot
}

// toMany maps a referenced identifier to the ordered owning identifiers.
type toMany struct {
	refs   map[string][]string
	loaded map[string]bool
}

// Map is the reference map of one relation. Exactly one of one and many is
// set, selected by kind. R is the record type held by the collection cache.
type Map[R comparable] struct {
	kind Kind
	one  *toOne
	many *toMany

	back    map[string]string // owning id -> referenced id
	pending map[OID]OID       // owning oid -> referenced oid
	related map[OID][]R       // referenced oid -> loaded owning records
}

// New returns an empty map of the given kind.
func New[R comparable](kind Kind) *Map[R] {
	m := &Map[R]{
		kind:    kind,
		back:    make(map[string]string),
		pending: make(map[OID]OID),
		related: make(map[OID][]R),
	}
	if kind == ToMany {
		m.many = &toMany{refs: make(map[string][]string), loaded: make(map[string]bool)}
	} else {
		m.one = &toOne{refs: make(map[string]slot)}
	}
	return m
}

// Kind returns the map kind.
func (m *Map[R]) Kind() Kind { return m.kind }

// Set records that owningID references refID. An owning record references
// at most one record: a previous reference is removed first. On a to-one map
// a previous owning record of refID loses its reference.
func (m *Map[R]) Set(refID, owningID string) {
	if old, ok := m.back[owningID]; ok {
		if old == refID && m.has(refID, owningID) {
			return
		}
		m.Remove(old, owningID)
	}
	switch m.kind {
	case ToOne:
		if s, ok := m.one.refs[refID]; ok && !s.null && s.owning != owningID {
			delete(m.back, s.owning)
		}
		m.one.refs[refID] = slot{owning: owningID}
	case ToMany:
		if !slices.Contains(m.many.refs[refID], owningID) {
			m.many.refs[refID] = append(m.many.refs[refID], owningID)
		}
	}
	m.back[owningID] = refID
}

// SetNull records that refID is known to have no owning record. On a to-many
// map it marks an empty loaded collection.
func (m *Map[R]) SetNull(refID string) {
	switch m.kind {
	case ToOne:
		if s, ok := m.one.refs[refID]; ok && !s.null {
			delete(m.back, s.owning)
		}
		m.one.refs[refID] = slot{null: true}
	case ToMany:
		for _, id := range m.many.refs[refID] {
			delete(m.back, id)
		}
		m.many.refs[refID] = nil
		m.many.loaded[refID] = true
	}
}

// Remove drops the reference from owningID to refID. It is a no-op if that
// exact reference is not present. A to-one entry becomes explicitly null.
func (m *Map[R]) Remove(refID, owningID string) {
	if !m.has(refID, owningID) {
		return
	}
	switch m.kind {
	case ToOne:
		m.one.refs[refID] = slot{null: true}
	case ToMany:
		ids := m.many.refs[refID]
		if i := slices.Index(ids, owningID); i >= 0 {
			m.many.refs[refID] = slices.Delete(slices.Clone(ids), i, i+1)
		}
	}
	if m.back[owningID] == refID {
		delete(m.back, owningID)
	}
}

// Move redirects owningID to newRefID. An empty newRefID only removes the
// current reference.
func (m *Map[R]) Move(owningID, newRefID string) {
	if old, ok := m.back[owningID]; ok {
		if old == newRefID {
			return
		}
		m.Remove(old, owningID)
	}
	if newRefID != "" {
		m.Set(newRefID, owningID)
	}
}

// Rekey replaces oldID by newID, both where it is a referenced key and where
// it is an owning value. Entries already present under newID are merged.
// Use RekeyReferenced or RekeyOwning when the two sides are different tables.
func (m *Map[R]) Rekey(oldID, newID string) {
	m.RekeyReferenced(oldID, newID)
	m.RekeyOwning(oldID, newID)
}

// RekeyReferenced replaces the referenced key oldID by newID.
func (m *Map[R]) RekeyReferenced(oldID, newID string) {
	if oldID == newID {
		return
	}
	switch m.kind {
	case ToOne:
		if s, ok := m.one.refs[oldID]; ok {
			delete(m.one.refs, oldID)
			cur, exists := m.one.refs[newID]
			switch {
			case !exists || cur.null:
				m.one.refs[newID] = s
			case !s.null:
				// Both known: the moved reference wins.
				if cur.owning != s.owning {
					delete(m.back, cur.owning)
				}
				m.one.refs[newID] = s
			}
			if !s.null {
				m.back[s.owning] = newID
			}
		}
	case ToMany:
		if ids, ok := m.many.refs[oldID]; ok {
			delete(m.many.refs, oldID)
			merged := slices.Clone(m.many.refs[newID])
			for _, id := range ids {
				if !slices.Contains(merged, id) {
					merged = append(merged, id)
				}
				m.back[id] = newID
			}
			m.many.refs[newID] = merged
		}
		if m.many.loaded[oldID] {
			m.many.loaded[newID] = true
			delete(m.many.loaded, oldID)
		}
	}
}

// RekeyOwning replaces the owning value oldID by newID.
func (m *Map[R]) RekeyOwning(oldID, newID string) {
	if oldID == newID {
		return
	}
	if ref, ok := m.back[oldID]; ok {
		delete(m.back, oldID)
		m.back[newID] = ref
		switch m.kind {
		case ToOne:
			if s := m.one.refs[ref]; !s.null && s.owning == oldID {
				m.one.refs[ref] = slot{owning: newID}
			}
		case ToMany:
			ids := slices.Clone(m.many.refs[ref])
			if i := slices.Index(ids, oldID); i >= 0 {
				if slices.Contains(ids, newID) {
					ids = slices.Delete(ids, i, i+1)
				} else {
					ids[i] = newID
				}
			}
			m.many.refs[ref] = ids
		}
	}
}

// Forget removes id from the map on both sides: as a referenced key and as
// an owning value.
func (m *Map[R]) Forget(id string) {
	m.ForgetReferenced(id)
	m.ForgetOwning(id)
}

// ForgetReferenced removes the referenced key id and its owning entries.
func (m *Map[R]) ForgetReferenced(id string) {
	switch m.kind {
	case ToOne:
		if s, ok := m.one.refs[id]; ok {
			if !s.null && m.back[s.owning] == id {
				delete(m.back, s.owning)
			}
			delete(m.one.refs, id)
		}
	case ToMany:
		for _, owning := range m.many.refs[id] {
			if m.back[owning] == id {
				delete(m.back, owning)
			}
		}
		delete(m.many.refs, id)
		delete(m.many.loaded, id)
	}
}

// ForgetOwning removes the reference held by the owning value id.
func (m *Map[R]) ForgetOwning(id string) {
	if ref, ok := m.back[id]; ok {
		m.Remove(ref, id)
	}
}

// MarkLoaded marks the owning side of refID as loaded, so an empty result
// means "no owning records" instead of "unknown".
func (m *Map[R]) MarkLoaded(refID string) {
	switch m.kind {
	case ToOne:
		if _, ok := m.one.refs[refID]; !ok {
			m.one.refs[refID] = slot{null: true}
		}
	case ToMany:
		m.many.loaded[refID] = true
	}
}

// IsLoaded reports whether the owning side of refID is loaded.
func (m *Map[R]) IsLoaded(refID string) bool {
	if m.kind == ToOne {
		_, ok := m.one.refs[refID]
		return ok
	}
	return m.many.loaded[refID]
}

// Lookup reports what is known about the owning side of refID. The returned
// identifier is the first owning record when state is Set.
func (m *Map[R]) Lookup(refID string) (string, State) {
	switch m.kind {
	case ToOne:
		s, ok := m.one.refs[refID]
		switch {
		case !ok:
			return "", Unknown
		case s.null:
			return "", Null
		}
		return s.owning, Set
	default:
		ids := m.many.refs[refID]
		switch {
		case len(ids) > 0:
			return ids[0], Set
		case m.many.loaded[refID]:
			return "", Null
		}
		return "", Unknown
	}
}

// Owning returns a copy of the owning identifiers currently referencing refID.
func (m *Map[R]) Owning(refID string) []string {
	if m.kind == ToOne {
		if s, ok := m.one.refs[refID]; ok && !s.null {
			return []string{s.owning}
		}
		return nil
	}
	return slices.Clone(m.many.refs[refID])
}

// Referenced returns the identifier owningID currently references.
func (m *Map[R]) Referenced(owningID string) (string, bool) {
	ref, ok := m.back[owningID]
	return ref, ok
}

func (m *Map[R]) has(refID, owningID string) bool {
	if m.kind == ToOne {
		s, ok := m.one.refs[refID]
		return ok && !s.null && s.owning == owningID
	}
	return slices.Contains(m.many.refs[refID], owningID)
}

// Link records that the owning record owning references the record ref
// by object identity. Used while ref has no persisted key.
func (m *Map[R]) Link(owning, ref OID) {
	m.pending[owning] = ref
}

// Unlink drops the object identity link of owning.
func (m *Map[R]) Unlink(owning OID) {
	delete(m.pending, owning)
}

// Pending returns the record owning is linked to by object identity.
func (m *Map[R]) Pending(owning OID) (OID, bool) {
	ref, ok := m.pending[owning]
	return ref, ok
}

// PendingFor returns the owning records linked to ref by object identity,
// in ascending OID order.
func (m *Map[R]) PendingFor(ref OID) []OID {
	var oids []OID
	for owning, r := range m.pending {
		if r == ref {
			oids = append(oids, owning)
		}
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })
	return oids
}

// Collection returns a copy of the loaded owning records of ref.
func (m *Map[R]) Collection(ref OID) ([]R, bool) {
	rs, ok := m.related[ref]
	return slices.Clone(rs), ok
}

// SetCollection replaces the loaded owning records of ref.
func (m *Map[R]) SetCollection(ref OID, rs []R) {
	m.related[ref] = slices.Clone(rs)
}

// AppendCollection adds r to the loaded owning records of ref unless present.
// A collection that was never set is created.
func (m *Map[R]) AppendCollection(ref OID, r R) {
	if !slices.Contains(m.related[ref], r) {
		m.related[ref] = append(m.related[ref], r)
	}
}

// RemoveFromCollection removes r from the loaded owning records of ref.
func (m *Map[R]) RemoveFromCollection(ref OID, r R) {
	rs, ok := m.related[ref]
	if !ok {
		return
	}
	if i := slices.Index(rs, r); i >= 0 {
		m.related[ref] = slices.Delete(slices.Clone(rs), i, i+1)
	}
}

// ForgetObject drops every object identity entry of the record r with
// identity oid: its own collection, its membership in other collections and
// its pending links on both sides.
func (m *Map[R]) ForgetObject(oid OID, r R) {
	delete(m.related, oid)
	for k, rs := range m.related {
		if i := slices.Index(rs, r); i >= 0 {
			m.related[k] = slices.Delete(slices.Clone(rs), i, i+1)
		}
	}
	delete(m.pending, oid)
	for owning, target := range m.pending {
		if target == oid {
			delete(m.pending, owning)
		}
	}
}

// Clone returns a deep copy of the map.
func (m *Map[R]) Clone() *Map[R] {
	c := &Map[R]{
		kind:    m.kind,
		back:    maps.Clone(m.back),
		pending: maps.Clone(m.pending),
		related: make(map[OID][]R, len(m.related)),
	}
	for oid, rs := range m.related {
		c.related[oid] = slices.Clone(rs)
	}
	switch m.kind {
	case ToMany:
		c.many = &toMany{refs: make(map[string][]string, len(m.many.refs)), loaded: maps.Clone(m.many.loaded)}
		for id, ids := range m.many.refs {
			c.many.refs[id] = slices.Clone(ids)
		}
	default:
		c.one = &toOne{refs: maps.Clone(m.one.refs)}
	}
	return c
}
