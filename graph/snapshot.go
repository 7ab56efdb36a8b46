package graph

import (
	"maps"

	"github.com/syssam/tether/graph/refmap"
)

// Snapshot is a copy of the mutable state of a graph: the arena, the
// identity registries, the reference maps and the values, modification
// tracking and identifiers of every live record. Restore puts it back in
// place, so records keep their identity.
type Snapshot struct {
	g          *Graph
	arena      map[refmap.OID]*Record
	records    map[*Record]recordState
	registries map[*Table]map[string]*Record
	refs       map[*Relation]*refmap.Map[*Record]
}

type recordState struct {
	values   map[string]any
	modified map[string]any
	exists   bool
	id       string
}

// Snapshot copies the mutable state of the graph.
func (g *Graph) Snapshot() *Snapshot {
	s := &Snapshot{
		g:          g,
		arena:      maps.Clone(g.arena),
		records:    make(map[*Record]recordState, len(g.arena)),
		registries: make(map[*Table]map[string]*Record, len(g.order)),
		refs:       make(map[*Relation]*refmap.Map[*Record], len(g.relations)),
	}
	for _, r := range g.arena {
		s.records[r] = recordState{
			values:   maps.Clone(r.values),
			modified: maps.Clone(r.modified),
			exists:   r.exists,
			id:       r.id,
		}
	}
	for _, t := range g.order {
		s.registries[t] = maps.Clone(t.registry)
	}
	for _, rel := range g.relations {
		s.refs[rel] = rel.refs.Clone()
	}
	return s
}

// Restore puts the graph back in the state it had when the snapshot was
// taken. Records created since then are dropped from the arena; object
// identities are never reused.
func (s *Snapshot) Restore() {
	g := s.g
	g.arena = maps.Clone(s.arena)
	for r, st := range s.records {
		r.values = maps.Clone(st.values)
		r.modified = maps.Clone(st.modified)
		r.exists = st.exists
		r.id = st.id
	}
	for t, reg := range s.registries {
		t.registry = maps.Clone(reg)
	}
	for rel, refs := range s.refs {
		*rel.refs = *refs.Clone()
	}
}
