package graph

import (
	"fmt"

	"github.com/syssam/tether"
	"github.com/syssam/tether/graph/refmap"
	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/field"
)

// Graph is the arena of records and the runtime form of a schema.
type Graph struct {
	tables    map[string]*Table
	order     []*Table
	relations []*Relation
	nextOID   refmap.OID
	arena     map[refmap.OID]*Record
}

// New checks the schema and builds its tables and relations.
func New(s *schema.Schema) (*Graph, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	g := &Graph{
		tables: make(map[string]*Table, len(s.Tables)),
		arena:  make(map[refmap.OID]*Record),
	}
	for _, def := range s.Tables {
		t := &Table{
			graph:    g,
			def:      def,
			fields:   make(map[string]*field.Descriptor, len(def.Fields)),
			ids:      def.Identifier(),
			aliases:  make(map[string]side),
			hooks:    make(map[schema.Event][]schema.Hook),
			registry: make(map[string]*Record),
		}
		for _, f := range def.Fields {
			t.fields[f.Name] = f
			if f.Generated {
				t.generated = f.Name
			}
		}
		for _, h := range def.Hooks {
			t.hooks[h.Event] = append(t.hooks[h.Event], h.Hook)
		}
		g.tables[def.Name] = t
		g.order = append(g.order, t)
	}
	for _, def := range s.Relations {
		kind := refmap.ToOne
		if def.IsOneToMany() {
			kind = refmap.ToMany
		}
		rel := &Relation{
			graph:      g,
			def:        def,
			owning:     g.tables[def.OwningTable],
			referenced: g.tables[def.ReferencedTable],
			refs:       refmap.New[*Record](kind),
		}
		rel.owning.owningRels = append(rel.owning.owningRels, rel)
		rel.owning.aliases[def.OwningAlias] = side{rel: rel, owning: true}
		rel.referenced.referencedRels = append(rel.referenced.referencedRels, rel)
		rel.referenced.aliases[def.ReferencedAlias] = side{rel: rel}
		g.relations = append(g.relations, rel)
	}
	return g, nil
}

// Table returns the named table.
func (g *Graph) Table(name string) (*Table, error) {
	t, ok := g.tables[name]
	if !ok {
		return nil, tether.NewNotFoundErrorWithID("table", name)
	}
	return t, nil
}

// MustTable is like Table but panics if the table does not exist.
func (g *Graph) MustTable(name string) *Table {
	t, err := g.Table(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Tables returns the tables in schema order.
func (g *Graph) Tables() []*Table {
	return append([]*Table(nil), g.order...)
}

// Relations returns the relations in schema order.
func (g *Graph) Relations() []*Relation {
	return append([]*Relation(nil), g.relations...)
}

// Record returns the live record with the given object identity.
func (g *Graph) Record(oid refmap.OID) (*Record, bool) {
	r, ok := g.arena[oid]
	return r, ok
}

// Len returns the number of live records in the arena.
func (g *Graph) Len() int {
	return len(g.arena)
}

func (g *Graph) add(r *Record) {
	g.nextOID++
	r.oid = g.nextOID
	g.arena[r.oid] = r
}

func (g *Graph) String() string {
	return fmt.Sprintf("graph(%d tables, %d relations, %d records)", len(g.order), len(g.relations), len(g.arena))
}
