// Package graph provides the runtime representation of a schema: tables
// with their identity registries, the records loaded in memory, and the
// relations connecting them.
//
// # Graph
//
// A Graph is built once from a schema and is the arena of every record it
// creates. Records are addressed by object identity tokens (refmap.OID), so
// records that reference each other never need nested ownership:
//
//	g, err := graph.New(s)
//	users := g.MustTable("users")
//	u, err := users.New(map[string]any{"name": "ada"})
//
// # Identity
//
// Each record has an internal identifier: the rendered persisted key when
// the record was ever written, otherwise a synthetic identifier derived from
// its object identity. The table registry maps internal identifiers to
// records and is the single authority for whether a record is still known.
// AssignIdentifier moves a record from its synthetic to its real identifier
// and re-keys every relation reference map.
//
// # Relations
//
// Relations keep a reference map (package refmap) answering which owning
// records currently point at a referenced record, without querying storage.
// Setting a foreign key field, or calling SetReference / Add on a record,
// updates the map immediately:
//
//	p, _ := posts.New(map[string]any{"title": "hello"})
//	_ = p.SetReference("user", u)     // posts.user_id -> users
//	owners, _ := u.Collection("posts") // [p]
//
// A Graph is not safe for concurrent use.
package graph
