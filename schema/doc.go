// Package schema provides the building blocks for describing tables and the
// foreign-key relations between them.
//
// This package is the entry point for schema definition; fields and
// relations are described with the builders of its subpackages:
//
//   - [field]: Field builders for table columns
//   - [edge]: Relation builders with delete and update actions
//   - [mixin]: Reusable fields and hooks
//   - [load]: YAML schema files
//
// # Quick Start
//
//	s := schema.New(
//	    schema.NewTable("users",
//	        field.Int("id").Identifier().Generated(),
//	        field.String("name").MaxLen(100),
//	    ).Mixin(mixin.Time{}),
//	    schema.NewTable("posts",
//	        field.Int("id").Identifier().Generated(),
//	        field.Int("user_id").Optional(),
//	        field.String("title"),
//	    ),
//	).Relate(
//	    edge.Reference("posts", "user_id").To("users").OnDelete(edge.Cascade),
//	)
//
// # Hooks
//
// Hooks run while a unit of work commits, around the physical write of a
// record:
//
//	schema.NewTable("users", ...).
//	    Hook(schema.PreInsert, func(ctx context.Context, r schema.Record) error {
//	        return r.Set("slug", slugify(r.Get("name")))
//	    })
//
// Check validates a schema as a whole. It is called by graph.New, which
// turns a schema into the runtime tables and relations.
package schema
