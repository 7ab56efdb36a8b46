// Package mixin provides reusable sets of fields and hooks for table
// definitions.
//
// A mixin implements schema.Mixin. Embed Schema and override what you need:
//
//	type Audit struct {
//	    mixin.Schema
//	}
//
//	func (Audit) Fields() []field.Field {
//	    return []field.Field{
//	        field.String("created_by").Optional().Immutable(),
//	    }
//	}
//
// Ready-made mixins:
//   - CreateTime: created_at, immutable
//   - UpdateTime: updated_at, refreshed on every update
//   - Time: CreateTime and UpdateTime
//   - ID: UUID identifier named id
//   - Version: version counter incremented by a pre-update hook
//
// Usage:
//
//	schema.NewTable("users", field.String("name")).
//	    Mixin(mixin.ID{}, mixin.Time{})
package mixin
