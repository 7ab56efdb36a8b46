package mixin

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/field"
)

// Schema is the default implementation for the schema.Mixin interface.
// It should be embedded in all custom mixin definitions.
//
// Example:
//
//	type MyMixin struct {
//	    mixin.Schema
//	}
//
//	func (MyMixin) Fields() []field.Field {
//	    return []field.Field{
//	        field.String("custom_field"),
//	    }
//	}
type Schema struct{}

// Fields of the mixin.
func (Schema) Fields() []field.Field { return nil }

// Hooks of the mixin.
func (Schema) Hooks() []schema.EventHook { return nil }

// schema mixin must implement `Mixin` interface.
var _ schema.Mixin = (*Schema)(nil)

// CreateTime adds an immutable created_at time field defaulting to time.Now.
type CreateTime struct{ Schema }

// Fields of the create time mixin.
func (CreateTime) Fields() []field.Field {
	return []field.Field{
		field.Time("created_at").
			DefaultFunc(func() any { return time.Now() }).
			Immutable(),
	}
}

// UpdateTime adds an updated_at time field refreshed before every update.
type UpdateTime struct{ Schema }

// Fields of the update time mixin.
func (UpdateTime) Fields() []field.Field {
	return []field.Field{
		field.Time("updated_at").
			DefaultFunc(func() any { return time.Now() }).
			UpdateDefault(func() any { return time.Now() }),
	}
}

// Time composes CreateTime and UpdateTime.
type Time struct{ Schema }

// Fields of the time mixin.
func (Time) Fields() []field.Field {
	return append(
		CreateTime{}.Fields(),
		UpdateTime{}.Fields()...,
	)
}

// ID adds a UUID identifier field named "id".
type ID struct{ Schema }

// Fields of the ID mixin.
func (ID) Fields() []field.Field {
	return []field.Field{
		field.UUID("id").Identifier().Immutable(),
	}
}

// Version adds a "version" counter starting at 1 and incremented by a
// pre-update hook whenever a persisted record is written.
type Version struct{ Schema }

// Fields of the version mixin.
func (Version) Fields() []field.Field {
	return []field.Field{
		field.Int("version").Default(int64(1)),
	}
}

// Hooks of the version mixin.
func (Version) Hooks() []schema.EventHook {
	return []schema.EventHook{
		schema.On(schema.PreUpdate, func(_ context.Context, r schema.Record) error {
			v, ok := r.Get("version").(int64)
			if !ok {
				return fmt.Errorf("mixin: %s.version is %T, expected int64", r.TableName(), r.Get("version"))
			}
			return r.Set("version", v+1)
		}),
	}
}

var (
	_ schema.Mixin = (*CreateTime)(nil)
	_ schema.Mixin = (*UpdateTime)(nil)
	_ schema.Mixin = (*Time)(nil)
	_ schema.Mixin = (*ID)(nil)
	_ schema.Mixin = (*Version)(nil)
)
