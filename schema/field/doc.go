// Package field provides fluent builders for describing table fields.
//
// Field names follow database conventions (snake_case):
//
//	field.Int("id").Identifier().Generated()
//	field.String("email").MaxLen(255)
//	field.Int("user_id").Optional()
//
// # Field Types
//
//	field.Bool("active")
//	field.Int("count")           // stored as int64
//	field.Float("price")         // stored as float64
//	field.String("name")
//	field.Enum("status").Values("draft", "published")
//	field.Time("created_at")
//	field.UUID("id")             // canonical string, random default
//	field.Bytes("payload")
//
// # Field Options
//
//	field.String("email").
//	    Optional().            // nil is allowed
//	    Immutable().           // cannot change once persisted
//	    Default("unknown").    // value for new records
//	    MaxLen(255).           // length validation
//	    Comment("User email")
//
// # Identifiers
//
// A table identifier is the ordered set of fields marked Identifier.
// Generated marks an integer identifier whose value is assigned by the
// storage on insert (auto increment). Relations may only reference tables
// with a single identifier field.
//
// # Validation
//
// Custom validators receive the non-nil field value and return an error
// describing the failure:
//
//	field.Int("age").Validate(func(v any) error {
//	    if v.(int64) < 0 {
//	        return errors.New("negative age")
//	    }
//	    return nil
//	})
package field
