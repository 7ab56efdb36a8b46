package field

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the storage type of a field.
type Type uint8

// Field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeEnum
	TypeTime
	TypeUUID
	TypeBytes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeEnum:    "enum",
	TypeTime:    "time",
	TypeUUID:    "uuid",
	TypeBytes:   "bytes",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if n == s && i != int(TypeInvalid) {
			return Type(i), nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", s)
}

// Validator is a custom value check. It is called with non-nil values only.
type Validator func(any) error

// Descriptor is the immutable description of a field.
type Descriptor struct {
	Name          string
	Type          Type
	Identifier    bool       // Part of the table identifier.
	Generated     bool       // Value is assigned by storage on insert.
	Optional      bool       // Nil is a valid value.
	Immutable     bool       // Cannot change once persisted.
	Size          int        // Max length for strings and bytes, 0 is unlimited.
	Enums         []string   // Allowed values of an enum field.
	Default       func() any // Value applied when a new record is created.
	UpdateDefault func() any // Value applied before every update.
	Validators    []Validator
	Comment       string
	Err           error
}

// HasDefault reports whether new records get a default value.
func (d *Descriptor) HasDefault() bool {
	return d.Default != nil
}

// Convert normalizes v to the canonical Go type of the field:
// int64 for TypeInt, float64 for TypeFloat, string for TypeString, TypeEnum and TypeUUID.
func (d *Descriptor) Convert(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch d.Type {
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		}
		if n, ok := toInt64(v); ok {
			return float64(n), nil
		}
	case TypeString, TypeEnum:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeUUID:
		switch u := v.(type) {
		case string:
			return u, nil
		case uuid.UUID:
			return u.String(), nil
		case [16]byte:
			return uuid.UUID(u).String(), nil
		}
	case TypeTime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	}
	return nil, fmt.Errorf("field: %s: cannot use %T as %s", d.Name, v, d.Type)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// Field is implemented by every field builder.
type Field interface {
	Descriptor() *Descriptor
}

// Builder is the fluent builder of a field descriptor.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Type: t}}
}

// Bool returns a new boolean field builder.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Int returns a new integer field builder. Values are stored as int64.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Float returns a new float field builder.
func Float(name string) *Builder { return newBuilder(name, TypeFloat) }

// String returns a new string field builder.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Time returns a new time field builder.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// Bytes returns a new binary field builder.
func Bytes(name string) *Builder { return newBuilder(name, TypeBytes) }

// Enum returns a new enum field builder. Use Values to set the allowed values.
func Enum(name string) *Builder { return newBuilder(name, TypeEnum) }

// UUID returns a new UUID field builder. Values are stored in their canonical
// string form, new records get a random UUID unless another default is set.
func UUID(name string) *Builder {
	b := newBuilder(name, TypeUUID)
	b.desc.Default = func() any { return uuid.NewString() }
	b.desc.Validators = append(b.desc.Validators, func(v any) error {
		s, _ := v.(string)
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Errorf("invalid uuid %q", s)
		}
		return nil
	})
	return b
}

// Identifier marks the field as (part of) the table identifier.
func (b *Builder) Identifier() *Builder {
	b.desc.Identifier = true
	return b
}

// Generated marks the field value as assigned by storage on insert,
// for example an auto-increment column.
func (b *Builder) Generated() *Builder {
	if b.desc.Type != TypeInt {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("field: %s: only int fields can be generated", b.desc.Name))
	}
	b.desc.Generated = true
	b.desc.Default = nil
	return b
}

// Optional allows nil values.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// Immutable forbids changing the value once the record is persisted.
func (b *Builder) Immutable() *Builder {
	b.desc.Immutable = true
	return b
}

// Default sets a static default for new records.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = func() any { return v }
	return b
}

// DefaultFunc sets a default generator for new records.
func (b *Builder) DefaultFunc(fn func() any) *Builder {
	b.desc.Default = fn
	return b
}

// UpdateDefault sets a value generator applied before every update.
func (b *Builder) UpdateDefault(fn func() any) *Builder {
	b.desc.UpdateDefault = fn
	return b
}

// MaxLen sets the max length of a string or bytes field.
func (b *Builder) MaxLen(n int) *Builder {
	b.desc.Size = n
	return b
}

// Values sets the allowed values of an enum field.
func (b *Builder) Values(values ...string) *Builder {
	b.desc.Enums = append(b.desc.Enums, values...)
	return b
}

// Validate adds custom validators.
func (b *Builder) Validate(fns ...Validator) *Builder {
	b.desc.Validators = append(b.desc.Validators, fns...)
	return b
}

// Comment sets the field comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the Field interface.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

// Check reports descriptor errors, including ones that depend on the
// complete builder chain.
func (d *Descriptor) Check() error {
	err := d.Err
	if d.Name == "" {
		err = errors.Join(err, errors.New("field: missing name"))
	}
	if d.Type == TypeEnum && len(d.Enums) == 0 {
		err = errors.Join(err, fmt.Errorf("field: %s: missing enum values", d.Name))
	}
	if d.Identifier && d.Optional {
		err = errors.Join(err, fmt.Errorf("field: %s: identifier cannot be optional", d.Name))
	}
	return err
}
