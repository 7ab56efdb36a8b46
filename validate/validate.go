// Package validate implements the default record validator used by the
// unit of work before a commit. Failures are written as codes into the
// record error stack, keyed by field name.
package validate

import (
	"log/slog"
	"slices"
	"unicode/utf8"

	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/schema/field"
)

// Error codes written into the record error stack.
const (
	CodeNotNull = "notnull"
	CodeLength  = "length"
	CodeEnum    = "enum"
	CodeInvalid = "invalid"
)

// Validator checks records against their field definitions.
type Validator struct {
	log *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger logs the message of failing custom validators at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		v.log = l
	}
}

// New returns the default validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate clears the record error stack, checks every field and reports
// whether the stack is still empty.
//
// A nil value is accepted for optional fields, for a storage generated
// identifier of a new record, and for a foreign key whose referenced record
// is not written yet.
func (v *Validator) Validate(r *graph.Record) bool {
	errs := r.Errors()
	errs.Clear()
	for _, f := range r.Table().Fields() {
		value := r.Get(f.Name)
		if value == nil {
			if !nullable(r, f) {
				errs.Add(f.Name, CodeNotNull)
			}
			continue
		}
		if f.Size > 0 && length(value) > f.Size {
			errs.Add(f.Name, CodeLength)
		}
		if f.Type == field.TypeEnum && !slices.Contains(f.Enums, value.(string)) {
			errs.Add(f.Name, CodeEnum)
		}
		for _, fn := range f.Validators {
			if err := fn(value); err != nil {
				errs.Add(f.Name, CodeInvalid)
				if v.log != nil {
					v.log.Debug("validator failed", "table", r.TableName(), "field", f.Name, "error", err)
				}
			}
		}
	}
	return errs.Empty()
}

func nullable(r *graph.Record, f *field.Descriptor) bool {
	switch {
	case f.Optional:
		return true
	case f.Generated && !r.Exists():
		return true
	}
	return r.HasPendingReference(f.Name)
}

func length(v any) int {
	switch v := v.(type) {
	case string:
		return utf8.RuneCountInString(v)
	case []byte:
		return len(v)
	}
	return 0
}

// Func is an adapter to use an ordinary function as a validator.
type Func func(*graph.Record) bool

// Validate returns f(r).
func (f Func) Validate(r *graph.Record) bool { return f(r) }

// Chain runs every validator in order and reports whether all passed.
// Validator clears the error stack, so it belongs first.
func Chain(vs ...interface{ Validate(*graph.Record) bool }) Func {
	return func(r *graph.Record) bool {
		ok := true
		for _, v := range vs {
			if !v.Validate(r) {
				ok = false
			}
		}
		return ok
	}
}
