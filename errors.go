package tether

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested table, record or relation does not exist.
	ErrNotFound = errors.New("tether: not found")

	// ErrConflictingSchedule is returned when a record scheduled for delete
	// is scheduled for save within the same unit of work.
	ErrConflictingSchedule = errors.New("tether: conflicting schedule")

	// ErrConstraint is matched by every ConstraintError.
	ErrConstraint = errors.New("tether: constraint failed")

	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("tether: validation failed")
)

// NotFoundError represents an error when a table, record or relation alias is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("tether: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("tether: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the label of the missing object.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the key that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the key that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotLoadedError represents an error when a to-many relation side is read
// before its collection was loaded into memory.
type NotLoadedError struct {
	alias string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("tether: relation %q was not loaded", e.alias)
}

// NewNotLoadedError returns a new NotLoadedError for the given relation alias.
func NewNotLoadedError(alias string) *NotLoadedError {
	return &NotLoadedError{alias: alias}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ConflictingScheduleError is returned when a save is requested for a record
// that is already scheduled for delete.
type ConflictingScheduleError struct {
	Table string
	ID    string
}

// Error returns the error string.
func (e *ConflictingScheduleError) Error() string {
	return fmt.Sprintf("tether: %s %s is scheduled for delete and cannot be saved", e.Table, printableID(e.ID))
}

// Is reports whether the target error is ErrConflictingSchedule.
func (e *ConflictingScheduleError) Is(err error) bool {
	return err == ErrConflictingSchedule
}

// NewConflictingScheduleError returns a new ConflictingScheduleError.
func NewConflictingScheduleError(table, id string) *ConflictingScheduleError {
	return &ConflictingScheduleError{Table: table, ID: id}
}

// IsConflictingSchedule returns true if the error is a ConflictingScheduleError.
func IsConflictingSchedule(err error) bool {
	if err == nil {
		return false
	}
	var e *ConflictingScheduleError
	return errors.As(err, &e)
}

// ConstraintError represents a referential constraint violation detected in
// memory, before or instead of the storage backend.
type ConstraintError struct {
	Relation string // Relation name, "owning_table.field->referenced_table"
	Action   string // Action that was violated, e.g. "RESTRICT"
	Table    string // Table of the owning record that blocks the operation
	ID       string // Internal identifier of the blocking owning record
	msg      string
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("tether: constraint failed: %s (relation %s, %s %s)", e.msg, e.Relation, e.Table, printableID(e.ID))
}

// Is reports whether the target error is ErrConstraint.
func (e *ConstraintError) Is(err error) bool {
	return err == ErrConstraint
}

// NewConstraintError returns a new ConstraintError.
func NewConstraintError(relation, action, table, id, msg string) *ConstraintError {
	return &ConstraintError{Relation: relation, Action: action, Table: table, ID: id, msg: msg}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// ErrorStack collects validation error codes per field.
type ErrorStack map[string][]string

// Add appends code to the errors of field. Duplicate codes are ignored.
func (s ErrorStack) Add(field, code string) {
	for _, c := range s[field] {
		if c == code {
			return
		}
	}
	s[field] = append(s[field], code)
}

// Has reports whether field has at least one error.
func (s ErrorStack) Has(field string) bool {
	return len(s[field]) > 0
}

// Empty reports whether the stack has no errors.
func (s ErrorStack) Empty() bool {
	return len(s) == 0
}

// Clear removes every collected error.
func (s ErrorStack) Clear() {
	for k := range s {
		delete(s, k)
	}
}

// Clone returns a copy of the stack.
func (s ErrorStack) Clone() ErrorStack {
	c := make(ErrorStack, len(s))
	for k, v := range s {
		c[k] = append([]string(nil), v...)
	}
	return c
}

// String renders the stack as "field: code, code; field: code" in field order.
func (s ErrorStack) String() string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+strings.Join(s[n], ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidationError is the aggregated validation failure of one record.
type ValidationError struct {
	Table  string
	ID     string
	Fields ErrorStack
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("tether: validation failed for %s %s: %s", e.Table, printableID(e.ID), e.Fields)
}

// Is reports whether the target error is ErrValidation.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidation
}

// NewValidationError returns a new ValidationError with a copy of the given codes.
func NewValidationError(table, id string, fields ErrorStack) *ValidationError {
	return &ValidationError{Table: table, ID: id, Fields: fields.Clone()}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// SchemaError reports an invalid table, field or relation definition.
type SchemaError struct {
	Table string
	Field string
	Msg   string
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tether: schema %s.%s: %s", e.Table, e.Field, e.Msg)
	}
	return fmt.Sprintf("tether: schema %s: %s", e.Table, e.Msg)
}

// NewSchemaError returns a new SchemaError.
func NewSchemaError(table, field, format string, args ...any) *SchemaError {
	return &SchemaError{Table: table, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback itself
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("tether: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "tether: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("tether: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// printableID renders synthetic (NUL-prefixed) identifiers readably.
func printableID(id string) string {
	if strings.HasPrefix(id, "\x00") {
		return "(new #" + id[1:] + ")"
	}
	return "(id=" + id + ")"
}
