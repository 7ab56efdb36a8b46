package tether_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tether"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := tether.NewNotFoundError("table")
		assert.Equal(t, "tether: table not found", err.Error())
		err = tether.NewNotFoundErrorWithID("table", "users")
		assert.Equal(t, "tether: table not found (id=users)", err.Error())
		assert.Equal(t, "users", err.ID())
		assert.Equal(t, "table", err.Label())
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := tether.NewNotFoundError("relation")
		assert.True(t, tether.IsNotFound(err))
		assert.True(t, errors.Is(err, tether.ErrNotFound))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, tether.IsNotFound(wrapped))

		// Non-matching error
		assert.False(t, tether.IsNotFound(errors.New("other error")))
		assert.False(t, tether.IsNotFound(nil))
	})
}

func TestNotLoadedError(t *testing.T) {
	err := tether.NewNotLoadedError("posts")
	assert.Equal(t, `tether: relation "posts" was not loaded`, err.Error())
	assert.True(t, tether.IsNotLoaded(fmt.Errorf("read: %w", err)))
	assert.False(t, tether.IsNotLoaded(nil))
}

func TestConflictingScheduleError(t *testing.T) {
	err := tether.NewConflictingScheduleError("users", "7")
	assert.Equal(t, "tether: users (id=7) is scheduled for delete and cannot be saved", err.Error())
	assert.True(t, errors.Is(err, tether.ErrConflictingSchedule))
	assert.True(t, tether.IsConflictingSchedule(fmt.Errorf("save: %w", err)))
	assert.False(t, tether.IsConflictingSchedule(errors.New("other")))

	err = tether.NewConflictingScheduleError("users", "\x0012")
	assert.Contains(t, err.Error(), "(new #12)")
}

func TestConstraintError(t *testing.T) {
	err := tether.NewConstraintError("posts.user_id->users", "RESTRICT", "posts", "3", "referenced record is deleted")
	assert.Equal(t, "tether: constraint failed: referenced record is deleted (relation posts.user_id->users, posts (id=3))", err.Error())
	assert.True(t, errors.Is(err, tether.ErrConstraint))
	assert.True(t, tether.IsConstraintError(fmt.Errorf("commit: %w", err)))
	assert.False(t, tether.IsConstraintError(nil))
	assert.Equal(t, "RESTRICT", err.Action)
}

func TestErrorStack(t *testing.T) {
	s := tether.ErrorStack{}
	assert.True(t, s.Empty())
	s.Add("name", "notnull")
	s.Add("name", "notnull")
	s.Add("name", "length")
	s.Add("age", "range")
	assert.Equal(t, []string{"notnull", "length"}, s["name"])
	assert.True(t, s.Has("age"))
	assert.False(t, s.Has("email"))
	assert.Equal(t, "age: range; name: notnull, length", s.String())

	c := s.Clone()
	s.Clear()
	assert.True(t, s.Empty())
	assert.False(t, c.Empty())
}

func TestValidationError(t *testing.T) {
	stack := tether.ErrorStack{"name": {"notnull"}}
	err := tether.NewValidationError("users", "\x001", stack)
	stack.Add("name", "length")

	assert.Equal(t, `tether: validation failed for users (new #1): name: notnull`, err.Error())
	assert.True(t, errors.Is(err, tether.ErrValidation))
	assert.True(t, tether.IsValidationError(fmt.Errorf("commit: %w", err)))
	assert.Equal(t, []string{"notnull"}, err.Fields["name"], "fields are copied")
}

func TestSchemaError(t *testing.T) {
	err := tether.NewSchemaError("posts", "user_id", "unknown table %q", "people")
	assert.Equal(t, `tether: schema posts.user_id: unknown table "people"`, err.Error())
	assert.True(t, tether.IsSchemaError(err))

	err = tether.NewSchemaError("posts", "", "no identifier")
	assert.Equal(t, "tether: schema posts: no identifier", err.Error())
}

func TestRollbackError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &tether.RollbackError{Err: cause}
	assert.Equal(t, "tether: rollback failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestAggregateError(t *testing.T) {
	require.NoError(t, tether.NewAggregateError(nil, nil))

	single := errors.New("one")
	assert.Equal(t, single, tether.NewAggregateError(nil, single))

	second := errors.New("two")
	err := tether.NewAggregateError(single, nil, second)
	var agg *tether.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.Equal(t, "tether: multiple errors:\n  [1] one\n  [2] two", err.Error())
	assert.ErrorIs(t, err, second)
	assert.Equal(t, "tether: no errors", (&tether.AggregateError{}).Error())
}
