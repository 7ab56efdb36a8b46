package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tether/dialect"
)

var (
	users = dialect.TableInfo{
		Name:       "users",
		Columns:    []string{"id", "name"},
		Identifier: []string{"id"},
		Generated:  "id",
	}
	members = dialect.TableInfo{
		Name:       "members",
		Columns:    []string{"user_id", "group_id", "role"},
		Identifier: []string{"user_id", "group_id"},
	}
)

func TestInsertGenerated(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	n, err := tx.Insert(ctx, users, dialect.Row{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	id, err := tx.LastInsertID(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = tx.Insert(ctx, users, dialect.Row{"id": 10, "name": "b"})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, users, dialect.Row{"name": "c"})
	require.NoError(t, err)
	id, err = tx.LastInsertID(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	_, err = tx.Insert(ctx, users, dialect.Row{"id": int64(10), "name": "dup"})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Empty(t, s.Rows("users"), "nothing visible before commit")

	require.NoError(t, tx.Commit())
	rows := s.Rows("users")
	require.Len(t, rows, 3)
	assert.Equal(t, dialect.Row{"id": int64(1), "name": "a"}, rows[0])
	r, ok := s.Row("users", dialect.Row{"id": 11})
	require.True(t, ok)
	assert.Equal(t, "c", r["name"])
}

func TestUpdateDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	_, err := tx.Insert(ctx, members, dialect.Row{"user_id": 1, "group_id": 2, "role": "owner"})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, members, dialect.Row{"user_id": 1, "group_id": 3})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, members, dialect.Row{"user_id": 1})
	require.EqualError(t, err, "memory: identifier members.group_id is not set")
	_, err = tx.LastInsertID(ctx, members)
	require.Error(t, err)

	require.NoError(t, tx.Update(ctx, members, dialect.Row{"role": "admin"}, dialect.Row{"group_id": 2, "user_id": 1}))
	require.NoError(t, tx.Update(ctx, members, dialect.Row{"group_id": 4}, dialect.Row{"group_id": 3, "user_id": 1}))
	err = tx.Update(ctx, members, dialect.Row{"group_id": 2}, dialect.Row{"group_id": 4, "user_id": 1})
	require.ErrorIs(t, err, ErrDuplicate)
	err = tx.Update(ctx, members, dialect.Row{"role": "x"}, dialect.Row{"group_id": 9, "user_id": 1})
	require.ErrorIs(t, err, ErrNoRows)
	require.EqualError(t, tx.Update(ctx, members, dialect.Row{}, dialect.Row{"group_id": 2, "user_id": 1}), "memory: update members: no values")
	require.EqualError(t, tx.Update(ctx, members, dialect.Row{"nick": 1}, dialect.Row{"group_id": 2, "user_id": 1}), "memory: unknown column members.nick")

	require.NoError(t, tx.Delete(ctx, members, dialect.Row{"group_id": 4, "user_id": 1}))
	require.ErrorIs(t, tx.Delete(ctx, members, dialect.Row{"group_id": 4, "user_id": 1}), ErrNoRows)
	require.NoError(t, tx.Commit())

	rows := s.Rows("members")
	require.Len(t, rows, 1)
	assert.Equal(t, dialect.Row{"user_id": 1, "group_id": 2, "role": "admin"}, rows[0])
	assert.Nil(t, s.Rows("unknown"))
}

func TestRollbackAndJournal(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	_, err := tx.Insert(ctx, users, dialect.Row{"name": "a"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.ErrorIs(t, tx.Commit(), ErrTxDone)
	_, err = tx.Insert(ctx, users, dialect.Row{"name": "b"})
	require.ErrorIs(t, err, ErrTxDone)
	assert.Empty(t, s.Rows("users"))

	tx, _ = s.Begin(ctx)
	_, err = tx.Insert(ctx, users, dialect.Row{"name": "c"})
	require.NoError(t, err)
	id, _ := tx.LastInsertID(ctx, users)
	assert.Equal(t, int64(1), id, "rolled back inserts do not consume the sequence")
	require.NoError(t, tx.Commit())

	issued := s.Issued()
	require.Len(t, issued, 2)
	assert.Equal(t, 1, issued[0].Tx)
	assert.Equal(t, "INSERT users map[name:a]", issued[0].String())
	committed := s.Committed()
	require.Len(t, committed, 1)
	assert.Equal(t, 2, committed[0].Tx)
	begun, commits, rollbacks := s.Transactions()
	assert.Equal(t, []int{2, 1, 1}, []int{begun, commits, rollbacks})

	s.Reset()
	assert.Empty(t, s.Issued())
	assert.Empty(t, s.Rows("users"))
}

func TestFaults(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailOn(OpDelete, "users", boom)
	s.FailOn(OpInsert, "", boom)
	tx, _ := s.Begin(ctx)
	_, err := tx.Insert(ctx, members, dialect.Row{"user_id": 1, "group_id": 1})
	require.ErrorIs(t, err, boom)
	_, err = tx.Insert(ctx, users, dialect.Row{"name": "a"})
	require.NoError(t, err, "faults are one-shot")
	require.ErrorIs(t, tx.Delete(ctx, users, dialect.Row{"id": 1}), boom)
	require.NoError(t, tx.Delete(ctx, users, dialect.Row{"id": 1}))

	s.FailRollback(boom)
	require.ErrorIs(t, tx.Rollback(), boom)

	s.FailCommit(boom)
	tx, _ = s.Begin(ctx)
	require.ErrorIs(t, tx.Commit(), boom)
	tx, _ = s.Begin(ctx)
	require.NoError(t, tx.Commit())
}

func TestConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _ := s.Begin(ctx)
	b, _ := s.Begin(ctx)
	_, err := a.Insert(ctx, users, dialect.Row{"name": "a"})
	require.NoError(t, err)
	_, err = b.Insert(ctx, users, dialect.Row{"name": "b"})
	require.NoError(t, err)
	require.NoError(t, a.Commit())
	require.ErrorIs(t, b.Commit(), ErrConflict)
	rows := s.Rows("users")
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["name"])
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	cancel()
	_, err = tx.Insert(ctx, users, dialect.Row{"name": "a"})
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.Begin(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
