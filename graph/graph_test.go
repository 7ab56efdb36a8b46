package graph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tether"
	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
)

func blogSchema() *schema.Schema {
	return schema.New(
		schema.NewTable("users",
			field.Int("id").Identifier().Generated(),
			field.String("name").MaxLen(20),
			field.String("email").Optional(),
			field.Time("created_at").Optional().Immutable(),
		),
		schema.NewTable("posts",
			field.Int("id").Identifier().Generated(),
			field.Int("user_id").Optional(),
			field.String("title").Default("untitled"),
		),
		schema.NewTable("profiles",
			field.String("handle").Identifier(),
			field.Int("user_id"),
		),
	).Relate(
		edge.Reference("posts", "user_id").To("users").OnDelete(edge.Cascade),
		edge.Reference("profiles", "user_id").To("users").Unique(),
	)
}

func newGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(blogSchema())
	require.NoError(t, err)
	return g
}

func TestNew(t *testing.T) {
	g := newGraph(t)
	assert.Len(t, g.Tables(), 3)
	assert.Len(t, g.Relations(), 2)

	_, err := g.Table("comments")
	assert.True(t, tether.IsNotFound(err))
	assert.Panics(t, func() { g.MustTable("comments") })

	users := g.MustTable("users")
	assert.Equal(t, "User", users.Label())
	assert.True(t, users.UsesGeneratedIdentifier())
	assert.Equal(t, "id", users.GeneratedField())
	assert.Equal(t, []string{"id"}, users.IdentifierFields())
	assert.Len(t, users.ReferencedRelations(), 2)
	assert.Empty(t, users.OwningRelations())

	rel, owning, err := users.Relation("posts")
	require.NoError(t, err)
	assert.False(t, owning)
	assert.Equal(t, "posts.user_id->users", rel.Name())
	assert.True(t, rel.IsOneToMany())
	assert.Equal(t, edge.Cascade, rel.OnDelete())
	assert.Equal(t, edge.NoAction, rel.OnUpdate())
	assert.True(t, rel.IsReferencedSide(users))
	assert.False(t, rel.IsOwningSide(users))

	_, _, err = users.Relation("comments")
	assert.True(t, tether.IsNotFound(err))

	t.Run("InvalidSchema", func(t *testing.T) {
		_, err := graph.New(schema.New(schema.NewTable("logs", field.String("msg"))))
		require.Error(t, err)
		assert.True(t, tether.IsSchemaError(err))
	})
}

func TestTableNew(t *testing.T) {
	g := newGraph(t)
	posts := g.MustTable("posts")

	p, err := posts.New(map[string]any{"user_id": 3})
	require.NoError(t, err)
	assert.False(t, p.Exists())
	assert.True(t, graph.IsSynthetic(p.InternalID()))
	assert.Equal(t, "untitled", p.Get("title"))
	assert.Equal(t, int64(3), p.Get("user_id"), "ints are normalized")
	assert.True(t, p.IsModified())
	assert.True(t, posts.IsKnown(p.InternalID()))
	got, ok := g.Record(p.OID())
	require.True(t, ok)
	assert.Same(t, p, got)

	q := posts.MustNew(nil)
	assert.NotEqual(t, p.InternalID(), q.InternalID())
	assert.Equal(t, 2, posts.Len())

	_, err = posts.New(map[string]any{"body": "x"})
	assert.True(t, tether.IsNotFound(err))
	_, err = posts.New(map[string]any{"title": 42})
	assert.Error(t, err)
	assert.Equal(t, 2, posts.Len(), "failed records are not registered")
}

func TestRecordModification(t *testing.T) {
	g := newGraph(t)
	u := g.MustTable("users").MustHydrate(map[string]any{"id": 1, "name": "ada"})
	assert.True(t, u.Exists())
	assert.Equal(t, "1", u.InternalID())
	assert.False(t, u.IsModified())

	require.NoError(t, u.Set("name", "grace"))
	assert.True(t, u.IsFieldModified("name"))
	orig, ok := u.ModifiedValue("name")
	require.True(t, ok)
	assert.Equal(t, "ada", orig)
	assert.Equal(t, []string{"name"}, u.ModifiedFields())

	require.NoError(t, u.Set("name", "ada"))
	assert.False(t, u.IsModified(), "reverting clears the modification")

	require.NoError(t, u.Set("email", "ada@example.com"))
	u.ClearModified()
	assert.False(t, u.IsModified())
	assert.Equal(t, "ada@example.com", u.Values()["email"])

	assert.True(t, tether.IsNotFound(u.Set("nickname", "x")))
}

func TestRecordImmutable(t *testing.T) {
	g := newGraph(t)
	users := g.MustTable("users")
	n := users.MustNew(map[string]any{"name": "ada"})
	require.NoError(t, n.Set("created_at", nil))

	u := users.MustHydrate(map[string]any{"id": 1, "name": "ada", "created_at": time.Unix(0, 0)})
	err := u.Set("created_at", time.Now())
	assert.EqualError(t, err, "graph: users.created_at is immutable")
	assert.False(t, u.IsModified())
}

func TestHydrateIdentityMap(t *testing.T) {
	g := newGraph(t)
	users := g.MustTable("users")
	a := users.MustHydrate(map[string]any{"id": 1, "name": "ada"})
	b := users.MustHydrate(map[string]any{"id": int32(1), "name": "other"})
	assert.Same(t, a, b)
	assert.Equal(t, "ada", b.Get("name"))

	found, ok := users.LookupKey(map[string]any{"id": 1})
	require.True(t, ok)
	assert.Same(t, a, found)

	_, err := users.Hydrate(map[string]any{"name": "no id"})
	assert.Error(t, err)
}

func TestHydrateReferences(t *testing.T) {
	g := newGraph(t)
	users, posts := g.MustTable("users"), g.MustTable("posts")
	u := users.MustHydrate(map[string]any{"id": 1, "name": "ada"})
	p1 := posts.MustHydrate(map[string]any{"id": 10, "user_id": 1, "title": "a"})
	p2 := posts.MustHydrate(map[string]any{"id": 11, "user_id": 1, "title": "b"})

	rel, _, err := users.Relation("posts")
	require.NoError(t, err)
	assert.Equal(t, []*graph.Record{p1, p2}, rel.KnownOwningRecordsFor(u))

	ref, err := p1.Reference("user")
	require.NoError(t, err)
	assert.Same(t, u, ref)

	_, err = u.Collection("posts")
	assert.True(t, tether.IsNotLoaded(err))

	require.NoError(t, u.Load("posts", p1, p2))
	owners, err := u.Collection("posts")
	require.NoError(t, err)
	assert.Equal(t, []*graph.Record{p1, p2}, owners)
}

func TestForeignKeyMove(t *testing.T) {
	g := newGraph(t)
	users, posts := g.MustTable("users"), g.MustTable("posts")
	u1 := users.MustHydrate(map[string]any{"id": 1, "name": "ada"})
	u2 := users.MustHydrate(map[string]any{"id": 2, "name": "grace"})
	p := posts.MustHydrate(map[string]any{"id": 10, "user_id": 1})
	require.NoError(t, u1.Load("posts", p))
	require.NoError(t, u2.Load("posts"))

	require.NoError(t, p.Set("user_id", 2))
	owners, err := u1.Collection("posts")
	require.NoError(t, err)
	assert.Empty(t, owners)
	owners, err = u2.Collection("posts")
	require.NoError(t, err)
	assert.Equal(t, []*graph.Record{p}, owners)

	rel, _, _ := posts.Relation("user")
	assert.Empty(t, rel.KnownOwningRecordsFor(u1))
	assert.Equal(t, []*graph.Record{p}, rel.KnownOwningRecordsFor(u2))

	require.NoError(t, u2.Remove("posts", p))
	assert.Nil(t, p.Get("user_id"))
	owners, _ = u2.Collection("posts")
	assert.Empty(t, owners)
}

func TestPendingReference(t *testing.T) {
	g := newGraph(t)
	users, posts := g.MustTable("users"), g.MustTable("posts")
	u := users.MustNew(map[string]any{"name": "ada"})
	p := posts.MustNew(map[string]any{"title": "hello"})

	require.NoError(t, p.SetReference("user", u))
	assert.Nil(t, p.Get("user_id"))
	assert.True(t, p.HasPendingReference("user_id"))
	ref, err := p.Reference("user")
	require.NoError(t, err)
	assert.Same(t, u, ref)
	owners, err := u.Collection("posts")
	require.NoError(t, err, "new records have nothing to load")
	assert.Equal(t, []*graph.Record{p}, owners)

	oldID := u.InternalID()
	touched, err := u.AssignIdentifier(map[string]any{"id": 5})
	require.NoError(t, err)
	assert.Equal(t, []*graph.Record{p}, touched)
	assert.True(t, u.Exists())
	assert.Equal(t, "5", u.InternalID())
	assert.False(t, users.IsKnown(oldID))
	assert.True(t, users.IsKnown("5"))
	assert.False(t, u.IsModified())

	assert.Equal(t, int64(5), p.Get("user_id"))
	assert.False(t, p.HasPendingReference("user_id"))
	assert.True(t, p.IsFieldModified("user_id"))
	rel, _, _ := users.Relation("posts")
	assert.Equal(t, []*graph.Record{p}, rel.KnownOwningRecordsFor(u))

	_, err = p.AssignIdentifier(map[string]any{"id": 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, rel.Refs().Owning("5"))
}

func TestSnapshotRestore(t *testing.T) {
	g := newGraph(t)
	users, posts := g.MustTable("users"), g.MustTable("posts")
	u := users.MustNew(map[string]any{"name": "a8m"})
	p := posts.MustNew(nil)
	require.NoError(t, u.Add("posts", p))
	oldID := u.InternalID()

	snap := g.Snapshot()
	_, err := u.AssignIdentifier(map[string]any{"id": 5})
	require.NoError(t, err)
	_, err = p.AssignIdentifier(map[string]any{"id": 1})
	require.NoError(t, err)
	q := users.MustNew(map[string]any{"name": "later"})
	require.Equal(t, int64(5), p.Get("user_id"))

	snap.Restore()
	assert.False(t, u.Exists())
	assert.Nil(t, u.Get("id"))
	assert.Equal(t, oldID, u.InternalID())
	assert.True(t, users.IsKnown(oldID))
	assert.False(t, users.IsKnown("5"))
	assert.True(t, u.IsModified())
	assert.False(t, p.Exists())
	assert.Nil(t, p.Get("user_id"))
	assert.True(t, p.HasPendingReference("user_id"))
	ref, err := p.Reference("user")
	require.NoError(t, err)
	assert.Same(t, u, ref)
	owners, err := u.Collection("posts")
	require.NoError(t, err)
	assert.Equal(t, []*graph.Record{p}, owners)
	_, ok := g.Record(q.OID())
	assert.False(t, ok, "records created after the snapshot are dropped")

	// The restored state is independent of the snapshot.
	_, err = u.AssignIdentifier(map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Get("user_id"))
	snap.Restore()
	assert.Nil(t, p.Get("user_id"))
}

func TestSetReferenceReplacesPending(t *testing.T) {
	g := newGraph(t)
	users, posts := g.MustTable("users"), g.MustTable("posts")
	a := users.MustNew(map[string]any{"name": "a"})
	b := users.MustNew(map[string]any{"name": "b"})
	p := posts.MustNew(nil)

	require.NoError(t, a.Add("posts", p))
	require.NoError(t, p.SetReference("user", b))
	owners, _ := a.Collection("posts")
	assert.Empty(t, owners)
	owners, _ = b.Collection("posts")
	assert.Equal(t, []*graph.Record{p}, owners)

	require.NoError(t, p.SetReference("user", nil))
	assert.False(t, p.HasPendingReference("user_id"))
	ref, _ := p.Reference("user")
	assert.Nil(t, ref)
}

func TestOneToOne(t *testing.T) {
	g := newGraph(t)
	users, profiles := g.MustTable("users"), g.MustTable("profiles")
	u := users.MustHydrate(map[string]any{"id": 1, "name": "ada"})

	_, err := u.Reference("profile")
	assert.True(t, tether.IsNotLoaded(err))
	require.NoError(t, u.Load("profile"))
	ref, err := u.Reference("profile")
	require.NoError(t, err)
	assert.Nil(t, ref)

	pr := profiles.MustNew(map[string]any{"handle": "ada"})
	require.NoError(t, u.SetReference("profile", pr))
	assert.Equal(t, int64(1), pr.Get("user_id"))
	ref, err = u.Reference("profile")
	require.NoError(t, err)
	assert.Same(t, pr, ref)

	_, err = u.Collection("profile")
	assert.Error(t, err)
}

func TestIdentifierChange(t *testing.T) {
	g := newGraph(t)
	users, profiles := g.MustTable("users"), g.MustTable("profiles")
	u := users.MustHydrate(map[string]any{"id": 1, "name": "ada"})
	pr := profiles.MustHydrate(map[string]any{"handle": "ada", "user_id": 1})

	require.NoError(t, pr.Set("handle", "lovelace"))
	assert.True(t, pr.IdentifierModified())
	assert.Equal(t, map[string]any{"handle": "ada"}, pr.OriginalIdentifier())
	assert.Equal(t, map[string]any{"handle": "lovelace"}, pr.Identifier())
	assert.Equal(t, "ada", pr.InternalID(), "internal id follows writes only")

	_, err := pr.AssignIdentifier(pr.Identifier())
	require.NoError(t, err)
	assert.Equal(t, "lovelace", pr.InternalID())
	assert.False(t, profiles.IsKnown("ada"))
	rel, _, _ := users.Relation("profile")
	assert.Equal(t, []*graph.Record{pr}, rel.KnownOwningRecordsFor(u))

	_, err = pr.AssignIdentifier(map[string]any{"user_id": 2})
	assert.Error(t, err)
}

func TestDetach(t *testing.T) {
	g := newGraph(t)
	users, posts := g.MustTable("users"), g.MustTable("posts")
	u := users.MustHydrate(map[string]any{"id": 1, "name": "ada"})
	p := posts.MustHydrate(map[string]any{"id": 10, "user_id": 1})
	require.NoError(t, u.Load("posts", p))
	rel, _, _ := users.Relation("posts")

	p.Detach()
	assert.False(t, p.Exists())
	assert.Equal(t, "10", p.InternalID(), "persisted id is kept")
	assert.False(t, posts.IsKnown("10"))
	_, ok := g.Record(p.OID())
	assert.False(t, ok)
	assert.Empty(t, rel.KnownOwningRecordsFor(u))
	owners, err := u.Collection("posts")
	require.NoError(t, err)
	assert.Empty(t, owners)

	u.Detach()
	assert.Equal(t, 0, g.Len())
}

func TestFire(t *testing.T) {
	var calls []string
	s := schema.New(
		schema.NewTable("tags", field.String("name").Identifier()).
			Hook(schema.PreSave, func(_ context.Context, r schema.Record) error {
				calls = append(calls, "pre:"+r.Get("name").(string))
				return nil
			}).
			Hook(schema.PreDelete, func(context.Context, schema.Record) error {
				return errors.New("locked")
			}),
	)
	g, err := graph.New(s)
	require.NoError(t, err)
	tag := g.MustTable("tags").MustNew(map[string]any{"name": "go"})

	require.NoError(t, tag.Fire(context.Background(), schema.PreSave))
	require.NoError(t, tag.Fire(context.Background(), schema.PostSave))
	assert.Equal(t, []string{"pre:go"}, calls)
	err = tag.Fire(context.Background(), schema.PreDelete)
	assert.EqualError(t, err, "graph: preDelete hook on tags: locked")
}

func TestApplyUpdateDefaults(t *testing.T) {
	n := 0
	s := schema.New(schema.NewTable("counters",
		field.String("name").Identifier(),
		field.Int("ticks").UpdateDefault(func() any { n++; return n }),
	))
	g, err := graph.New(s)
	require.NoError(t, err)
	c := g.MustTable("counters").MustHydrate(map[string]any{"name": "a", "ticks": 0})

	require.NoError(t, c.ApplyUpdateDefaults())
	assert.Equal(t, int64(1), c.Get("ticks"))

	c.ClearModified()
	require.NoError(t, c.Set("ticks", 42))
	require.NoError(t, c.ApplyUpdateDefaults())
	assert.Equal(t, int64(42), c.Get("ticks"), "explicit changes win")
}
