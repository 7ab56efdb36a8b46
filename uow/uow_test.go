package uow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/dialect/memory"
	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
	"github.com/syssam/tether/uow"
)

func testSchema() *schema.Schema {
	return schema.New(
		schema.NewTable("users",
			field.Int("id").Identifier().Generated(),
			field.String("name").MaxLen(10),
		),
		schema.NewTable("posts",
			field.Int("id").Identifier().Generated(),
			field.Int("user_id").Optional(),
			field.String("title").Default("untitled"),
		),
		schema.NewTable("comments",
			field.Int("id").Identifier().Generated(),
			field.Int("post_id").Optional(),
			field.Int("author_id").Optional(),
		),
		schema.NewTable("accounts",
			field.String("handle").Identifier(),
		),
		schema.NewTable("memberships",
			field.Int("id").Identifier().Generated(),
			field.String("account"),
		),
		schema.NewTable("badges",
			field.Int("id").Identifier().Generated(),
			field.String("account").Optional(),
		),
		schema.NewTable("locks",
			field.Int("id").Identifier().Generated(),
			field.String("account"),
		),
		schema.NewTable("nodes",
			field.Int("id").Identifier().Generated(),
			field.Int("peer_id").Optional(),
		),
		schema.NewView("user_stats",
			field.Int("user_id"),
			field.Int("total"),
		),
	).Relate(
		edge.Reference("posts", "user_id").To("users").OnDelete(edge.Cascade),
		edge.Reference("comments", "post_id").To("posts").OnDelete(edge.Cascade),
		edge.Reference("comments", "author_id").To("users").Alias("author", "").OnDelete(edge.Cascade),
		edge.Reference("memberships", "account").To("accounts").OnUpdate(edge.Cascade).OnDelete(edge.Restrict),
		edge.Reference("badges", "account").To("accounts").OnUpdate(edge.SetNull).OnDelete(edge.SetNull),
		edge.Reference("locks", "account").To("accounts").OnUpdate(edge.Restrict),
		edge.Reference("nodes", "peer_id").To("nodes").Unique().Alias("peer", "peered_by"),
	)
}

type fixture struct {
	g     *graph.Graph
	store *memory.Storage
	uw    *uow.UnitOfWork
	mark  int
}

func newFixture(t *testing.T, opts ...uow.Option) *fixture {
	t.Helper()
	g, err := graph.New(testSchema())
	require.NoError(t, err)
	store := memory.New()
	opts = append([]uow.Option{uow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return &fixture{g: g, store: store, uw: uow.New(store, opts...)}
}

func (f *fixture) new(t *testing.T, table string, values map[string]any) *graph.Record {
	t.Helper()
	r, err := f.g.MustTable(table).New(values)
	require.NoError(t, err)
	return r
}

// seed saves and commits rs. Statements issued so far are excluded from
// issued().
func (f *fixture) seed(t *testing.T, rs ...*graph.Record) {
	t.Helper()
	for _, r := range rs {
		require.NoError(t, f.uw.ScheduleSave(r))
	}
	require.NoError(t, f.uw.CommitChanges(context.Background()))
	f.mark = len(f.store.Issued())
}

func (f *fixture) issued() []memory.Statement {
	return f.store.Issued()[f.mark:]
}

func (f *fixture) commit(t *testing.T) {
	t.Helper()
	require.NoError(t, f.uw.CommitChanges(context.Background()))
}

func (f *fixture) row(t *testing.T, table string, id dialect.Row) dialect.Row {
	t.Helper()
	row, ok := f.store.Row(table, id)
	require.True(t, ok, "row %s %v", table, id)
	return row
}

// kinds renders statements as "insert users".
func kinds(stmts []memory.Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = string(s.Op) + " " + s.Table
	}
	return out
}
