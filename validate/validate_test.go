package validate_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
	"github.com/syssam/tether/validate"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(schema.New(
		schema.NewTable("users",
			field.Int("id").Identifier().Generated(),
			field.String("name").MaxLen(5),
			field.Enum("role").Values("admin", "member").Default("member"),
			field.String("email").Optional().Validate(func(v any) error {
				if !strings.Contains(v.(string), "@") {
					return errors.New("missing @")
				}
				return nil
			}),
		),
		schema.NewTable("posts",
			field.Int("id").Identifier().Generated(),
			field.Int("user_id"),
		),
	).Relate(edge.Reference("posts", "user_id").To("users")))
	require.NoError(t, err)
	return g
}

func TestValidate(t *testing.T) {
	g := testGraph(t)
	users := g.MustTable("users")
	v := validate.New()

	u := users.MustNew(map[string]any{"name": "ada"})
	assert.True(t, v.Validate(u), "generated identifier may be nil before insert")
	assert.True(t, u.Errors().Empty())

	bad := users.MustNew(map[string]any{"name": "grace hopper", "role": "owner", "email": "nope"})
	assert.False(t, v.Validate(bad))
	assert.Equal(t, []string{validate.CodeLength}, bad.Errors()["name"])
	assert.Equal(t, []string{validate.CodeEnum}, bad.Errors()["role"])
	assert.Equal(t, []string{validate.CodeInvalid}, bad.Errors()["email"])

	require.NoError(t, bad.Set("name", nil))
	require.NoError(t, bad.Set("role", "admin"))
	require.NoError(t, bad.Set("email", nil))
	assert.False(t, v.Validate(bad))
	assert.Equal(t, "name: notnull", bad.Errors().String(), "the stack is cleared first")

	stored := users.MustHydrate(map[string]any{"id": 1, "name": "x", "role": "admin"})
	require.NoError(t, stored.Set("id", nil))
	assert.False(t, v.Validate(stored))
	assert.True(t, stored.Errors().Has("id"))
}

func TestValidatePendingReference(t *testing.T) {
	g := testGraph(t)
	v := validate.New()
	u := g.MustTable("users").MustNew(map[string]any{"name": "ada"})
	p := g.MustTable("posts").MustNew(nil)

	assert.False(t, v.Validate(p))
	assert.Equal(t, []string{validate.CodeNotNull}, p.Errors()["user_id"])

	require.NoError(t, p.SetReference("user", u))
	assert.True(t, v.Validate(p), "the key arrives when the user is inserted")
}

func TestValidateLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	g := testGraph(t)
	u := g.MustTable("users").MustNew(map[string]any{"name": "ada", "email": "nope"})

	assert.False(t, validate.New(validate.WithLogger(log)).Validate(u))
	assert.Contains(t, buf.String(), "missing @")
	assert.Contains(t, buf.String(), "field=email")
}

func TestChain(t *testing.T) {
	g := testGraph(t)
	u := g.MustTable("users").MustNew(map[string]any{"name": "ada"})
	calls := 0
	reserved := validate.Func(func(r *graph.Record) bool {
		calls++
		if r.Get("name") == "root" {
			r.Errors().Add("name", "reserved")
			return false
		}
		return true
	})
	v := validate.Chain(validate.New(), reserved)

	assert.True(t, v.Validate(u))
	require.NoError(t, u.Set("name", "root"))
	assert.False(t, v.Validate(u))
	assert.Equal(t, []string{"reserved"}, u.Errors()["name"])
	assert.Equal(t, 2, calls)
}
