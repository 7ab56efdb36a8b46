package load

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tether"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
)

const blog = `
tables:
  - name: users
    mixins: [time]
    comment: registered accounts
    fields:
      - {name: id, type: int, identifier: true, generated: true}
      - {name: name, type: string, max_len: 40}
      - {name: role, type: enum, values: [admin, member], default: member}
      - {name: score, type: float, default: 1.5}
  - name: posts
    fields:
      - {name: id, type: uuid, identifier: true}
      - {name: user_id, type: int, optional: true}
      - {name: seen_at, type: time, optional: true, default: now, update_default: now}
relations:
  - owning: posts.user_id
    references: users
    alias: {owning: author, referenced: articles}
    on_delete: set_null
    on_update: cascade
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(blog))
	require.NoError(t, err)
	require.Len(t, s.Tables, 2)

	users := s.Table("users")
	require.NotNil(t, users)
	assert.Equal(t, "registered accounts", users.Comment)
	assert.Equal(t, []string{"id"}, users.Identifier())
	for _, name := range []string{"created_at", "updated_at", "id", "name", "role", "score"} {
		assert.NotNil(t, users.Field(name), name)
	}
	assert.True(t, users.Field("id").Generated)
	assert.Equal(t, 40, users.Field("name").Size)
	assert.Equal(t, []string{"admin", "member"}, users.Field("role").Enums)
	assert.Equal(t, "member", users.Field("role").Default())
	assert.Equal(t, 1.5, users.Field("score").Default())

	posts := s.Table("posts")
	require.NotNil(t, posts)
	assert.Equal(t, field.TypeUUID, posts.Field("id").Type)
	seen := posts.Field("seen_at")
	require.NotNil(t, seen.UpdateDefault)
	assert.IsType(t, time.Time{}, seen.Default())

	require.Len(t, s.Relations, 1)
	rel := s.Relations[0]
	assert.Equal(t, "posts", rel.OwningTable)
	assert.Equal(t, "user_id", rel.OwningField)
	assert.Equal(t, "users", rel.ReferencedTable)
	assert.Equal(t, "id", rel.ReferencedField, "referenced field defaults to the identifier")
	assert.Equal(t, "author", rel.OwningAlias)
	assert.Equal(t, "articles", rel.ReferencedAlias)
	assert.Equal(t, edge.SetNull, rel.OnDelete)
	assert.Equal(t, edge.Cascade, rel.OnUpdate)
	assert.True(t, rel.IsOneToMany())
}

func TestParseEmpty(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, s.Tables)
}

func TestParseUnique(t *testing.T) {
	s, err := Parse([]byte(`
tables:
  - name: users
    fields: [{name: id, type: int, identifier: true}]
  - name: profiles
    fields:
      - {name: id, type: int, identifier: true}
      - {name: user_id, type: int}
relations:
  - {owning: profiles.user_id, references: users.id, unique: true}
`))
	require.NoError(t, err)
	rel := s.Relations[0]
	assert.False(t, rel.IsOneToMany())
	assert.Equal(t, edge.NoAction, rel.OnDelete)
	assert.NotEmpty(t, rel.OwningAlias)
	assert.NotEmpty(t, rel.ReferencedAlias)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown key",
			doc:  "tables: [{name: users, colour: red}]",
			want: "field colour not found",
		},
		{
			name: "unknown type",
			doc:  "tables: [{name: users, fields: [{name: id, type: decimal}]}]",
			want: "field id",
		},
		{
			name: "unknown mixin",
			doc:  "tables: [{name: users, mixins: [audit], fields: [{name: id, type: int, identifier: true}]}]",
			want: `unknown mixin "audit"`,
		},
		{
			name: "bad default",
			doc:  "tables: [{name: users, fields: [{name: id, type: int, identifier: true, default: abc}]}]",
			want: "field id: default",
		},
		{
			name: "update default on string",
			doc:  "tables: [{name: users, fields: [{name: id, type: string, identifier: true, update_default: now}]}]",
			want: "update_default now requires a time field",
		},
		{
			name: "bad owning",
			doc:  "relations: [{owning: posts, references: users}]",
			want: `owning must be table.field`,
		},
		{
			name: "missing references",
			doc:  "relations: [{owning: posts.user_id}]",
			want: "missing references",
		},
		{
			name: "bad action",
			doc:  "relations: [{owning: posts.user_id, references: users, on_delete: explode}]",
			want: "explode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSchemaError(t *testing.T) {
	_, err := Parse([]byte(`
tables:
  - name: posts
    fields:
      - {name: id, type: int, identifier: true}
      - {name: user_id, type: int}
relations:
  - {owning: posts.user_id, references: users}
`))
	require.Error(t, err)
	assert.True(t, tether.IsSchemaError(err))
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	tables := filepath.Join(dir, "tables.yaml")
	relations := filepath.Join(dir, "relations.yaml")
	require.NoError(t, os.WriteFile(tables, []byte(`
tables:
  - name: users
    mixins: [id]
  - name: posts
    mixins: [id, version]
    fields:
      - {name: user_id, type: uuid}
`), 0o600))
	require.NoError(t, os.WriteFile(relations, []byte(`
relations:
  - {owning: posts.user_id, references: users, on_delete: cascade}
`), 0o600))

	s, err := Files(context.Background(), tables, relations)
	require.NoError(t, err)
	require.Len(t, s.Tables, 2)
	assert.Equal(t, "users", s.Tables[0].Name)
	assert.Equal(t, "posts", s.Tables[1].Name)
	assert.NotNil(t, s.Table("posts").Field("version"))
	require.Len(t, s.Relations, 1)
	assert.Equal(t, edge.Cascade, s.Relations[0].OnDelete)

	_, err = Files(context.Background(), tables, filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Files(ctx, tables)
	assert.ErrorIs(t, err, context.Canceled)
}
