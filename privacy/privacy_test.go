package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/tether/privacy"
)

// mockMutation implements privacy.Mutation for testing.
type mockMutation struct {
	op     privacy.Op
	table  string
	values map[string]any
	old    map[string]any
}

func (m *mockMutation) Op() privacy.Op { return m.op }
func (m *mockMutation) Table() string  { return m.table }
func (m *mockMutation) Fields() []string {
	var names []string
	for n := range m.values {
		names = append(names, n)
	}
	return names
}
func (m *mockMutation) Field(name string) (any, bool) {
	v, ok := m.values[name]
	return v, ok
}
func (m *mockMutation) OldField(name string) (any, bool) {
	v, ok := m.old[name]
	return v, ok
}

func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name      string
		decision  error
		wantAllow bool
		wantDeny  bool
		wantSkip  bool
	}{
		{name: "allow", decision: privacy.Allow, wantAllow: true},
		{name: "deny", decision: privacy.Deny, wantDeny: true},
		{name: "skip", decision: privacy.Skip, wantSkip: true},
		{name: "allowf", decision: privacy.Allowf("user %s allowed", "admin"), wantAllow: true},
		{name: "denyf", decision: privacy.Denyf("user %s denied", "guest"), wantDeny: true},
		{name: "skipf", decision: privacy.Skipf("rule %d skipped", 1), wantSkip: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAllow, errors.Is(tt.decision, privacy.Allow))
			assert.Equal(t, tt.wantDeny, errors.Is(tt.decision, privacy.Deny))
			assert.Equal(t, tt.wantSkip, errors.Is(tt.decision, privacy.Skip))
		})
	}
	assert.EqualError(t, privacy.Denyf("user %s denied", "guest"), "user guest denied: tether/privacy: deny rule")
}

func TestOp(t *testing.T) {
	assert.True(t, privacy.OpCreate.Is(privacy.OpCreate|privacy.OpUpdate))
	assert.False(t, privacy.OpDelete.Is(privacy.OpCreate|privacy.OpUpdate))
	assert.Equal(t, "update", privacy.OpUpdate.String())
	assert.Equal(t, "op(8)", privacy.Op(8).String())
}

func TestFixedRules(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, privacy.AlwaysAllowRule().EvalMutation(ctx, &mockMutation{}), privacy.Allow)
	assert.ErrorIs(t, privacy.AlwaysDenyRule().EvalMutation(ctx, &mockMutation{}), privacy.Deny)

	rule := privacy.ContextMutationRule(func(ctx context.Context) error {
		if ctx.Value(ctxKey{}) != nil {
			return privacy.Allow
		}
		return nil
	})
	assert.NoError(t, rule.EvalMutation(ctx, &mockMutation{}))
	assert.ErrorIs(t, rule.EvalMutation(context.WithValue(ctx, ctxKey{}, true), &mockMutation{}), privacy.Allow)
}

type ctxKey struct{}

func TestOnMutationOperation(t *testing.T) {
	tests := []struct {
		name       string
		ruleOp     privacy.Op
		mutationOp privacy.Op
		want       error
	}{
		{"matching create", privacy.OpCreate, privacy.OpCreate, privacy.Deny},
		{"other op skips", privacy.OpCreate, privacy.OpUpdate, privacy.Skip},
		{"any of several", privacy.OpUpdate | privacy.OpDelete, privacy.OpDelete, privacy.Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := privacy.OnMutationOperation(privacy.AlwaysDenyRule(), tt.ruleOp)
			err := rule.EvalMutation(context.Background(), &mockMutation{op: tt.mutationOp})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := privacy.DenyMutationOperationRule(privacy.OpDelete).
		EvalMutation(context.Background(), &mockMutation{op: privacy.OpDelete, table: "users"})
	assert.EqualError(t, err, "tether/privacy: operation delete on users is not allowed: tether/privacy: deny rule")
	err = privacy.AllowMutationOperationRule(privacy.OpCreate).
		EvalMutation(context.Background(), &mockMutation{op: privacy.OpUpdate})
	assert.ErrorIs(t, err, privacy.Skip)
}

func TestOnTable(t *testing.T) {
	rule := privacy.OnTable(privacy.AlwaysDenyRule(), "users", "groups")
	assert.ErrorIs(t, rule.EvalMutation(context.Background(), &mockMutation{table: "groups"}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(context.Background(), &mockMutation{table: "posts"}), privacy.Skip)
}

func TestPolicy(t *testing.T) {
	called := privacy.MutationRuleFunc(func(context.Context, privacy.Mutation) error {
		panic("should not be called")
	})
	tests := []struct {
		name   string
		policy privacy.Policy
		want   error
	}{
		{"empty allows", nil, nil},
		{"allow stops", privacy.Policy{privacy.AlwaysAllowRule(), called}, nil},
		{"deny stops", privacy.Policy{privacy.AlwaysDenyRule(), called}, privacy.Deny},
		{"skip continues", privacy.Policy{
			privacy.ContextMutationRule(func(context.Context) error { return privacy.Skip }),
			privacy.AlwaysDenyRule(),
		}, privacy.Deny},
		{"all skip allows", privacy.Policy{
			privacy.ContextMutationRule(func(context.Context) error { return nil }),
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.EvalMutation(context.Background(), &mockMutation{})
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecisionContext(t *testing.T) {
	ctx := privacy.DecisionContext(context.Background(), privacy.Deny)
	decision, ok := privacy.DecisionFromContext(ctx)
	assert.True(t, ok)
	assert.ErrorIs(t, decision, privacy.Deny)
	assert.ErrorIs(t, privacy.Policy{privacy.AlwaysAllowRule()}.EvalMutation(ctx, &mockMutation{}), privacy.Deny)

	ctx = privacy.DecisionContext(context.Background(), privacy.Allow)
	decision, ok = privacy.DecisionFromContext(ctx)
	assert.True(t, ok)
	assert.NoError(t, decision)
	assert.NoError(t, privacy.Policy{privacy.AlwaysDenyRule()}.EvalMutation(ctx, &mockMutation{}))

	for _, d := range []error{nil, privacy.Skip} {
		_, ok = privacy.DecisionFromContext(privacy.DecisionContext(context.Background(), d))
		assert.False(t, ok)
	}
}

func TestViewerRules(t *testing.T) {
	admin := &privacy.SimpleViewer{UserID: "1", Roles: []string{"admin"}, TenantID: "acme"}
	guest := &privacy.SimpleViewer{UserID: "2", Roles: []string{"guest"}, TenantID: "acme"}
	anon := context.Background()
	asAdmin := privacy.WithViewer(anon, admin)
	asGuest := privacy.WithViewer(anon, guest)

	assert.Nil(t, privacy.ViewerFromContext(anon))
	assert.Equal(t, admin, privacy.ViewerFromContext(asAdmin))
	assert.Equal(t, "acme", admin.GetTenantID())

	m := &mockMutation{op: privacy.OpCreate, table: "posts", values: map[string]any{"user_id": int64(2), "tenant": "acme"}}

	t.Run("DenyIfNoViewer", func(t *testing.T) {
		assert.ErrorIs(t, privacy.DenyIfNoViewer().EvalMutation(anon, m), privacy.Deny)
		assert.ErrorIs(t, privacy.DenyIfNoViewer().EvalMutation(asGuest, m), privacy.Skip)
	})

	t.Run("HasRole", func(t *testing.T) {
		assert.ErrorIs(t, privacy.HasRole("admin").EvalMutation(asAdmin, m), privacy.Allow)
		assert.ErrorIs(t, privacy.HasRole("admin").EvalMutation(asGuest, m), privacy.Skip)
		assert.ErrorIs(t, privacy.HasAnyRole("editor", "guest").EvalMutation(asGuest, m), privacy.Allow)
		assert.ErrorIs(t, privacy.HasAnyRole("editor").EvalMutation(anon, m), privacy.Skip)
	})

	t.Run("IsOwner", func(t *testing.T) {
		assert.ErrorIs(t, privacy.IsOwner("user_id").EvalMutation(asGuest, m), privacy.Allow)
		assert.ErrorIs(t, privacy.IsOwner("user_id").EvalMutation(asAdmin, m), privacy.Skip)
		assert.ErrorIs(t, privacy.IsOwner("owner_id").EvalMutation(asGuest, m), privacy.Skip)

		del := &mockMutation{op: privacy.OpDelete, table: "posts", old: map[string]any{"user_id": "2"}}
		assert.ErrorIs(t, privacy.IsOwner("user_id").EvalMutation(asGuest, del), privacy.Allow)
	})

	t.Run("TenantRule", func(t *testing.T) {
		assert.ErrorIs(t, privacy.TenantRule("tenant").EvalMutation(asGuest, m), privacy.Allow)
		other := privacy.WithViewer(anon, &privacy.SimpleViewer{UserID: "3", TenantID: "globex"})
		assert.ErrorIs(t, privacy.TenantRule("tenant").EvalMutation(other, m), privacy.Deny)
		noTenant := privacy.WithViewer(anon, &privacy.SimpleViewer{UserID: "4"})
		assert.ErrorIs(t, privacy.TenantRule("tenant").EvalMutation(noTenant, m), privacy.Skip)
	})

	t.Run("Chain", func(t *testing.T) {
		policy := privacy.Policy{
			privacy.DenyIfNoViewer(),
			privacy.HasRole("admin"),
			privacy.IsOwner("user_id"),
			privacy.AlwaysDenyRule(),
		}
		assert.ErrorIs(t, policy.EvalMutation(anon, m), privacy.Deny)
		assert.NoError(t, policy.EvalMutation(asAdmin, m))
		assert.NoError(t, policy.EvalMutation(asGuest, m))
		stranger := privacy.WithViewer(anon, &privacy.SimpleViewer{UserID: "9"})
		assert.ErrorIs(t, policy.EvalMutation(stranger, m), privacy.Deny)
	})
}
