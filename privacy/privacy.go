package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Policy decision sentinel errors. Rules return them, possibly wrapped;
// match with errors.Is.
var (
	// Allow terminates the evaluation with an allow decision.
	Allow = errors.New("tether/privacy: allow rule")

	// Deny terminates the evaluation with a deny decision.
	Deny = errors.New("tether/privacy: deny rule")

	// Skip continues the evaluation with the next rule.
	Skip = errors.New("tether/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Op is the write a mutation performs.
type Op uint8

// Mutation operations.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o matches any of the operations in ops.
func (o Op) Is(ops Op) bool { return o&ops != 0 }

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Mutation is one scheduled write of a record, as seen by rules.
type Mutation interface {
	Op() Op
	// Table returns the table of the written record.
	Table() string
	// Fields returns the fields written: every set field on create, the
	// modified fields on update and nothing on delete.
	Fields() []string
	// Field returns the value the record will be written with.
	Field(name string) (any, bool)
	// OldField returns the value before the mutation, for updates and deletes.
	OldField(name string) (any, bool)
}

// MutationRule decides whether a mutation is allowed.
type MutationRule interface {
	EvalMutation(context.Context, Mutation) error
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m Mutation) error {
	return f(ctx, m)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() MutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() MutationRule {
	return fixedDecision{Deny}
}

// ContextMutationRule creates a rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextMutationRule(eval func(context.Context) error) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ Mutation) error {
		return eval(ctx)
	})
}

// OnMutationOperation evaluates the given rule only on the given operations.
func OnMutationOperation(rule MutationRule, op Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// OnTable evaluates the given rule only on mutations of the given tables.
func OnTable(rule MutationRule, tables ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		if slices.Contains(tables, m.Table()) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given operations.
func DenyMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m Mutation) error {
		return Denyf("tether/privacy: operation %s on %s is not allowed", m.Op(), m.Table())
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing the given operations.
func AllowMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// Policy is an ordered list of rules. The first rule returning a decision
// other than Skip (or nil) ends the evaluation. A policy where every rule
// skips allows the mutation.
type Policy []MutationRule

// EvalMutation evaluates the policy. An Allow decision is reported as nil.
// A decision stored in the context with DecisionContext takes precedence.
func (p Policy) EvalMutation(ctx context.Context, m Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalMutation(context.Context, Mutation) error {
	return f.decision
}
