package uow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/graph/refmap"
	"github.com/syssam/tether/privacy"
	"github.com/syssam/tether/validate"
)

// Op is the operation a record is scheduled for.
type Op uint8

// Scheduled operations.
const (
	OpSave Op = iota + 1
	OpDelete
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Validator checks a record before it is written. Failures are written into
// the record error stack.
type Validator interface {
	Validate(*graph.Record) bool
}

// CommitHook is called after a successful commit with the applied changes.
type CommitHook func(context.Context, *ChangeSet)

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithValidator sets the validator run on every record scheduled for save.
// A nil validator disables validation. Default is validate.New().
func WithValidator(v Validator) Option {
	return func(uw *UnitOfWork) {
		uw.validator = v
	}
}

// WithPolicy sets the privacy policy evaluated for every scheduled write
// before the transaction starts.
func WithPolicy(p privacy.MutationRule) Option {
	return func(uw *UnitOfWork) {
		uw.policy = p
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(uw *UnitOfWork) {
		uw.log = l
	}
}

// WithMetrics sets the collectors updated while scheduling and committing.
func WithMetrics(m *Metrics) Option {
	return func(uw *UnitOfWork) {
		uw.metrics = m
	}
}

// OnCommit adds a hook called after every successful commit.
func OnCommit(hooks ...CommitHook) Option {
	return func(uw *UnitOfWork) {
		uw.onCommit = append(uw.onCommit, hooks...)
	}
}

// restriction is a deferred RESTRICT or NO ACTION obligation: owner must be
// scheduled for delete by commit time because ref is.
type restriction struct {
	rel   *graph.Relation
	owner *graph.Record
	ref   *graph.Record
}

// UnitOfWork schedules record writes and commits them in one transaction.
type UnitOfWork struct {
	storage   dialect.Storage
	validator Validator
	policy    privacy.MutationRule
	log       *slog.Logger
	metrics   *Metrics
	onCommit  []CommitHook

	scheduled map[refmap.OID]Op
	order     []refmap.OID // replay order
	records   map[refmap.OID]*graph.Record
	restrict  map[refmap.OID]restriction
	blocked   []refmap.OID // restrict insertion order

	// undo reverts the foreign keys changed by the running schedule call;
	// nil outside of one.
	undo []func()
}

// New returns a unit of work writing to storage.
func New(storage dialect.Storage, opts ...Option) *UnitOfWork {
	uw := &UnitOfWork{
		storage:   storage,
		validator: validate.New(),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(uw)
	}
	uw.ResetScheduled()
	return uw
}

// IsScheduled reports whether r is scheduled. With ops given, it reports
// whether r is scheduled for one of them.
func (uw *UnitOfWork) IsScheduled(r *graph.Record, ops ...Op) bool {
	op, ok := uw.scheduled[r.OID()]
	if !ok || len(ops) == 0 {
		return ok
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// Scheduled returns the scheduled records in replay order.
func (uw *UnitOfWork) Scheduled() []*graph.Record {
	rs := make([]*graph.Record, 0, len(uw.order))
	for _, oid := range uw.order {
		rs = append(rs, uw.records[oid])
	}
	return rs
}

// Len returns the number of scheduled records.
func (uw *UnitOfWork) Len() int { return len(uw.order) }

// ResetScheduled drops every scheduled operation and deferred constraint.
func (uw *UnitOfWork) ResetScheduled() {
	uw.scheduled = make(map[refmap.OID]Op)
	uw.order = nil
	uw.records = make(map[refmap.OID]*graph.Record)
	uw.restrict = make(map[refmap.OID]restriction)
	uw.blocked = nil
}

// schedule records op for r. A record keeps its replay position unless its
// operation changes, in which case it moves to the end.
func (uw *UnitOfWork) schedule(r *graph.Record, op Op) {
	oid := r.OID()
	prev, ok := uw.scheduled[oid]
	switch {
	case ok && prev == op:
		return
	case ok:
		for i, o := range uw.order {
			if o == oid {
				uw.order = append(uw.order[:i], uw.order[i+1:]...)
				break
			}
		}
	}
	uw.scheduled[oid] = op
	uw.order = append(uw.order, oid)
	uw.records[oid] = r
	uw.metrics.scheduled(op)
	uw.log.Debug("record scheduled", "record", r.String(), "op", op.String())
}

// deferRestrict records a RESTRICT or NO ACTION obligation of owner. The first
// obligation recorded for an owner is kept.
func (uw *UnitOfWork) deferRestrict(rel *graph.Relation, owner, ref *graph.Record) {
	oid := owner.OID()
	if _, ok := uw.restrict[oid]; ok {
		return
	}
	uw.restrict[oid] = restriction{rel: rel, owner: owner, ref: ref}
	uw.blocked = append(uw.blocked, oid)
	uw.log.Debug("delete restricted until commit", "record", owner.String(), "relation", rel.Name())
}

// atomically runs a schedule call. If fn fails, the schedule is restored and
// the foreign keys changed by referential actions are set back.
func (uw *UnitOfWork) atomically(fn func() error) error {
	if uw.undo != nil {
		return fn()
	}
	var (
		scheduled = maps.Clone(uw.scheduled)
		order     = slices.Clone(uw.order)
		records   = maps.Clone(uw.records)
		restrict  = maps.Clone(uw.restrict)
		blocked   = slices.Clone(uw.blocked)
	)
	uw.undo = []func(){}
	err := fn()
	undo := uw.undo
	uw.undo = nil
	if err == nil {
		return nil
	}
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	uw.scheduled, uw.order, uw.records = scheduled, order, records
	uw.restrict, uw.blocked = restrict, blocked
	uw.log.Debug("schedule reverted", "error", err)
	return err
}

// setForeignKey sets the foreign key field of owner to v and records how to
// set it back.
func (uw *UnitOfWork) setForeignKey(owner *graph.Record, field string, v any) error {
	old := owner.Get(field)
	if err := owner.Set(field, v); err != nil {
		return err
	}
	if uw.undo != nil {
		uw.undo = append(uw.undo, func() { _ = owner.Set(field, old) })
	}
	return nil
}
