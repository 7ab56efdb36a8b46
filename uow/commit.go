package uow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/syssam/tether"
	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/graph/refmap"
	"github.com/syssam/tether/schema"
)

// CommitChanges writes the scheduled operations in one transaction.
//
// Deferred RESTRICT and NO ACTION obligations, the privacy policy and the
// validator are checked first; their failures are returned before the
// transaction starts. Statements are then issued in scheduling order. A
// failing statement or hook rolls the transaction back and its error is
// returned unchanged; a failing rollback is joined as a *tether.RollbackError.
// When the transaction does not commit, the graphs of the scheduled records
// are restored to their state before the call and the schedule is kept, so
// the commit can be retried.
//
// On success the schedule is reset and the OnCommit hooks are called.
// Nothing is done, and storage is not touched, if nothing is scheduled.
func (uw *UnitOfWork) CommitChanges(ctx context.Context) error {
	if len(uw.order) == 0 {
		return nil
	}
	start := time.Now()
	if err := uw.preflight(ctx); err != nil {
		uw.metrics.commit(resultRejected)
		return err
	}
	tx, err := uw.storage.Begin(ctx)
	if err != nil {
		uw.metrics.commit(resultFailed)
		return err
	}
	snaps := uw.snapshot()
	c := &committer{uw: uw, tx: tx, written: make(map[refmap.OID]bool), changes: &ChangeSet{}}
	if err := c.replay(ctx); err != nil {
		uw.metrics.commit(resultRolledBack)
		err = uw.rollback(tx, err)
		restore(snaps)
		return err
	}
	if err := tx.Commit(); err != nil {
		uw.metrics.commit(resultFailed)
		uw.log.Warn("commit failed", "error", err)
		restore(snaps)
		return err
	}
	uw.metrics.commit(resultCommitted)
	uw.log.Info("changes committed",
		"records", len(uw.order),
		"statements", len(c.changes.Changes),
		"duration", time.Since(start),
	)
	uw.ResetScheduled()
	for _, h := range uw.onCommit {
		h(ctx, c.changes)
	}
	return nil
}

// preflight runs the checks that do not need storage.
func (uw *UnitOfWork) preflight(ctx context.Context) error {
	for _, oid := range uw.blocked {
		rs := uw.restrict[oid]
		if uw.IsScheduled(rs.owner, OpDelete) {
			continue
		}
		return tether.NewConstraintError(rs.rel.Name(), string(rs.rel.OnDelete()), rs.owner.TableName(), rs.owner.InternalID(),
			fmt.Sprintf("cannot delete %s", rs.ref))
	}
	if uw.policy != nil {
		for _, oid := range uw.order {
			m, ok := newMutation(uw.records[oid], uw.scheduled[oid])
			if !ok {
				continue
			}
			if err := uw.policy.EvalMutation(ctx, m); err != nil {
				return fmt.Errorf("uow: %s %s: %w", m.Op(), uw.records[oid], err)
			}
		}
	}
	if uw.validator == nil {
		return nil
	}
	for _, oid := range uw.order {
		r := uw.records[oid]
		if uw.scheduled[oid] != OpSave || uw.validator.Validate(r) {
			continue
		}
		return tether.NewValidationError(r.TableName(), r.InternalID(), r.Errors())
	}
	return nil
}

// snapshot copies the graphs of the scheduled records.
func (uw *UnitOfWork) snapshot() []*graph.Snapshot {
	var (
		snaps []*graph.Snapshot
		seen  = make(map[*graph.Graph]bool)
	)
	for _, oid := range uw.order {
		g := uw.records[oid].Table().Graph()
		if !seen[g] {
			seen[g] = true
			snaps = append(snaps, g.Snapshot())
		}
	}
	return snaps
}

func restore(snaps []*graph.Snapshot) {
	for _, s := range snaps {
		s.Restore()
	}
}

// rollback rolls tx back after err.
func (uw *UnitOfWork) rollback(tx dialect.Tx, err error) error {
	uw.log.Warn("rolling back", "error", err)
	if rerr := tx.Rollback(); rerr != nil {
		return errors.Join(err, &tether.RollbackError{Err: rerr})
	}
	return err
}

// committer replays one schedule inside a transaction.
type committer struct {
	uw      *UnitOfWork
	tx      dialect.Tx
	written map[refmap.OID]bool
	changes *ChangeSet
}

func (c *committer) replay(ctx context.Context) error {
	for _, oid := range c.uw.order {
		r := c.uw.records[oid]
		var err error
		switch c.uw.scheduled[oid] {
		case OpSave:
			err = c.save(ctx, r)
		case OpDelete:
			if !r.Exists() {
				c.uw.log.Debug("dropping delete of unsaved record", "record", r.String())
				continue
			}
			err = c.delete(ctx, r)
		}
		if err != nil {
			return err
		}
		c.written[oid] = true
	}
	return nil
}

func (c *committer) save(ctx context.Context, r *graph.Record) error {
	if err := r.Fire(ctx, schema.PreSave); err != nil {
		return err
	}
	var err error
	if r.Exists() {
		err = c.update(ctx, r)
	} else {
		err = c.insert(ctx, r)
	}
	if err != nil {
		return err
	}
	return r.Fire(ctx, schema.PostSave)
}

func (c *committer) insert(ctx context.Context, r *graph.Record) error {
	if err := r.Fire(ctx, schema.PreInsert); err != nil {
		return err
	}
	t := r.Table()
	info := tableInfo(t)
	values := dialect.Row{}
	for _, f := range t.Fields() {
		v := r.Get(f.Name)
		if v == nil && f.Name == info.Generated {
			continue
		}
		values[f.Name] = v
	}
	if _, err := c.tx.Insert(ctx, info, values); err != nil {
		return err
	}
	c.uw.metrics.statement(KindInsert)
	key := r.Identifier()
	if g := info.Generated; g != "" && key[g] == nil {
		id, err := c.tx.LastInsertID(ctx, info)
		if err != nil {
			return err
		}
		key[g] = id
		values[g] = id
	}
	touched, err := r.AssignIdentifier(key)
	if err != nil {
		return err
	}
	c.changes.add(KindInsert, r, values)
	if err := c.fixup(ctx, r, touched); err != nil {
		return err
	}
	return r.Fire(ctx, schema.PostInsert)
}

func (c *committer) update(ctx context.Context, r *graph.Record) error {
	if err := r.ApplyUpdateDefaults(); err != nil {
		return err
	}
	if err := r.Fire(ctx, schema.PreUpdate); err != nil {
		return err
	}
	if err := c.write(ctx, r); err != nil {
		return err
	}
	return r.Fire(ctx, schema.PostUpdate)
}

// write issues the UPDATE of the modified fields of r, addressed by its
// identifier before the change.
func (c *committer) write(ctx context.Context, r *graph.Record) error {
	names := r.ModifiedFields()
	if len(names) == 0 {
		return nil
	}
	values := make(dialect.Row, len(names))
	for _, n := range names {
		values[n] = r.Get(n)
	}
	if err := c.tx.Update(ctx, tableInfo(r.Table()), values, r.OriginalIdentifier()); err != nil {
		return err
	}
	c.uw.metrics.statement(KindUpdate)
	c.changes.add(KindUpdate, r, values)
	if !r.IdentifierModified() {
		r.ClearModified()
		return nil
	}
	touched, err := r.AssignIdentifier(r.Identifier())
	if err != nil {
		return err
	}
	return c.fixup(ctx, r, touched)
}

// fixup writes the foreign key of the owning records that got the key of r
// after they were already written in this transaction.
func (c *committer) fixup(ctx context.Context, r *graph.Record, touched []*graph.Record) error {
	for _, owner := range touched {
		if !c.written[owner.OID()] || !owner.Exists() {
			continue
		}
		c.uw.log.Debug("writing deferred foreign key", "record", owner.String(), "referenced", r.String())
		if err := c.write(ctx, owner); err != nil {
			return err
		}
	}
	return nil
}

func (c *committer) delete(ctx context.Context, r *graph.Record) error {
	if err := r.Fire(ctx, schema.PreDelete); err != nil {
		return err
	}
	id := r.OriginalIdentifier()
	if err := c.tx.Delete(ctx, tableInfo(r.Table()), id); err != nil {
		return err
	}
	c.uw.metrics.statement(KindDelete)
	c.changes.add(KindDelete, r, maps.Clone(id))
	r.Detach()
	return r.Fire(ctx, schema.PostDelete)
}

// tableInfo describes t to storage.
func tableInfo(t *graph.Table) dialect.TableInfo {
	info := dialect.TableInfo{
		Name:       t.Name(),
		Identifier: t.IdentifierFields(),
		Generated:  t.GeneratedField(),
	}
	for _, f := range t.Fields() {
		info.Columns = append(info.Columns, f.Name)
	}
	return info
}
