package uow

import (
	"fmt"

	"github.com/syssam/tether"
	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/graph/refmap"
	"github.com/syssam/tether/schema/edge"
)

// visited guards a save walk against relation cycles.
type visited map[refmap.OID]bool

// ScheduleSave schedules r for save, together with the records the save
// depends on or carries along:
//
//   - loaded referenced records that are new or changed their key, so they
//     are written first;
//   - loaded owning records, so attached records travel with their parent;
//   - known owning records whose foreign key follows a changed key of r
//     (ON UPDATE CASCADE and SET NULL).
//
// Records of views are ignored. A record is scheduled itself only if it is
// new or modified. Changing a key that is still referenced through a RESTRICT
// or NO ACTION relation fails immediately with a ConstraintError.
//
// On error the schedule and the foreign keys changed by the call are
// restored.
func (uw *UnitOfWork) ScheduleSave(r *graph.Record) error {
	return uw.atomically(func() error {
		return uw.scheduleSave(r, visited{})
	})
}

func (uw *UnitOfWork) scheduleSave(r *graph.Record, seen visited) error {
	t := r.Table()
	if t.IsView() || seen[r.OID()] {
		return nil
	}
	seen[r.OID()] = true
	if uw.IsScheduled(r, OpDelete) {
		return tether.NewConflictingScheduleError(r.TableName(), r.InternalID())
	}
	if r.Exists() {
		if err := checkUpdate(r); err != nil {
			return err
		}
	}
	for _, rel := range t.OwningRelations() {
		ref, ok := rel.CurrentReferenceFor(r)
		if !ok || (ref.Exists() && !ref.IdentifierModified()) {
			continue
		}
		if err := uw.scheduleSave(ref, seen); err != nil {
			return err
		}
	}
	if !r.Exists() || r.IsModified() {
		uw.schedule(r, OpSave)
	}
	for _, rel := range t.ReferencedRelations() {
		for _, owner := range rel.LoadedOwningRecordsFor(r) {
			// Pending deletes of attached records win over the parent save.
			if uw.IsScheduled(owner, OpDelete) {
				continue
			}
			if err := uw.scheduleSave(owner, seen); err != nil {
				return err
			}
		}
	}
	if !r.Exists() {
		return nil
	}
	return uw.enforceUpdate(r, seen)
}

// checkUpdate fails if a modified referenced key of r is still used by a
// known owning record through a RESTRICT or NO ACTION relation.
func checkUpdate(r *graph.Record) error {
	for _, rel := range r.Table().ReferencedRelations() {
		action := rel.OnUpdate()
		if !action.Blocks() || !r.IsFieldModified(rel.ReferencedField()) {
			continue
		}
		for _, owner := range rel.KnownOwningRecordsFor(r) {
			if owner.IsFieldModified(rel.OwningField()) {
				continue
			}
			return tether.NewConstraintError(rel.Name(), string(action), owner.TableName(), owner.InternalID(),
				fmt.Sprintf("cannot change key of %s", r))
		}
	}
	return nil
}

// enforceUpdate applies the ON UPDATE action of every relation whose
// referenced key of r was modified. checkUpdate has rejected the other
// actions.
func (uw *UnitOfWork) enforceUpdate(r *graph.Record, seen visited) error {
	for _, rel := range r.Table().ReferencedRelations() {
		key := rel.ReferencedField()
		action := rel.OnUpdate()
		if !r.IsFieldModified(key) || action.Blocks() {
			continue
		}
		for _, owner := range rel.KnownOwningRecordsFor(r) {
			fk := rel.OwningField()
			if owner.IsFieldModified(fk) {
				continue
			}
			v := r.Get(key)
			if action == edge.SetNull {
				v = nil
			}
			if err := uw.setForeignKey(owner, fk, v); err != nil {
				return err
			}
			if err := uw.saveDependent(owner, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// saveDependent schedules an owning record whose foreign key was changed by
// a referential action. The record may already have been visited by the
// current walk before it was modified.
func (uw *UnitOfWork) saveDependent(owner *graph.Record, seen visited) error {
	if !seen[owner.OID()] {
		return uw.scheduleSave(owner, seen)
	}
	if uw.IsScheduled(owner, OpDelete) {
		return tether.NewConflictingScheduleError(owner.TableName(), owner.InternalID())
	}
	uw.schedule(owner, OpSave)
	return nil
}

// ScheduleDelete schedules r for delete and applies the ON DELETE action of
// every relation pointing at its table to the known owning records:
// CASCADE schedules them for delete, SET NULL clears their foreign key and
// schedules them for save, RESTRICT and NO ACTION require them to be
// scheduled for delete by commit time.
//
// Records of views are ignored. A record that was never persisted has no
// row to delete, but unlike a plain no-op, deleting a record scheduled for
// save drops that save: a record attached and then deleted within one unit
// of work is never written.
//
// On error the schedule and the foreign keys changed by the call are
// restored.
func (uw *UnitOfWork) ScheduleDelete(r *graph.Record) error {
	return uw.atomically(func() error {
		return uw.scheduleDelete(r, visited{})
	})
}

// scheduleDelete walks cascades depth first; seen stops relation cycles
// before the records on the cycle are scheduled.
func (uw *UnitOfWork) scheduleDelete(r *graph.Record, seen visited) error {
	if r.Table().IsView() || seen[r.OID()] || uw.IsScheduled(r, OpDelete) {
		return nil
	}
	seen[r.OID()] = true
	if !r.Exists() {
		if uw.IsScheduled(r, OpSave) {
			uw.schedule(r, OpDelete)
		}
		return nil
	}
	for _, rel := range r.Table().ReferencedRelations() {
		for _, owner := range rel.KnownOwningRecordsFor(r) {
			if cur, _ := rel.CurrentReferenceFor(owner); cur != r || uw.IsScheduled(owner, OpDelete) {
				continue
			}
			switch rel.OnDelete() {
			case edge.Cascade:
				if err := uw.scheduleDelete(owner, seen); err != nil {
					return err
				}
			case edge.SetNull:
				if err := uw.setForeignKey(owner, rel.OwningField(), nil); err != nil {
					return err
				}
				if err := uw.scheduleSave(owner, visited{}); err != nil {
					return err
				}
			default:
				uw.deferRestrict(rel, owner, r)
			}
		}
	}
	uw.schedule(r, OpDelete)
	return nil
}
