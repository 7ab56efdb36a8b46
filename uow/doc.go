// Package uow implements the unit of work: a session scoped scheduler that
// records which records of a graph must be saved or deleted, and a committer
// that replays the schedule against a dialect.Storage in one transaction.
//
// Scheduling walks the relation graph from the given record. Saving a record
// brings along the referenced records it needs a key from and the owning
// records attached to it; deleting a record applies the ON DELETE action of
// every relation pointing at it. Referential actions are enforced in memory,
// so storage does not need foreign key constraints:
//
//	uw := uow.New(memory.New())
//	user := g.MustTable("users").MustNew(map[string]any{"name": "a8m"})
//	post := g.MustTable("posts").MustNew(map[string]any{"title": "hello"})
//	if err := user.Add("posts", post); err != nil {
//		return err
//	}
//	if err := uw.ScheduleSave(user); err != nil {
//		return err
//	}
//	if err := uw.CommitChanges(ctx); err != nil {
//		return err
//	}
//
// RESTRICT and NO ACTION behave the same way. Changing a referenced key that
// is still in use fails when the save is scheduled. Deleting a referenced
// record that is still in use fails at commit, unless the owning record was
// scheduled for delete as well by then.
//
// A UnitOfWork is not safe for concurrent use.
package uow
