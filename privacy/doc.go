// Package privacy provides mutation policies evaluated by the unit of work
// before a commit touches storage.
//
// A policy is an ordered list of rules. Each rule returns one of the
// decisions Allow, Deny or Skip (nil counts as Skip):
//
//	policy := privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.OnTable(privacy.IsOwner("user_id"), "posts"),
//	    privacy.DenyMutationOperationRule(privacy.OpDelete),
//	}
//	work := uow.New(storage, uow.WithPolicy(policy))
//
// The viewer is stored in the context passed to CommitChanges:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "7"})
//
// A denied mutation aborts the commit before any statement is issued; the
// returned error matches privacy.Deny with errors.Is.
package privacy
