// Package edge provides fluent builders for defining foreign-key relations
// between tables.
//
// A relation has two sides. The owning side holds the foreign key field,
// the referenced side is pointed at:
//
//	// posts.user_id references users.id, a user has many posts.
//	edge.Reference("posts", "user_id").To("users")
//
//	// profiles.user_id references users.id, a user has one profile.
//	edge.Reference("profiles", "user_id").To("users").Unique()
//
// # Aliases
//
// Each side is reachable from records of the other side through an alias.
// Without explicit aliases they are derived from the table names:
//
//	edge.Reference("posts", "user_id").To("users")                // post.user, user.posts
//	edge.Reference("posts", "user_id").To("users").Alias("author", "articles")
//
// # Actions
//
// OnDelete and OnUpdate control what happens to owning records when the
// referenced record is deleted or its key changes:
//
//	edge.Reference("comments", "post_id").To("posts").
//	    OnDelete(edge.Cascade).
//	    OnUpdate(edge.Cascade)
//
// Available actions:
//   - edge.Cascade: delete owning records, or copy the new key into them
//   - edge.SetNull: set the foreign key of owning records to NULL
//   - edge.Restrict: refuse while owning records still reference the record
//   - edge.NoAction: same as Restrict (default)
package edge
