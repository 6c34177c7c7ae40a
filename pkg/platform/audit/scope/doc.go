// Package scope records the audit trail of a single unit of work.
//
// A Scope is an append-only tree: leaf log lines and nested child scopes, kept in the
// order they were recorded. Code under audit only writes to it; the finished root is
// rendered to JSON and handed to a sink.
//
// Usage in a call chain:
//
//	au := scope.New("create_user")
//	au.Logf("validating %s", email)
//	err := scope.Segment(au, "persist", func(child *scope.Scope) error {
//		child.LogEvent("insert row")
//		return store.Insert(ctx, user)
//	})
//	au.LogEvent("done")
//	payload, err := au.Render()
//
// A Scope is not safe for concurrent use. Work that fans out gives each goroutine its own
// child and merges the children back afterwards (see FanOut).
package scope
