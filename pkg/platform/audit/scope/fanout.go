package scope

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOut runs work concurrently, once per name, each on its own child scope. The children
// are created before any goroutine starts and appended to parent in names order only after
// every goroutine has returned, so parent is never written concurrently. Each child is
// timed. The first error is returned and cancels the context handed to the others.
func FanOut(ctx context.Context, parent *Scope, names []string, work func(ctx context.Context, child *Scope) error) error {
	children := make([]*Scope, len(names))
	for i, name := range names {
		children[i] = parent.child(name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range children {
		g.Go(func() error {
			return Run(child, func() error {
				return work(WithScope(gctx, child), child)
			})
		})
	}
	err := g.Wait()

	for _, child := range children {
		parent.AppendScope(child)
	}
	return err
}
