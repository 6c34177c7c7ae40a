package scope

import "context"

type ctxKey struct{}

var scopeKey = ctxKey{}

// WithScope stores s in ctx for call chains that already thread a context.
// Whoever receives the context becomes the scope's single writer.
func WithScope(ctx context.Context, s *Scope) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext extracts the scope stored by WithScope.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey).(*Scope)
	return s, ok
}
