// Package middleware records one audit trail per HTTP request.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/requestcontext"
)

// Publisher receives the finished request trail.
type Publisher interface {
	Publish(ctx context.Context, root *scope.Scope) error
}

type config struct {
	logger    *slog.Logger
	scopeOpts []scope.Option
	skip      map[string]bool
	tracer    trace.Tracer
}

// Option configures the trail middleware.
type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithScopeOptions passes options (such as scope.WithEcho) to every request root scope.
func WithScopeOptions(opts ...scope.Option) Option {
	return func(c *config) {
		c.scopeOpts = append(c.scopeOpts, opts...)
	}
}

// WithTracer replaces the global OpenTelemetry tracer used for the request span.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// SkipPaths excludes exact paths (health checks, metrics scrapes) from auditing.
func SkipPaths(paths ...string) Option {
	return func(c *config) {
		for _, p := range paths {
			c.skip[p] = true
		}
	}
}

// Trail opens a root scope named "METHOD /path" for each request, exposes it to
// handlers through scope.FromContext, times the handler and publishes the trail once
// the response is written. A panicking handler still gets its partial trail published.
// The request runs inside a span so published records carry its trace ID.
func Trail(pub Publisher, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		logger: slog.Default(),
		skip:   map[string]bool{},
		tracer: otel.Tracer("audittrail/middleware"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			name := r.Method + " " + r.URL.Path
			ctx, span := cfg.tracer.Start(r.Context(), name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			root := scope.New(name, cfg.scopeOpts...)
			if id := requestcontext.RequestID(ctx); id != "" {
				root.Logf("request %s", id)
			}
			if ip := requestcontext.ClientIP(ctx); ip != "" {
				root.Logf("client %s", ip)
			}
			ctx = scope.WithScope(ctx, root)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rec := recover()
				if rec != nil {
					root.Logf("panic: %v", rec)
					span.SetStatus(codes.Error, "handler panicked")
				} else {
					code := status(ww)
					root.Logf("status %d", code)
					span.SetAttributes(attribute.Int("http.response.status_code", code))
				}
				if err := pub.Publish(context.WithoutCancel(ctx), root); err != nil {
					cfg.logger.WarnContext(ctx, "request audit trail not published",
						"path", r.URL.Path,
						"error", err,
					)
				}
				if rec != nil {
					panic(rec)
				}
			}()

			_ = scope.Run(root, func() error {
				next.ServeHTTP(ww, r.WithContext(ctx))
				return nil
			})
		})
	}
}

func status(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
