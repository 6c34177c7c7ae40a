package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"audittrail/internal/platform/metrics"
	audit "audittrail/pkg/platform/audit"
	trailmw "audittrail/pkg/platform/audit/middleware"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/middleware/admin"
	"audittrail/pkg/platform/middleware/metadata"
	"audittrail/pkg/platform/middleware/ratelimit"
	"audittrail/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router needs. Trails may be nil when no readable
// sink is configured; the trail routes then answer 503.
type Deps struct {
	Trails     audit.Reader
	Publisher  trailmw.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	AdminToken string
	// AdminLimiter throttles trail reads when set.
	AdminLimiter *ratelimit.Limiter
	Checks       map[string]HealthCheck
	Echo         bool
}

// NewRouter wires all endpoints. Every request except health checks and metrics
// scrapes records its own audit trail.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &Handler{trails: d.Trails, logger: d.Logger, checks: d.Checks}

	r := chi.NewRouter()
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
	}
	if d.Publisher != nil {
		opts := []trailmw.Option{
			trailmw.WithLogger(d.Logger),
			trailmw.SkipPaths("/healthz", "/metrics"),
		}
		if d.Echo {
			opts = append(opts, trailmw.WithScopeOptions(scope.WithEcho(d.Logger)))
		}
		r.Use(trailmw.Trail(d.Publisher, opts...))
	}

	r.Get("/healthz", h.handleHealth)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if d.AdminLimiter != nil {
			r.Use(d.AdminLimiter.Middleware)
		}
		r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
		r.Get("/trails", h.handleListTrails)
		r.Get("/trails/{id}", h.handleGetTrail)
	})
	return r
}
