package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/platform/sentinel"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	healthTimeout    = 2 * time.Second
)

// Handler is the thin HTTP layer over the trail reader.
type Handler struct {
	trails audit.Reader
	logger *slog.Logger
	checks map[string]HealthCheck
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.logger.WarnContext(ctx, "health check failed", "failed", failed)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListTrails(w http.ResponseWriter, r *http.Request) {
	if h.trails == nil {
		httputil.WriteError(w, fmt.Errorf("trail reader: %w", sentinel.ErrUnavailable))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.trails.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trails failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if s, ok := scope.FromContext(r.Context()); ok {
		s.Logf("listed %d trails", len(records))
	}
	if records == nil {
		records = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trails": records})
}

func (h *Handler) handleGetTrail(w http.ResponseWriter, r *http.Request) {
	if h.trails == nil {
		httputil.WriteError(w, fmt.Errorf("trail reader: %w", sentinel.ErrUnavailable))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, fmt.Errorf("parse trail id: %w", sentinel.ErrInvalidInput))
		return
	}

	record, err := h.trails.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if s, ok := scope.FromContext(r.Context()); ok {
		s.Logf("fetched trail %s", id)
	}

	if r.URL.Query().Get("format") == "tree" {
		h.writeTree(w, r, record)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) writeTree(w http.ResponseWriter, r *http.Request, record audit.Record) {
	trail, err := record.Trail()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stored trail does not decode", "record_id", record.ID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := trail.WriteTree(&buf); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer: %w", sentinel.ErrInvalidInput)
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
