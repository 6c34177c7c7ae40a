package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"audittrail/internal/platform/kafka/consumer"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/schema"
)

// Materializer stores a consumed record for querying. It must be idempotent:
// Kafka delivers at least once.
type Materializer interface {
	Materialize(ctx context.Context, record audit.Record) error
}

// Metrics counts consumer outcomes.
type Metrics struct {
	Materialized prometheus.Counter
	Rejected     *prometheus.CounterVec
}

// NewMetrics registers the consumer collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Materialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_consumer_materialized_total",
			Help: "Audit records written to audit_trails",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_consumer_rejected_total",
			Help: "Audit messages skipped as poison, by reason",
		}, []string{"reason"}),
	}
}

// TrailHandler validates audit record envelopes from Kafka and materializes them.
// Invalid messages will never succeed, so they are logged and committed; storage
// errors are returned so the consumer retries.
type TrailHandler struct {
	store   Materializer
	logger  *slog.Logger
	metrics *Metrics
}

// NewTrailHandler creates a trail handler. metrics may be nil.
func NewTrailHandler(store Materializer, logger *slog.Logger, metrics *Metrics) *TrailHandler {
	return &TrailHandler{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Handle processes one record envelope.
func (h *TrailHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	if err := schema.Validate(msg.Value); err != nil {
		h.reject(ctx, msg, "schema", err)
		return nil
	}

	record, err := audit.ParseRecord(msg.Value)
	if err != nil {
		h.reject(ctx, msg, "decode", err)
		return nil
	}
	if err := record.Verify(); err != nil {
		h.reject(ctx, msg, "digest", err)
		return nil
	}
	if key := string(msg.Key); key != "" && key != record.ID.String() {
		h.logger.WarnContext(ctx, "audit message key does not match record id",
			"key", key,
			"record_id", record.ID,
		)
	}

	if err := h.store.Materialize(ctx, record); err != nil {
		return fmt.Errorf("materialize audit record %s: %w", record.ID, err)
	}
	if h.metrics != nil {
		h.metrics.Materialized.Inc()
	}
	return nil
}

func (h *TrailHandler) reject(ctx context.Context, msg *consumer.Message, reason string, err error) {
	if h.metrics != nil {
		h.metrics.Rejected.WithLabelValues(reason).Inc()
	}
	h.logger.ErrorContext(ctx, "skipping invalid audit message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"reason", reason,
		"error", err,
	)
}
