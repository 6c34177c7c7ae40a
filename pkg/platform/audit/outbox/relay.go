// Package outbox relays audit records from the Postgres outbox to Kafka.
package outbox

//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Outbox,Producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"audittrail/pkg/platform/audit/store/postgres"
)

// Outbox is the relay's view of the outbox table.
type Outbox interface {
	ClaimBatch(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer sends one record to the broker and waits for the acknowledgement.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Metrics counts relay throughput.
type Metrics struct {
	Relayed  prometheus.Counter
	Failures prometheus.Counter
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Relayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_outbox_relayed_total",
			Help: "Outbox entries produced to Kafka and marked published",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_outbox_relay_failures_total",
			Help: "Relay passes that stopped on a claim, produce or mark error",
		}),
	}
}

// Relay consumes the outbox on a timer and produces each entry to topic. Entries are
// produced in creation order; a produce failure stops the pass so later entries are
// not published ahead of earlier ones.
type Relay struct {
	outbox    Outbox
	producer  Producer
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures a Relay.
type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(outbox Outbox, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. A full batch is followed immediately by another
// pass; otherwise the relay waits for the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single relay pass and returns how many entries were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.ClaimBatch(ctx, r.batchSize)
	if err != nil {
		r.incFailures()
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}

	published := make([]uuid.UUID, 0, len(entries))
	var produceErr error
	for _, entry := range entries {
		if err := r.producer.Publish(ctx, r.topic, []byte(entry.AggregateID), entry.Payload); err != nil {
			produceErr = fmt.Errorf("relay outbox entry %s: %w", entry.ID, err)
			break
		}
		published = append(published, entry.ID)
	}

	if len(published) > 0 {
		if err := r.outbox.MarkPublished(ctx, published); err != nil {
			r.incFailures()
			return 0, err
		}
		if r.metrics != nil {
			r.metrics.Relayed.Add(float64(len(published)))
		}
	}
	if produceErr != nil {
		r.incFailures()
		return len(published), produceErr
	}
	return len(published), nil
}

func (r *Relay) incFailures() {
	if r.metrics != nil {
		r.metrics.Failures.Inc()
	}
}
