// Package publisher hands finished root scopes to the audit sink.
//
// Rendering happens on the caller's goroutine so serialization errors are always returned
// to whoever asked for the publish. Delivery is either synchronous or, with
// WithAsyncBuffer, fire-and-forget through a bounded buffer drained by one worker.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/circuit"
)

var (
	ErrBufferFull  = errors.New("audit buffer full")
	ErrCircuitOpen = errors.New("audit sink circuit open")
	ErrClosed      = errors.New("audit publisher closed")
)

// deliverTimeout bounds a single sink write made by the async worker.
const deliverTimeout = 10 * time.Second

// Publisher delivers audit records to a store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker

	mu     sync.RWMutex
	closed bool
	buffer chan audit.Record
	done   chan struct{}
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBreaker guards the store with a circuit breaker. While open, records are dropped.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

// WithAsyncBuffer switches to asynchronous delivery through a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Record, n)
		}
	}
}

// NewPublisher creates a publisher writing to store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

// Publish renders root and delivers the resulting record. Render errors are always
// returned. In async mode delivery errors are only logged; ErrBufferFull is returned when
// the record could not be queued.
func (p *Publisher) Publish(ctx context.Context, root *scope.Scope) error {
	record, err := audit.NewRecord(ctx, root)
	if err != nil {
		p.metrics.incRenderFailures()
		p.logger.ErrorContext(ctx, "audit trail render failed", "error", err)
		return fmt.Errorf("publish audit trail: %w", err)
	}
	return p.Emit(ctx, record)
}

// Emit delivers an already built record.
func (p *Publisher) Emit(ctx context.Context, record audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if p.buffer == nil {
		return p.deliver(ctx, record)
	}

	select {
	case p.buffer <- record:
		return nil
	default:
		p.metrics.incBufferFullDropped()
		p.logger.WarnContext(ctx, "audit buffer full, dropping trail",
			"record_id", record.ID,
			"name", record.Name,
		)
		return ErrBufferFull
	}
}

// Close stops accepting records and, in async mode, waits until the buffer is drained.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	for record := range p.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := p.deliver(ctx, record); err != nil && !errors.Is(err, ErrCircuitOpen) {
			p.logger.Error("async audit delivery failed",
				"record_id", record.ID,
				"name", record.Name,
				"error", err,
			)
		}
		cancel()
	}
}

func (p *Publisher) deliver(ctx context.Context, record audit.Record) error {
	if p.breaker != nil && !p.breaker.Allow() {
		p.metrics.incCircuitOpenDropped()
		return ErrCircuitOpen
	}

	start := time.Now()
	err := p.store.Append(ctx, record)
	p.metrics.observePersistDuration(time.Since(start).Seconds())

	if err != nil {
		p.metrics.incPersistFailures()
		p.recordFailure(ctx)
		return fmt.Errorf("append audit record %s: %w", record.ID, err)
	}

	p.recordSuccess(ctx)
	p.metrics.incPublished()
	return nil
}

func (p *Publisher) recordFailure(ctx context.Context) {
	if p.breaker == nil {
		return
	}
	if _, change := p.breaker.RecordFailure(); change.Opened {
		p.metrics.setCircuitBreakerState(true)
		p.logger.WarnContext(ctx, "audit sink circuit opened", "breaker", p.breaker.Name())
	}
}

func (p *Publisher) recordSuccess(ctx context.Context) {
	if p.breaker == nil {
		return
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.metrics.setCircuitBreakerState(false)
		p.logger.InfoContext(ctx, "audit sink circuit closed", "breaker", p.breaker.Name())
	}
}
