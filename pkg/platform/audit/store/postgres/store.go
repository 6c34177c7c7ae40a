package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
	txcontext "audittrail/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const (
	aggregateType = "trail"
	eventType     = "trail.recorded"
)

// Store implements audit.Store using the transactional outbox pattern.
// Trails are written to the outbox table and published to Kafka by the outbox relay;
// the consumer materializes them into audit_trails for querying.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the outbox and audit_trails tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes the record envelope to the outbox. When the context carries a
// transaction the insert joins it, so the trail commits or rolls back with the
// business change it describes.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		record.ID.String(),
		eventType,
		payload,
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// ClaimBatch returns up to limit unpublished outbox entries, oldest first.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given outbox entries as published.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	query := `UPDATE outbox SET published_at = $1 WHERE id = ANY($2)`
	if _, err := s.db.ExecContext(ctx, query, s.now(), pq.Array(keys)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// Materialize inserts a record into audit_trails with its own ID.
// Used by the Kafka consumer; duplicate deliveries are ignored via ON CONFLICT DO NOTHING.
func (s *Store) Materialize(ctx context.Context, record audit.Record) error {
	query := `
		INSERT INTO audit_trails (
			id, name, trail_time, request_id, trace_id, digest, trail, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.Time,
		record.RequestID,
		record.TraceID,
		record.Digest,
		[]byte(record.Payload),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit trail: %w", err)
	}
	return nil
}

const selectTrail = `
	SELECT id, name, trail_time, request_id, trace_id, digest, trail, created_at
	FROM audit_trails
`

// Get returns a materialized trail by record ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (audit.Record, error) {
	row := s.db.QueryRowContext(ctx, selectTrail+` WHERE id = $1`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return audit.Record{}, err
	}
	return record, nil
}

// ListRecent returns the N most recently recorded trails.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectTrail+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit trails: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit trails: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (audit.Record, error) {
	var (
		record audit.Record
		trail  []byte
	)
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Time,
		&record.RequestID,
		&record.TraceID,
		&record.Digest,
		&trail,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, err
	}
	if err != nil {
		return audit.Record{}, fmt.Errorf("scan audit trail: %w", err)
	}
	record.Payload = json.RawMessage(trail)
	return record, nil
}
