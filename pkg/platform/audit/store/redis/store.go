package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

const (
	DefaultStream = "audit:trails"
	recordPrefix  = "audit:trail:"

	fieldID     = "id"
	fieldName   = "name"
	fieldRecord = "record"
)

// Store appends records to a capped Redis stream and keeps each envelope under its own
// key, so recent trails can be listed and single trails fetched by ID.
type Store struct {
	client redis.Cmdable
	stream string
	maxLen int64
	ttl    time.Duration
}

// Option configures a Store instance.
type Option func(*Store)

// WithStream overrides the stream name.
func WithStream(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithRetention sets how long per-record keys live. Zero keeps them forever.
func WithRetention(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// New constructs a Redis-backed audit store.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		stream: DefaultStream,
		maxLen: 10_000,
		ttl:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func recordKey(id uuid.UUID) string {
	return recordPrefix + id.String()
}

// Append writes the stream entry and the record key in one MULTI/EXEC.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	envelope, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{
				fieldID:     record.ID.String(),
				fieldName:   record.Name,
				fieldRecord: envelope,
			},
		})
		pipe.Set(ctx, recordKey(record.ID), envelope, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append audit record to redis: %w", err)
	}
	return nil
}

// Get returns a record by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (audit.Record, error) {
	data, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return audit.Record{}, fmt.Errorf("get audit record: %w", err)
	}
	return audit.ParseRecord(data)
}

// ListRecent returns up to limit records from the stream, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	var (
		entries []redis.XMessage
		err     error
	)
	if limit > 0 {
		entries, err = s.client.XRevRangeN(ctx, s.stream, "+", "-", int64(limit)).Result()
	} else {
		entries, err = s.client.XRevRange(ctx, s.stream, "+", "-").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}

	records := make([]audit.Record, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values[fieldRecord].(string)
		if !ok {
			return nil, fmt.Errorf("audit stream entry %s: missing record", entry.ID)
		}
		record, err := audit.ParseRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("audit stream entry %s: %w", entry.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}
