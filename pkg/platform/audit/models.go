package audit

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Store,Reader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel/trace"

	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/requestcontext"
)

// Record is the self-describing envelope handed to a sink: one finished root scope plus
// the metadata needed to index and deduplicate it. The scope itself travels verbatim in
// Payload; Name and Time are read back from the rendered document.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Time      time.Time       `json:"time"`
	RequestID string          `json:"request_id,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	Digest    string          `json:"digest"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"trail"`
}

// Store is the sink boundary. Implementations persist or forward records; they never
// modify the payload.
type Store interface {
	Append(ctx context.Context, record Record) error
}

// Reader is implemented by stores that can serve records back (admin and tooling only).
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// NewRecord renders the root scope and wraps it in a Record. Render failures are returned
// to the caller; a record is never built from a partial document.
func NewRecord(ctx context.Context, root *scope.Scope) (Record, error) {
	payload, err := root.Render()
	if err != nil {
		return Record{}, err
	}
	record, err := RecordFromPayload(payload)
	if err != nil {
		return Record{}, err
	}
	record.RequestID = requestcontext.RequestID(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		record.TraceID = sc.TraceID().String()
	}
	return record, nil
}

// RecordFromPayload builds a Record around an already rendered scope document.
func RecordFromPayload(payload []byte) (Record, error) {
	var header struct {
		Time string `json:"time"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return Record{}, fmt.Errorf("read trail header: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, header.Time)
	if err != nil {
		return Record{}, fmt.Errorf("parse trail time: %w", err)
	}
	digest, err := Digest(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        uuid.New(),
		Name:      header.Name,
		Time:      ts,
		Digest:    digest,
		CreatedAt: time.Now().UTC(),
		Payload:   json.RawMessage(payload),
	}, nil
}

// Digest returns "sha256:<hex>" over the JCS (RFC 8785) canonical form of payload, so
// re-encoded copies of the same trail hash identically.
func Digest(payload []byte) (string, error) {
	canonical, err := jcs.Transform(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize trail: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest of the payload and compares it with the recorded one.
func (r Record) Verify() error {
	digest, err := Digest(r.Payload)
	if err != nil {
		return err
	}
	if digest != r.Digest {
		return fmt.Errorf("trail %s digest mismatch: recorded %s, computed %s", r.ID, r.Digest, digest)
	}
	return nil
}

// Trail decodes the payload back into a scope, for display.
func (r Record) Trail() (*scope.Scope, error) {
	s := new(scope.Scope)
	if err := json.Unmarshal(r.Payload, s); err != nil {
		return nil, fmt.Errorf("decode trail %s: %w", r.ID, err)
	}
	return s, nil
}

// ParseRecord decodes a JSON envelope produced by json.Marshal(Record).
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if r.ID == uuid.Nil {
		return Record{}, fmt.Errorf("decode record: missing id")
	}
	if len(r.Payload) == 0 {
		return Record{}, fmt.Errorf("decode record %s: missing trail", r.ID)
	}
	return r, nil
}
