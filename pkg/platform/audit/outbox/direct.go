package outbox

import (
	"context"
	"fmt"

	audit "audittrail/pkg/platform/audit"
)

// Materializer stores a relayed record for querying.
type Materializer interface {
	Materialize(ctx context.Context, record audit.Record) error
}

// Direct is a Producer that materializes entries in-process. It lets a single node run
// the outbox without a broker.
type Direct struct {
	store Materializer
}

func NewDirect(store Materializer) *Direct {
	return &Direct{store: store}
}

func (d *Direct) Publish(ctx context.Context, _ string, _, value []byte) error {
	record, err := audit.ParseRecord(value)
	if err != nil {
		return err
	}
	if err := d.store.Materialize(ctx, record); err != nil {
		return fmt.Errorf("materialize audit record %s: %w", record.ID, err)
	}
	return nil
}
