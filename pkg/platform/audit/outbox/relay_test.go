package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"audittrail/pkg/platform/audit/outbox/mocks"
	"audittrail/pkg/platform/audit/store/postgres"
)

const topic = "audit.trails"

func entries(n int) []postgres.OutboxEntry {
	out := make([]postgres.OutboxEntry, n)
	for i := range out {
		out[i] = postgres.OutboxEntry{
			ID:          uuid.New(),
			AggregateID: uuid.NewString(),
			Payload:     []byte(`{"id":"x"}`),
		}
	}
	return out
}

func ids(es []postgres.OutboxEntry) []uuid.UUID {
	out := make([]uuid.UUID, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func newRelay(t *testing.T) (*Relay, *mocks.MockOutbox, *mocks.MockProducer, *Metrics) {
	ctrl := gomock.NewController(t)
	ob := mocks.NewMockOutbox(ctrl)
	prod := mocks.NewMockProducer(ctrl)
	metrics := NewMetrics(prometheus.NewRegistry())
	relay := NewRelay(ob, prod, topic,
		WithBatchSize(10),
		WithInterval(time.Millisecond),
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return relay, ob, prod, metrics
}

func TestRelay_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks the whole batch", func(t *testing.T) {
		relay, ob, prod, metrics := newRelay(t)
		batch := entries(3)
		ob.EXPECT().ClaimBatch(ctx, 10).Return(batch, nil)
		for _, e := range batch {
			prod.EXPECT().Publish(ctx, topic, []byte(e.AggregateID), e.Payload).Return(nil)
		}
		ob.EXPECT().MarkPublished(ctx, ids(batch)).Return(nil)

		n, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Relayed))
	})

	t.Run("empty outbox does nothing", func(t *testing.T) {
		relay, ob, _, _ := newRelay(t)
		ob.EXPECT().ClaimBatch(ctx, 10).Return(nil, nil)

		n, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("stops at the first produce failure and marks only the prefix", func(t *testing.T) {
		relay, ob, prod, metrics := newRelay(t)
		batch := entries(3)
		ob.EXPECT().ClaimBatch(ctx, 10).Return(batch, nil)
		gomock.InOrder(
			prod.EXPECT().Publish(ctx, topic, gomock.Any(), gomock.Any()).Return(nil),
			prod.EXPECT().Publish(ctx, topic, gomock.Any(), gomock.Any()).Return(errors.New("leader not available")),
		)
		ob.EXPECT().MarkPublished(ctx, ids(batch[:1])).Return(nil)

		n, err := relay.RunOnce(ctx)
		assert.ErrorContains(t, err, "leader not available")
		assert.Equal(t, 1, n)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures))
	})

	t.Run("claim errors are wrapped", func(t *testing.T) {
		relay, ob, _, _ := newRelay(t)
		ob.EXPECT().ClaimBatch(ctx, 10).Return(nil, errors.New("db down"))

		_, err := relay.RunOnce(ctx)
		assert.ErrorContains(t, err, "claim outbox batch")
	})
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	relay, ob, _, _ := newRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	ob.EXPECT().ClaimBatch(gomock.Any(), 10).Return(nil, nil).MinTimes(1)

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
