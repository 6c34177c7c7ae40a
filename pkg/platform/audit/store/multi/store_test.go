package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/mocks"
	"audittrail/pkg/platform/audit/store/memory"
)

func TestStore_FansOut(t *testing.T) {
	ctx := context.Background()
	first, second := memory.NewInMemoryStore(), memory.NewInMemoryStore()
	store := New(first, nil, second)

	record := audit.Record{ID: uuid.New(), Name: "op"}
	require.NoError(t, store.Append(ctx, record))

	for _, s := range []*memory.InMemoryStore{first, second} {
		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	}
}

func TestStore_KeepsGoingAfterFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	failing := mocks.NewMockStore(ctrl)
	boom := errors.New("disk full")
	failing.EXPECT().Append(gomock.Any(), gomock.Any()).Return(boom)
	healthy := memory.NewInMemoryStore()

	err := New(failing, healthy).Append(ctx, audit.Record{ID: uuid.New()})
	assert.ErrorIs(t, err, boom)

	all, err := healthy.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
