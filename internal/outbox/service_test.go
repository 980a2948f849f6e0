package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Params{
		DB:    dbtest.OpenLocal(t),
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return svc
}

func TestEnqueue_IsIdempotentPerVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id := snowflake.ID(42)

	require.NoError(t, svc.Enqueue(ctx, "customers", id, 1, map[string]any{"id": id}))
	require.NoError(t, svc.Enqueue(ctx, "customers", id, 1, map[string]any{"id": id}))
	require.NoError(t, svc.Enqueue(ctx, "customers", id, 2, map[string]any{"id": id}))

	backlog, err := svc.Backlog(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, backlog)

	pending, err := svc.HasPending(ctx, "customers", id)
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = svc.HasPending(ctx, "suppliers", id)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestEnqueue_RejectsEmptyTable(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.Enqueue(context.Background(), "", 1, 1, nil), ErrEmptyTable)
}

type applierMock struct {
	mock.Mock
}

func (m *applierMock) Apply(ctx context.Context, op Operation) error {
	args := m.Called(op.DedupeKey)
	return args.Error(0)
}

func (m *applierMock) Enabled() bool { return true }

func TestDispatcher_RunOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Enqueue(ctx, "products", 1, 1, map[string]any{"id": 1}))
	require.NoError(t, svc.Enqueue(ctx, "products", 2, 1, map[string]any{"id": 2}))

	applier := &applierMock{}
	applier.On("Apply", "products:1:1").Return(nil)
	applier.On("Apply", "products:2:1").Return(errors.New("remote down"))

	d := NewDispatcher(DispatcherParams{Service: svc, Log: zap.NewNop(), Applier: applier})
	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	applier.AssertExpectations(t)

	ops, err := svc.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "products:2:1", ops[0].DedupeKey)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.Equal(t, "remote down", ops[0].LastError)

	keys, err := svc.PendingEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[EntityKey]struct{}{{Table: "products", ID: 2}: {}}, keys)
}

func TestDispatcher_ParksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	require.NoError(t, svc.Enqueue(ctx, "products", 7, 3, map[string]any{"id": 7}))

	ops, err := svc.Pending(ctx, 1)
	require.NoError(t, err)
	op := ops[0]
	op.Attempts = MaxAttempts - 1
	require.NoError(t, svc.MarkFailed(ctx, op, errors.New("boom")))

	backlog, err := svc.Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestDispatcher_NoApplierOnlyReportsBacklog(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	require.NoError(t, svc.Enqueue(ctx, "products", 1, 1, map[string]any{"id": 1}))

	d := NewDispatcher(DispatcherParams{Service: svc, Log: zap.NewNop()})
	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	backlog, _ := svc.Backlog(ctx)
	assert.EqualValues(t, 1, backlog)
}
