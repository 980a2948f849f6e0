package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/storeledger/internal/catalog"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type mockCache struct{ mock.Mock }

func (m *mockCache) Load(ctx context.Context) (persistence.LoadResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(persistence.LoadResult), args.Error(1)
}

type mockSyncer struct{ mock.Mock }

func (m *mockSyncer) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *mockSyncer) SyncFromCloud(ctx context.Context) (cloudsync.SyncReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(cloudsync.SyncReport), args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) Load(ctx context.Context) (*catalog.State, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(*catalog.State)
	return state, args.Error(1)
}

type ledgerStub struct{ empty bool }

func (l ledgerStub) Empty() bool { return l.empty }

func TestRun_EmptyCacheTriggersSync(t *testing.T) {
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{}, nil)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(true)
	syncer.On("SyncFromCloud", mock.Anything).Return(cloudsync.SyncReport{Committed: true}, nil)
	reconciler := new(mockReconciler)

	res := New(cache, ledgerStub{empty: true}, syncer, reconciler, false, zap.NewNop()).Run(context.Background())

	assert.True(t, res.Synced)
	assert.False(t, res.Reconciled)
	syncer.AssertExpectations(t)
	reconciler.AssertNotCalled(t, "Load", mock.Anything)
}

func TestRun_RestoredCacheSkipsSync(t *testing.T) {
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{Restored: true, Rows: 12}, nil)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(true)
	reconciler := new(mockReconciler)
	reconciler.On("Load", mock.Anything).Return(&catalog.State{}, nil)

	res := New(cache, ledgerStub{empty: false}, syncer, reconciler, true, zap.NewNop()).Run(context.Background())

	assert.True(t, res.Cache.Restored)
	assert.False(t, res.Synced)
	assert.True(t, res.Reconciled)
	syncer.AssertNotCalled(t, "SyncFromCloud", mock.Anything)
}

func TestRun_NoRemoteStaysLocal(t *testing.T) {
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{}, nil)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(false)

	res := New(cache, ledgerStub{empty: true}, syncer, new(mockReconciler), false, zap.NewNop()).Run(context.Background())

	assert.False(t, res.Synced)
	assert.NoError(t, res.SyncErr)
	syncer.AssertNotCalled(t, "SyncFromCloud", mock.Anything)
}

func TestRun_FailuresAreRecordedNotFatal(t *testing.T) {
	cacheErr := errors.New("corrupt")
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{}, cacheErr)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(true)
	syncer.On("SyncFromCloud", mock.Anything).Return(cloudsync.SyncReport{}, cloudsync.ErrSyncAborted)
	reconciler := new(mockReconciler)
	reconciler.On("Load", mock.Anything).Return(nil, cloudsync.ErrRemoteNotConfigured)

	res := New(cache, ledgerStub{empty: true}, syncer, reconciler, true, zap.NewNop()).Run(context.Background())

	assert.ErrorIs(t, res.CacheErr, cacheErr)
	assert.ErrorIs(t, res.SyncErr, cloudsync.ErrSyncAborted)
	assert.ErrorIs(t, res.ReconcileErr, cloudsync.ErrRemoteNotConfigured)
	assert.False(t, res.Synced)
	assert.False(t, res.Reconciled)
}

func TestRun_SyncAlreadyRunningIsNotAnError(t *testing.T) {
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{}, nil)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(true)
	syncer.On("SyncFromCloud", mock.Anything).Return(cloudsync.SyncReport{}, cloudsync.ErrSyncInProgress)

	res := New(cache, ledgerStub{empty: true}, syncer, new(mockReconciler), false, zap.NewNop()).Run(context.Background())

	assert.NoError(t, res.SyncErr)
	assert.False(t, res.Synced)
}

func TestStatus_ReportsLastRun(t *testing.T) {
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{Restored: true, Rows: 4}, nil)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(true)
	reconciler := new(mockReconciler)
	reconciler.On("Load", mock.Anything).Return(nil, cloudsync.ErrRemoteNotConfigured)

	r := New(cache, ledgerStub{empty: false}, syncer, reconciler, true, zap.NewNop())
	assert.False(t, r.Status().Done)

	r.Run(context.Background())

	status := r.Status()
	assert.True(t, status.Done)
	assert.True(t, status.Restored)
	assert.Equal(t, 4, status.CacheRows)
	assert.Empty(t, status.SyncError)
	assert.False(t, status.Reconciled)
	assert.Equal(t, cloudsync.ErrRemoteNotConfigured.Error(), status.ReconcileError)

	var missing *Runner
	assert.False(t, missing.Status().Done)
}

func TestRegister_WarmsInBackgroundAndRecords(t *testing.T) {
	cache := new(mockCache)
	cache.On("Load", mock.Anything).Return(persistence.LoadResult{}, nil)
	syncer := new(mockSyncer)
	syncer.On("Enabled").Return(true)
	syncer.On("SyncFromCloud", mock.Anything).Return(cloudsync.SyncReport{Committed: true}, nil)

	r := New(cache, ledgerStub{empty: true}, syncer, new(mockReconciler), false, zap.NewNop())
	lc := fxtest.NewLifecycle(t)
	register(lc, r)
	lc.RequireStart()
	defer lc.RequireStop()

	assert.Eventually(t, func() bool { return r.Status().Done }, time.Second, 10*time.Millisecond)
	assert.True(t, r.Status().Synced)
}
