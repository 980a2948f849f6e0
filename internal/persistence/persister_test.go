package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	writes int
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string][]byte{}}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.writes++
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryKV) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type stubSource struct {
	mu       sync.Mutex
	snap     domain.Snapshot
	restored *domain.Snapshot
}

func (s *stubSource) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSource) Restore(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored = &snap
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Customers: []domain.Customer{{
			Envelope: domain.Envelope{ID: 7, Status: domain.StatusActive, Version: 3, CreatedAt: testNow, UpdatedAt: testNow},
			Name:     "Mona",
		}},
	}
}

func newTestPersister(kv KV, src Source, opts Options) *Persister {
	return New(kv, src, config.NewStaticSettingsHolder(config.DefaultSettings()), clock.NewFakeClock(testNow), zap.NewNop(), nil, opts)
}

func TestSchedule_CoalescesWrites(t *testing.T) {
	kv := newMemoryKV()
	p := newTestPersister(kv, &stubSource{snap: sampleSnapshot()}, Options{Debounce: 50 * time.Millisecond})

	for i := 0; i < 5; i++ {
		p.Schedule()
	}
	assert.Equal(t, 0, kv.writeCount())

	assert.Eventually(t, func() bool { return kv.writeCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, kv.writeCount())
}

func TestFlush_WritesImmediatelyAndCancelsPending(t *testing.T) {
	kv := newMemoryKV()
	p := newTestPersister(kv, &stubSource{snap: sampleSnapshot()}, Options{Debounce: 100 * time.Millisecond})

	p.Schedule()
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, 1, kv.writeCount())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, kv.writeCount())
}

func TestClose_WritesPendingOnly(t *testing.T) {
	kv := newMemoryKV()
	p := newTestPersister(kv, &stubSource{snap: sampleSnapshot()}, Options{Debounce: time.Hour})

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 0, kv.writeCount())

	p2 := newTestPersister(kv, &stubSource{snap: sampleSnapshot()}, Options{Debounce: time.Hour})
	p2.Schedule()
	require.NoError(t, p2.Close(context.Background()))
	assert.Equal(t, 1, kv.writeCount())

	p2.Schedule()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, kv.writeCount())
}

func TestLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	require.NoError(t, newTestPersister(kv, &stubSource{snap: sampleSnapshot()}, Options{}).Flush(ctx))

	raw, _, _ := kv.Get(ctx, "storeledger:state")
	assert.Equal(t, "SLZ1", string(raw[:4]))

	dst := &stubSource{}
	result, err := newTestPersister(kv, dst, Options{}).Load(ctx)
	require.NoError(t, err)
	assert.True(t, result.Restored)
	assert.Equal(t, SchemaVersion, result.Version)
	assert.Equal(t, 1, result.Rows)
	require.NotNil(t, dst.restored)
	assert.Equal(t, "Mona", dst.restored.Customers[0].Name)
}

func TestLoad_Empty(t *testing.T) {
	result, err := newTestPersister(newMemoryKV(), &stubSource{}, Options{}).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Restored)
}

func legacyBlob(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(blob{SchemaVersion: 1, SavedAt: testNow, Data: sampleSnapshot()})
	require.NoError(t, err)
	return raw
}

func TestLoad_OutdatedCachePurgedOnMobile(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	require.NoError(t, kv.Set(ctx, "storeledger:state", legacyBlob(t)))

	dst := &stubSource{}
	result, err := newTestPersister(kv, dst, Options{Mobile: true}).Load(ctx)
	require.NoError(t, err)
	assert.True(t, result.Purged)
	assert.False(t, result.Restored)
	assert.Nil(t, dst.restored)

	_, ok, _ := kv.Get(ctx, "storeledger:state")
	assert.False(t, ok)
}

func TestLoad_OutdatedCacheMigratedOnDesktop(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	require.NoError(t, kv.Set(ctx, "storeledger:state", legacyBlob(t)))

	dst := &stubSource{snap: sampleSnapshot()}
	result, err := newTestPersister(kv, dst, Options{}).Load(ctx)
	require.NoError(t, err)
	assert.True(t, result.Migrated)
	assert.True(t, result.Restored)
	assert.Equal(t, 1, result.Version)

	raw, _, _ := kv.Get(ctx, "storeledger:state")
	b, err := decodeBlob(raw)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, b.SchemaVersion)
}

func TestLoad_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	require.NoError(t, kv.Set(ctx, "storeledger:state", []byte("garbage")))

	_, err := newTestPersister(kv, &stubSource{}, Options{}).Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptCache)
}

func TestGormKV(t *testing.T) {
	ctx := context.Background()
	kv, err := NewGormKV(dbtest.Open(t))
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte("one")))
	require.NoError(t, kv.Set(ctx, "k", []byte("two")))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("two"), v)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, _ = kv.Get(ctx, "k")
	assert.False(t, ok)
}
