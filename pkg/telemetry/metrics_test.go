package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordMutation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordMutation("create_invoice", nil)
	m.RecordMutation("create_invoice", nil)
	m.RecordMutation("create_invoice", errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ledgerMutations.WithLabelValues("create_invoice", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerMutations.WithLabelValues("create_invoice", "error")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMutation("x", nil)
		m.RecordSync(nil, 0)
		m.SetOutboxBacklog(3)
		m.ObserveCatalog(1, 1)
	})
}

func TestMetrics_OutboxBacklog(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetOutboxBacklog(7)
	m.RecordOutboxDispatch("applied", 0)
	m.RecordOutboxDispatch("applied", 4)

	assert.Equal(t, float64(7), testutil.ToFloat64(m.outboxBacklog))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.outboxDispatch.WithLabelValues("applied")))
}

func TestInstrumentedMetrics_MirrorsToMeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewInstrumentedMetrics(prometheus.NewRegistry(), mp)
	require.NoError(t, err)

	m.RecordMutation("add_product", nil)
	m.RecordMutation("add_product", nil)
	m.RecordSync(errors.New("remote down"), time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["storeledger.ledger.mutations"])
	assert.Equal(t, int64(1), totals["storeledger.sync.runs"])
}

func TestInstrumentedMetrics_NoopProvider(t *testing.T) {
	m, err := NewInstrumentedMetrics(prometheus.NewRegistry(), noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() { m.RecordOutboxDispatch("success", 3) })
}
