package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the ledger, sync and cache paths.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ledgerMutations  *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	tableRows        *prometheus.GaugeVec
	activeSyncs      prometheus.Gauge
	cacheWrites      *prometheus.CounterVec
	cacheBlobBytes   prometheus.Gauge
	outboxDispatch   *prometheus.CounterVec
	outboxBacklog    prometheus.Gauge
	catalogProducts  prometheus.Gauge
	catalogOverrides prometheus.Gauge

	otel *otelInstruments
}

// DefaultRegisterer is the process-wide registry served on /metrics.
func DefaultRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

// NewMetrics registers and returns Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeledger_ledger_mutations_total",
			Help: "Ledger mutations by operation and outcome.",
		}, []string{"operation", "status"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeledger_sync_runs_total",
			Help: "Cloud sync runs by status.",
		}, []string{"status"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storeledger_sync_duration_seconds",
			Help:    "Cloud sync durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storeledger_sync_table_rows",
			Help: "Rows fetched per remote table in the last sync.",
		}, []string{"table"}),
		activeSyncs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeledger_sync_active_operations",
			Help: "Remote operations currently in flight.",
		}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeledger_cache_writes_total",
			Help: "Local cache writes by mode (debounced, forced) and status.",
		}, []string{"mode", "status"}),
		cacheBlobBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeledger_cache_blob_bytes",
			Help: "Size of the last written cache blob after compression.",
		}),
		outboxDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeledger_outbox_dispatch_total",
			Help: "Outbox operations replayed by status.",
		}, []string{"status"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeledger_outbox_backlog",
			Help: "Number of pending operations in the outbox.",
		}),
		catalogProducts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeledger_catalog_products",
			Help: "Products in the last reconciled catalog.",
		}),
		catalogOverrides: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeledger_catalog_price_overrides",
			Help: "Products whose prices came from the override map.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ledgerMutations,
			m.syncRuns,
			m.syncDuration,
			m.tableRows,
			m.activeSyncs,
			m.cacheWrites,
			m.cacheBlobBytes,
			m.outboxDispatch,
			m.outboxBacklog,
			m.catalogProducts,
			m.catalogOverrides,
		)
	}

	return m
}

func (m *Metrics) RecordMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(sanitizeLabel(operation), statusLabel(err)).Inc()
	m.otel.addMutation(sanitizeLabel(operation), statusLabel(err))
}

func (m *Metrics) RecordSync(err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusLabel(err)
	m.syncRuns.WithLabelValues(status).Inc()
	m.syncDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.otel.addSync(status)
}

func (m *Metrics) ObserveTableRows(table string, rows int) {
	if m == nil {
		return
	}
	m.tableRows.WithLabelValues(sanitizeLabel(table)).Set(float64(rows))
}

func (m *Metrics) SetActiveOperations(n int64) {
	if m == nil {
		return
	}
	m.activeSyncs.Set(float64(n))
}

func (m *Metrics) RecordCacheWrite(mode string, bytes int, err error) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(sanitizeLabel(mode), statusLabel(err)).Inc()
	if err == nil {
		m.cacheBlobBytes.Set(float64(bytes))
	}
}

func (m *Metrics) RecordOutboxDispatch(status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.outboxDispatch.WithLabelValues(sanitizeLabel(status)).Add(float64(count))
	m.otel.addDispatch(sanitizeLabel(status), count)
}

func (m *Metrics) SetOutboxBacklog(value int64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(value))
}

func (m *Metrics) ObserveCatalog(products, overrides int) {
	if m == nil {
		return
	}
	m.catalogProducts.Set(float64(products))
	m.catalogOverrides.Set(float64(overrides))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
