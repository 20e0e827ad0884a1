package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal           *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	rowsTotal            *prometheus.CounterVec
	sheetFlushesTotal    *prometheus.CounterVec
	sheetRowsWritten     prometheus.Counter
	recoveryTotal        *prometheus.CounterVec
	quotaUsed            prometheus.Gauge
	breakerState         prometheus.Gauge
	inflightTasks        prometheus.Gauge

	once sync.Once
)

// Init registers the Prometheus collectors. It is safe to call repeatedly;
// every Observe function calls it.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_fetch_total",
				Help: "PageSpeed API calls, labeled by strategy and outcome (field, lab, or error kind).",
			},
			[]string{"strategy", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitals_fetch_duration_seconds",
				Help:    "PageSpeed API call latency including budget wait.",
				Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"strategy"},
		)

		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_rows_total",
				Help: "Audit rows produced, labeled by source tag.",
			},
			[]string{"source"},
		)

		sheetFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_sheet_flushes_total",
				Help: "Batch writes to the spreadsheet, labeled by status.",
			},
			[]string{"status"},
		)

		sheetRowsWritten = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vitals_sheet_rows_written_total",
				Help: "Rows written to the spreadsheet.",
			},
		)

		recoveryTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_recovery_total",
				Help: "Browser recovery attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		quotaUsed = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitals_quota_used",
				Help: "PageSpeed requests charged against today's quota.",
			},
		)

		breakerState = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitals_breaker_state",
				Help: "PageSpeed circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
		)

		inflightTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitals_inflight_tasks",
				Help: "URL tasks currently being audited.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one API call.
func ObserveFetch(strategy, outcome string, d time.Duration) {
	Init()
	fetchTotal.WithLabelValues(strategy, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveRow records one produced row by its source tag.
func ObserveRow(tag string) {
	Init()
	rowsTotal.WithLabelValues(tag).Inc()
}

// ObserveFlush records one batch write.
func ObserveFlush(rows int, err error) {
	Init()
	if err != nil {
		sheetFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	sheetFlushesTotal.WithLabelValues("ok").Inc()
	sheetRowsWritten.Add(float64(rows))
}

// ObserveRecovery records one recovery attempt outcome.
func ObserveRecovery(outcome string) {
	Init()
	recoveryTotal.WithLabelValues(outcome).Inc()
}

// SetQuotaUsed reports today's charged requests.
func SetQuotaUsed(n int64) {
	Init()
	quotaUsed.Set(float64(n))
}

// SetBreakerState reports the circuit breaker state.
func SetBreakerState(state int) {
	Init()
	breakerState.Set(float64(state))
}

// IncInflight marks a task as started.
func IncInflight() {
	Init()
	inflightTasks.Inc()
}

// DecInflight marks a task as finished.
func DecInflight() {
	Init()
	inflightTasks.Dec()
}
