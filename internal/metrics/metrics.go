package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	runs           *prometheus.CounterVec // reconciliation runs
	runDuration    prometheus.Histogram   // time per run
	operations     *prometheus.CounterVec // planned operations applied
	graphRequests  *prometheus.CounterVec // graph http requests
	graphRetries   *prometheus.CounterVec // graph retry attempts
	csvRows        *prometheus.CounterVec // csv rows loaded
	cacheRequests  *prometheus.CounterVec // lookup cache hits/misses
	badgerRequests *prometheus.CounterVec // badger store requests
}

func (m *Metrics) IncRun(task string, success bool) {
	m.runs.WithLabelValues(task, boolToResult(success)).Inc()
}

func (m *Metrics) SetRunDuration(duration time.Duration) {
	m.runDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncOperation(task, op, result string) {
	if !isValidOp(op) || task == "" {
		return
	}
	m.operations.WithLabelValues(task, op, result).Inc()
}

func (m *Metrics) IncGraphRequest(method string, code int) {
	m.graphRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) IncGraphRetry(method string) {
	m.graphRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) IncCSVRows(kind string, count int) {
	m.csvRows.WithLabelValues(kind).Add(float64(count))
}

func (m *Metrics) IncCacheRequest(hit bool) {
	m.cacheRequests.WithLabelValues(hitToStr(hit)).Inc()
}

func (m *Metrics) IncBadgerRequest(operation string, success bool) {
	m.badgerRequests.WithLabelValues(operation, boolToResult(success)).Inc()
}

func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func hitToStr(b bool) string {
	if b {
		return "hit"
	}
	return "miss"
}

func isValidOp(op string) bool {
	switch op {
	case "add", "update", "remove", "noop":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "graph_csv_sync"

	m := &Metrics{
		registry: registry,

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs",
		}, []string{"task", "status"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total reconciliation operations applied",
		}, []string{"task", "operation", "result"}),

		graphRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_requests_total",
			Help:      "Total Microsoft Graph requests",
		}, []string{"method", "code"}),

		graphRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_retries_total",
			Help:      "Total Microsoft Graph request retries",
		}, []string{"method"}),

		csvRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csv_rows_total",
			Help:      "Total CSV rows processed",
		}, []string{"kind"}),

		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Total lookup cache requests",
		}, []string{"result"}),

		badgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badgerdb_requests_total",
			Help:      "Total badgerdb requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.runs,
			m.runDuration,
			m.operations,
			m.graphRequests,
			m.graphRetries,
			m.csvRows,
			m.cacheRequests,
			m.badgerRequests,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
