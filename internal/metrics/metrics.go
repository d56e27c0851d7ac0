// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	datasetsSyncedTotal     *prometheus.CounterVec
	resourcesProcessedTotal *prometheus.CounterVec
	recordsWrittenTotal     prometheus.Counter
	catalogRequestsTotal    *prometheus.CounterVec
	syncDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observer functions are
// no-ops until Init has run.
func Init() {
	once.Do(func() {
		datasetsSyncedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasync_datasets_synced_total",
				Help: "Total number of datasets synced, labeled by status.",
			},
			[]string{"status"},
		)

		resourcesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasync_resources_processed_total",
				Help: "Total number of resources processed, labeled by format and status.",
			},
			[]string{"format", "status"},
		)

		recordsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "datasync_records_written_total",
				Help: "Total number of data records written to the store.",
			},
		)

		catalogRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasync_catalog_requests_total",
				Help: "Total number of catalog API requests, labeled by code.",
			},
			[]string{"code"},
		)

		syncDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datasync_sync_duration_seconds",
				Help:    "Histogram of sync run durations, labeled by kind.",
				Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDataset increments the dataset sync counter for the given status.
func ObserveDataset(status string) {
	if datasetsSyncedTotal == nil {
		return
	}
	datasetsSyncedTotal.WithLabelValues(status).Inc()
}

// ObserveResource increments the resource processing counter.
func ObserveResource(format, status string) {
	if resourcesProcessedTotal == nil {
		return
	}
	resourcesProcessedTotal.WithLabelValues(format, status).Inc()
}

// AddRecordsWritten adds to the written records counter.
func AddRecordsWritten(n int) {
	if recordsWrittenTotal == nil || n <= 0 {
		return
	}
	recordsWrittenTotal.Add(float64(n))
}

// ObserveCatalogRequest increments the catalog request counter for an HTTP
// status code.
func ObserveCatalogRequest(code int) {
	if catalogRequestsTotal == nil {
		return
	}
	catalogRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveSyncDuration records the duration of one sync run.
func ObserveSyncDuration(kind string, duration time.Duration) {
	if syncDurationSeconds == nil {
		return
	}
	syncDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}
