package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the zip service.
type Metrics struct {
	// Zip metrics
	ZipsTotal   prometheus.Counter
	ZipsFailed  prometheus.Counter
	ZipDuration prometheus.Histogram

	// Input/output shape metrics
	BundleColumns prometheus.Histogram
	BundleRecords prometheus.Histogram
	TreeGroups    prometheus.Histogram
	SkippedFields prometheus.Counter

	// Transport metrics
	ActiveConnections prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ZipsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zips_total",
			Help:      "Total number of zip requests",
		}),
		ZipsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zips_failed_total",
			Help:      "Total number of failed zip requests",
		}),
		ZipDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "zip_duration_seconds",
			Help:      "Zip processing duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		BundleColumns: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_columns",
			Help:      "Number of columns per input bundle",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		BundleRecords: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_records",
			Help:      "Number of records per input bundle",
			Buckets:   []float64{10, 100, 1000, 10000, 100000, 1000000},
		}),
		TreeGroups: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_groups",
			Help:      "Number of top-level groups per zipped tree",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		SkippedFields: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_fields_total",
			Help:      "Total number of computed fields skipped for missing inputs",
		}),

		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open client connections",
		}),
	}
}

// RecordZip records one zip request.
func (m *Metrics) RecordZip(success bool, duration time.Duration) {
	m.ZipsTotal.Inc()
	m.ZipDuration.Observe(duration.Seconds())
	if !success {
		m.ZipsFailed.Inc()
	}
}

// RecordShapes records the input and output shape of a successful zip.
func (m *Metrics) RecordShapes(columns, records, groups, skipped int) {
	m.BundleColumns.Observe(float64(columns))
	m.BundleRecords.Observe(float64(records))
	m.TreeGroups.Observe(float64(groups))
	m.SkippedFields.Add(float64(skipped))
}

// MetricsServer runs an HTTP server exposing the /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
