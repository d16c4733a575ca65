// Package metrics exposes a Prometheus registry for the pipeline's counters
// and gauges, plus an HTTP server for /metrics and /healthz.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Registry owns every Prometheus collector this pipeline reports.
type Registry struct {
	registry *prometheus.Registry

	recordsProcessed prometheus.Counter
	parseErrors      prometheus.Counter
	sourceErrors     *prometheus.CounterVec
	outputQueueDepth prometheus.Gauge
	activeUsers      prometheus.Gauge
	cpuUsagePercent  prometheus.Gauge
	batchDuration    prometheus.Histogram

	responseTimeP50    prometheus.Gauge
	responseTimeP90    prometheus.Gauge
	responseTimeP99    prometheus.Gauge
	resourceUsageTrend *prometheus.GaugeVec
	errorCounts        *prometheus.GaugeVec
}

// NewRegistry creates a fresh Prometheus registry with all collectors
// registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		recordsProcessed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "logstream_records_processed_total",
			Help: "Total ParsedLog records successfully parsed and emitted.",
		}),
		parseErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "logstream_parse_errors_total",
			Help: "Total lines dropped because no registered parser accepted them or parsing failed.",
		}),
		sourceErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "logstream_source_errors_total",
			Help: "Total source-level errors (init or transport failures), by source label.",
		}, []string{"source"}),
		outputQueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "logstream_output_queue_depth",
			Help: "Current number of ParsedLog records buffered in the output channel.",
		}),
		activeUsers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "logstream_active_users",
			Help: "Users with at least one retained activity timestamp in the current analytics window.",
		}),
		cpuUsagePercent: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "logstream_process_cpu_percent",
			Help: "System-wide CPU utilization sampled by the resource monitor.",
		}),
		batchDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "logstream_batch_processing_seconds",
			Help:    "Time spent parsing and dispatching one worker batch.",
			Buckets: prometheus.DefBuckets,
		}),
		responseTimeP50: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "logstream_response_time_p50_ms",
			Help: "50th percentile of recorded response times, refreshed on each analytics update.",
		}),
		responseTimeP90: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "logstream_response_time_p90_ms",
			Help: "90th percentile of recorded response times, refreshed on each analytics update.",
		}),
		responseTimeP99: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "logstream_response_time_p99_ms",
			Help: "99th percentile of recorded response times, refreshed on each analytics update.",
		}),
		resourceUsageTrend: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "logstream_resource_usage_trend",
			Help: "Mean of retained resource_usage samples, by the value-string key they are bucketed under.",
		}, []string{"key"}),
		errorCounts: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "logstream_error_counts",
			Help: "Error count recorded by analytics since startup (not window-pruned), by error_type.",
		}, []string{"error_type"}),
	}

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return r
}

// IncRecordsProcessed increments the processed-record counter.
func (r *Registry) IncRecordsProcessed() { r.recordsProcessed.Inc() }

// IncParseErrors increments the parse-error counter.
func (r *Registry) IncParseErrors() { r.parseErrors.Inc() }

// IncSourceErrors increments the per-source error counter.
func (r *Registry) IncSourceErrors(source string) { r.sourceErrors.WithLabelValues(source).Inc() }

// SetOutputQueueDepth records the current output channel occupancy.
func (r *Registry) SetOutputQueueDepth(n int) { r.outputQueueDepth.Set(float64(n)) }

// SetActiveUsers records the analytics active-user count.
func (r *Registry) SetActiveUsers(n int) { r.activeUsers.Set(float64(n)) }

// SetCPUUsagePercent records the resource monitor's latest CPU sample.
func (r *Registry) SetCPUUsagePercent(pct float64) { r.cpuUsagePercent.Set(pct) }

// ObserveBatchDuration records how long one worker batch took to process.
func (r *Registry) ObserveBatchDuration(d time.Duration) { r.batchDuration.Observe(d.Seconds()) }

// SetResponseTimePercentiles publishes the analytics window's current
// (p50, p90, p99) response-time snapshot.
func (r *Registry) SetResponseTimePercentiles(p50, p90, p99 float64) {
	r.responseTimeP50.Set(p50)
	r.responseTimeP90.Set(p90)
	r.responseTimeP99.Set(p99)
}

// SetResourceUsageTrend publishes the mean of retained resource_usage
// samples for key.
func (r *Registry) SetResourceUsageTrend(key string, mean float64) {
	r.resourceUsageTrend.WithLabelValues(key).Set(mean)
}

// SetErrorCount publishes the current analytics error count for errorType.
func (r *Registry) SetErrorCount(errorType string, count int) {
	r.errorCounts.WithLabelValues(errorType).Set(float64(count))
}

// Server exposes the registry's collectors on /metrics and a liveness probe
// on /healthz.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// NewServer builds an HTTP server bound to addr, serving /metrics and
// /healthz via gorilla/mux.
func NewServer(addr string, reg *Registry, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg.registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		logger:     logger,
	}
}

// Start listens and serves until the server is shut down. Intended to run
// in its own goroutine; ErrServerClosed is swallowed.
func (s *Server) Start() {
	s.logger.WithField("addr", s.httpServer.Addr).Info("metrics server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("metrics server stopped unexpectedly")
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
