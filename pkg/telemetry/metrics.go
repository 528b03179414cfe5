package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for estimate metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Metrics provides Prometheus metrics for the estimation service.
type Metrics struct {
	config MetricsConfig

	// Estimate metrics
	estimates         *prometheus.CounterVec
	estimateDuration  *prometheus.HistogramVec
	estimatedGranules prometheus.Histogram

	// Form metrics
	formStates *prometheus.CounterVec

	// Admission metrics
	costLimitRejections *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Catalogue metrics
	datasetsLoaded prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// no-op: every recorder checks for nil collectors
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		estimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "estimates_total",
				Help:      "Total number of cost estimates by outcome",
			},
			[]string{"dataset", "origin", "outcome"},
		),
		estimateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "estimate_duration_seconds",
				Help:      "Duration of engine operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		estimatedGranules: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "estimated_granules",
				Help:      "Distribution of estimated granule counts",
				Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
			},
		),

		formStates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "form_states_total",
				Help:      "Total number of form states computed",
			},
			[]string{"dataset"},
		),

		costLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_limit_rejections_total",
				Help:      "Total number of requests rejected by cost limits",
			},
			[]string{"dataset", "cost_id"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		datasetsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "datasets_loaded",
				Help:      "Current number of datasets in the catalogue",
			},
		),
	}

	registry.MustRegister(
		m.estimates,
		m.estimateDuration,
		m.estimatedGranules,
		m.formStates,
		m.costLimitRejections,
		m.errorsByClass,
		m.errorsByCode,
		m.datasetsLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m, nil
}

// RecordEstimate records a finished estimate with its outcome and granule count.
func (m *Metrics) RecordEstimate(dataset, origin, outcome string, granules int64) {
	if m.estimates == nil {
		return
	}
	m.estimates.WithLabelValues(dataset, origin, outcome).Inc()
	if outcome != OutcomeFailed {
		m.estimatedGranules.Observe(float64(granules))
	}
}

// ObserveDuration records how long an engine operation took.
func (m *Metrics) ObserveDuration(operation string, duration time.Duration) {
	if m.estimateDuration == nil {
		return
	}
	m.estimateDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFormState increments the form state counter for a dataset.
func (m *Metrics) RecordFormState(dataset string) {
	if m.formStates == nil {
		return
	}
	m.formStates.WithLabelValues(dataset).Inc()
}

// RecordCostLimitRejection records a request rejected because of costID.
func (m *Metrics) RecordCostLimitRejection(dataset, costID string) {
	if m.costLimitRejections == nil {
		return
	}
	m.costLimitRejections.WithLabelValues(dataset, costID).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// SetDatasetsLoaded sets the number of datasets currently loaded.
func (m *Metrics) SetDatasetsLoaded(count int) {
	if m.datasetsLoaded == nil {
		return
	}
	m.datasetsLoaded.Set(float64(count))
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ServeMetrics serves the metrics endpoint until ctx is cancelled.
func (m *Metrics) ServeMetrics(ctx context.Context, logger *Logger) error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("serving metrics on %s%s", m.config.ListenAddress, path)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
