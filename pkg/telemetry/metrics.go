package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the resolver pipeline.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutionsStarted   *prometheus.CounterVec
	resolutionsCompleted *prometheus.CounterVec
	resolveDuration      *prometheus.HistogramVec

	// Validation metrics
	validationFailures *prometheus.CounterVec

	// Plan metrics
	descriptorsEmitted *prometheus.CounterVec
	planSize           *prometheus.HistogramVec
	secretsGenerated   prometheus.Counter

	// Policy metrics
	policyEvaluations *prometheus.CounterVec
	policyViolations  *prometheus.CounterVec
	policyDuration    *prometheus.HistogramVec

	// Store metrics
	storeOperations *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		resolutionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_started_total",
				Help:      "Total number of resolutions started",
			},
			[]string{"app"},
		),
		resolutionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_completed_total",
				Help:      "Total number of resolutions completed",
			},
			[]string{"status"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Duration of plan resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of intent validation failures by constraint",
			},
			[]string{"constraint"},
		),

		descriptorsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "descriptors_emitted_total",
				Help:      "Total number of resource descriptors emitted by kind",
			},
			[]string{"kind"},
		),
		planSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_descriptors",
				Help:      "Descriptor count per resolved plan",
				Buckets:   []float64{8, 9, 10, 11, 12, 13, 14},
			},
			[]string{"auth_mode"},
		),
		secretsGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "secrets_generated_total",
				Help:      "Total number of origin verification secrets generated",
			},
		),

		policyEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"decision"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations by severity",
			},
			[]string{"policy", "severity"},
		),
		policyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "policy_evaluation_duration_seconds",
				Help:      "Duration of plan policy evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"decision"},
		),

		storeOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of history store operations",
			},
			[]string{"operation"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of history store errors",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.resolutionsStarted,
		m.resolutionsCompleted,
		m.resolveDuration,
		m.validationFailures,
		m.descriptorsEmitted,
		m.planSize,
		m.secretsGenerated,
		m.policyEvaluations,
		m.policyViolations,
		m.policyDuration,
		m.storeOperations,
		m.storeErrors,
	)

	return m, nil
}

// Resolution Metrics

// RecordResolutionStarted increments the counter for started resolutions.
func (m *Metrics) RecordResolutionStarted(app string) {
	if m.resolutionsStarted == nil {
		return
	}
	m.resolutionsStarted.WithLabelValues(app).Inc()
}

// RecordResolutionCompleted records a completed resolution with its status and
// duration. Status is "resolved" or "failed".
func (m *Metrics) RecordResolutionCompleted(status string, duration time.Duration) {
	if m.resolutionsCompleted == nil {
		return
	}
	m.resolutionsCompleted.WithLabelValues(status).Inc()
	m.resolveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordValidationFailure records an intent validation failure by constraint.
func (m *Metrics) RecordValidationFailure(constraint string) {
	if m.validationFailures == nil {
		return
	}
	m.validationFailures.WithLabelValues(constraint).Inc()
}

// Plan Metrics

// RecordDescriptor records an emitted descriptor by kind.
func (m *Metrics) RecordDescriptor(kind string) {
	if m.descriptorsEmitted == nil {
		return
	}
	m.descriptorsEmitted.WithLabelValues(kind).Inc()
}

// RecordPlanSize records the descriptor count of a resolved plan.
func (m *Metrics) RecordPlanSize(authMode string, descriptors int) {
	if m.planSize == nil {
		return
	}
	m.planSize.WithLabelValues(authMode).Observe(float64(descriptors))
}

// RecordSecretGenerated increments the generated secret counter.
func (m *Metrics) RecordSecretGenerated() {
	if m.secretsGenerated == nil {
		return
	}
	m.secretsGenerated.Inc()
}

// Policy Metrics

// RecordPolicyEvaluation records a policy run. Decision is "allowed" or
// "blocked".
func (m *Metrics) RecordPolicyEvaluation(decision string, duration time.Duration) {
	if m.policyEvaluations == nil {
		return
	}
	m.policyEvaluations.WithLabelValues(decision).Inc()
	m.policyDuration.WithLabelValues(decision).Observe(duration.Seconds())
}

// RecordPolicyViolation records a single policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Store Metrics

// RecordStoreOperation records a history store operation.
func (m *Metrics) RecordStoreOperation(operation string) {
	if m.storeOperations == nil {
		return
	}
	m.storeOperations.WithLabelValues(operation).Inc()
}

// RecordStoreError records a history store error.
func (m *Metrics) RecordStoreError(operation string) {
	if m.storeErrors == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
