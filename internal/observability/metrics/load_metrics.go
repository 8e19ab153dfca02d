package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LoadKindGeo     = "geo"
	LoadKindProject = "project"
	LoadKindRetry   = "retry"
)

const (
	LoadStatusOK      = "ok"
	LoadStatusPartial = "partial"
	LoadStatusFailed  = "failed"
	LoadStatusStale   = "stale"
)

const (
	FetchReasonDeadlineExceeded = "deadline_exceeded"
	FetchReasonUnknown          = "unknown"
)

// LoadMetrics tracks load runs and per-login backend fetches.
type LoadMetrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	stale         prometheus.Counter
}

var (
	loadMetricsOnce sync.Once
	loadMetrics     *LoadMetrics
)

// LoadWithConfig returns the singleton load metrics registry using config labels.
func LoadWithConfig(cfg Config) *LoadMetrics {
	loadMetricsOnce.Do(func() {
		loadMetrics = newLoadMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return loadMetrics
}

// ResetLoadMetricsForTest resets the load metrics singleton for tests.
func ResetLoadMetricsForTest() {
	loadMetricsOnce = sync.Once{}
	loadMetrics = nil
}

// NewLoadMetricsForTest registers into a private registry.
func NewLoadMetricsForTest(registerer prometheus.Registerer) *LoadMetrics {
	return newLoadMetrics(registerer, Config{ServiceName: "paymatrix", Environment: "test"})
}

func newLoadMetrics(registerer prometheus.Registerer, cfg Config) *LoadMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "paymatrix"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &LoadMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paymatrix_load_runs_total",
			Help:        "Load runs by kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "paymatrix_load_duration_seconds",
			Help:        "Wall time of a load run, dominated by sequential backend logins.",
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1200},
			ConstLabels: constLabels,
		}, []string{"kind"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paymatrix_login_fetches_total",
			Help:        "Backend method fetches per login.",
			ConstLabels: constLabels,
		}, []string{"target_env"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paymatrix_login_fetch_failures_total",
			Help:        "Failed backend method fetches by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "paymatrix_stale_publishes_total",
			Help:        "Runs discarded because a newer run of the same scope was already published.",
			ConstLabels: constLabels,
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.fetches, m.fetchFailures, m.stale)
	return m
}

// ObserveRun records the outcome and latency of one run.
func (m *LoadMetrics) ObserveRun(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *LoadMetrics) IncFetch(env string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(env).Inc()
}

func (m *LoadMetrics) IncFetchFailure(err error) {
	if m == nil || err == nil {
		return
	}
	m.fetchFailures.WithLabelValues(ClassifyFetchFailure(err)).Inc()
}

func (m *LoadMetrics) IncStalePublish() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

// failureReasoner is implemented by errors that know their metric reason.
type failureReasoner interface {
	FailureReason() string
}

// ClassifyFetchFailure maps a login fetch error to a low-cardinality reason.
func ClassifyFetchFailure(err error) string {
	if err == nil {
		return FetchReasonUnknown
	}
	var r failureReasoner
	if errors.As(err, &r) {
		if reason := strings.TrimSpace(r.FailureReason()); reason != "" {
			return reason
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FetchReasonDeadlineExceeded
	}
	return FetchReasonUnknown
}
