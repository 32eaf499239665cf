package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per orchestrator operation and one
// per compensation attempt.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	Compensation(ctx context.Context, outcome string)
}

// Compensation outcomes.
const (
	CompensationRestored = "restored"
	CompensationFailed   = "failed"
)

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) Compensation(context.Context, string)                 {}

// PrometheusMetrics exports operation latency and compensation counts.
type PrometheusMetrics struct {
	durations     *prometheus.HistogramVec
	compensations *prometheus.CounterVec
}

// NewPrometheusMetrics registers the budgetcore collectors with reg. A nil reg
// uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "budgetcore_operation_duration_seconds",
			Help:    "Duration of budget change operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetcore_compensations_total",
			Help: "Approval rollbacks by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.durations, m.compensations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Observe implements MetricsRecorder.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	m.durations.WithLabelValues(operation, statusLabel(success)).Observe(duration.Seconds())
}

// Compensation implements MetricsRecorder.
func (m *PrometheusMetrics) Compensation(_ context.Context, outcome string) {
	m.compensations.WithLabelValues(outcome).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

var expvarSeq uint64

// ExpvarMetricsRecorder keeps process-local totals published through expvar,
// for runs that do not expose a Prometheus endpoint.
type ExpvarMetricsRecorder struct {
	name          string
	mu            sync.Mutex
	durations     map[string]float64
	results       map[string]map[string]int64
	compensations map[string]int64
}

// ExpvarMetricsSnapshot is a read-only copy of the recorded totals.
type ExpvarMetricsSnapshot struct {
	DurationsMS   map[string]float64          `json:"durations_ms_total"`
	Results       map[string]map[string]int64 `json:"results_total"`
	Compensations map[string]int64            `json:"compensations_total"`
	RecordedAt    time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, generating one
// when empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("budgetcore_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:          name,
		durations:     make(map[string]float64),
		results:       make(map[string]map[string]int64),
		compensations: make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, counts := range r.results {
		cp := make(map[string]int64, len(counts))
		for status, n := range counts {
			cp[status] = n
		}
		results[op] = cp
	}
	compensations := make(map[string]int64, len(r.compensations))
	for outcome, n := range r.compensations {
		compensations[outcome] = n
	}
	return ExpvarMetricsSnapshot{
		DurationsMS:   durations,
		Results:       results,
		Compensations: compensations,
		RecordedAt:    time.Now().UTC(),
	}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := statusLabel(success)
	r.mu.Lock()
	r.durations[operation] += ms
	if _, ok := r.results[operation]; !ok {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][status]++
	r.mu.Unlock()
}

// Compensation implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Compensation(_ context.Context, outcome string) {
	r.mu.Lock()
	r.compensations[outcome]++
	r.mu.Unlock()
}
