package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"refcache/internal/entity"
)

const subsystem = "resolver"

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	triggers     prometheus.Counter
	passes       prometheus.Counter
	passDuration prometheus.Histogram
	jobs         *prometheus.CounterVec
	missing      *prometheus.GaugeVec
	persisted    *prometheus.CounterVec
	postProcess  *prometheus.CounterVec
}

// NewMetrics creates the resolver collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "triggers_total",
			Help:      "Count of resolution triggers received.",
		}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "passes_total",
			Help:      "Count of resolution passes executed.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "pass_duration_seconds",
			Help:      "Duration of resolution passes.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "jobs_total",
			Help:      "Count of fetch jobs by category and result.",
		}, []string{"category", "result"}),
		missing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "missing_ids",
			Help:      "Missing IDs found by the last collect, by category.",
		}, []string{"category"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "persisted_records_total",
			Help:      "Count of records written to the entity store, by category.",
		}, []string{"category"}),
		postProcess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "post_process_total",
			Help:      "Count of post-processor runs by name and result.",
		}, []string{"name", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.triggers, m.passes, m.passDuration, m.jobs, m.missing, m.persisted, m.postProcess)
	}
	return m
}

func (m *Metrics) recordTrigger() {
	if m == nil {
		return
	}
	m.triggers.Inc()
}

func (m *Metrics) recordPass(d time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passDuration.Observe(d.Seconds())
}

func (m *Metrics) recordJob(category entity.Category, err error) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(category), result(err)).Inc()
}

func (m *Metrics) recordMissing(missing *MissingIDs) {
	if m == nil {
		return
	}
	for category, n := range missing.Counts() {
		m.missing.WithLabelValues(string(category)).Set(float64(n))
	}
}

func (m *Metrics) recordPersisted(category entity.Category, n int) {
	if m == nil {
		return
	}
	m.persisted.WithLabelValues(string(category)).Add(float64(n))
}

func (m *Metrics) recordPostProcess(name string, err error) {
	if m == nil {
		return
	}
	m.postProcess.WithLabelValues(name, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
