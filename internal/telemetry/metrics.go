package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты цикла для метки result.
const (
	CycleOK     = "ok"
	CycleFailed = "failed"
)

// Metrics — метрики цикла планировщика.
//
// Все методы безопасны для nil: Scheduler без метрик просто их не пишет.
type Metrics struct {
	cycles        *prometheus.CounterVec
	dispatched    prometheus.Counter
	cycleDuration prometheus.Histogram
	wakeups       *prometheus.CounterVec
	lastCycle     prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// В тестах передавайте prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpoller_cycles_total",
			Help: "Scheduler cycles by result.",
		}, []string{"result"}),
		dispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "jobpoller_jobs_dispatched_total",
			Help: "Jobs dispatched in committed cycles.",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobpoller_cycle_duration_seconds",
			Help:    "Duration of one scheduler cycle (begin to commit/rollback).",
			Buckets: prometheus.DefBuckets,
		}),
		wakeups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpoller_wakeups_total",
			Help: "Scheduler wakeups by reason.",
		}, []string{"reason"}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Name: "jobpoller_last_cycle_timestamp_seconds",
			Help: "Unix time of the last committed cycle.",
		}),
	}
}

// ObserveCycle записывает результат одного цикла.
func (m *Metrics) ObserveCycle(result string, dispatched int, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(took.Seconds())
	if result == CycleOK {
		m.dispatched.Add(float64(dispatched))
		m.lastCycle.SetToCurrentTime()
	}
}

// ObserveWakeup считает пробуждение цикла.
func (m *Metrics) ObserveWakeup(reason string) {
	if m == nil {
		return
	}
	m.wakeups.WithLabelValues(reason).Inc()
}
