package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	verdicts *prometheus.CounterVec
	stages   *prometheus.HistogramVec
	evicted  prometheus.Counter
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// When buckets is non-nil a gauge reports the live rate limit bucket count.
func NewMetrics(reg prometheus.Registerer, buckets func() int) (*Metrics, error) {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekeeper",
				Subsystem: "admission",
				Name:      "verdicts_total",
				Help:      "Admission verdicts by rejection kind and reason.",
			},
			[]string{"kind", "reason"},
		),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gatekeeper",
				Subsystem: "admission",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each admission stage.",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"stage"},
		),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "ratelimit",
			Name:      "evicted_buckets_total",
			Help:      "Idle rate limit buckets removed by the sweeper.",
		}),
	}

	collectors := []prometheus.Collector{m.verdicts, m.stages, m.evicted}

	if buckets != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "gatekeeper",
				Subsystem: "ratelimit",
				Name:      "buckets",
				Help:      "Live rate limit buckets.",
			},
			func() float64 { return float64(buckets()) },
		))
	}

	if reg != nil {
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// Evicted counts buckets removed by the rate limit sweeper. It matches
// ratelimit.Config.OnEvict.
func (m *Metrics) Evicted(n int) {
	if m == nil {
		return
	}

	m.evicted.Add(float64(n))
}

func (m *Metrics) observeVerdict(v Verdict) {
	if m == nil {
		return
	}

	if v.Rejection == nil {
		m.verdicts.WithLabelValues("allowed", "").Inc()
		return
	}

	m.verdicts.WithLabelValues(string(v.Rejection.Kind), v.Rejection.Reason).Inc()
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}

	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
