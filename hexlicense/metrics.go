package hexlicense

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes validation counters for an embedding application.
type Metrics struct {
	Validations    *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
	DaysRemaining  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hexlicense",
			Name:      "validations_total",
			Help:      "License validations by outcome and offline rejection reason.",
		}, []string{"outcome", "reason"}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hexlicense",
			Name:      "verify_duration_seconds",
			Help:      "Duration of the round trip to the license authority.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DaysRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hexlicense",
			Name:      "license_days_remaining",
			Help:      "Whole days until the accepted license expires.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Validations, m.VerifyDuration, m.DaysRemaining)
	}
	return m
}

func (m *Metrics) observeVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.VerifyDuration.Observe(d.Seconds())
}

func (m *Metrics) observeOutcome(out Outcome, record *LicenseRecord, now time.Time) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(out.Kind.String(), out.Reason.String()).Inc()
	if out.Valid() && record != nil && record.ExpiresAt != nil {
		m.DaysRemaining.Set(float64(daysLeft(*record.ExpiresAt, now)))
	}
}

// daysLeft counts whole days until t, truncating toward zero.
func daysLeft(t, now time.Time) int {
	return int(t.Sub(now) / (24 * time.Hour))
}
