package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects counters for the checkout concurrency core. All services
// treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	HoldAcquireTotal *prometheus.CounterVec // result=acquired|conflict|error
	HoldReleaseTotal prometheus.Counter
	LockAcquireTotal *prometheus.CounterVec // result=acquired|timeout|error
	LockWaitMS       prometheus.Histogram
	DedupTotal       *prometheus.CounterVec // outcome=acquired|already_processed|in_progress|dropped
	CheckoutTotal    *prometheus.CounterVec // result=created|conflict|reserve_lost|error
}

// NewMetrics builds and registers the metric set on the given registerer
// (pass prometheus.DefaultRegisterer in production wiring).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HoldAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_hold_acquire_total",
				Help: "Order hold acquisition attempts by result",
			},
			[]string{"result"},
		),
		HoldReleaseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_hold_release_total",
			Help: "Order hold keys released",
		}),
		LockAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lock_acquire_total",
				Help: "Distributed lock acquisition attempts by result",
			},
			[]string{"result"},
		),
		LockWaitMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lock_wait_ms",
			Help:    "Time spent waiting for distributed locks (ms)",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DedupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_dedup_total",
				Help: "Webhook dedup gate outcomes",
			},
			[]string{"outcome"},
		),
		CheckoutTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_total",
				Help: "Checkout attempts by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.HoldAcquireTotal,
		m.HoldReleaseTotal,
		m.LockAcquireTotal,
		m.LockWaitMS,
		m.DedupTotal,
		m.CheckoutTotal,
	)
	return m
}
