package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records saga-level counters for the checkout flow.
type CheckoutMetrics struct {
	initDuration    *prometheus.HistogramVec
	initOutcome     *prometheus.CounterVec
	priceSyncRetry  prometheus.Counter
	paymentOutcome  *prometheus.CounterVec
	sessionsReused  prometheus.Counter
	sessionsCreated prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	initDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_init_duration_seconds",
		Help:    "Duration of checkout initialization in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	initOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_init_total",
		Help: "Checkout initialization attempts by outcome.",
	}, []string{"outcome"})
	priceSyncRetry := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_price_sync_retries_total",
		Help: "Price sync attempts beyond the first.",
	})
	paymentOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_outcome_total",
		Help: "Gateway confirmation outcomes.",
	}, []string{"status"})
	sessionsReused := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_payment_sessions_reused_total",
		Help: "Payment sessions reused instead of created.",
	})
	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_payment_sessions_created_total",
		Help: "Payment sessions created.",
	})
	reg.MustRegister(initDuration, initOutcome, priceSyncRetry, paymentOutcome, sessionsReused, sessionsCreated)
	return &CheckoutMetrics{
		initDuration:    initDuration,
		initOutcome:     initOutcome,
		priceSyncRetry:  priceSyncRetry,
		paymentOutcome:  paymentOutcome,
		sessionsReused:  sessionsReused,
		sessionsCreated: sessionsCreated,
	}
}

// ObserveInit records one initialization run.
func (m *CheckoutMetrics) ObserveInit(outcome string, duration time.Duration) {
	if m == nil || m.initDuration == nil {
		return
	}
	m.initDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
	m.initOutcome.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPriceSyncRetry counts a retried price sync attempt.
func (m *CheckoutMetrics) IncPriceSyncRetry() {
	if m == nil || m.priceSyncRetry == nil {
		return
	}
	m.priceSyncRetry.Inc()
}

// IncPaymentOutcome counts a gateway confirmation status.
func (m *CheckoutMetrics) IncPaymentOutcome(status string) {
	if m == nil || m.paymentOutcome == nil {
		return
	}
	m.paymentOutcome.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncSessionReused counts a session reuse.
func (m *CheckoutMetrics) IncSessionReused() {
	if m == nil || m.sessionsReused == nil {
		return
	}
	m.sessionsReused.Inc()
}

// IncSessionCreated counts a fresh session.
func (m *CheckoutMetrics) IncSessionCreated() {
	if m == nil || m.sessionsCreated == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func normalizeLabel(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
