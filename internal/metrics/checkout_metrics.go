package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics holds the Prometheus collectors for the reservation,
// hold-sweep, order, and webhook subsystems.
type CheckoutMetrics struct {
	holdsCreated     prometheus.Counter
	holdsReleased    *prometheus.CounterVec
	holdsSweptPerRun prometheus.Histogram
	reservationFails *prometheus.CounterVec

	ordersCreated    prometheus.Counter
	orderTransitions *prometheus.CounterVec

	webhooksProcessed *prometheus.CounterVec
	webhooksDeferred  prometheus.Counter
	webhookDuration   prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics registers metrics against the default registerer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		holdsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_holds_created_total",
			Help: "Total number of stock holds created",
		}),
		holdsReleased: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_holds_released_total",
			Help: "Total number of stock holds released, by reason",
		}, []string{"reason"}),
		holdsSweptPerRun: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_hold_sweep_batch_size",
			Help:    "Number of holds released per sweep run",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		reservationFails: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_reservation_failures_total",
			Help: "Total number of failed reservation attempts, by reason",
		}, []string{"reason"}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_created_total",
			Help: "Total number of orders created",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_order_transitions_total",
			Help: "Total number of order state transitions applied, by target status",
		}, []string{"status"}),
		webhooksProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_webhooks_processed_total",
			Help: "Total number of webhook callbacks processed, by outcome",
		}, []string{"outcome"}),
		webhooksDeferred: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_webhooks_deferred_total",
			Help: "Total number of webhooks deferred because their order did not yet exist",
		}),
		webhookDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_webhook_duration_seconds",
			Help:    "Duration of webhook processing",
			Buckets: prometheus.DefBuckets,
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func (m *CheckoutMetrics) RecordHoldCreated() { m.holdsCreated.Inc() }

func (m *CheckoutMetrics) RecordHoldReleased(reason string) {
	m.holdsReleased.WithLabelValues(reason).Inc()
}

func (m *CheckoutMetrics) RecordSweepBatch(n int) {
	m.holdsSweptPerRun.Observe(float64(n))
}

func (m *CheckoutMetrics) RecordReservationFailure(reason string) {
	m.reservationFails.WithLabelValues(reason).Inc()
}

func (m *CheckoutMetrics) RecordOrderCreated() { m.ordersCreated.Inc() }

func (m *CheckoutMetrics) RecordOrderTransition(status string) {
	m.orderTransitions.WithLabelValues(status).Inc()
}

func (m *CheckoutMetrics) RecordWebhookProcessed(outcome string) {
	m.webhooksProcessed.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) RecordWebhookDeferred() { m.webhooksDeferred.Inc() }

func (m *CheckoutMetrics) RecordWebhookDuration(d time.Duration) {
	m.webhookDuration.Observe(d.Seconds())
}

func (m *CheckoutMetrics) RecordTimelineEvent() { m.timelineEvents.Inc() }

func (m *CheckoutMetrics) RecordOutboxEvent() { m.outboxEvents.Inc() }
