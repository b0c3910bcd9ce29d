package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления заказов и переходов статусов.
type CheckoutMetrics struct {
	// Счётчики оформления
	checkoutStarted   prometheus.Counter
	checkoutSucceeded prometheus.Counter
	checkoutFailed    *prometheus.CounterVec

	checkoutDuration prometheus.Histogram
	allocatedUnits   prometheus.Counter
	transitions      *prometheus.CounterVec

	inFlight prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_checkout_started_total",
			Help: "Total number of checkouts started",
		}),
		checkoutSucceeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_checkout_succeeded_total",
			Help: "Total number of checkouts committed",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_checkout_failed_total",
			Help: "Total number of checkouts rolled back, by error kind",
		}, []string{"kind"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		allocatedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_inventory_allocated_units_total",
			Help: "Total number of book units allocated by committed checkouts",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_order_transitions_total",
			Help: "Total number of committed order status transitions",
		}, []string{"to"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bookstore_checkout_in_flight",
			Help: "Number of checkouts currently holding a transaction",
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

// RecordCheckoutStarted увеличивает счётчик начатых оформлений и число активных.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
	m.inFlight.Inc()
}

// RecordCheckoutSucceeded фиксирует commit и количество списанных единиц.
func (m *CheckoutMetrics) RecordCheckoutSucceeded(units int, duration time.Duration) {
	m.checkoutSucceeded.Inc()
	m.allocatedUnits.Add(float64(units))
	m.finish(duration)
}

// RecordCheckoutFailed фиксирует откат с видом ошибки.
func (m *CheckoutMetrics) RecordCheckoutFailed(kind string, duration time.Duration) {
	if kind == "" {
		kind = "UNKNOWN"
	}
	m.checkoutFailed.WithLabelValues(kind).Inc()
	m.finish(duration)
}

// RecordTransition увеличивает счётчик переходов в статус to.
func (m *CheckoutMetrics) RecordTransition(to string) {
	m.transitions.WithLabelValues(to).Inc()
}

func (m *CheckoutMetrics) finish(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
	m.inFlight.Dec()
}
