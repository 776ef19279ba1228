package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	// Счётчики операций
	ordersPlaced    prometheus.Counter
	ordersCanceled  prometheus.Counter
	ordersReordered prometheus.Counter
	ordersCompleted prometheus.Counter

	// Отказы размещения по причинам (unavailable, out_of_stock, not_found)
	stockRejections *prometheus.CounterVec

	// Массовые переводы статусов из админки по целевому статусу
	adminTransitions *prometheus.CounterVec

	// Гистограмма времени размещения заказа
	placeDuration prometheus.Histogram

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge активных (нетерминальных) заказов
	activeOrders prometheus.Gauge
}

// NewOrderMetrics создаёт новый экземпляр метрик заказов.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "restaurant_orders_placed_total",
			Help: "Total number of orders placed",
		}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "restaurant_orders_canceled_total",
			Help: "Total number of orders canceled",
		}),
		ordersReordered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "restaurant_orders_reordered_total",
			Help: "Total number of reorders placed from past orders",
		}),
		ordersCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "restaurant_orders_completed_total",
			Help: "Total number of orders delivered to completion",
		}),
		stockRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "restaurant_stock_rejections_total",
			Help: "Order placements rejected by the stock guard",
		}, []string{"reason"}),
		adminTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "restaurant_admin_transitions_total",
			Help: "Bulk status transitions applied from the admin surface",
		}, []string{"target"}),
		placeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "restaurant_place_order_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "restaurant_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "restaurant_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "restaurant_active_orders",
			Help: "Number of orders currently in a non-terminal status",
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

// RecordOrderPlaced увеличивает счётчик размещённых заказов.
func (m *OrderMetrics) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
	m.activeOrders.Inc()
}

// RecordOrderCanceled увеличивает счётчик отменённых заказов.
func (m *OrderMetrics) RecordOrderCanceled() {
	m.ordersCanceled.Inc()
	m.activeOrders.Dec()
}

// RecordOrderReordered увеличивает счётчик повторных заказов.
func (m *OrderMetrics) RecordOrderReordered() {
	m.ordersReordered.Inc()
}

// RecordOrderCompleted увеличивает счётчик доставленных заказов.
func (m *OrderMetrics) RecordOrderCompleted() {
	m.ordersCompleted.Inc()
	m.activeOrders.Dec()
}

// RecordStockRejection фиксирует отказ размещения по причине.
func (m *OrderMetrics) RecordStockRejection(reason string) {
	m.stockRejections.WithLabelValues(reason).Inc()
}

// RecordAdminTransition фиксирует массовый перевод в целевой статус.
func (m *OrderMetrics) RecordAdminTransition(target string) {
	m.adminTransitions.WithLabelValues(target).Inc()
}

// RecordPlaceDuration записывает время размещения заказа.
func (m *OrderMetrics) RecordPlaceDuration(duration time.Duration) {
	m.placeDuration.Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
