package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics содержит бизнес-метрики корзины, оформления и оплаты.
// Методы безопасно вызывать на nil: метрики отключены.
type ShopMetrics struct {
	// Счётчики жизненного цикла заказа
	ordersCreated   prometheus.Counter
	ordersConfirmed prometheus.Counter
	ordersRejected  prometheus.Counter
	ordersCompleted prometheus.Counter
	confirmFailed   *prometheus.CounterVec

	confirmDuration prometheus.Histogram

	paymentWebhooks *prometheus.CounterVec
	cartOperations  *prometheus.CounterVec
	stockUnits      *prometheus.CounterVec
	timelineEvents  prometheus.Counter

	httpRequestDuration *prometheus.HistogramVec
}

// NewShopMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в заданном реестре.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders created in editing status",
		}),
		ordersConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_confirmed_total",
			Help: "Total number of orders confirmed by customers",
		}),
		ordersRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_rejected_total",
			Help: "Total number of orders rejected after failed payment",
		}),
		ordersCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_completed_total",
			Help: "Total number of paid orders completed",
		}),
		confirmFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_confirm_failed_total",
			Help: "Total number of failed order confirmations by reason",
		}, []string{"reason"}),
		confirmDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_confirm_duration_seconds",
			Help:    "Duration of order confirmation transaction in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		paymentWebhooks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payment_webhooks_total",
			Help: "Total number of payment webhook calls by result",
		}, []string{"result"}),
		cartOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_cart_operations_total",
			Help: "Total number of cart operations by operation and cart mode",
		}, []string{"op", "mode"}),
		stockUnits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_inventory_units_total",
			Help: "Total number of stock units deducted or returned",
		}, []string{"direction"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		httpRequestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *ShopMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderConfirmed учитывает успешное подтверждение и его длительность.
func (m *ShopMetrics) RecordOrderConfirmed(duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersConfirmed.Inc()
	m.confirmDuration.Observe(duration.Seconds())
}

// RecordConfirmFailed учитывает неудачное подтверждение; reason принимает значения insufficient_stock, product_inactive, not_found, error.
func (m *ShopMetrics) RecordConfirmFailed(reason string) {
	if m == nil {
		return
	}
	m.confirmFailed.WithLabelValues(reason).Inc()
}

func (m *ShopMetrics) RecordOrderRejected() {
	if m == nil {
		return
	}
	m.ordersRejected.Inc()
}

func (m *ShopMetrics) RecordOrderCompleted() {
	if m == nil {
		return
	}
	m.ordersCompleted.Inc()
}

// RecordPaymentWebhook учитывает вызов webhook: success, fail, duplicate, forbidden, bad_request, not_found, error.
func (m *ShopMetrics) RecordPaymentWebhook(result string) {
	if m == nil {
		return
	}
	m.paymentWebhooks.WithLabelValues(result).Inc()
}

// RecordCartOperation учитывает операцию корзины; mode: session или order.
func (m *ShopMetrics) RecordCartOperation(op, mode string) {
	if m == nil {
		return
	}
	m.cartOperations.WithLabelValues(op, mode).Inc()
}

// RecordStockMovement учитывает списанные (deducted) или возвращённые (returned) единицы товара.
func (m *ShopMetrics) RecordStockMovement(direction string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(direction).Add(float64(units))
}

func (m *ShopMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// ObserveHTTPRequest записывает длительность HTTP-запроса по шаблону маршрута.
func (m *ShopMetrics) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
