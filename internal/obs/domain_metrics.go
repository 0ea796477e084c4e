package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// CouponRejectionsTotal counts coupon rejections by reason.
	CouponRejectionsTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts reconciled gateway callbacks by outcome.
	PaymentCallbackTotal *prometheus.CounterVec
	// PaymentAnomaliesTotal counts callbacks that need manual reconciliation.
	PaymentAnomaliesTotal *prometheus.CounterVec
	// StockConflictsTotal counts orders rejected for insufficient stock.
	StockConflictsTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"method", "result"})
		CouponRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_rejections_total",
			Help:      "Count of coupon rejections by reason.",
		}, []string{"reason"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of reconciled payment callbacks by outcome.",
		}, []string{"result"})
		PaymentAnomaliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_anomalies_total",
			Help:      "Count of payment callbacks that could not be reconciled automatically.",
		}, []string{"kind"})
		StockConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_conflicts_total",
			Help:      "Number of orders rejected because stock ran out.",
		})

		CheckoutTotal = register(reg, CheckoutTotal)
		CouponRejectionsTotal = register(reg, CouponRejectionsTotal)
		PaymentIntentTotal = register(reg, PaymentIntentTotal)
		PaymentCallbackTotal = register(reg, PaymentCallbackTotal)
		PaymentAnomaliesTotal = register(reg, PaymentAnomaliesTotal)
		StockConflictsTotal = register(reg, StockConflictsTotal)
	})
}

// CountCheckout records a checkout outcome.
func CountCheckout(method, result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(method, result).Inc()
	}
}

// CountCouponRejection records a coupon rejection.
func CountCouponRejection(reason string) {
	if CouponRejectionsTotal != nil {
		CouponRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// CountPaymentIntent records a payment intent outcome.
func CountPaymentIntent(provider, result string) {
	if PaymentIntentTotal != nil {
		PaymentIntentTotal.WithLabelValues(provider, result).Inc()
	}
}

// CountPaymentCallback records a reconciled callback outcome.
func CountPaymentCallback(result string) {
	if PaymentCallbackTotal != nil {
		PaymentCallbackTotal.WithLabelValues(result).Inc()
	}
}

// CountPaymentAnomaly records an unreconciled callback.
func CountPaymentAnomaly(kind string) {
	if PaymentAnomaliesTotal != nil {
		PaymentAnomaliesTotal.WithLabelValues(kind).Inc()
	}
}

// CountStockConflict records an order rejected for insufficient stock.
func CountStockConflict() {
	if StockConflictsTotal != nil {
		StockConflictsTotal.Inc()
	}
}
