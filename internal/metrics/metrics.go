// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_created_total",
		Help: "Durable orders created, by payment method",
	}, []string{"method"})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Checkout attempts aborted, by reason",
	}, []string{"reason"})

	GatewaySessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_gateway_sessions_total",
		Help: "Hosted checkout sessions created, by gateway",
	}, []string{"gateway"})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_gateway_callbacks_total",
		Help: "Settlement callbacks processed, by outcome",
	}, []string{"outcome"})

	SettlementConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_settlement_conflicts_total",
		Help: "Settlements confirmed by a gateway that inventory could not cover",
	})

	SignatureMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_signature_mismatches_total",
		Help: "Callback signatures that failed verification",
	})

	CouponPreviewTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_coupon_preview_total",
		Help: "Public coupon preview calls, by outcome",
	}, []string{"outcome"})
)
