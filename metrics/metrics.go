package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CouponGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coupons",
		Name:      "generate_total",
		Help:      "Coupon generation requests by outcome (created, replayed, conflict, rejected, error).",
	}, []string{"outcome"})

	CouponTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coupons",
		Name:      "transitions_total",
		Help:      "Coupon status changes by source status, target status and kind.",
	}, []string{"from", "to", "kind"})

	OverdueMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coupons",
		Name:      "overdue_materialized_total",
		Help:      "Rows moved to overdue by the sweep job.",
	}, []string{"entity"})

	IdempotencyPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coupons",
		Name:      "idempotency_records_purged_total",
		Help:      "Idempotency records removed after the retention window.",
	})
)

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
