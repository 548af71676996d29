package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flashdeal"

var (
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by strategy and result.",
		}, []string{"strategy", "result"})

	CacheRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "rebuilds_total",
			Help:      "Asynchronous logical-expiry rebuilds by outcome.",
		}, []string{"result"})

	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seckill",
			Name:      "admissions_total",
			Help:      "Admission script results.",
		}, []string{"result"})

	OrdersProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seckill",
			Name:      "orders_processed_total",
			Help:      "Order log messages handled by the processor.",
		}, []string{"source", "result"})
)

func init() {
	prometheus.MustRegister(CacheRequests, CacheRebuilds, Admissions, OrdersProcessed)
}
