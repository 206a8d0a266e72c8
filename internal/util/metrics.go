package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSplitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_split_total",
		Help: "Total number of orders run through the split engine",
	})

	SplitsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splits_created_total",
		Help: "Total number of split orders created",
	})

	SplitsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splits_failed_total",
		Help: "Total number of failed split attempts",
	}, []string{"reason"})

	SplitsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splits_cancelled_total",
		Help: "Total number of cancelled split orders",
	})

	AllocationsOutOfStock = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allocations_out_of_stock_total",
		Help: "Total number of allocation attempts that found no eligible store",
	}, []string{"mode"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of online stock reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed online stock reservations",
	}, []string{"reason"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "split_transitions_total",
		Help: "Total number of split order state transitions",
	}, []string{"to"})

	TransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "split_transitions_rejected_total",
		Help: "Total number of rejected split order transitions",
	}, []string{"reason"})

	CourierCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_callbacks_total",
		Help: "Total number of courier status callbacks received",
	}, []string{"status"})

	ExternalCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "external_call_failures_total",
		Help: "Total number of failed ERP/courier/payment/commerce calls",
	}, []string{"system", "op"})

	RefundsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_issued_total",
		Help: "Total number of refunds issued",
	})

	RefundsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_rejected_total",
		Help: "Total number of rejected refund attempts",
	}, []string{"reason"})

	HybridRecomputeRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hybrid_recompute_runs_total",
		Help: "Total number of completed hybrid stock recompute passes",
	})

	HybridRecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hybrid_recompute_duration_seconds",
		Help:    "Duration of hybrid stock recompute passes",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
