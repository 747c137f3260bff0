package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersAccepted counts orders accepted through the execute endpoint.
var OrdersAccepted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dexroute_orders_accepted_total",
		Help: "Total number of orders accepted for execution",
	},
)

// RoutingDecisions counts routing decisions by chosen source.
var RoutingDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dexroute_routing_decisions_total",
		Help: "Total number of routing decisions by chosen source",
	},
	[]string{"source"},
)

// OrdersCompleted counts pipeline runs reaching a terminal status.
var OrdersCompleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dexroute_orders_completed_total",
		Help: "Total number of orders reaching a terminal status",
	},
	[]string{"status"},
)

// PipelineDuration records end-to-end pipeline latency.
var PipelineDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "dexroute_pipeline_duration_seconds",
		Help:    "Latency in seconds from pipeline start to terminal status",
		Buckets: prometheus.DefBuckets,
	},
)

// QueueJobsRetried counts durable-queue retry attempts.
var QueueJobsRetried = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dexroute_queue_jobs_retried_total",
		Help: "Total number of durable-queue job retry attempts",
	},
)

func init() {
	prometheus.MustRegister(OrdersAccepted, RoutingDecisions, OrdersCompleted)
	prometheus.MustRegister(PipelineDuration, QueueJobsRetried)
}
