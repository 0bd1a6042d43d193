// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the sense AtomPub server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// DispatchBuckets defines histogram buckets for request dispatch latencies,
// ranging from 5ms to 10s.
var DispatchBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Transaction outcomes recorded in TransactionsTotal.
const (
	OutcomeCommitted   = "committed"
	OutcomeCompensated = "compensated"
	OutcomeStartFailed = "start_failed"
	OutcomeEndFailed   = "end_failed"
)

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sense_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sense_request_duration_seconds",
			Help:    "Request duration",
			Buckets: DispatchBuckets,
		},
		[]string{"method"},
	)

	// InFlightRequests tracks the number of requests currently being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sense_requests_in_flight",
			Help: "Requests in flight",
		},
	)

	// DispatchTotal counts dispatched requests by target kind and result
	// ("ok", "not_found", "unhandled", "client_error", "server_error").
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sense_dispatch_total",
			Help: "Dispatched requests",
		},
		[]string{"target", "result"},
	)

	// TransactionsTotal counts transactional request lifecycles by outcome.
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sense_transactions_total",
			Help: "Transaction lifecycles",
		},
		[]string{"outcome"},
	)

	// TransactionHookFailuresTotal counts absorbed Compensate and End failures.
	TransactionHookFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sense_transaction_hook_failures_total",
			Help: "Absorbed transaction hook failures",
		},
		[]string{"hook"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter
	// by service tier and request class (read or write).
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sense_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier", "class"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		DispatchTotal,
		TransactionsTotal,
		TransactionHookFailuresTotal,
		RateLimitRejectedTotal,
	)
}
