package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "influencerflow_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "influencerflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ContractsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influencerflow_contracts_generated_total",
			Help: "Total number of contracts generated",
		},
	)

	ContractsSignedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influencerflow_contracts_signed_total",
			Help: "Total number of contracts signed",
		},
	)

	SignatureRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "influencerflow_signature_rejections_total",
			Help: "Total number of rejected signature uploads by reason",
		},
		[]string{"reason"},
	)

	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "influencerflow_compensations_total",
			Help: "Compensating actions run after partial failures, by outcome",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			ContractsGeneratedTotal,
			ContractsSignedTotal,
			SignatureRejectionsTotal,
			CompensationsTotal,
		)
	})
}
