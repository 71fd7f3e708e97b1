package server

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(metricsRequestsByMethod)
	prometheus.MustRegister(metricsMethodToStatus)
	prometheus.MustRegister(metricsImportOutcome)
	prometheus.MustRegister(metricsRequestDuration)
}

var metricsRequestsByMethod = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "treasury_requests_by_method",
		Help: "Client requests by protocol method",
	},
	[]string{"method"},
)

var metricsMethodToStatus = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "treasury_method_to_status",
		Help: "Client requests by method and response status",
	},
	[]string{"method", "status"},
)

var metricsImportOutcome = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "treasury_import_outcome",
		Help: "Import engine outcomes by target and result",
	},
	[]string{"target", "outcome"},
)

var metricsRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "treasury_request_duration_seconds",
		Help: "Request handling duration by method",
	},
	[]string{"method"},
)
