package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_commands_total",
		Help: "Count of governance commands by name and outcome.",
	}, []string{"command", "outcome"})

	fundsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governance_funds_released_total",
		Help: "Sum of completed release amounts in minor units.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "governance_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCommand records one command invocation.
func ObserveCommand(command string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(command, outcome).Inc()
}

// ObserveFundsReleased records a completed release amount.
func ObserveFundsReleased(amount int64) {
	if amount > 0 {
		fundsReleasedTotal.Add(float64(amount))
	}
}

// ObserveHTTP records one HTTP request.
func ObserveHTTP(method, path string, status int, seconds float64) {
	httpDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(seconds)
}
