package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelsql_statements_total",
			Help: "Total number of document statements processed, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelsql_statement_duration_seconds",
			Help:    "Statement processing latency by kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelsql_runs_total",
			Help: "Total number of runs, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	connectionOpensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelsql_connection_opens_total",
			Help: "Total number of connection handles opened, by connection type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	publisherRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelsql_publisher_requests_total",
			Help: "Total number of Publisher API requests, by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(statementsTotal, statementDurationSeconds, runsTotal, connectionOpensTotal, publisherRequestsTotal)
}

func ObserveStatement(kind, outcome string, elapsed time.Duration) {
	statementsTotal.WithLabelValues(kind, outcome).Inc()
	statementDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func ObserveRun(mode, outcome string) {
	runsTotal.WithLabelValues(mode, outcome).Inc()
}

func ObserveConnectionOpen(connectionType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	connectionOpensTotal.WithLabelValues(connectionType, outcome).Inc()
}

// ObservePublisherRequest counts one Publisher API call. outcome is "ok", "http_error"
// or "unreachable".
func ObservePublisherRequest(method, outcome string) {
	publisherRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}
