package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_connect_attempts_total",
			Help: "Total number of database connect attempts by driver and outcome.",
		},
		[]string{"driver", "outcome"},
	)
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_turns_total",
			Help: "Total number of chat turns by outcome (ok, connection, generation, execution).",
		},
		[]string{"outcome"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_llm_call_duration_seconds",
			Help:    "Language model call latency by pipeline stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"stage", "outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_query_duration_seconds",
			Help:    "Generated SQL execution latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_query_rows_returned",
			Help:    "Rows returned to the answer stage per executed statement.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 500, 1000},
		},
	)
	activeSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlchat_active_session",
			Help: "1 when a database connection is open, 0 otherwise.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_exports_total",
			Help: "Total number of result exports by outcome.",
		},
		[]string{"outcome"},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_auth_failures_total",
			Help: "Total number of rejected session requests by reason (missing, invalid).",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		connectAttemptsTotal,
		turnsTotal,
		llmCallDurationSeconds,
		queryDurationSeconds,
		queryRowsReturned,
		activeSession,
		exportsTotal,
		authFailuresTotal,
	)
}

func ObserveConnect(driver string, err error) {
	connectAttemptsTotal.WithLabelValues(driver, outcome(err)).Inc()
	if err == nil {
		activeSession.Set(1)
	}
}

func ObserveDisconnect() {
	activeSession.Set(0)
}

// ObserveTurn records a finished turn. kind is empty for successful turns.
func ObserveTurn(kind string) {
	if kind == "" {
		kind = "ok"
	}
	turnsTotal.WithLabelValues(kind).Inc()
}

func ObserveLLMCall(stage string, elapsed time.Duration, err error) {
	llmCallDurationSeconds.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

func ObserveQuery(elapsed time.Duration, rows int, err error) {
	queryDurationSeconds.WithLabelValues(outcome(err)).Observe(elapsed.Seconds())
	if err == nil {
		queryRowsReturned.Observe(float64(rows))
	}
}

func ObserveExport(err error) {
	exportsTotal.WithLabelValues(outcome(err)).Inc()
}

func ObserveAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
