package securechannel

//
// Metrics definitions
//

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricAttemptsCount counts the attempts by operation, mode kind and outcome.
	metricAttemptsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailtls_securechannel_attempts_count",
		Help: "Total number of secure channel attempts",
	}, []string{"operation", "mode", "outcome"})

	// metricHandshakeDurationSeconds summarizes the duration of TLS handshakes.
	metricHandshakeDurationSeconds = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "mailtls_securechannel_handshake_duration_seconds",
		Help: "Summarizes the time to complete the TLS handshake (in seconds)",
		Objectives: map[float64]float64{
			0.5:  0.010,
			0.9:  0.010,
			0.99: 0.001,
		},
	})
)

// outcomeSuccess is the outcome label of successful attempts.
const outcomeSuccess = "success"

// observeAttempt updates the metrics after an attempt.
func observeAttempt(operation string, mode AliasMode, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = string(Classify(err))
	}
	metricAttemptsCount.WithLabelValues(operation, mode.Kind.String(), outcome).Inc()
}
