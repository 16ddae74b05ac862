package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's resilience and session counters.
type Metrics struct {
	RetryAttempts      *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec
	AnswerSaves        *prometheus.CounterVec
	SessionsCompleted  *prometheus.CounterVec
}

// NewMetrics registers the counters on reg. Pass
// prometheus.DefaultRegisterer in production; a private registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquest_retry_attempts_total",
			Help: "Scheduled retries by classified error kind.",
		}, []string{"kind"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquest_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"breaker", "to"}),
		BreakerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquest_breaker_rejections_total",
			Help: "Calls rejected fast by an open circuit.",
		}, []string{"breaker"}),
		AnswerSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquest_answer_saves_total",
			Help: "Detached answer persistence outcomes.",
		}, []string{"outcome"}),
		SessionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquest_sessions_completed_total",
			Help: "Completed quiz sessions by end reason.",
		}, []string{"reason"}),
	}
}
