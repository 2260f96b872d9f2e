package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Analysis outcome labels.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
	OutcomeDuplicate  = "duplicate"
)

// Feedback result labels.
const (
	FeedbackSucceeded = "succeeded"
	FeedbackFailed    = "failed"
	FeedbackRejected  = "rejected"
)

const namespace = "mirador_responder"

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of alert analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_seconds",
			Help:      "Alert analysis latency (correlate and decide) in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions produced, partitioned by autonomy verdict.",
		},
		[]string{"autonomy"},
	)

	feedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Outcome reports processed by the feedback sink.",
		},
		[]string{"result"},
	)

	knowledgeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_errors_total",
			Help:      "Knowledge store failures, partitioned by operation.",
		},
		[]string{"op"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Actions handed to the executor, partitioned by action kind and result.",
		},
		[]string{"action", "result"},
	)
)

// Register attaches responder collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		decisionsTotal,
		feedbackTotal,
		knowledgeErrorsTotal,
		executionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeError, OutcomeSuperseded, OutcomeDuplicate:
	default:
		outcome = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveDecision counts a decision by autonomy verdict.
func ObserveDecision(autonomy string) {
	decisionsTotal.WithLabelValues(autonomy).Inc()
}

// ObserveFeedback counts a processed outcome report.
func ObserveFeedback(result string) {
	feedbackTotal.WithLabelValues(result).Inc()
}

// ObserveKnowledgeError counts a knowledge store failure.
func ObserveKnowledgeError(op string) {
	knowledgeErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveExecution counts an executor call.
func ObserveExecution(action string, succeeded bool) {
	result := FeedbackSucceeded
	if !succeeded {
		result = FeedbackFailed
	}
	executionsTotal.WithLabelValues(action, result).Inc()
}
