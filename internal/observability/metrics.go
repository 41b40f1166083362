package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors of the reflection engine.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	SubmissionDedups prometheus.Counter
	DraftWrites      *prometheus.CounterVec
}

// NewMetrics registers the collectors once per process and returns them.
//
//   - farum_transitions_total{template,transition,outcome}
//   - farum_submissions_total{template,result}
//   - farum_submission_dedup_total
//   - farum_draft_writes_total{op,outcome}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Transitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "farum_transitions_total",
					Help: "Session state machine transitions by outcome",
				},
				[]string{"template", "transition", "outcome"}, // outcome: taken, blocked, rejected
			),
			Submissions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "farum_submissions_total",
					Help: "Submission results by kind",
				},
				[]string{"template", "result"},
			),
			SubmissionDedups: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "farum_submission_dedup_total",
					Help: "Submit calls answered by the idempotency guard without a write",
				},
			),
			DraftWrites: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "farum_draft_writes_total",
					Help: "Draft store operations by outcome",
				},
				[]string{"op", "outcome"}, // op: save, delete
			),
		}
	})
	return globalMetrics
}
