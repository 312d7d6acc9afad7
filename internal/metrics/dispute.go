package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"escrowScope/internal/model"
)

var (
	coordinatorVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowscope",
		Subsystem: "coordinator",
		Name:      "verdicts_total",
		Help:      "Count of dispute verdicts by outcome.",
	}, []string{"chain", "outcome"})

	coordinatorCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrowscope",
		Subsystem: "coordinator",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one pending-dispute scan.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	resolverSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowscope",
		Subsystem: "resolver",
		Name:      "submissions_total",
		Help:      "Count of settlement transactions by final status.",
	}, []string{"chain", "status"})

	resolverSubmissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrowscope",
		Subsystem: "resolver",
		Name:      "submission_duration_seconds",
		Help:      "Duration from signing to confirmation of a settlement transaction.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"chain", "status"})
)

// Verdict outcomes.
const (
	OutcomeSubmitted    = "submitted"
	OutcomeBelow        = "below_threshold"
	OutcomeReasonerErr  = "reasoner_error"
	OutcomeSubmitFailed = "submit_failed"
	OutcomePermanent    = "permanent_failure"
	OutcomeNoResolver   = "no_resolver"
)

// Coordinator tracks dispute coordinator metrics.
type Coordinator struct{}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

func (Coordinator) ObserveVerdict(chain model.Chain, outcome string) {
	coordinatorVerdictsTotal.WithLabelValues(string(chain), outcome).Inc()
}

func (Coordinator) ObserveCycle(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	coordinatorCycleDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// Resolver tracks settlement submissions for one chain.
type Resolver struct {
	chain string
}

func NewResolver(chain model.Chain) *Resolver {
	name := string(chain)
	if name == "" {
		name = "unknown"
	}
	return &Resolver{chain: name}
}

// ObserveSubmission records the final status of one settlement attempt.
func (m Resolver) ObserveSubmission(status string, started time.Time) {
	resolverSubmissionsTotal.WithLabelValues(m.chain, status).Inc()
	resolverSubmissionDuration.WithLabelValues(m.chain, status).Observe(time.Since(started).Seconds())
}
