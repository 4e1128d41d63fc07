// Package metrics exposes orchestrator activity as prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "toolrunner"

// Tool invocation outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnknownTool = "unknown_tool"
	OutcomeMalformed   = "malformed_input"
)

// Recorder holds the collectors for one registry. A nil *Recorder records nothing.
type Recorder struct {
	modelCalls      *prometheus.CounterVec
	modelDuration   prometheus.Histogram
	toolInvocations *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runIterations   prometheus.Histogram
}

// New creates a Recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		modelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_calls_total",
				Help:      "Model service calls by mode and result.",
			},
			[]string{"mode", "result"},
		),
		modelDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_call_duration_seconds",
				Help:      "Model service call duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		toolInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Client-side tool invocations by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished orchestrator runs by outcome.",
			},
			[]string{"outcome"},
		),
		runIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_iterations",
				Help:      "Model calls made per finished run.",
				Buckets:   prometheus.LinearBuckets(1, 1, 16),
			},
		),
	}

	for _, c := range []prometheus.Collector{r.modelCalls, r.modelDuration, r.toolInvocations, r.runs, r.runIterations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ModelCall records one Create or Stream call.
func (r *Recorder) ModelCall(mode string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	r.modelCalls.WithLabelValues(mode, result).Inc()
	r.modelDuration.Observe(duration.Seconds())
}

// ToolInvocation records one dispatched tool_use block.
func (r *Recorder) ToolInvocation(tool, outcome string) {
	if r == nil {
		return
	}
	r.toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// RunFinished records the final state of a run and how many model calls it made.
func (r *Recorder) RunFinished(outcome string, iterations int) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.runIterations.Observe(float64(iterations))
}
