package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts processed turns.
	// Labels: phase (phase after the turn), outcome ("ok", "store_error", "invalid_state")
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repcue_turns_total",
		Help: "Processed conversation turns by resulting phase and outcome",
	}, []string{"phase", "outcome"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repcue_turn_duration_seconds",
		Help:    "Wall time to process one inbound message",
		Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10},
	})

	// MatchResults counts matcher outcomes by method (exercise_type, pattern, llm, none).
	MatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repcue_match_results_total",
		Help: "Exercise phrase match results by method",
	}, []string{"method"})

	// SemanticFailures counts degraded semantic tier calls.
	// Labels: reason ("error", "timeout", "rate_limited", "unavailable")
	SemanticFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repcue_semantic_failures_total",
		Help: "Semantic matcher calls that degraded to no match",
	}, []string{"reason"})

	// DisambiguationOutcomes labels: resolved, needs_clarification, abandoned
	DisambiguationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repcue_disambiguation_outcomes_total",
		Help: "Disambiguation reply outcomes",
	}, []string{"outcome"})

	// ActiveUpdates labels: update, general, unclear
	ActiveUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repcue_active_messages_total",
		Help: "Messages classified while preferences are active",
	}, []string{"class"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repcue_pair_workers",
		Help: "Live per-pair conversation workers",
	})

	BroadcastDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repcue_broadcast_delivered_total",
		Help: "Preference snapshots delivered to listeners",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repcue_broadcast_dropped_total",
		Help: "Listeners dropped for being slow or closed",
	})
)
