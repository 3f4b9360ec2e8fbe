package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal tracks decisions by outcome (approved, denied, flagged)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_sweeper_decisions_total",
			Help: "Total number of decisions by outcome",
		},
		[]string{"outcome"},
	)

	// GateFailuresTotal tracks each failing gate of a denied decision
	GateFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_sweeper_gate_failures_total",
			Help: "Total number of gate failures by gate",
		},
		[]string{"gate"},
	)

	// RetriesTotal tracks retry waits per remote operation
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_sweeper_retries_total",
			Help: "Total number of retries of remote operations",
		},
		[]string{"operation"},
	)

	// BatchFailuresTotal tracks batches skipped after a hard failure
	BatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_sweeper_batch_failures_total",
			Help: "Total number of failed batches by stage",
		},
		[]string{"stage"},
	)

	// CorrectionsTotal tracks verifier corrections
	CorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_sweeper_verifier_corrections_total",
			Help: "Total number of classifications corrected by the verifier",
		},
	)

	// ShortCircuitTotal tracks items decided by protected-domain policy without classification
	ShortCircuitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_sweeper_protected_short_circuit_total",
			Help: "Total number of items from protected domains that skipped classification",
		},
	)

	// BatchDuration tracks the wall time of one classification batch
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inbox_sweeper_batch_duration_seconds",
			Help:    "Duration of a classification batch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

// WriteTextfile exports the default registry in the node_exporter textfile format
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
