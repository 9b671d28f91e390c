package bulk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "bulkflow"

var (
	CommandsScrolled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "commands_scrolled_total",
		Help:      "Bulk commands scrolled, by action and outcome.",
	}, []string{"action", "outcome"})

	DocumentsScrolled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "documents_scrolled_total",
		Help:      "Document ids read from scroll cursors, by action.",
	}, []string{"action"})

	BucketsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "buckets_emitted_total",
		Help:      "Buckets written to action streams, by action.",
	}, []string{"action"})

	RecordsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "records_discarded_total",
		Help:      "Input records dropped because they could not be decoded, by stage.",
	}, []string{"stage"})

	StatusMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "status_records_total",
		Help:      "Status records handled by the status stage, by kind (full, delta, ignored).",
	}, []string{"kind"})

	DoneEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "done_records_total",
		Help:      "Final statuses written to the done stream, by state.",
	}, []string{"state"})
)

// Outcome labels for CommandsScrolled.
const (
	OutcomeScrolled     = "scrolled"
	OutcomeEmpty        = "empty"
	OutcomeAborted      = "aborted"
	OutcomeInvalidQuery = "invalid_query"
	OutcomeInvalid      = "invalid_command"
)
