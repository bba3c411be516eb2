// Package metrics defines the minimal instrumentation seam the ingestion
// workflow emits through. Core code depends only on Backend; the concrete
// sink (Datadog, or nothing) is chosen at wiring time.
package metrics

// Labels are free-form metric dimensions.
type Labels map[string]string

// Backend receives counter increments and raw histogram samples.
//
// Implementations must be safe for concurrent use: ingestion workers emit
// from multiple goroutines.
type Backend interface {
	// IncCounter adds delta to a named counter. Non-positive deltas are
	// ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a distribution (durations in
	// seconds, sizes in bytes). Negative samples are ignored.
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush pushes buffered data to the sink.
	Flush() error

	// Close stops background work and flushes one final time.
	Close() error
}

// Metric names emitted by the ingestion workflow.
const (
	UploadsTotal          = "dataloft_uploads_total"           // labels: status
	RowsTotal             = "dataloft_rows_total"              // labels: outcome (imported|failed)
	BatchesTotal          = "dataloft_batches_total"           // labels: outcome (ok|failed)
	ImportDurationSeconds = "dataloft_import_duration_seconds" // labels: status
	TablesTotal           = "dataloft_tables_total"            // labels: op (created|dropped)
)

// Nop discards everything. Used when no metrics sink is configured and in
// tests.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
