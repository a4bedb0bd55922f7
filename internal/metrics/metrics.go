// Package metrics defines the minimal instrumentation surface the loader
// emits through. Core code depends only on Backend; wiring a concrete
// backend (Datadog, or the no-op default) happens in the binaries.
package metrics

// Labels carries metric dimensions. Backends decide which labels they use.
type Labels map[string]string

// Metric names emitted by the loader. Backends may ignore names they do not
// recognize.
const (
	// FilesTotal counts processed files; label "status" is processed|failed.
	FilesTotal = "staging_files_total"
	// RecordsTotal counts versioning outcomes; labels "table" and "action".
	RecordsTotal = "staging_records_total"
	// BatchesTotal counts completed directory passes.
	BatchesTotal = "staging_batches_total"
	// RawRowsTotal counts raw audit rows; label "op" is inserted|deleted.
	RawRowsTotal = "staging_raw_rows_total"
	// FileDurationSeconds observes per-file wall time; label "status".
	FileDurationSeconds = "staging_file_duration_seconds"
)

// Backend receives metric updates. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush submits any buffered state.
	Flush() error
	// Close flushes and releases resources. Call once at shutdown.
	Close() error
}

// Noop discards everything. It is the default backend so core code never
// nil-checks.
type Noop struct{}

func (Noop) IncCounter(string, float64, Labels)       {}
func (Noop) ObserveHistogram(string, float64, Labels) {}
func (Noop) Flush() error                             { return nil }
func (Noop) Close() error                             { return nil }

var _ Backend = Noop{}
