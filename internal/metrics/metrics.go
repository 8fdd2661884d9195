// Package metrics is a small facade over a pluggable metrics backend.
//
// Core code records through the package-level functions; main picks the
// backend once at startup with SetBackend. Until then every call goes to a
// no-op backend, so tests and metrics-less runs pay nothing.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions (e.g. kind=table, status=ok).
type Labels map[string]string

// Backend receives metric updates. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names recorded by the migration.
const (
	// EntriesTotal counts finished tables and joins. Labels: kind, status.
	EntriesTotal = "migrate_entries_total"
	// DocumentsTotal counts inserted documents. Labels: kind.
	DocumentsTotal = "migrate_documents_total"
	// BatchesTotal counts insert calls.
	BatchesTotal = "migrate_batches_total"
	// EntryDurationSeconds observes per-entry wall time. Labels: kind, status.
	EntryDurationSeconds = "migrate_entry_duration_seconds"
	// JoinRecordsTotal counts records through a join. Labels: side (left|right|output).
	JoinRecordsTotal = "migrate_join_records_total"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nop{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the backend to submit anything buffered.
func Flush() error { return current().Flush() }

// RecordEntry records the outcome of one table or join import.
func RecordEntry(kind string, docs int64, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	b := current()
	b.IncCounter(EntriesTotal, 1, Labels{"kind": kind, "status": status})
	b.ObserveHistogram(EntryDurationSeconds, d.Seconds(), Labels{"kind": kind, "status": status})
	if docs > 0 {
		b.IncCounter(DocumentsTotal, float64(docs), Labels{"kind": kind})
	}
}
