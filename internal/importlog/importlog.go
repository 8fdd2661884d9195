// Package importlog writes the shared, append-only import log.
//
// Each run opens with a run marker, then every table or join appends one
// block:
//
//	run=<id> begin kind=table entry=orders collection=orders source=/data/orders.csv
//	run=<id> fields entry=orders fields=id,customer,total
//	run=<id> end entry=orders status=ok documents=120 duration=35ms
//
// A failing entry ends with status=failed plus the error kind, the pipeline
// stage when known, and the error text.
package importlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tablemigrate/internal/fault"
)

// Log is safe for concurrent use; every line is written under one mutex.
type Log struct {
	mu     sync.Mutex
	l      *log.Logger
	closer io.Closer
	runID  string
	now    func() time.Time
}

// Open appends to the log file at path, creating it if needed.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open import log %s: %w", path, err)
	}
	lg := New(f)
	lg.closer = f
	return lg, nil
}

// New writes log lines to w. Closing the Log does not close w.
func New(w io.Writer) *Log {
	return &Log{
		l:     log.New(w, "", log.LstdFlags),
		runID: uuid.NewString(),
		now:   time.Now,
	}
}

// RunID identifies this run's lines in a log shared by many runs.
func (g *Log) RunID() string { return g.runID }

func (g *Log) Close() error {
	if g == nil || g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

// StartRun writes the run marker.
func (g *Log) StartRun(sourceDir, targetDB string) {
	g.printf("start source=%s target=%s", quote(sourceDir), quote(targetDB))
}

// EndRun writes the closing run line with the driver's summary.
func (g *Log) EndRun(summary string) {
	g.printf("finish %s", summary)
}

// Begin opens the block of one manifest entry. kind is "table" or "join".
func (g *Log) Begin(kind, entry, collection, source string) *Entry {
	g.printf("begin kind=%s entry=%s collection=%s source=%s", kind, entry, collection, quote(source))
	return &Entry{log: g, name: entry, started: g.now()}
}

// Entry is the open block of one table or join.
type Entry struct {
	log     *Log
	name    string
	started time.Time
}

// Fields records the field list used for the entry.
func (e *Entry) Fields(fields []string) {
	e.log.printf("fields entry=%s fields=%s", e.name, quote(strings.Join(fields, ",")))
}

// Note records a free-form detail line, e.g. a skipped bad record.
func (e *Entry) Note(format string, a ...any) {
	e.log.printf("note entry=%s %s", e.name, fmt.Sprintf(format, a...))
}

// End closes the block with the exit status.
func (e *Entry) End(documents int64, err error) {
	d := e.log.now().Sub(e.started).Round(time.Millisecond)
	if err == nil {
		e.log.printf("end entry=%s status=ok documents=%d duration=%s", e.name, documents, d)
		return
	}
	stage := fault.StageOf(err)
	if stage == "" {
		stage = "-"
	}
	e.log.printf("end entry=%s status=failed kind=%s stage=%s documents=%d duration=%s error=%s",
		e.name, fault.KindOf(err), stage, documents, d, strconv.Quote(err.Error()))
}

func (g *Log) printf(format string, a ...any) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.l.Printf("run=%s "+format, append([]any{g.runID}, a...)...)
}

// quote leaves simple tokens bare so the log stays grep-friendly.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
