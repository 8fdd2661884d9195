// Package importer loads delimited tables and joins into document
// collections.
//
// A plain import streams one data file through the delimited parser into
// pooled rows, turns each row into a document keyed by the table's field
// list and inserts documents in batches. A join import runs the join
// pipeline and loads its output through the same streaming primitive.
// Every import fully replaces its target collection.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tablemigrate/internal/config"
	"tablemigrate/internal/fault"
	"tablemigrate/internal/importlog"
	"tablemigrate/internal/manifest"
	"tablemigrate/internal/metrics"
	csvparser "tablemigrate/internal/parser/csv"
	"tablemigrate/internal/storage"
	"tablemigrate/internal/transformer"
)

var (
	ErrMissingDataFile = errors.New("missing data file")
	ErrUnknownSortHint = errors.New("sort hint is not a field of the table")
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Result is the outcome of one table or join import.
type Result struct {
	Kind       string // "table" or "join"
	Name       string
	Collection string
	Fields     manifest.FieldList
	Documents  int64
	// Skipped counts malformed records dropped by the parser.
	Skipped  int64
	Duration time.Duration
	Err      error
}

// Importer loads entries into one target database.
type Importer struct {
	repo storage.Repository
	cfg  config.Config
	load storage.LoadOptions
	log  *importlog.Log
	lg   Logger
}

// New returns an Importer writing through repo. importLog and logger may
// be nil.
func New(repo storage.Repository, cfg config.Config, load storage.LoadOptions, importLog *importlog.Log, logger Logger) *Importer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Importer{repo: repo, cfg: cfg, load: load, log: importLog, lg: logger}
}

func (im *Importer) batchSize() int {
	if im.load.BatchSize > 0 {
		return im.load.BatchSize
	}
	if im.cfg.Runtime.BatchSize > 0 {
		return im.cfg.Runtime.BatchSize
	}
	return config.DefaultBatchSize
}

// ImportTable loads <SourceDir>/<table>.<ext> into the collection named
// after the table, using <table>.fields as column headers.
func (im *Importer) ImportTable(ctx context.Context, spec manifest.TableSpec) Result {
	start := time.Now()
	res := Result{Kind: "table", Name: spec.Name, Collection: spec.Name}
	path := im.cfg.DataPath(spec.Name)

	entry := im.begin("table", spec.Name, spec.Name, path)
	defer func() {
		res.Duration = time.Since(start)
		entry.End(res.Documents, res.Err)
		metrics.RecordEntry(res.Kind, res.Documents, res.Duration, res.Err)
	}()

	fields, err := manifest.ReadFields(im.cfg.ManifestDir, spec.Name)
	if err != nil {
		if errors.Is(err, manifest.ErrEmptyFieldList) {
			res.Err = fault.Spec(spec.Name, err)
		} else {
			res.Err = fault.IO(spec.Name, err)
		}
		return res
	}
	res.Fields = fields
	entry.Fields(fields)

	if spec.SortHint != "" && fields.Index(spec.SortHint) == 0 {
		res.Err = fault.Spec(spec.Name, fmt.Errorf("%w: %q", ErrUnknownSortHint, spec.SortHint))
		return res
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrMissingDataFile, path)
		}
		res.Err = fault.IO(spec.Name, err)
		return res
	}
	defer f.Close()

	opt := csvparser.Options{Comma: im.cfg.Delimiter.Rune(), Encoding: im.cfg.Encoding}
	n, skipped, err := im.stream(ctx, spec.Name, fields, f, opt, entry)
	res.Documents, res.Skipped = n, skipped
	if err != nil {
		res.Err = fault.IO(spec.Name, err)
		return res
	}

	if spec.SortHint != "" {
		if err := im.repo.EnsureIndex(ctx, spec.Name, spec.SortHint); err != nil {
			res.Err = fault.IO(spec.Name, fmt.Errorf("index %s: %w", spec.SortHint, err))
			return res
		}
	}
	im.lg.Printf("stage=import_table ok table=%s documents=%d skipped=%d duration=%s",
		spec.Name, n, skipped, time.Since(start))
	return res
}

// ImportStream replaces collection with the delimited records read from
// src, mapped positionally onto fields. It returns the number of documents
// inserted.
func (im *Importer) ImportStream(ctx context.Context, collection string, fields manifest.FieldList, src io.Reader, delim config.Delimiter) (int64, error) {
	n, _, err := im.stream(ctx, collection, fields, src, csvparser.Options{Comma: delim.Rune()}, nil)
	return n, err
}

// stream is the shared load loop: the parser goroutine feeds pooled rows
// through a bounded channel to the batching loader.
func (im *Importer) stream(
	ctx context.Context,
	collection string,
	fields manifest.FieldList,
	src io.Reader,
	opt csvparser.Options,
	entry *importlog.Entry,
) (inserted, skipped int64, err error) {
	// the existing collection must survive an unreadable input
	if err := csvparser.CheckEncoding(opt.Encoding); err != nil {
		return 0, 0, err
	}
	if err := im.repo.ReplaceCollection(ctx, collection); err != nil {
		return 0, 0, fmt.Errorf("replace collection %s: %w", collection, err)
	}

	buf := im.cfg.Runtime.ChannelBuffer
	if buf <= 0 {
		buf = config.DefaultChannelBuffer
	}
	rows := make(chan *transformer.Row, buf)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		return csvparser.StreamRows(gctx, src, fields, opt, rows, func(line int, err error) {
			skipped++
			if entry != nil {
				entry.Note("skipped record=%d error=%q", line, err.Error())
			}
		})
	})

	g.Go(func() error {
		size := im.batchSize()
		batch := make([]storage.Document, 0, size)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := im.repo.InsertDocuments(gctx, collection, batch)
			inserted += n
			metrics.IncCounter(metrics.BatchesTotal, 1, nil)
			if err != nil {
				return fmt.Errorf("insert into %s: %w", collection, err)
			}
			clear(batch)
			batch = batch[:0]
			return nil
		}

		for row := range rows {
			batch = append(batch, storage.NewDocument(fields, row.V, im.load.IgnoreBlanks))
			row.Free()
			if len(batch) >= size {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	err = g.Wait()
	return inserted, skipped, err
}

func (im *Importer) begin(kind, name, collection, source string) *importlog.Entry {
	if im.log == nil {
		return importlog.New(io.Discard).Begin(kind, name, collection, source)
	}
	return im.log.Begin(kind, name, collection, source)
}
