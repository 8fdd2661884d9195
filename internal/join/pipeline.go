package join

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"time"

	csvparser "tablemigrate/internal/parser/csv"
	"tablemigrate/internal/transformer"
)

// Pipeline stages, in execution order.
const (
	StageResolve    = "resolve"
	StageOpenLeft   = "open_left"
	StageOpenRight  = "open_right"
	StageSortLeft   = "sort_left"
	StageSortRight  = "sort_right"
	StageMerge      = "merge"
	StageSortOutput = "sort_output"
	StageLoad       = "load"
)

// StageError names the pipeline stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return "join stage " + e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with stage unless it already carries one.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Options bound the resources of one join run.
type Options struct {
	// ChunkRecords is the in-memory record limit of each sort.
	ChunkRecords int
	// TempDir receives sort spill files. "" means os.TempDir().
	TempDir string
	// Encoding is the IANA charset of both inputs. "" means UTF-8.
	Encoding string
	// ReadBuffer bounds the parser -> sorter channel.
	ReadBuffer int
	Logger     Logger
}

// Stats are record counts of one run.
type Stats struct {
	Left   int64
	Right  int64
	Output int64
}

// Run joins the tab-delimited files at leftPath and rightPath and writes
// the result to w as tab-delimited records, one per line, in output field
// order. Input records are padded or truncated to their field list length.
//
// Errors are *StageError values naming the failing stage.
func (j *Join) Run(ctx context.Context, leftPath, rightPath string, w io.Writer, opt Options) (Stats, error) {
	var st Stats
	lg := opt.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}

	lf, err := os.Open(leftPath)
	if err != nil {
		return st, AtStage(StageOpenLeft, err)
	}
	defer lf.Close()
	rf, err := os.Open(rightPath)
	if err != nil {
		return st, AtStage(StageOpenRight, err)
	}
	defer rf.Close()

	start := time.Now()
	ls := NewSorter(ByColumn(j.LeftKey, CompareBytes), opt.ChunkRecords, opt.TempDir)
	defer ls.Close()
	if st.Left, err = fill(ctx, ls, lf, j.LeftFields, opt); err != nil {
		return st, AtStage(StageSortLeft, err)
	}
	lit, err := ls.Finish()
	if err != nil {
		return st, AtStage(StageSortLeft, err)
	}
	lg.Printf("stage=%s ok records=%d spills=%d duration=%s", StageSortLeft, st.Left, ls.Spills(), time.Since(start))

	start = time.Now()
	rs := NewSorter(ByColumn(j.RightKey, CompareBytes), opt.ChunkRecords, opt.TempDir)
	defer rs.Close()
	if st.Right, err = fill(ctx, rs, rf, j.RightFields, opt); err != nil {
		return st, AtStage(StageSortRight, err)
	}
	rit, err := rs.Finish()
	if err != nil {
		return st, AtStage(StageSortRight, err)
	}
	lg.Printf("stage=%s ok records=%d spills=%d duration=%s", StageSortRight, st.Right, rs.Spills(), time.Since(start))

	bw := bufio.NewWriterSize(w, 64*1024)
	write := func(rec []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeRecord(bw, rec); err != nil {
			return AtStage(StageLoad, err)
		}
		st.Output++
		return nil
	}

	start = time.Now()
	if j.SortCol < 0 {
		if err := j.MergeJoin(lit, rit, write); err != nil {
			return st, AtStage(StageMerge, err)
		}
		lg.Printf("stage=%s ok records=%d duration=%s", StageMerge, st.Output, time.Since(start))
	} else {
		out := NewSorter(ByColumn(j.SortCol, CompareNumeric), opt.ChunkRecords, opt.TempDir)
		defer out.Close()
		var merged int64
		err := j.MergeJoin(lit, rit, func(rec []string) error {
			merged++
			return out.Add(rec)
		})
		if err != nil {
			return st, AtStage(StageMerge, err)
		}
		lg.Printf("stage=%s ok records=%d duration=%s", StageMerge, merged, time.Since(start))

		start = time.Now()
		it, err := out.Finish()
		if err != nil {
			return st, AtStage(StageSortOutput, err)
		}
		for {
			rec, err := it.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return st, AtStage(StageSortOutput, err)
			}
			if err := write(rec); err != nil {
				return st, AtStage(StageSortOutput, err)
			}
		}
		lg.Printf("stage=%s ok field=%s spills=%d duration=%s", StageSortOutput, j.Spec.SortField, out.Spills(), time.Since(start))
	}

	if err := bw.Flush(); err != nil {
		return st, AtStage(StageLoad, err)
	}
	return st, nil
}

// fill streams src through the tab-delimited parser into s.
func fill(ctx context.Context, s *Sorter, src io.Reader, fields []string, opt Options) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	buf := opt.ReadBuffer
	if buf <= 0 {
		buf = 256
	}
	rows := make(chan *transformer.Row, buf)
	errc := make(chan error, 1)
	go func() {
		defer close(rows)
		errc <- csvparser.StreamRows(ctx, src, fields, csvparser.Options{Comma: '\t', Encoding: opt.Encoding}, rows, nil)
	}()

	var (
		n      int64
		addErr error
	)
	for row := range rows {
		if addErr == nil {
			if addErr = s.Add(slices.Clone(row.V)); addErr != nil {
				cancel()
			} else {
				n++
			}
		}
		row.Free()
	}
	if addErr != nil {
		return n, addErr
	}
	if err := <-errc; err != nil {
		return n, fmt.Errorf("read input: %w", err)
	}
	return n, nil
}
