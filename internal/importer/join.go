package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"tablemigrate/internal/config"
	"tablemigrate/internal/fault"
	"tablemigrate/internal/join"
	"tablemigrate/internal/manifest"
	"tablemigrate/internal/metrics"
)

var (
	ErrJoinRequiresTabDelimited = errors.New("join requires tab-delimited input")
	ErrJoinFailed               = errors.New("join failed")
	ErrUnknownJoinField         = join.ErrUnknownJoinField
)

// ImportJoin builds collection spec.OutputName from the left outer join of
// the two tables spec references. The join pipeline writes into an
// in-process pipe that ImportStream consumes; both halves run under one
// errgroup so a failure on either side stops the other.
//
// Failures wrap ErrJoinFailed and a *join.StageError naming the stage.
func (im *Importer) ImportJoin(ctx context.Context, spec manifest.JoinSpec) Result {
	start := time.Now()
	res := Result{Kind: "join", Name: spec.OutputName, Collection: spec.OutputName}
	leftPath := im.cfg.DataPath(spec.Left.Table)
	rightPath := im.cfg.DataPath(spec.Right.Table)

	entry := im.begin("join", spec.OutputName, spec.OutputName, spec.Left.String()+"="+spec.Right.String())
	defer func() {
		res.Duration = time.Since(start)
		entry.End(res.Documents, res.Err)
		metrics.RecordEntry(res.Kind, res.Documents, res.Duration, res.Err)
	}()

	j, err := im.resolveJoin(spec)
	if err != nil {
		res.Err = joinFault(spec.OutputName, join.AtStage(join.StageResolve, err))
		return res
	}
	res.Fields = j.Fields
	entry.Fields(j.Fields)

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var (
		stats   join.Stats
		pipeErr error
		loadErr error
	)
	g.Go(func() error {
		stats, pipeErr = j.Run(gctx, leftPath, rightPath, pw, join.Options{
			ChunkRecords: im.cfg.Runtime.SortChunkRecords,
			TempDir:      im.cfg.Runtime.TempDir,
			Encoding:     im.cfg.Encoding,
			ReadBuffer:   im.cfg.Runtime.ChannelBuffer,
			Logger:       im.lg,
		})
		_ = pw.CloseWithError(pipeErr)
		return pipeErr
	})
	g.Go(func() error {
		n, err := im.ImportStream(gctx, spec.OutputName, j.Fields, pr, config.Tab)
		res.Documents = n
		if err != nil {
			loadErr = join.AtStage(join.StageLoad, err)
			_ = pr.CloseWithError(loadErr)
		}
		return loadErr
	})
	_ = g.Wait()

	if err := pickJoinErr(pipeErr, loadErr); err != nil {
		res.Err = joinFault(spec.OutputName, err)
		return res
	}

	metrics.IncCounter(metrics.JoinRecordsTotal, float64(stats.Left), metrics.Labels{"side": "left"})
	metrics.IncCounter(metrics.JoinRecordsTotal, float64(stats.Right), metrics.Labels{"side": "right"})
	metrics.IncCounter(metrics.JoinRecordsTotal, float64(stats.Output), metrics.Labels{"side": "output"})
	im.lg.Printf("stage=import_join ok join=%s left=%d right=%d documents=%d duration=%s",
		spec.OutputName, stats.Left, stats.Right, res.Documents, time.Since(start))
	return res
}

func (im *Importer) resolveJoin(spec manifest.JoinSpec) (*join.Join, error) {
	if im.cfg.Delimiter != config.Tab {
		return nil, fmt.Errorf("%w (delimiter is %s)", ErrJoinRequiresTabDelimited, im.cfg.Delimiter)
	}
	left, err := manifest.ReadFields(im.cfg.ManifestDir, spec.Left.Table)
	if err != nil {
		return nil, err
	}
	right, err := manifest.ReadFields(im.cfg.ManifestDir, spec.Right.Table)
	if err != nil {
		return nil, err
	}
	return join.Resolve(spec, left, right)
}

// pickJoinErr returns the root cause when both halves failed. A pipeline
// that only saw the loader go away (canceled context or a failed write)
// reports the loader's error.
func pickJoinErr(pipeErr, loadErr error) error {
	if pipeErr == nil {
		return loadErr
	}
	if loadErr == nil {
		return pipeErr
	}
	var se *join.StageError
	if errors.Is(pipeErr, context.Canceled) || (errors.As(pipeErr, &se) && se.Stage == join.StageLoad) {
		return loadErr
	}
	return pipeErr
}

// joinFault classifies a join failure by stage: resolve is a spec error,
// opening inputs is an IO error, anything later is a pipeline error.
func joinFault(name string, err error) error {
	stage := join.StageLoad
	var se *join.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}

	kind := fault.KindPipeline
	switch stage {
	case join.StageResolve:
		kind = fault.KindSpec
	case join.StageOpenLeft, join.StageOpenRight:
		kind = fault.KindIO
	}
	return &fault.Error{Kind: kind, Entry: name, Stage: stage, Err: fmt.Errorf("%w: %w", ErrJoinFailed, err)}
}
