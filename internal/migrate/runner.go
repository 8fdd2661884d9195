package migrate

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"tablemigrate/internal/config"
	"tablemigrate/internal/fault"
	"tablemigrate/internal/importer"
	"tablemigrate/internal/importlog"
	"tablemigrate/internal/storage"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes a Plan. The function fields are seams for tests.
type Runner struct {
	// NewRepository opens the document store.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// OpenLog opens the shared import log.
	OpenLog func(path string) (*importlog.Log, error)

	// Stdout receives the dry-run description, Stderr the per-entry
	// failure notices.
	Stdout io.Writer
	Stderr io.Writer

	Logger Logger
}

func NewDefaultRunner() *Runner {
	return &Runner{
		NewRepository: storage.New,
		OpenLog:       importlog.Open,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Logger:        log.Default(),
	}
}

// Run prepares cfg and imports every table, then every join, in manifest
// order. Config errors abort before anything is imported and are returned
// as the error. Per-entry failures are recorded in the Report and do not
// stop the run. A canceled ctx ends the run after the current entry.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (Report, error) {
	start := time.Now()

	plan, err := Prepare(cfg)
	if err != nil {
		return Report{}, err
	}
	cfg = plan.Config

	if cfg.DryRun {
		return Report{DryRun: true}, plan.Describe(r.stdout())
	}

	lg, err := r.OpenLog(cfg.LogPath)
	if err != nil {
		return Report{}, fault.Config(err)
	}
	defer lg.Close()

	repo, err := r.NewRepository(ctx, storage.Config{
		Kind:     cfg.Storage.Kind,
		DSN:      cfg.Storage.DSN,
		Database: cfg.TargetDB,
		Load:     plan.Load,
	})
	if err != nil {
		return Report{}, fault.Config(fmt.Errorf("open %s store: %w", cfg.Storage.Kind, err))
	}
	defer repo.Close()

	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	lg.StartRun(cfg.SourceDir, cfg.TargetDB)
	logger.Printf("stage=prepare ok run=%s tables=%d joins=%d store=%s", lg.RunID(), len(plan.Tables), len(plan.Joins), cfg.Storage.Kind)

	imp := importer.New(repo, cfg, plan.Load, lg, logger)
	rep := Report{RunID: lg.RunID()}

	for _, t := range plan.Tables {
		if ctx.Err() != nil {
			break
		}
		r.record(&rep, cfg, imp.ImportTable(ctx, t))
	}
	for _, j := range plan.Joins {
		if ctx.Err() != nil {
			break
		}
		r.record(&rep, cfg, imp.ImportJoin(ctx, j))
	}

	rep.Duration = time.Since(start)
	lg.EndRun(rep.Summary())
	logger.Printf("stage=run done %s duration=%s", rep.Summary(), rep.Duration)

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("run interrupted: %w", err)
	}
	return rep, nil
}

func (r *Runner) record(rep *Report, cfg config.Config, res Result) {
	rep.Results = append(rep.Results, res)
	if res.Err == nil {
		return
	}
	fmt.Fprintf(r.stderr(), "tablemigrate: %s %s failed (%s); see %s\n",
		res.Kind, res.Name, describeErr(res.Err), cfg.LogPath)
}

func describeErr(err error) string {
	s := string(fault.KindOf(err)) + " error"
	if st := fault.StageOf(err); st != "" {
		s += " at " + st
	}
	return s
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return io.Discard
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return io.Discard
	}
	return r.Stderr
}
