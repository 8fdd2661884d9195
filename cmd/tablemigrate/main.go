// Command tablemigrate loads exported relational tables into a document
// database, one collection per table, plus one collection per declared
// two-table join.
//
//	tablemigrate [flags] <source-directory> <target-database> [-- <load args>]
//
// The source directory holds <table>.csv or <table>.tsv data files.
// table.manifest, join.manifest and the <table>.fields lists are read from
// the manifest directory, which defaults to the source directory.
//
// Exit status is 0 when the run completed, even if some tables or joins
// failed (they are reported on stderr and in the import log), and 1 when
// the configuration or the manifests are invalid.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"tablemigrate/internal/config"
	"tablemigrate/internal/fault"
	"tablemigrate/internal/metrics"
	"tablemigrate/internal/metrics/datadog"
	"tablemigrate/internal/migrate"

	// register all store backends; --store picks one at run time.
	_ "tablemigrate/internal/storage/all"
)

var version = "dev"

// CLI is the command line surface.
type CLI struct {
	SourceDir string   `arg:"" name:"source-directory" help:"Directory holding the exported data files."`
	TargetDB  string   `arg:"" name:"target-database" help:"Database receiving one collection per table and join."`
	Extra     []string `arg:"" optional:"" name:"load-args" help:"Arguments after -- are forwarded to the bulk loader (--batchSize=N, --ignoreBlanks, --ordered, --bypassDocumentValidation)."`

	ManifestDir    string `short:"m" name:"manifest-dir" placeholder:"DIR" help:"Directory with table.manifest, join.manifest and .fields files (default: source directory)."`
	DryRun         bool   `short:"n" name:"dry-run" help:"Validate and print what would be imported without loading anything."`
	Delimiter      string `short:"d" default:"comma" enum:"comma,tab,csv,tsv" help:"Field delimiter of the data files: comma or tab."`
	Log            string `name:"log" placeholder:"FILE" help:"Import log file (default: <target-database>.import.log)."`
	Store          string `name:"store" env:"TABLEMIGRATE_STORE" default:"mongo" enum:"mongo,postgres,sqlite,mssql,memory" help:"Document store backend."`
	DSN            string `name:"dsn" env:"TABLEMIGRATE_DSN" placeholder:"DSN" help:"Store DSN or URI. $VARS are expanded. Empty uses the store's default: mongodb://localhost:27017 for mongo, <target-database>.db for sqlite, PG* variables for postgres. Required for mssql."`
	Encoding       string `name:"encoding" placeholder:"NAME" help:"Input text encoding (IANA name, e.g. ISO-8859-1). Default UTF-8."`
	SortChunk      int    `name:"sort-chunk" placeholder:"N" help:"Records per in-memory sort chunk for joins."`
	TempDir        string `name:"temp-dir" placeholder:"DIR" help:"Directory for join sort spill files."`
	MetricsBackend string `name:"metrics-backend" env:"METRICS_BACKEND" default:"none" enum:"none,datadog" help:"Metrics backend."`
	Verbose        bool   `short:"v" help:"Log pipeline stages to stderr."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

// Config builds the immutable run configuration.
func (c *CLI) Config() (config.Config, error) {
	delim, err := config.ParseDelimiter(c.Delimiter)
	if err != nil {
		return config.Config{}, fault.Config(err)
	}
	return config.Config{
		SourceDir:   c.SourceDir,
		ManifestDir: c.ManifestDir,
		TargetDB:    c.TargetDB,
		DryRun:      c.DryRun,
		Delimiter:   delim,
		Encoding:    c.Encoding,
		LogPath:     c.Log,
		Storage:     config.Storage{Kind: c.Store, DSN: c.DSN},
		Runtime: config.Runtime{
			SortChunkRecords: c.SortChunk,
			TempDir:          c.TempDir,
		},
		ExtraArgs: c.Extra,
		Verbose:   c.Verbose,
	}.WithDefaults(), nil
}

func newParser(cli *CLI, stdout, stderr io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("tablemigrate"),
		kong.Description("Migrate delimited table exports into a document database."),
		kong.Vars{"version": version},
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			if code != 0 {
				code = 1
			}
			os.Exit(code)
		}),
	)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var cli CLI
	parser, err := newParser(&cli, os.Stdout, os.Stderr)
	if err != nil {
		fatalf("tablemigrate: %v", err)
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		parser.FatalIfErrorf(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, &cli, migrate.NewDefaultRunner(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one migration and returns the process exit code.
func run(ctx context.Context, cli *CLI, r *migrate.Runner, stdout, stderr io.Writer) int {
	cfg, err := cli.Config()
	if err != nil {
		fmt.Fprintf(stderr, "tablemigrate: %v\n", err)
		return 1
	}

	if !cfg.Verbose {
		r.Logger = log.New(io.Discard, "", 0)
	}

	if !cfg.DryRun {
		closeMetrics := setupMetrics(ctx, cli.MetricsBackend, cfg)
		defer closeMetrics()
	}

	rep, err := r.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "tablemigrate: %v\n", err)
		if fault.IsFatal(err) {
			return 1
		}
		if ctx.Err() != nil {
			return 130
		}
		return 1
	}
	if !rep.DryRun {
		fmt.Fprintf(stdout, "tablemigrate: %s (log %s)\n", rep.Summary(), cfg.LogPath)
	}
	return 0
}

// setupMetrics installs the selected metrics backend and returns its
// shutdown func.
func setupMetrics(ctx context.Context, backend string, cfg config.Config) func() {
	switch backend {
	case "datadog":
		tags := append(datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")), "db:"+cfg.TargetDB, "store:"+cfg.Storage.Kind)
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    "tablemigrate",
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		if cfg.Verbose {
			log.Printf("metrics: backend=datadog tags=%v", tags)
		}
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is left.
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
		}

	case "", "none":
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backend)
		return func() {}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
