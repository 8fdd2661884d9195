// Package migrate drives a whole migration run: it validates the
// configuration and manifests up front, then imports every table and join
// in manifest order, collecting per-entry results into a Report.
package migrate

import (
	"fmt"
	"io"
	"strings"

	"tablemigrate/internal/config"
	"tablemigrate/internal/fault"
	"tablemigrate/internal/join"
	"tablemigrate/internal/manifest"
	"tablemigrate/internal/probe"
	"tablemigrate/internal/storage"
)

// Plan is the validated work of one run.
type Plan struct {
	Config config.Config
	Tables []manifest.TableSpec
	Joins  []manifest.JoinSpec
	Load   storage.LoadOptions
}

// Prepare fills defaults and validates directories, manifests and
// forwarded load args. Every failure is a config error; nothing has been
// imported when it returns.
func Prepare(cfg config.Config) (Plan, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}

	tables, err := manifest.ReadTables(cfg.ManifestDir)
	if err != nil {
		return Plan{}, fault.Config(err)
	}
	joins, err := manifest.ReadJoins(cfg.ManifestDir)
	if err != nil {
		return Plan{}, fault.Config(err)
	}
	load, err := storage.ParseLoadArgs(cfg.ExtraArgs)
	if err != nil {
		return Plan{}, fault.Config(err)
	}

	return Plan{Config: cfg, Tables: tables, Joins: joins, Load: load}, nil
}

// Describe prints what a run would do, without touching the store.
func (p Plan) Describe(w io.Writer) error {
	cfg := p.Config
	bw := &errWriter{w: w}

	bw.printf("target database %s (store %s)\n", cfg.TargetDB, cfg.Storage.Kind)
	bw.printf("manifest dir %s, source dir %s, delimiter %s\n", cfg.ManifestDir, cfg.SourceDir, cfg.Delimiter)
	if len(cfg.ExtraArgs) > 0 {
		bw.printf("load args %s\n", strings.Join(cfg.ExtraArgs, " "))
	}

	for _, t := range p.Tables {
		bw.printf("table %s\n", t.Name)
		bw.printf("  source     %s\n", cfg.DataPath(t.Name))
		bw.printf("  collection %s.%s (replaced)\n", cfg.TargetDB, t.Name)
		fields, err := manifest.ReadFields(cfg.ManifestDir, t.Name)
		if err != nil {
			bw.printf("  fields     ERROR %v\n", err)
			continue
		}
		bw.printf("  fields     %s\n", strings.Join(fields, ", "))
		describeSample(bw, cfg, t.Name, fields)
		if t.SortHint != "" {
			if fields.Index(t.SortHint) == 0 {
				bw.printf("  index      ERROR %q is not a field\n", t.SortHint)
			} else {
				bw.printf("  index      %s ascending\n", t.SortHint)
			}
		}
	}

	for _, js := range p.Joins {
		bw.printf("join %s\n", js.OutputName)
		bw.printf("  inputs     %s, %s\n", cfg.DataPath(js.Left.Table), cfg.DataPath(js.Right.Table))
		bw.printf("  on         %s = %s (left outer)\n", js.Left, js.Right)
		bw.printf("  collection %s.%s (replaced)\n", cfg.TargetDB, js.OutputName)
		if cfg.Delimiter != config.Tab {
			bw.printf("  ERROR      joins need --delimiter tab\n")
			continue
		}
		j, err := describeJoin(cfg, js)
		if err != nil {
			bw.printf("  ERROR      %v\n", err)
			continue
		}
		bw.printf("  fields     %s\n", strings.Join(j.Fields, ", "))
		if js.Ordered() {
			bw.printf("  order      %s numeric ascending\n", js.SortField)
		} else {
			bw.printf("  order      %s ascending (byte order)\n", js.Left.Field)
		}
	}
	return bw.err
}

// describeSample reports the head of a table's data file and flags a
// field count or delimiter that does not match the configuration.
func describeSample(bw *errWriter, cfg config.Config, table string, fields manifest.FieldList) {
	res, err := probe.File(cfg.DataPath(table), probe.Options{
		Delimiter: cfg.Delimiter,
		Encoding:  cfg.Encoding,
		Columns:   len(fields),
	})
	if err != nil {
		bw.printf("  sample     ERROR %v\n", err)
		return
	}
	bw.printf("  sample     %s\n", res.Describe(fields))
	if res.MaxFields > len(fields) {
		bw.printf("  WARNING    records have up to %d fields, the field list has %d; extra fields are dropped\n", res.MaxFields, len(fields))
	}
	if res.Sniffed != "" && res.Sniffed != cfg.Delimiter {
		bw.printf("  WARNING    data looks %s-delimited, run uses %s\n", res.Sniffed, cfg.Delimiter)
	}
}

func describeJoin(cfg config.Config, js manifest.JoinSpec) (*join.Join, error) {
	left, err := manifest.ReadFields(cfg.ManifestDir, js.Left.Table)
	if err != nil {
		return nil, err
	}
	right, err := manifest.ReadFields(cfg.ManifestDir, js.Right.Table)
	if err != nil {
		return nil, err
	}
	return join.Resolve(js, left, right)
}

// errWriter keeps the first write error so Describe can print freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, a...)
}
