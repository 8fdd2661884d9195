// Package config holds the run configuration. It is built once at startup
// and passed by value to every component; nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tablemigrate/internal/fault"
	csvparser "tablemigrate/internal/parser/csv"
)

// Delimiter selects how data files are split into fields.
type Delimiter string

const (
	Comma Delimiter = "comma"
	Tab   Delimiter = "tab"
)

// ParseDelimiter accepts "comma"/"csv" and "tab"/"tsv".
func ParseDelimiter(s string) (Delimiter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "comma", "csv", ",":
		return Comma, nil
	case "tab", "tsv", `\t`:
		return Tab, nil
	default:
		return "", fmt.Errorf("unknown delimiter %q (want comma or tab)", s)
	}
}

// Rune is the field separator for the mode.
func (d Delimiter) Rune() rune {
	if d == Tab {
		return '\t'
	}
	return ','
}

// Ext is the data file extension for the mode, without the dot.
func (d Delimiter) Ext() string {
	if d == Tab {
		return "tsv"
	}
	return "csv"
}

// Config is the immutable run configuration.
type Config struct {
	SourceDir   string
	ManifestDir string
	TargetDB    string

	DryRun    bool
	Delimiter Delimiter
	Encoding  string

	// LogPath is the shared, append-only import log.
	LogPath string

	Storage Storage
	Runtime Runtime

	// ExtraArgs are forwarded verbatim to the bulk-load layer.
	ExtraArgs []string

	Verbose bool
}

// Storage selects the document store backend.
type Storage struct {
	// Kind: "mongo" | "postgres" | "sqlite" | "mssql" | "memory"
	Kind string
	DSN  string
}

// Runtime controls resource bounds of the import pipeline.
type Runtime struct {
	// BatchSize is the number of documents per insert call.
	BatchSize int
	// ChannelBuffer bounds the parser -> loader channel.
	ChannelBuffer int
	// SortChunkRecords bounds the number of records an external sort keeps
	// in memory before spilling a run to TempDir.
	SortChunkRecords int
	// TempDir holds sort spill files. Empty means os.TempDir().
	TempDir string
}

const (
	DefaultBatchSize        = 1000
	DefaultChannelBuffer    = 256
	DefaultSortChunkRecords = 100_000
)

// WithDefaults fills zero values. It returns a copy.
func (c Config) WithDefaults() Config {
	if c.ManifestDir == "" {
		c.ManifestDir = c.SourceDir
	}
	if c.Delimiter == "" {
		c.Delimiter = Comma
	}
	if c.LogPath == "" && c.TargetDB != "" {
		c.LogPath = c.TargetDB + ".import.log"
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = "mongo"
	}
	if c.Runtime.BatchSize <= 0 {
		c.Runtime.BatchSize = DefaultBatchSize
	}
	if c.Runtime.ChannelBuffer <= 0 {
		c.Runtime.ChannelBuffer = DefaultChannelBuffer
	}
	if c.Runtime.SortChunkRecords <= 0 {
		c.Runtime.SortChunkRecords = DefaultSortChunkRecords
	}
	c.Storage.DSN = os.ExpandEnv(c.Storage.DSN)
	return c
}

// Validate checks presence and readability of everything the run needs
// before any import starts. All failures are config errors.
func (c Config) Validate() error {
	if c.SourceDir == "" {
		return fault.Configf("source directory is required")
	}
	if c.TargetDB == "" {
		return fault.Configf("target database is required")
	}
	if err := requireDir("source directory", c.SourceDir); err != nil {
		return err
	}
	if c.ManifestDir != "" && c.ManifestDir != c.SourceDir {
		if err := requireDir("manifest directory", c.ManifestDir); err != nil {
			return err
		}
	}
	if c.Delimiter != Comma && c.Delimiter != Tab {
		return fault.Configf("unknown delimiter %q", c.Delimiter)
	}
	if err := csvparser.CheckEncoding(c.Encoding); err != nil {
		return fault.Config(err)
	}
	if c.Runtime.TempDir != "" {
		if err := requireDir("temp directory", c.Runtime.TempDir); err != nil {
			return err
		}
	}
	if !c.DryRun && c.Storage.Kind == "" {
		return fault.Configf("storage kind must be set")
	}
	return nil
}

// DataPath is the data file for table under the source directory.
func (c Config) DataPath(table string) string {
	return filepath.Join(c.SourceDir, table+"."+c.Delimiter.Ext())
}

func requireDir(what, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fault.Configf("%s %q: %w", what, path, err)
	}
	if !fi.IsDir() {
		return fault.Configf("%s %q is not a directory", what, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fault.Configf("%s %q is not readable: %w", what, path, err)
	}
	return f.Close()
}
