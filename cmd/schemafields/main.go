// Command schemafields generates the manifests tablemigrate reads from a
// SQL schema dump: table.manifest with one line per table and one
// <table>.fields file listing its columns in definition order.
//
// Usage:
//
//	schemafields -dump shop.sql -out ./export [-include re] [-exclude re] [-pk-hint]
//
// -dump "-" reads the dump from stdin.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"tablemigrate/internal/schemadump"
)

func main() {
	var (
		dumpPath = flag.String("dump", "", "SQL schema dump to scan (\"-\" for stdin)")
		outDir   = flag.String("out", ".", "directory receiving table.manifest and the .fields files")
		include  = flag.String("include", "", "only tables whose name matches this regexp")
		exclude  = flag.String("exclude", "", "skip tables whose name matches this regexp")
		pkHint   = flag.Bool("pk-hint", false, "use single-column primary keys as the table's index hint")
		verbose  = flag.Bool("v", false, "list the tables written")
	)
	flag.Parse()

	if *dumpPath == "" {
		fatalf("schemafields: -dump is required")
	}

	incRe, err := compileOptional(*include)
	if err != nil {
		fatalf("schemafields: -include: %v", err)
	}
	excRe, err := compileOptional(*exclude)
	if err != nil {
		fatalf("schemafields: -exclude: %v", err)
	}

	var src io.Reader = os.Stdin
	if *dumpPath != "-" {
		f, err := os.Open(*dumpPath)
		if err != nil {
			fatalf("schemafields: %v", err)
		}
		defer f.Close()
		src = f
	}

	tables, err := schemadump.Scan(src)
	if err != nil {
		fatalf("schemafields: %v", err)
	}
	tables = schemadump.Filter(tables, incRe, excRe)
	if len(tables) == 0 {
		fatalf("schemafields: no tables selected from %s", *dumpPath)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatalf("schemafields: %v", err)
	}
	header := "generated by schemafields from " + filepath.Base(*dumpPath)
	if err := schemadump.WriteManifests(*outDir, tables, *pkHint, header); err != nil {
		fatalf("schemafields: %v", err)
	}

	if *verbose {
		for _, t := range tables {
			log.Printf("table=%s columns=%d pk=%q", t.Name, len(t.Columns), t.PrimaryKey)
		}
	}
	log.Printf("stage=schemafields ok tables=%d out=%s", len(tables), *outDir)
}

func compileOptional(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
