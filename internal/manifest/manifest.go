// Package manifest reads the flat text files that declare what to import:
// the table manifest, the join manifest and one field list per table.
//
// All three share one line convention: blank lines and lines starting with
// '#' are skipped, a trailing "# ..." comment is stripped, and the
// remaining whitespace-delimited tokens are significant.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	TablesFile = "table.manifest"
	JoinsFile  = "join.manifest"
	FieldsExt  = ".fields"

	// Unordered is the join sort-field sentinel: keep merge-join order.
	Unordered = "-"
)

var (
	ErrMissingManifest       = errors.New("missing manifest")
	ErrNoTablesDeclared      = errors.New("no tables declared")
	ErrMissingFieldFile      = errors.New("missing field file")
	ErrEmptyFieldList        = errors.New("empty field list")
	ErrMalformedJoinManifest = errors.New("malformed join manifest")
)

// TableSpec declares one importable table.
type TableSpec struct {
	Name string
	// SortHint is the optional second token on the manifest line.
	SortHint string
}

// FieldList is the ordered column names of one table.
type FieldList []string

// Index returns the 1-based position of the first field named name, or 0.
func (f FieldList) Index(name string) int {
	for i, n := range f {
		if n == name {
			return i + 1
		}
	}
	return 0
}

// FieldRef names one field of one table ("table.field").
type FieldRef struct {
	Table string
	Field string
}

func (r FieldRef) String() string { return r.Table + "." + r.Field }

// ParseFieldRef splits "table.field" on the first dot.
func ParseFieldRef(s string) (FieldRef, error) {
	table, field, ok := strings.Cut(s, ".")
	if !ok || table == "" || field == "" {
		return FieldRef{}, fmt.Errorf("%w: field reference %q must be table.field", ErrMalformedJoinManifest, s)
	}
	return FieldRef{Table: table, Field: field}, nil
}

// JoinSpec declares a collection derived by equi-joining two tables.
type JoinSpec struct {
	OutputName string
	Left       FieldRef
	Right      FieldRef
	// SortField is a field of the joined output, or Unordered.
	SortField string
}

// Ordered reports whether a secondary sort was requested.
func (j JoinSpec) Ordered() bool { return j.SortField != Unordered }

// ReadTables reads dir/table.manifest.
func ReadTables(dir string) ([]TableSpec, error) {
	path := filepath.Join(dir, TablesFile)
	lines, err := readTokens(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingManifest, path, err)
	}

	specs := make([]TableSpec, 0, len(lines))
	for _, toks := range lines {
		ts := TableSpec{Name: toks[0]}
		if len(toks) > 1 {
			ts.SortHint = toks[1]
		}
		specs = append(specs, ts)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTablesDeclared, path)
	}
	return specs, nil
}

// FieldsPath is the field list file of table under dir.
func FieldsPath(dir, table string) string {
	return filepath.Join(dir, table+FieldsExt)
}

// ReadFields reads dir/<table>.fields.
func ReadFields(dir, table string) (FieldList, error) {
	path := FieldsPath(dir, table)
	lines, err := readTokens(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingFieldFile, path, err)
	}
	fields := make(FieldList, 0, len(lines))
	for _, toks := range lines {
		fields = append(fields, toks[0])
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFieldList, path)
	}
	return fields, nil
}

// ReadJoins reads dir/join.manifest. A missing file means no joins.
func ReadJoins(dir string) ([]JoinSpec, error) {
	path := filepath.Join(dir, JoinsFile)
	lines, err := readTokens(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var toks []string
	for _, l := range lines {
		toks = append(toks, l...)
	}
	return ParseJoinTokens(toks)
}

// ParseJoinTokens groups tokens by four into join specs.
func ParseJoinTokens(toks []string) ([]JoinSpec, error) {
	if len(toks)%4 != 0 {
		return nil, fmt.Errorf("%w: %d tokens is not a multiple of 4", ErrMalformedJoinManifest, len(toks))
	}
	out := make([]JoinSpec, 0, len(toks)/4)
	for i := 0; i < len(toks); i += 4 {
		left, err := ParseFieldRef(toks[i+1])
		if err != nil {
			return nil, err
		}
		right, err := ParseFieldRef(toks[i+2])
		if err != nil {
			return nil, err
		}
		out = append(out, JoinSpec{
			OutputName: toks[i],
			Left:       left,
			Right:      right,
			SortField:  toks[i+3],
		})
	}
	return out, nil
}

func readTokens(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanTokens(f)
}

// scanTokens returns the significant tokens of every non-empty line.
func scanTokens(r io.Reader) ([][]string, error) {
	var out [][]string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		toks := strings.Fields(line)
		if len(toks) == 0 {
			continue
		}
		out = append(out, toks)
	}
	return out, sc.Err()
}
