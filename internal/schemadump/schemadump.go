// Package schemadump extracts table and column names from a SQL schema
// dump (mysqldump, pg_dump --schema-only, sqlite3 .schema and similar) so
// the manifests a migration run reads can be generated instead of written
// by hand.
//
// The scan is a single streaming pass: it tracks CREATE TABLE statements,
// collects their parenthesized bodies and splits them into column and
// constraint definitions. Everything else in the dump, including INSERT
// data, is skipped.
package schemadump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"tablemigrate/internal/manifest"
)

var (
	ErrUnterminatedTable = errors.New("unterminated CREATE TABLE")
	ErrNoColumns         = errors.New("table has no columns")
)

var createTableRe = regexp.MustCompile(`(?i)\bCREATE\s+(?:(?:GLOBAL\s+|LOCAL\s+)?(?:TEMPORARY|TEMP|UNLOGGED)\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?((?:` + "`[^`]+`" + `|"[^"]+"|\[[^\]]+\]|[^\s(.]+)(?:\.(?:` + "`[^`]+`" + `|"[^"]+"|\[[^\]]+\]|[^\s(.]+))*)\s*\(`)

// constraintWords start table-level definitions that are not columns.
var constraintWords = map[string]bool{
	"PRIMARY":    true,
	"KEY":        true,
	"INDEX":      true,
	"UNIQUE":     true,
	"CONSTRAINT": true,
	"FOREIGN":    true,
	"CHECK":      true,
	"FULLTEXT":   true,
	"SPATIAL":    true,
	"EXCLUDE":    true,
	"PERIOD":     true,
}

// Table is one CREATE TABLE statement.
type Table struct {
	Name    string
	Columns manifest.FieldList
	// PrimaryKey is set when the table has a single-column primary key.
	PrimaryKey string
}

// Scan reads a schema dump and returns its tables in dump order. A table
// defined twice keeps its first position and its last definition.
func Scan(r io.Reader) ([]Table, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		tables []Table
		pos    = map[string]int{}
		body   *bodyReader
		name   string
		lineNo int
		start  int
	)

	add := func(t Table) {
		if i, ok := pos[t.Name]; ok {
			tables[i] = t
			return
		}
		pos[t.Name] = len(tables)
		tables = append(tables, t)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read schema dump: %w", err)
		}
		if line == "" && err == io.EOF {
			break
		}
		lineNo++

		rest := line
		for rest != "" {
			if body == nil {
				if skipLine(rest) {
					break
				}
				m := createTableRe.FindStringSubmatchIndex(rest)
				if m == nil {
					break
				}
				name = tableName(rest[m[2]:m[3]])
				body = &bodyReader{depth: 1}
				start = lineNo
				rest = rest[m[1]:]
				continue
			}

			n, done := body.feed(rest)
			rest = rest[n:]
			if !done {
				break
			}
			t, perr := parseBody(name, body.String())
			if perr != nil {
				return nil, fmt.Errorf("table %s (line %d): %w", name, start, perr)
			}
			add(t)
			body = nil
		}

		if err == io.EOF {
			break
		}
	}

	if body != nil {
		return nil, fmt.Errorf("%w: %s (line %d)", ErrUnterminatedTable, name, start)
	}
	return tables, nil
}

// skipLine drops comment lines and data statements without matching them.
func skipLine(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" || strings.HasPrefix(t, "--") || strings.HasPrefix(t, "#") {
		return true
	}
	if len(t) >= 6 && strings.EqualFold(t[:6], "INSERT") {
		return true
	}
	return false
}

// bodyReader accumulates a CREATE TABLE body up to its closing paren.
type bodyReader struct {
	strings.Builder
	depth int
	quote byte
}

// feed consumes s and reports how many bytes it used and whether the body
// closed.
func (b *bodyReader) feed(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if b.quote != 0 {
			if c == b.quote {
				b.quote = 0
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\'', '"', '`':
			b.quote = c
		case '[':
			b.quote = ']'
		case '-':
			if i+1 < len(s) && s[i+1] == '-' {
				// line comment inside the body
				b.WriteByte('\n')
				return len(s), false
			}
		case '(':
			b.depth++
		case ')':
			b.depth--
			if b.depth == 0 {
				return i + 1, true
			}
		}
		b.WriteByte(c)
	}
	return len(s), false
}

func parseBody(name, body string) (Table, error) {
	t := Table{Name: name}
	for _, def := range splitTopLevel(body) {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		tok, quoted, rest := firstToken(def)
		upper := strings.ToUpper(def)

		if !quoted && constraintWords[strings.ToUpper(tok)] {
			if i := strings.Index(upper, "PRIMARY KEY"); i >= 0 {
				if cols := parenList(def[i+len("PRIMARY KEY"):]); len(cols) == 1 {
					t.PrimaryKey = cols[0]
				}
			}
			continue
		}

		col := unquoteIdent(tok)
		t.Columns = append(t.Columns, col)
		if strings.Contains(strings.ToUpper(rest), "PRIMARY KEY") {
			t.PrimaryKey = col
		}
	}
	if len(t.Columns) == 0 {
		return t, ErrNoColumns
	}
	return t, nil
}

// splitTopLevel splits on commas outside parens and quotes.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		quote byte
		last  int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '[':
			quote = ']'
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	return append(out, s[last:])
}

// firstToken returns the leading identifier of a definition.
func firstToken(def string) (tok string, quoted bool, rest string) {
	switch def[0] {
	case '`', '"', '[':
		closer := def[0]
		if closer == '[' {
			closer = ']'
		}
		if j := strings.IndexByte(def[1:], closer); j >= 0 {
			return def[:j+2], true, def[j+2:]
		}
	}
	if j := strings.IndexAny(def, " \t\r\n("); j >= 0 {
		return def[:j], false, def[j:]
	}
	return def, false, ""
}

// parenList returns the identifiers of the first (a, b, ...) group in s.
func parenList(s string) []string {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return nil
	}
	end := strings.IndexByte(s[open:], ')')
	if end < 0 {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s[open+1:open+end], ",") {
		tok, _, _ := firstToken(strings.TrimSpace(p))
		if tok != "" {
			out = append(out, unquoteIdent(tok))
		}
	}
	return out
}

// tableName drops any schema qualifier and identifier quoting.
func tableName(s string) string {
	parts := splitQualified(s)
	return unquoteIdent(parts[len(parts)-1])
}

func splitQualified(s string) []string {
	var (
		out   []string
		quote byte
		last  int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '`' || c == '"':
			quote = c
		case c == '[':
			quote = ']'
		case c == '.':
			out = append(out, s[last:i])
			last = i + 1
		}
	}
	return append(out, s[last:])
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Filter keeps tables whose name matches include (when set) and does not
// match exclude (when set).
func Filter(tables []Table, include, exclude *regexp.Regexp) []Table {
	var out []Table
	for _, t := range tables {
		if include != nil && !include.MatchString(t.Name) {
			continue
		}
		if exclude != nil && exclude.MatchString(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// WriteManifests writes table.manifest and one .fields file per table into
// dir. With pkHint, single-column primary keys become the table's sort
// hint so the import indexes them.
func WriteManifests(dir string, tables []Table, pkHint bool, header string) error {
	specs := make([]manifest.TableSpec, 0, len(tables))
	for _, t := range tables {
		spec := manifest.TableSpec{Name: t.Name}
		if pkHint {
			spec.SortHint = t.PrimaryKey
		}
		specs = append(specs, spec)
		if err := manifest.WriteFields(dir, t.Name, header, t.Columns); err != nil {
			return fmt.Errorf("write fields for %s: %w", t.Name, err)
		}
	}
	if err := manifest.WriteTables(dir, header, specs); err != nil {
		return fmt.Errorf("write table manifest: %w", err)
	}
	return nil
}
