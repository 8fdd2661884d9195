package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"tablemigrate/internal/transformer"
)

// Options controls how a delimited source is read.
type Options struct {
	// Comma is the field delimiter: ',' or '\t'.
	Comma rune
	// Encoding is an IANA charset name. Empty means UTF-8.
	Encoding string
	// TrimSpace trims leading/trailing whitespace of every field.
	TrimSpace bool
	// LazyQuotes relaxes quote handling for comma-delimited input.
	LazyQuotes bool
}

// ErrBlankLine is reported through onErr for an empty line in
// tab-delimited input. The line is skipped, not loaded as an empty record.
var ErrBlankLine = errors.New("blank line")

// CheckEncoding fails unless name is a charset Decode can read.
func CheckEncoding(name string) error {
	_, err := lookup(name)
	return err
}

// Decode wraps r so it yields UTF-8 for the named encoding.
func Decode(r io.Reader, charset string) (io.Reader, error) {
	enc, err := lookup(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// lookup resolves an IANA name. A nil encoding means UTF-8 passthrough.
func lookup(charset string) (encoding.Encoding, error) {
	name := strings.TrimSpace(charset)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("input encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("input encoding %q is not supported", name)
	}
	return enc, nil
}

// StreamRows streams delimited records into pooled *transformer.Row values
// mapped positionally onto columns: the first len(columns) fields of each
// record are used, missing trailing fields stay "", extra fields are
// ignored. There is no header row; columns come from the field list.
//
// Comma-delimited input is read with encoding/csv (quoted fields allowed).
// Tab-delimited input is split verbatim on '\t', one record per line.
//
// onErr is called for record-level errors; the bad record is skipped.
// Blank tab-delimited lines are reported as ErrBlankLine.
// The returned error is a setup error, a read error, or ctx.Err().
func StreamRows(
	ctx context.Context,
	src io.Reader,
	columns []string,
	opt Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	r, err := Decode(src, opt.Encoding)
	if err != nil {
		return err
	}

	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	var next func() ([]string, error)
	if comma == '\t' {
		next = tabReader(r)
	} else {
		cr := csv.NewReader(r)
		cr.Comma = comma
		cr.ReuseRecord = true
		cr.LazyQuotes = opt.LazyQuotes
		cr.FieldsPerRecord = -1
		next = cr.Read
	}

	var line int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		rec, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok || errors.Is(err, ErrBlankLine) {
				if onErr != nil {
					onErr(line, fmt.Errorf("read: %w", err))
				}
				continue
			}
			return fmt.Errorf("read line %d: %w", line, err)
		}

		row := transformer.GetRow(len(columns))
		row.Line = line
		for i := range columns {
			if i >= len(rec) {
				break
			}
			v := rec[i]
			if opt.TrimSpace && hasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			row.V[i] = v
		}

		select {
		case out <- row:
		case <-ctx.Done():
			// do not re-pool on cancellation
			row.Drop()
			return ctx.Err()
		}
	}
}

// tabReader returns a record reader splitting lines on '\t'.
// The final line may lack a newline and "\r\n" endings are accepted. An
// empty line yields ErrBlankLine so the caller can count it.
func tabReader(r io.Reader) func() ([]string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	return func() ([]string, error) {
		s, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || s == "") {
			return nil, err
		}
		s = strings.TrimSuffix(s, "\n")
		s = strings.TrimSuffix(s, "\r")
		if s == "" {
			return nil, ErrBlankLine
		}
		return strings.Split(s, "\t"), nil
	}
}

func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
