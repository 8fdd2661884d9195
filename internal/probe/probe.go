// Package probe samples the head of a data file so a dry run can report
// what an import would see before anything is loaded.
//
// A probe reads a bounded prefix of the file (default 20KB), cuts it to the
// last complete line and parses it with the run's delimiter. It reports the
// record count of the sample, the range of fields per record, a coarse type
// per column and the delimiter the sample looks like it uses.
//
// Probing is best-effort: malformed records are counted and skipped, and
// type inference never fails a probe.
package probe

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"tablemigrate/internal/config"
	csvparser "tablemigrate/internal/parser/csv"
)

// DefaultSampleBytes bounds how much of a file a probe reads.
const DefaultSampleBytes = 20000

// Options control one probe.
type Options struct {
	Delimiter config.Delimiter
	// Encoding is an IANA charset name. Empty means UTF-8.
	Encoding string
	// Columns is the length of the table's field list; types are inferred
	// for that many columns.
	Columns int
	// Bytes bounds the sample. <= 0 means DefaultSampleBytes.
	Bytes int
}

// Result describes a sample.
type Result struct {
	Records   int
	Malformed int
	MinFields int
	MaxFields int
	// Types holds one label per column: integer, float, boolean, date,
	// timestamp or text.
	Types []string
	// Sniffed is the delimiter the first line suggests.
	Sniffed config.Delimiter
	// Truncated is set when the file is larger than the sample.
	Truncated bool
}

// File probes the data file at path.
func File(path string, opt Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	n := opt.Bytes
	if n <= 0 {
		n = DefaultSampleBytes
	}
	sample, truncated, err := peek(f, n)
	if err != nil {
		return Result{}, fmt.Errorf("probe %s: %w", path, err)
	}
	dec, err := csvparser.Decode(bytes.NewReader(sample), opt.Encoding)
	if err != nil {
		return Result{}, err
	}
	sample, err = io.ReadAll(dec)
	if err != nil {
		return Result{}, fmt.Errorf("probe %s: %w", path, err)
	}

	res := Sample(sample, opt.Delimiter, opt.Columns)
	res.Truncated = truncated
	return res, nil
}

// peek reads up to n bytes and cuts them to the last newline when the
// input continues past the sample.
func peek(r io.Reader, n int) ([]byte, bool, error) {
	br := bufio.NewReader(io.LimitReader(r, int64(n)+1))
	buf, err := io.ReadAll(br)
	if err != nil {
		return nil, false, err
	}
	if len(buf) <= n {
		return buf, false, nil
	}
	buf = buf[:n]
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[:i+1]
	}
	return buf, true, nil
}

// Sample parses an in-memory sample. The data files have no header row.
func Sample(data []byte, delim config.Delimiter, columns int) Result {
	res := Result{Sniffed: SniffDelimiter(data)}

	var rows [][]string
	add := func(rec []string) {
		if res.Records == 0 || len(rec) < res.MinFields {
			res.MinFields = len(rec)
		}
		if len(rec) > res.MaxFields {
			res.MaxFields = len(rec)
		}
		res.Records++
		rows = append(rows, rec)
	}

	if delim == config.Tab {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSuffix(line, "\r")
			if line == "" {
				continue
			}
			add(strings.Split(line, "\t"))
		}
	} else {
		r := csv.NewReader(bytes.NewReader(data))
		r.Comma = delim.Rune()
		r.FieldsPerRecord = -1
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				if _, ok := err.(*csv.ParseError); ok {
					res.Malformed++
					continue
				}
				break
			}
			add(rec)
		}
	}

	if columns <= 0 {
		columns = res.MaxFields
	}
	res.Types = inferTypes(columns, rows)
	return res
}

// SniffDelimiter guesses the delimiter from the first non-empty line.
// Detection is heuristic: more tabs than commas means tab.
func SniffDelimiter(sample []byte) config.Delimiter {
	for _, line := range bytes.Split(sample, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.Count(line, []byte("\t")) > bytes.Count(line, []byte(",")) {
			return config.Tab
		}
		return config.Comma
	}
	return ""
}

// Describe renders a one-line summary against the field list length.
func (r Result) Describe(names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d records", r.Records)
	if r.Truncated {
		b.WriteString(" (head)")
	}
	if r.Records > 0 {
		if r.MinFields == r.MaxFields {
			fmt.Fprintf(&b, ", %d fields", r.MaxFields)
		} else {
			fmt.Fprintf(&b, ", %d-%d fields", r.MinFields, r.MaxFields)
		}
	}
	if r.Malformed > 0 {
		fmt.Fprintf(&b, ", %d malformed", r.Malformed)
	}
	parts := make([]string, 0, len(names))
	for i, n := range names {
		if i < len(r.Types) {
			parts = append(parts, n+" "+r.Types[i])
		}
	}
	if len(parts) > 0 {
		b.WriteString("; ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}

// inferTypes infers a coarse type per column. Empty values are ignored; a
// column with no values is text.
func inferTypes(columns int, rows [][]string) []string {
	if columns <= 0 {
		return nil
	}

	out := make([]string, columns)
	for col := range out {
		var seen bool
		allInt := true
		allFloat := true
		allBool := true
		allDate := true
		allTS := true

		for _, r := range rows {
			if col >= len(r) {
				continue
			}
			v := strings.TrimSpace(r[col])
			if v == "" {
				continue
			}
			seen = true

			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if allBool && !parseBoolLoose(v) {
				allBool = false
			}
			if allDate && !parseLoose(v, dateLayouts) {
				allDate = false
			}
			if allTS && !parseLoose(v, tsLayouts) {
				allTS = false
			}
		}

		// Prefer more specific types.
		switch {
		case !seen:
			out[col] = "text"
		case allInt:
			out[col] = "integer"
		case allBool:
			out[col] = "boolean"
		case allDate:
			out[col] = "date"
		case allTS:
			out[col] = "timestamp"
		case allFloat:
			out[col] = "float"
		default:
			out[col] = "text"
		}
	}
	return out
}

func parseBoolLoose(s string) bool {
	switch strings.ToLower(s) {
	case "t", "true", "yes", "y", "f", "false", "no", "n":
		return true
	default:
		return false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006 15:04:05",
}

func parseLoose(s string, layouts []string) bool {
	for _, lay := range layouts {
		if _, err := time.Parse(lay, s); err == nil {
			return true
		}
	}
	return false
}
