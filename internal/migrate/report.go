package migrate

import (
	"fmt"
	"strings"
	"time"

	"tablemigrate/internal/fault"
	"tablemigrate/internal/importer"
)

// Result is the outcome of one table or join.
type Result = importer.Result

// Report collects the results of one run.
type Report struct {
	RunID    string
	DryRun   bool
	Results  []Result
	Duration time.Duration
}

// Failed returns the results that carry an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Documents is the number of documents inserted by successful entries.
func (r Report) Documents() int64 {
	var n int64
	for _, res := range r.Results {
		if res.Err == nil {
			n += res.Documents
		}
	}
	return n
}

// FailuresByKind counts failed entries per error kind.
func (r Report) FailuresByKind() map[fault.Kind]int {
	out := map[fault.Kind]int{}
	for _, res := range r.Failed() {
		out[fault.KindOf(res.Err)]++
	}
	return out
}

// Summary is a one-line key=value digest of the run.
func (r Report) Summary() string {
	var tables, joins int
	for _, res := range r.Results {
		if res.Kind == "join" {
			joins++
		} else {
			tables++
		}
	}
	failed := r.Failed()

	var b strings.Builder
	fmt.Fprintf(&b, "tables=%d joins=%d ok=%d failed=%d documents=%d",
		tables, joins, len(r.Results)-len(failed), len(failed), r.Documents())
	byKind := r.FailuresByKind()
	for _, k := range []fault.Kind{fault.KindSpec, fault.KindIO, fault.KindPipeline} {
		if n := byKind[k]; n > 0 {
			fmt.Fprintf(&b, " %s_errors=%d", k, n)
		}
	}
	return b.String()
}
