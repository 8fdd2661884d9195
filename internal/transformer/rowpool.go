// Package transformer recycles the field slices that carry one data file
// record from StreamRows to the batch that becomes documents.
package transformer

import "sync"

// Row is one record of a data file, cut to the table's field list: V[i] is
// the value for field i and is "" when the record ran short.
//
// StreamRows fills a Row and sends it on; whoever turns it into a document
// calls Free. Nothing may read V after Free, because the next record of any
// table can reuse the slice.
//
// A stage that gives up on a Row because the import was canceled calls Drop.
// Its slice is left to the garbage collector since the loader may still be
// draining the channel.
type Row struct {
	V    []string
	Line int // 1-based position of the record in the data file
}

var rowPool sync.Pool

// GetRow hands out a Row with colCount empty values.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]string, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = ""
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]string, colCount)}
}

// Free makes the Row available to the next GetRow.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop forgets the values and keeps the Row out of circulation.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
