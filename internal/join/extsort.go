package join

import (
	"bufio"
	"container/heap"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Iterator yields records in order. Next returns io.EOF after the last one.
type Iterator interface {
	Next() ([]string, error)
}

// Sorter is a stable external merge sort over tab-free records.
//
// Up to chunk records are buffered in memory; a full buffer is sorted and
// spilled to a temp file as one run. Finish merges all runs. Records must
// not contain '\t' or '\n' in any field, which holds for anything read from
// a tab-delimited file.
type Sorter struct {
	cmp   func(a, b []string) int
	chunk int
	dir   string

	buf   [][]string
	runs  []string
	files []*os.File
	done  bool
}

// NewSorter returns a Sorter keeping at most chunk records in memory.
// dir is the spill directory; "" means os.TempDir().
func NewSorter(cmp func(a, b []string) int, chunk int, dir string) *Sorter {
	if chunk <= 0 {
		chunk = 1
	}
	return &Sorter{cmp: cmp, chunk: chunk, dir: dir}
}

// ByColumn compares records on one column with cmp.
func ByColumn(col int, cmp func(a, b string) int) func(a, b []string) int {
	return func(a, b []string) int { return cmp(a[col], b[col]) }
}

// Add buffers rec. The Sorter keeps rec; the caller must not modify it.
func (s *Sorter) Add(rec []string) error {
	if s.done {
		return errors.New("sorter: Add after Finish")
	}
	s.buf = append(s.buf, rec)
	if len(s.buf) >= s.chunk {
		return s.spill()
	}
	return nil
}

// Spills reports how many runs were written to disk.
func (s *Sorter) Spills() int { return len(s.runs) }

// Finish sorts what is buffered and returns an iterator over all records.
// Call Close when the iterator is no longer needed.
func (s *Sorter) Finish() (Iterator, error) {
	if s.done {
		return nil, errors.New("sorter: Finish called twice")
	}
	s.done = true

	if len(s.runs) == 0 {
		slices.SortStableFunc(s.buf, s.cmp)
		return &sliceIter{recs: s.buf}, nil
	}
	if len(s.buf) > 0 {
		if err := s.spill(); err != nil {
			return nil, err
		}
	}

	m := &mergeIter{cmp: s.cmp}
	for i, path := range s.runs {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sort run: %w", err)
		}
		s.files = append(s.files, f)
		r := &runReader{br: bufio.NewReaderSize(f, 64*1024), idx: i}
		if err := m.push(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Close removes all spill files.
func (s *Sorter) Close() error {
	var errs []error
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	for _, p := range s.runs {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.files, s.runs, s.buf = nil, nil, nil
	return errors.Join(errs...)
}

func (s *Sorter) spill() error {
	slices.SortStableFunc(s.buf, s.cmp)

	f, err := os.CreateTemp(s.dir, "tablemigrate-sort-*.tsv")
	if err != nil {
		return fmt.Errorf("create sort run: %w", err)
	}
	s.runs = append(s.runs, f.Name())

	w := bufio.NewWriterSize(f, 64*1024)
	for _, rec := range s.buf {
		if err := writeRecord(w, rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("write sort run: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write sort run: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close sort run: %w", err)
	}

	clear(s.buf)
	s.buf = s.buf[:0]
	return nil
}

func writeRecord(w *bufio.Writer, rec []string) error {
	for i, v := range rec {
		if i > 0 {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(v); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

type sliceIter struct {
	recs [][]string
	pos  int
}

func (it *sliceIter) Next() ([]string, error) {
	if it.pos >= len(it.recs) {
		return nil, io.EOF
	}
	rec := it.recs[it.pos]
	it.recs[it.pos] = nil
	it.pos++
	return rec, nil
}

// runReader reads one spilled run. Every line is a record, including
// empty ones.
type runReader struct {
	br   *bufio.Reader
	idx  int
	head []string
}

func (r *runReader) advance() error {
	line, err := r.br.ReadString('\n')
	if err == io.EOF && line == "" {
		return io.EOF
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("read sort run: %w", err)
	}
	r.head = strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	return nil
}

// mergeIter is a k-way merge of sorted runs. Equal records come out in run
// order, which keeps the sort stable across spills.
type mergeIter struct {
	cmp func(a, b []string) int
	h   runHeap
}

func (m *mergeIter) push(r *runReader) error {
	if err := r.advance(); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	m.h.cmp = m.cmp
	heap.Push(&m.h, r)
	return nil
}

func (m *mergeIter) Next() ([]string, error) {
	if m.h.Len() == 0 {
		return nil, io.EOF
	}
	r := m.h.items[0]
	rec := r.head
	if err := r.advance(); err != nil {
		if err != io.EOF {
			return nil, err
		}
		heap.Pop(&m.h)
	} else {
		heap.Fix(&m.h, 0)
	}
	return rec, nil
}

type runHeap struct {
	items []*runReader
	cmp   func(a, b []string) int
}

func (h runHeap) Len() int { return len(h.items) }

func (h runHeap) Less(i, j int) bool {
	if c := h.cmp(h.items[i].head, h.items[j].head); c != 0 {
		return c < 0
	}
	return h.items[i].idx < h.items[j].idx
}

func (h runHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *runHeap) Push(x any) { h.items = append(h.items, x.(*runReader)) }

func (h *runHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}
