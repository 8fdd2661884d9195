package join

import (
	"errors"
	"io"
)

// MergeJoin left-outer-joins two iterators sorted ascending (byte order) on
// their join columns and calls emit once per output record.
//
// Every right record whose key equals the left key produces one output
// record; a left record without a match is emitted once with blank right
// columns. Left records sharing a key each fan out against the whole right
// group.
func (j *Join) MergeJoin(left, right Iterator, emit func([]string) error) error {
	next, err := pull(right)
	if err != nil {
		return err
	}

	var (
		group    [][]string
		groupKey string
		haveKey  bool
	)
	for {
		l, err := left.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		key := l[j.LeftKey]
		if !haveKey || key != groupKey {
			group = group[:0]
			for next != nil && CompareBytes(next[j.RightKey], key) < 0 {
				if next, err = pull(right); err != nil {
					return err
				}
			}
			for next != nil && next[j.RightKey] == key {
				group = append(group, next)
				if next, err = pull(right); err != nil {
					return err
				}
			}
			groupKey, haveKey = key, true
		}

		if len(group) == 0 {
			if err := emit(j.combine(l, nil)); err != nil {
				return err
			}
			continue
		}
		for _, r := range group {
			if err := emit(j.combine(l, r)); err != nil {
				return err
			}
		}
	}
}

// pull returns the next record, or nil at the end.
func pull(it Iterator) ([]string, error) {
	rec, err := it.Next()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return rec, err
}
