// Package join derives a collection from two delimited tables: both sides
// are externally sorted on their join column, left-outer merge-joined and
// optionally re-sorted numerically on one output column. The result is
// written as tab-delimited records for the loader.
package join

import (
	"errors"
	"fmt"

	"tablemigrate/internal/manifest"
)

var (
	ErrUnknownJoinField = errors.New("unknown join field")
	ErrUnknownSortField = errors.New("unknown sort field")
)

// Join is a resolved JoinSpec: column positions are fixed and the output
// field list is synthesized.
type Join struct {
	Spec        manifest.JoinSpec
	LeftFields  manifest.FieldList
	RightFields manifest.FieldList

	// LeftKey and RightKey are 0-based join columns.
	LeftKey  int
	RightKey int

	// Fields is the output field list.
	Fields manifest.FieldList

	// SortCol is the 0-based output column of the secondary sort, or -1.
	SortCol int
}

// ResolveIndex returns the 1-based position of ref.Field in fields.
func ResolveIndex(fields manifest.FieldList, ref manifest.FieldRef) (int, error) {
	i := fields.Index(ref.Field)
	if i == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJoinField, ref)
	}
	return i, nil
}

// Synthesize builds the joined field list: the left join field, then the
// other left fields, then the right fields without the right join field.
// leftKey and rightKey are 1-based.
func Synthesize(left, right manifest.FieldList, leftKey, rightKey int) manifest.FieldList {
	out := make(manifest.FieldList, 0, len(left)+len(right)-1)
	out = append(out, left[leftKey-1])
	out = appendExcept(out, left, leftKey-1)
	out = appendExcept(out, right, rightKey-1)
	return out
}

// Resolve fixes the column positions of spec against both field lists.
func Resolve(spec manifest.JoinSpec, left, right manifest.FieldList) (*Join, error) {
	lk, err := ResolveIndex(left, spec.Left)
	if err != nil {
		return nil, err
	}
	rk, err := ResolveIndex(right, spec.Right)
	if err != nil {
		return nil, err
	}

	j := &Join{
		Spec:        spec,
		LeftFields:  left,
		RightFields: right,
		LeftKey:     lk - 1,
		RightKey:    rk - 1,
		Fields:      Synthesize(left, right, lk, rk),
		SortCol:     -1,
	}
	if spec.Ordered() {
		i := j.Fields.Index(spec.SortField)
		if i == 0 {
			return nil, fmt.Errorf("%w: %q is not in %v", ErrUnknownSortField, spec.SortField, []string(j.Fields))
		}
		j.SortCol = i - 1
	}
	return j, nil
}

// combine builds one output record. right == nil emits blanks for the
// right-side columns.
func (j *Join) combine(left, right []string) []string {
	out := make([]string, 0, len(j.Fields))
	out = append(out, left[j.LeftKey])
	out = appendExcept(out, left, j.LeftKey)
	if right == nil {
		for i := 1; i < len(j.RightFields); i++ {
			out = append(out, "")
		}
		return out
	}
	return appendExcept(out, right, j.RightKey)
}

func appendExcept[T any](dst, src []T, skip int) []T {
	for i, v := range src {
		if i != skip {
			dst = append(dst, v)
		}
	}
	return dst
}
