package data

import (
	"fmt"
	"slices"
)

// LabelTable maps class names to dense indices in sorted name order.
// It is immutable once built.
type LabelTable struct {
	names []string
	index map[string]int
}

// NewLabelTable builds a table over the distinct values of names.
func NewLabelTable(names []string) *LabelTable {
	uniq := slices.Clone(names)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)

	t := &LabelTable{names: uniq, index: make(map[string]int, len(uniq))}
	for i, n := range uniq {
		t.index[n] = i
	}
	return t
}

// Index returns the class index of name.
func (t *LabelTable) Index(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return 0, fmt.Errorf("data: unknown label %q", name)
	}
	return i, nil
}

// Name returns the class name of index i.
func (t *LabelTable) Name(i int) (string, error) {
	if i < 0 || i >= len(t.names) {
		return "", fmt.Errorf("data: label index %d not in [0, %d)", i, len(t.names))
	}
	return t.names[i], nil
}

// Len returns the number of classes.
func (t *LabelTable) Len() int { return len(t.names) }

// Names returns the class names in index order.
func (t *LabelTable) Names() []string { return slices.Clone(t.names) }

// Encode maps every name to its index.
func (t *LabelTable) Encode(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		k, err := t.Index(n)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}
