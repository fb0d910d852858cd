package fork

import (
	"fmt"
	"slices"
)

// #region fork
// Branch is one labeled value of a Fork.
type Branch[T any] struct {
	Label string
	Value T
}

// Fork maps unique labels to values. Label order is the construction order and
// every operation preserves it.
type Fork[T any] struct {
	labels []string
	values map[string]T
}

// New builds a fork, rejecting duplicate labels.
func New[T any](branches ...Branch[T]) (*Fork[T], error) {
	f := &Fork[T]{
		labels: make([]string, 0, len(branches)),
		values: make(map[string]T, len(branches)),
	}
	for _, b := range branches {
		if _, ok := f.values[b.Label]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, b.Label)
		}
		f.labels = append(f.labels, b.Label)
		f.values[b.Label] = b.Value
	}
	return f, nil
}

// Of pairs labels with values positionally.
func Of[T any](labels []string, values []T) (*Fork[T], error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("fork of %d labels and %d values", len(labels), len(values))
	}
	branches := make([]Branch[T], len(labels))
	for i := range labels {
		branches[i] = Branch[T]{Label: labels[i], Value: values[i]}
	}
	return New(branches...)
}

// Len counts branches.
func (f *Fork[T]) Len() int { return len(f.labels) }

// Labels returns the branch labels in order.
func (f *Fork[T]) Labels() []string { return slices.Clone(f.labels) }

// Has reports whether label is a branch.
func (f *Fork[T]) Has(label string) bool {
	_, ok := f.values[label]
	return ok
}

// Get returns the value of one branch.
func (f *Fork[T]) Get(label string) (T, bool) {
	v, ok := f.values[label]
	return v, ok
}

// Values returns branch values in label order.
func (f *Fork[T]) Values() []T {
	out := make([]T, len(f.labels))
	for i, l := range f.labels {
		out[i] = f.values[l]
	}
	return out
}

// Branches returns label/value pairs in order.
func (f *Fork[T]) Branches() []Branch[T] {
	out := make([]Branch[T], len(f.labels))
	for i, l := range f.labels {
		out[i] = Branch[T]{Label: l, Value: f.values[l]}
	}
	return out
}

// SameLabels reports whether both forks have the same label set.
func SameLabels[T, U any](a *Fork[T], b *Fork[U]) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, l := range a.labels {
		if !b.Has(l) {
			return false
		}
	}
	return true
}
// #endregion fork
