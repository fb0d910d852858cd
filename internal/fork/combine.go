package fork

import (
	"fmt"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
)

// IntersectionSep joins the labels of intersected groups.
const IntersectionSep = "&"

// #region structure
// Flatten merges a fork of forks into one fork labeled outer+inner.
func Flatten[T any](f *Fork[*Fork[T]]) (*Fork[T], error) {
	var branches []Branch[T]
	for _, outer := range f.Branches() {
		for _, inner := range outer.Value.Branches() {
			branches = append(branches, Branch[T]{Label: outer.Label + inner.Label, Value: inner.Value})
		}
	}
	return New(branches...)
}

// Transpose swaps the outer and inner labels of a fork of forks. Every inner
// fork must carry the same label set.
func Transpose[T any](f *Fork[*Fork[T]]) (*Fork[*Fork[T]], error) {
	if f.Len() == 0 {
		return f, nil
	}
	first := f.Values()[0]
	for _, b := range f.Branches() {
		if !SameLabels(first, b.Value) {
			return nil, fmt.Errorf("transpose: %w: %q has %v, want %v", ErrLabelMismatch, b.Label, b.Value.labels, first.labels)
		}
	}
	innerLabels := first.Labels()
	out := make([]*Fork[T], len(innerLabels))
	for i, inner := range innerLabels {
		vals := make([]T, f.Len())
		for j, outer := range f.labels {
			vals[j] = f.values[outer].values[inner]
		}
		out[i] = build(f.Labels(), vals)
	}
	return build(innerLabels, out), nil
}

// Union combines the branches of two forks. Labels present in both are kept
// apart by prefixing them with nameA and nameB respectively.
func Union[T any](a, b *Fork[T], nameA, nameB string) (*Fork[T], error) {
	var branches []Branch[T]
	for _, br := range a.Branches() {
		if b.Has(br.Label) {
			br.Label = nameA + br.Label
		}
		branches = append(branches, br)
	}
	for _, br := range b.Branches() {
		if a.Has(br.Label) {
			br.Label = nameB + br.Label
		}
		branches = append(branches, br)
	}
	return New(branches...)
}

// Namespaced prefixes every label.
func Namespaced[T any](prefix string, f *Fork[T]) *Fork[T] {
	labels := f.Labels()
	for i := range labels {
		labels[i] = prefix + labels[i]
	}
	return build(labels, f.Values())
}
// #endregion structure

// #region groups
// Categories builds one membership mask per distinct value, in first
// occurrence order.
func Categories[T comparable](values []T) *Fork[backend.Tensor] {
	var order []T
	seen := make(map[T]bool)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			order = append(order, v)
		}
	}
	labels := make([]string, len(order))
	masks := make([]backend.Tensor, len(order))
	for i, cat := range order {
		labels[i] = fmt.Sprint(cat)
		mask := make([]float64, len(values))
		for j, v := range values {
			if v == cat {
				mask[j] = 1
			}
		}
		masks[i] = backend.New(mask)
	}
	return build(labels, masks)
}

// CategoriesOf builds one mask per domain value in domain order, keeping
// values that never occur as empty masks.
func CategoriesOf[T comparable](domain, values []T) *Fork[backend.Tensor] {
	labels := make([]string, len(domain))
	masks := make([]backend.Tensor, len(domain))
	for i, cat := range domain {
		labels[i] = fmt.Sprint(cat)
		mask := make([]float64, len(values))
		for j, v := range values {
			if v == cat {
				mask[j] = 1
			}
		}
		masks[i] = backend.New(mask)
	}
	return build(labels, masks)
}

// BinaryMask splits a 0/1 attribute into branches "1" and "0".
func BinaryMask(values []float64) *Fork[backend.Tensor] {
	pos := make([]float64, len(values))
	neg := make([]float64, len(values))
	for i, v := range values {
		if v != 0 {
			pos[i] = 1
		} else {
			neg[i] = 1
		}
	}
	return build([]string{"1", "0"}, []backend.Tensor{backend.New(pos), backend.New(neg)})
}

// Intersect pairs every branch of a with every branch of b, multiplying masks
// and keeping only non-empty intersections.
func Intersect(a, b *Fork[backend.Tensor]) (*Fork[backend.Tensor], error) {
	var branches []Branch[backend.Tensor]
	for _, x := range a.Branches() {
		for _, y := range b.Branches() {
			if x.Value.Len() != y.Value.Len() {
				return nil, fmt.Errorf("intersect %q and %q: %w", x.Label, y.Label, backend.ErrShape)
			}
			mask := x.Value.Mul(y.Value)
			if mask.Sum() <= 0 {
				continue
			}
			branches = append(branches, Branch[backend.Tensor]{Label: x.Label + IntersectionSep + y.Label, Value: mask})
		}
	}
	return New(branches...)
}

// Intersectional folds Intersect over every attribute.
func Intersectional(attrs ...*Fork[backend.Tensor]) (*Fork[backend.Tensor], error) {
	if len(attrs) == 0 {
		return New[backend.Tensor]()
	}
	out := attrs[0]
	for _, next := range attrs[1:] {
		var err error
		if out, err = Intersect(out, next); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Subgroups keeps each attribute's own groups, namespaced by attribute, and
// adds every non-empty intersection across two or more attributes.
func Subgroups(attrs *Fork[*Fork[backend.Tensor]]) (*Fork[backend.Tensor], error) {
	spaced := make([]*Fork[backend.Tensor], attrs.Len())
	for i, b := range attrs.Branches() {
		spaced[i] = Namespaced(b.Label, b.Value)
	}
	singles, err := Flatten(attrs)
	if err != nil {
		return nil, err
	}
	branches := singles.Branches()
	for size := 2; size <= len(spaced); size++ {
		for _, combo := range combinations(len(spaced), size) {
			picked := make([]*Fork[backend.Tensor], len(combo))
			for i, idx := range combo {
				picked[i] = spaced[idx]
			}
			joint, err := Intersectional(picked...)
			if err != nil {
				return nil, err
			}
			branches = append(branches, joint.Branches()...)
		}
	}
	return New(branches...)
}

func combinations(n, k int) [][]int {
	var out [][]int
	var walk func(start int, cur []int)
	walk = func(start int, cur []int) {
		if len(cur) == k {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for i := start; i < n; i++ {
			walk(i+1, append(cur, i))
		}
	}
	walk(0, nil)
	return out
}
// #endregion groups
