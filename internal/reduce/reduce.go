package reduce

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// #region errors
var (
	ErrEmpty     = errors.New("reduce: no values")
	ErrNotList   = errors.New("reduce: expected a list of values, got a number")
	ErrUndefined = errors.New("reduce: undefined for these values")
	ErrNotEqual  = errors.New("reduce: values are not identical")
)
// #endregion errors

// #region reducer
// Func collapses a list of numbers to one.
type Func func(values []float64) (float64, error)

// Reducer is a named Func with an optional ideal value.
type Reducer struct {
	Name      string
	Details   string
	Target    float64
	HasTarget bool
	fn        Func
}

// New wraps fn as a reducer without an ideal value.
func New(name, details string, fn Func) Reducer {
	return Reducer{Name: name, Details: details, fn: fn}
}

// Minimizing wraps fn as a reducer whose ideal value is 0.
func Minimizing(name, details string, fn Func) Reducer {
	return Reducer{Name: name, Details: details, HasTarget: true, fn: fn}
}

// ReduceFloats applies the reducer to plain numbers.
func (r Reducer) ReduceFloats(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%s: %w", r.Name, ErrEmpty)
	}
	out, err := r.fn(values)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", r.Name, err)
	}
	return out, nil
}

// Descriptor is the reducer's tree descriptor.
func (r Reducer) Descriptor() descriptor.Descriptor {
	return descriptor.New(r.Name, descriptor.RoleReduction, descriptor.WithDetails(r.Details))
}

// Reduce flattens v, which must not itself be a number, and returns a numeric
// node under v's descriptor that keeps v's dependencies as its explanation.
func (r Reducer) Reduce(v *tree.Value) (*tree.Value, error) {
	if _, ok := v.Number(); ok {
		return nil, fmt.Errorf("%s of %s: %w", r.Name, v.Descriptor(), ErrNotList)
	}
	values, err := v.FlattenFloats()
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", r.Name, v.Descriptor(), err)
	}
	out, err := r.ReduceFloats(values)
	if err != nil {
		return nil, err
	}
	if r.HasTarget {
		return tree.Targeted(v.Registry(), v.ID(), out, r.Target, v.Deps()...), nil
	}
	return tree.Leaf(v.Registry(), v.ID(), out, v.Deps()...), nil
}
// #endregion reducer

// #region builtins
var (
	Identical = New("identical", "the common value of all groups, failing if any differs", identical)
	Max       = New("max", "the maximum value across groups", maximum)
	Min       = New("min", "the minimum value across groups", minimum)
	Mean      = New("mean", "the average value across groups", mean)
	Budget    = New("budget", "the logarithm of the maximum value across groups", budget)
	Std       = Minimizing("std", "the standard deviation across groups", std)
	Coefvar   = Minimizing("coefvar", "the coefficient of variation across groups", coefvar)
	Gini      = Minimizing("gini", "the gini coefficient across groups", gini)
)

// All lists the built-in reducers.
var All = []Reducer{Identical, Max, Min, Mean, Budget, Std, Coefvar, Gini}

// Lookup finds a built-in reducer by name.
func Lookup(name string) (Reducer, bool) {
	for _, r := range All {
		if r.Name == name {
			return r, true
		}
	}
	return Reducer{}, false
}

func identical(values []float64) (float64, error) {
	for _, v := range values[1:] {
		if math.Abs(v-values[0]) != 0 {
			return 0, fmt.Errorf("%w: %g vs %g", ErrNotEqual, values[0], v)
		}
	}
	return values[0], nil
}

func maximum(values []float64) (float64, error) {
	out := values[0]
	for _, v := range values[1:] {
		out = math.Max(out, v)
	}
	return out, nil
}

func minimum(values []float64) (float64, error) {
	out := values[0]
	for _, v := range values[1:] {
		out = math.Min(out, v)
	}
	return out, nil
}

func mean(values []float64) (float64, error) {
	var s float64
	for _, v := range values {
		s += v
	}
	return s / float64(len(values)), nil
}

func budget(values []float64) (float64, error) {
	m, err := maximum(values)
	if err != nil {
		return 0, err
	}
	if m <= 0 {
		return 0, fmt.Errorf("%w: budget of non-positive max %g", ErrUndefined, m)
	}
	return math.Log(m), nil
}

// std is the population standard deviation.
func std(values []float64) (float64, error) {
	m, _ := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values))), nil
}

func coefvar(values []float64) (float64, error) {
	m, _ := mean(values)
	if m == 0 {
		return 0, ErrUndefined
	}
	sd, _ := std(values)
	return sd / m, nil
}

func gini(values []float64) (float64, error) {
	m, _ := mean(values)
	if m == 0 {
		return 0, ErrUndefined
	}
	var sum float64
	for _, a := range values {
		for _, b := range values {
			sum += math.Abs(a - b)
		}
	}
	n := float64(len(values))
	return sum / (n * n * m * 2), nil
}
// #endregion builtins
