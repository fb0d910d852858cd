package backend

import (
	"fmt"
	"math"
	"strings"
)

// #region tensor
// Tensor is the numeric array contract metrics and reducers are written against.
// Elementwise operations panic when lengths differ; callers validate shapes
// before doing arithmetic.
type Tensor interface {
	Len() int
	At(i int) float64
	Float64s() []float64

	Add(o Tensor) Tensor
	Sub(o Tensor) Tensor
	Mul(o Tensor) Tensor
	Div(o Tensor) Tensor
	AddScalar(x float64) Tensor
	MulScalar(x float64) Tensor
	// RSubScalar computes x - t elementwise.
	RSubScalar(x float64) Tensor
	Abs() Tensor
	OnesLike() Tensor

	Sum() float64
	// Item extracts the single element of a length-1 tensor.
	Item() (float64, error)
}

// #endregion tensor

// #region dense
// Dense is a float64 slice backed Tensor.
type Dense struct {
	data []float64
}

// New copies values into a Dense tensor.
func New(values []float64) *Dense {
	data := make([]float64, len(values))
	copy(data, values)
	return &Dense{data: data}
}

// FromInts converts integer values.
func FromInts(values []int) *Dense {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return &Dense{data: data}
}

// FromBools maps true to 1 and false to 0.
func FromBools(values []bool) *Dense {
	data := make([]float64, len(values))
	for i, v := range values {
		if v {
			data[i] = 1
		}
	}
	return &Dense{data: data}
}

// FromFloat32s widens float32 values.
func FromFloat32s(values []float32) *Dense {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return &Dense{data: data}
}

// Full returns a tensor of n copies of x.
func Full(n int, x float64) *Dense {
	data := make([]float64, n)
	for i := range data {
		data[i] = x
	}
	return &Dense{data: data}
}

// Ones returns a tensor of n ones.
func Ones(n int) *Dense { return Full(n, 1) }

func (d *Dense) Len() int { return len(d.data) }
func (d *Dense) At(i int) float64 { return d.data[i] }
func (d *Dense) OnesLike() Tensor { return Ones(len(d.data)) }
func (d *Dense) Abs() Tensor { return Map(d, math.Abs) }
func (d *Dense) Add(o Tensor) Tensor { return Zip(d, o, func(a, b float64) float64 { return a + b }) }
func (d *Dense) Sub(o Tensor) Tensor { return Zip(d, o, func(a, b float64) float64 { return a - b }) }
func (d *Dense) Mul(o Tensor) Tensor { return Zip(d, o, func(a, b float64) float64 { return a * b }) }
func (d *Dense) Div(o Tensor) Tensor { return Zip(d, o, func(a, b float64) float64 { return a / b }) }

func (d *Dense) AddScalar(x float64) Tensor {
	return Map(d, func(a float64) float64 { return a + x })
}

func (d *Dense) MulScalar(x float64) Tensor {
	return Map(d, func(a float64) float64 { return a * x })
}

func (d *Dense) RSubScalar(x float64) Tensor {
	return Map(d, func(a float64) float64 { return x - a })
}

// Float64s returns a copy of the underlying values.
func (d *Dense) Float64s() []float64 {
	out := make([]float64, len(d.data))
	copy(out, d.data)
	return out
}

func (d *Dense) Sum() float64 {
	var s float64
	for _, v := range d.data {
		s += v
	}
	return s
}

func (d *Dense) Item() (float64, error) {
	if len(d.data) != 1 {
		return 0, fmt.Errorf("%w: item of tensor with %d elements", ErrShape, len(d.data))
	}
	return d.data[0], nil
}

func (d *Dense) String() string {
	parts := make([]string, len(d.data))
	for i, v := range d.data {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// #endregion dense

// #region helpers
// Map applies fn to every element.
func Map(t Tensor, fn func(float64) float64) Tensor {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = fn(t.At(i))
	}
	return &Dense{data: out}
}

// Zip combines two equally sized tensors elementwise.
func Zip(a, b Tensor, fn func(x, y float64) float64) Tensor {
	if a.Len() != b.Len() {
		panic(fmt.Errorf("%w: %d vs %d elements", ErrShape, a.Len(), b.Len()))
	}
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = fn(a.At(i), b.At(i))
	}
	return &Dense{data: out}
}

// Concatenate joins tensors end to end.
func Concatenate(parts ...Tensor) Tensor {
	n := 0
	for _, p := range parts {
		n += p.Len()
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p.Float64s()...)
	}
	return &Dense{data: out}
}

// SameLength reports the common length, failing when tensors disagree.
func SameLength(tensors ...Tensor) (int, error) {
	n := -1
	for _, t := range tensors {
		if t == nil {
			continue
		}
		if n >= 0 && t.Len() != n {
			return 0, fmt.Errorf("%w: %d vs %d elements", ErrShape, n, t.Len())
		}
		n = t.Len()
	}
	return n, nil
}

// #endregion helpers
