package fork

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
)

// #region kind
// Kind tags the variant held by a Payload.
type Kind int

const (
	KindNone Kind = iota
	KindScalar
	KindTensor
	KindDict
	KindFork
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindTensor:
		return "tensor"
	case KindDict:
		return "dict"
	case KindFork:
		return "fork"
	case KindFunc:
		return "func"
	}
	return "none"
}
// #endregion kind

// #region payload
// Func is a callable payload.
type Func func(ctx context.Context, args ...Payload) (Payload, error)

// Payload is the dynamic value carried by branches when operations are
// composed at run time. A Payload of KindFork is itself a branch map and is
// what operators broadcast over.
type Payload struct {
	kind   Kind
	scalar float64
	tensor backend.Tensor
	dict   *Dict
	fork   *Fork[Payload]
	fn     Func
	role   string
}

func Scalar(x float64) Payload { return Payload{kind: KindScalar, scalar: x} }
func Tensor(t backend.Tensor) Payload { return Payload{kind: KindTensor, tensor: t} }
func DictOf(d *Dict) Payload { return Payload{kind: KindDict, dict: d} }
func Nested(f *Fork[Payload]) Payload { return Payload{kind: KindFork, fork: f} }
func Callable(fn Func) Payload { return Payload{kind: KindFunc, fn: fn} }

// Branches builds a KindFork payload from label/value pairs.
func Branches(branches ...Branch[Payload]) (Payload, error) {
	f, err := New(branches...)
	if err != nil {
		return Payload{}, err
	}
	return Nested(f), nil
}

func (p Payload) Kind() Kind { return p.kind }

// Role is the semantic tag attached by WithRole, empty by default.
func (p Payload) Role() string { return p.role }

func (p Payload) Float() (float64, bool) { return p.scalar, p.kind == KindScalar }

func (p Payload) AsTensor() (backend.Tensor, bool) { return p.tensor, p.kind == KindTensor }

func (p Payload) AsDict() (*Dict, bool) { return p.dict, p.kind == KindDict }

func (p Payload) AsFork() (*Fork[Payload], bool) { return p.fork, p.kind == KindFork }

func (p Payload) AsFunc() (Func, bool) { return p.fn, p.kind == KindFunc }

// Branch returns one branch of a KindFork payload.
func (p Payload) Branch(label string) (Payload, error) {
	if p.kind != KindFork {
		return Payload{}, fmt.Errorf("%w: branch %q of %s", ErrKind, label, p.kind)
	}
	v, ok := p.fork.Get(label)
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q (have %s)", ErrUnknownLabel, label, strings.Join(p.fork.labels, ", "))
	}
	return v, nil
}

func (p Payload) withRole(role string) Payload {
	p.role = role
	return p
}

func (p Payload) String() string {
	switch p.kind {
	case KindScalar:
		return fmt.Sprintf("%g", p.scalar)
	case KindTensor:
		return fmt.Sprint(p.tensor.Float64s())
	case KindDict:
		return p.dict.String()
	case KindFork:
		parts := make([]string, 0, p.fork.Len())
		for _, b := range p.fork.Branches() {
			parts = append(parts, b.Label+": "+b.Value.String())
		}
		return "fork(" + strings.Join(parts, ", ") + ")"
	case KindFunc:
		return "func"
	}
	return "none"
}
// #endregion payload

// #region dict
// Dict is an insertion-ordered string keyed map. It is shared by reference so
// SetItem and DeleteItem on a fork mutate the branch values in place.
type Dict struct {
	keys   []string
	values map[string]Payload
}

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{values: make(map[string]Payload)}
}

func (d *Dict) Set(key string, v Payload) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Dict) Get(key string) (Payload, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Dict) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
}

func (d *Dict) Keys() []string { return slices.Clone(d.keys) }
func (d *Dict) Len() int { return len(d.keys) }

func (d *Dict) String() string {
	parts := make([]string, len(d.keys))
	for i, k := range d.keys {
		parts[i] = k + ": " + d.values[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
// #endregion dict
