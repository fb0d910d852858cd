package fork

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
)

// ErrNoMember is returned when a member lookup finds neither a branch nor a dict key.
var ErrNoMember = errors.New("fork: no such member")

// #region binary
// BinaryOp names an arithmetic or comparison operator.
type BinaryOp string

const (
	OpAdd      BinaryOp = "+"
	OpSub      BinaryOp = "-"
	OpMul      BinaryOp = "*"
	OpDiv      BinaryOp = "/"
	OpFloorDiv BinaryOp = "//"
	OpEq       BinaryOp = "=="
	OpNe       BinaryOp = "!="
	OpLt       BinaryOp = "<"
	OpLe       BinaryOp = "<="
	OpGt       BinaryOp = ">"
	OpGe       BinaryOp = ">="
)

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Comparisons yield 1 for true and 0 for false.
var binaryOps = map[BinaryOp]func(a, b float64) float64{
	OpAdd:      func(a, b float64) float64 { return a + b },
	OpSub:      func(a, b float64) float64 { return a - b },
	OpMul:      func(a, b float64) float64 { return a * b },
	OpDiv:      func(a, b float64) float64 { return a / b },
	OpFloorDiv: func(a, b float64) float64 { return math.Floor(a / b) },
	OpEq:       func(a, b float64) float64 { return truth(a == b) },
	OpNe:       func(a, b float64) float64 { return truth(a != b) },
	OpLt:       func(a, b float64) float64 { return truth(a < b) },
	OpLe:       func(a, b float64) float64 { return truth(a <= b) },
	OpGt:       func(a, b float64) float64 { return truth(a > b) },
	OpGe:       func(a, b float64) float64 { return truth(a >= b) },
}

// Binary applies op. Forked operands are broadcast: two forks pair branches by
// label and must share a label set; a fork and a plain value pair every branch
// with that value.
func Binary(ctx context.Context, op BinaryOp, a, b Payload) (Payload, error) {
	fn, ok := binaryOps[op]
	if !ok {
		return Payload{}, fmt.Errorf("unknown operator %q", op)
	}
	recurse := func(ctx context.Context, x, y Payload) (Payload, error) { return Binary(ctx, op, x, y) }
	switch {
	case a.kind == KindFork && b.kind == KindFork:
		out, err := Zip(ctx, a.fork, b.fork, func(ctx context.Context, _ string, x, y Payload) (Payload, error) {
			return recurse(ctx, x, y)
		})
		if err != nil {
			return Payload{}, err
		}
		return Nested(out), nil
	case a.kind == KindFork:
		out, err := Map(ctx, a.fork, func(ctx context.Context, _ string, x Payload) (Payload, error) {
			return recurse(ctx, x, b)
		})
		if err != nil {
			return Payload{}, err
		}
		return Nested(out), nil
	case b.kind == KindFork:
		out, err := Map(ctx, b.fork, func(ctx context.Context, _ string, y Payload) (Payload, error) {
			return recurse(ctx, a, y)
		})
		if err != nil {
			return Payload{}, err
		}
		return Nested(out), nil
	}
	return elementwise(op, fn, a, b)
}

func elementwise(op BinaryOp, fn func(a, b float64) float64, a, b Payload) (Payload, error) {
	switch {
	case a.kind == KindScalar && b.kind == KindScalar:
		return Scalar(fn(a.scalar, b.scalar)), nil
	case a.kind == KindTensor && b.kind == KindTensor:
		if a.tensor.Len() != b.tensor.Len() {
			return Payload{}, fmt.Errorf("%s: %w: %d vs %d elements", op, backend.ErrShape, a.tensor.Len(), b.tensor.Len())
		}
		return Tensor(backend.Zip(a.tensor, b.tensor, fn)), nil
	case a.kind == KindTensor && b.kind == KindScalar:
		return Tensor(backend.Map(a.tensor, func(x float64) float64 { return fn(x, b.scalar) })), nil
	case a.kind == KindScalar && b.kind == KindTensor:
		return Tensor(backend.Map(b.tensor, func(y float64) float64 { return fn(a.scalar, y) })), nil
	}
	return Payload{}, fmt.Errorf("%w: %s %s %s", ErrKind, a.kind, op, b.kind)
}
// #endregion binary

// #region unary
// Op is an operation applied to one payload. Applied to a fork it runs on
// every branch; member lookups first try the fork's own labels.
type Op struct {
	Name   string
	member string
	apply  func(ctx context.Context, label string, p Payload) (Payload, error)
}

var (
	OpSum = Op{Name: "sum", apply: func(_ context.Context, _ string, p Payload) (Payload, error) {
		switch p.kind {
		case KindScalar:
			return p, nil
		case KindTensor:
			return Scalar(p.tensor.Sum()), nil
		}
		return Payload{}, fmt.Errorf("%w: sum of %s", ErrKind, p.kind)
	}}
	OpAbs = Op{Name: "abs", apply: numeric("abs", math.Abs)}
	OpNeg = Op{Name: "neg", apply: numeric("neg", func(x float64) float64 { return -x })}
	OpItem = Op{Name: "item", apply: func(_ context.Context, _ string, p Payload) (Payload, error) {
		switch p.kind {
		case KindScalar:
			return p, nil
		case KindTensor:
			x, err := p.tensor.Item()
			if err != nil {
				return Payload{}, err
			}
			return Scalar(x), nil
		}
		return Payload{}, fmt.Errorf("%w: item of %s", ErrKind, p.kind)
	}}
	OpLen = Op{Name: "len", apply: func(_ context.Context, _ string, p Payload) (Payload, error) {
		switch p.kind {
		case KindTensor:
			return Scalar(float64(p.tensor.Len())), nil
		case KindDict:
			return Scalar(float64(p.dict.Len())), nil
		}
		return Payload{}, fmt.Errorf("%w: len of %s", ErrKind, p.kind)
	}}
)

func numeric(name string, fn func(float64) float64) func(context.Context, string, Payload) (Payload, error) {
	return func(_ context.Context, _ string, p Payload) (Payload, error) {
		switch p.kind {
		case KindScalar:
			return Scalar(fn(p.scalar)), nil
		case KindTensor:
			return Tensor(backend.Map(p.tensor, fn)), nil
		}
		return Payload{}, fmt.Errorf("%w: %s of %s", ErrKind, name, p.kind)
	}
}

// Field reads key from dict payloads. On a fork, a branch labeled key is
// returned directly instead of being broadcast.
func Field(key string) Op {
	return Op{Name: "field " + key, member: key, apply: func(_ context.Context, _ string, p Payload) (Payload, error) {
		if p.kind != KindDict {
			return Payload{}, fmt.Errorf("%w: field %q of %s", ErrKind, key, p.kind)
		}
		v, ok := p.dict.Get(key)
		if !ok {
			return Payload{}, fmt.Errorf("%w: %q", ErrNoMember, key)
		}
		return v, nil
	}}
}

// Call invokes callable payloads. Forked arguments are resolved to the branch
// being called.
func Call(args ...Payload) Op {
	return Op{Name: "call", apply: func(ctx context.Context, label string, p Payload) (Payload, error) {
		if p.kind != KindFunc {
			return Payload{}, fmt.Errorf("%w: call of %s", ErrKind, p.kind)
		}
		resolved := make([]Payload, len(args))
		for i, a := range args {
			if a.kind == KindFork && label != "" {
				v, err := a.Branch(label)
				if err != nil {
					return Payload{}, err
				}
				a = v
			}
			resolved[i] = a
		}
		return p.fn(ctx, resolved...)
	}}
}

// Method wraps an arbitrary per-payload function as an Op.
func Method(name string, fn func(ctx context.Context, p Payload) (Payload, error)) Op {
	return Op{Name: name, apply: func(ctx context.Context, _ string, p Payload) (Payload, error) {
		return fn(ctx, p)
	}}
}

// Apply runs op on p, broadcasting over forks. When every branch result is a
// fork the result is flattened with concatenated labels.
func Apply(ctx context.Context, p Payload, op Op) (Payload, error) {
	return apply(ctx, "", p, op)
}

func apply(ctx context.Context, label string, p Payload, op Op) (Payload, error) {
	if p.kind != KindFork {
		return op.apply(ctx, label, p)
	}
	if op.member != "" {
		if v, ok := p.fork.Get(op.member); ok {
			return v, nil
		}
	}
	out, err := Map(ctx, p.fork, func(ctx context.Context, l string, v Payload) (Payload, error) {
		return apply(ctx, l, v, op)
	})
	if err != nil {
		return Payload{}, fmt.Errorf("%s: %w", op.Name, err)
	}
	return flattenNested(out)
}

func flattenNested(f *Fork[Payload]) (Payload, error) {
	if f.Len() == 0 {
		return Nested(f), nil
	}
	inner := make([]*Fork[Payload], 0, f.Len())
	for _, v := range f.Values() {
		if v.kind != KindFork {
			return Nested(f), nil
		}
		inner = append(inner, v.fork)
	}
	flat, err := Flatten(build(f.Labels(), inner))
	if err != nil {
		return Payload{}, err
	}
	return Nested(flat), nil
}
// #endregion unary

// #region mutation
// SetItem assigns key in every branch's dict. A forked value supplies one
// value per branch and must share the target's labels.
func SetItem(target Payload, key string, value Payload) error {
	if target.kind != KindFork {
		return fmt.Errorf("%w: set item on %s", ErrKind, target.kind)
	}
	if value.kind == KindFork && !SameLabels(target.fork, value.fork) {
		return fmt.Errorf("%w: %v vs %v", ErrLabelMismatch, target.fork.labels, value.fork.labels)
	}
	for _, b := range target.fork.Branches() {
		if b.Value.kind != KindDict {
			return fmt.Errorf("%w: branch %q holds %s", ErrKind, b.Label, b.Value.kind)
		}
	}
	for _, b := range target.fork.Branches() {
		v := value
		if value.kind == KindFork {
			v = value.fork.values[b.Label]
		}
		b.Value.dict.Set(key, v)
	}
	return nil
}

// DeleteItem removes key from every branch's dict.
func DeleteItem(target Payload, key string) error {
	if target.kind != KindFork {
		return fmt.Errorf("%w: delete item on %s", ErrKind, target.kind)
	}
	for _, b := range target.fork.Branches() {
		if b.Value.kind != KindDict {
			return fmt.Errorf("%w: branch %q holds %s", ErrKind, b.Label, b.Value.kind)
		}
	}
	for _, v := range target.fork.Values() {
		v.dict.Delete(key)
	}
	return nil
}

// Items transposes a fork of dicts into one fork per key, in the first
// branch's key order. Every branch must hold every key.
func Items(target Payload) ([]Branch[Payload], error) {
	if target.kind != KindFork {
		return nil, fmt.Errorf("%w: items of %s", ErrKind, target.kind)
	}
	if target.fork.Len() == 0 {
		return nil, nil
	}
	first := target.fork.Values()[0]
	if first.kind != KindDict {
		return nil, fmt.Errorf("%w: items of %s branches", ErrKind, first.kind)
	}
	labels := target.fork.Labels()
	var out []Branch[Payload]
	for _, key := range first.dict.Keys() {
		vals := make([]Payload, len(labels))
		for i, l := range labels {
			b := target.fork.values[l]
			if b.kind != KindDict {
				return nil, fmt.Errorf("%w: branch %q holds %s", ErrKind, l, b.kind)
			}
			v, ok := b.dict.Get(key)
			if !ok {
				return nil, fmt.Errorf("%w: %q missing in branch %q", ErrNoMember, key, l)
			}
			vals[i] = v
		}
		out = append(out, Branch[Payload]{Label: key, Value: Nested(build(labels, vals))})
	}
	return out, nil
}
// #endregion mutation
