package fork

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
)

// #region contracts
// Args are named arguments to a contract-wrapped function.
type Args map[string]Payload

// Fn is the signature the contract wrappers compose over.
type Fn func(ctx context.Context, args Args) (Payload, error)

// WithRole tags fn's result, and each branch of a forked result, with role.
func WithRole(role string, fn Fn) Fn {
	return func(ctx context.Context, args Args) (Payload, error) {
		out, err := fn(ctx, args)
		if err != nil {
			return Payload{}, err
		}
		if out.kind == KindFork {
			vals := out.fork.Values()
			for i := range vals {
				vals[i] = vals[i].withRole(role)
			}
			out = Nested(build(out.fork.Labels(), vals))
		}
		return out.withRole(role), nil
	}
}

// Broadcast runs fn once per branch when any argument is a fork, substituting
// each forked argument with its value for that branch. All forked arguments
// must share a label set; branches follow the first forked argument by name.
func Broadcast(fn Fn) Fn {
	return func(ctx context.Context, args Args) (Payload, error) {
		names := make([]string, 0, len(args))
		for name := range args {
			names = append(names, name)
		}
		sort.Strings(names)

		var ref *Fork[Payload]
		var refName string
		for _, name := range names {
			f, ok := args[name].AsFork()
			if !ok {
				continue
			}
			if ref == nil {
				ref, refName = f, name
				continue
			}
			if !SameLabels(ref, f) {
				return Payload{}, fmt.Errorf("%w: %s has %v, %s has %v", ErrLabelMismatch, refName, ref.labels, name, f.labels)
			}
		}
		if ref == nil {
			return fn(ctx, args)
		}

		out, err := Map(ctx, ref, func(ctx context.Context, label string, _ Payload) (Payload, error) {
			branchArgs := make(Args, len(args))
			for name, a := range args {
				if f, ok := a.AsFork(); ok {
					a = f.values[label]
				}
				branchArgs[name] = a
			}
			return fn(ctx, branchArgs)
		})
		if err != nil {
			return Payload{}, err
		}
		return Nested(out), nil
	}
}

// UnitBounded fails when any number in fn's result falls outside [0, 1].
func UnitBounded(fn Fn) Fn {
	return func(ctx context.Context, args Args) (Payload, error) {
		out, err := fn(ctx, args)
		if err != nil {
			return Payload{}, err
		}
		if err := checkUnit(out); err != nil {
			return Payload{}, err
		}
		return out, nil
	}
}

func checkUnit(p Payload) error {
	inUnit := func(x float64) bool { return !math.IsNaN(x) && x >= 0 && x <= 1 }
	switch p.kind {
	case KindScalar:
		if !inUnit(p.scalar) {
			return fmt.Errorf("%w: %g", ErrOutOfRange, p.scalar)
		}
	case KindTensor:
		if i := slices.IndexFunc(p.tensor.Float64s(), func(x float64) bool { return !inUnit(x) }); i >= 0 {
			return fmt.Errorf("%w: element %d is %g", ErrOutOfRange, i, p.tensor.At(i))
		}
	case KindFork:
		for _, b := range p.fork.Branches() {
			if err := checkUnit(b.Value); err != nil {
				return fmt.Errorf("branch %q: %w", b.Label, err)
			}
		}
	}
	return nil
}
// #endregion contracts
