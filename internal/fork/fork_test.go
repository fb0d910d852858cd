package fork

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func scalars(t *testing.T, pairs ...any) Payload {
	t.Helper()
	var branches []Branch[Payload]
	for i := 0; i < len(pairs); i += 2 {
		branches = append(branches, Branch[Payload]{Label: pairs[i].(string), Value: Scalar(pairs[i+1].(float64))})
	}
	p, err := Branches(branches...)
	require.NoError(t, err)
	return p
}

func floatAt(t *testing.T, p Payload, label string) float64 {
	t.Helper()
	b, err := p.Branch(label)
	require.NoError(t, err)
	x, ok := b.Float()
	require.True(t, ok, "branch %q is %s", label, b.Kind())
	return x
}

// Duplicate labels are rejected
func TestNewDuplicateLabel(t *testing.T) {
	_, err := New(Branch[int]{"a", 1}, Branch[int]{"a", 2})
	assert.ErrorIs(t, err, ErrDuplicateLabel)

	_, err = Of([]string{"a"}, []int{1, 2})
	assert.Error(t, err)
}

// Serial and parallel execution agree on order and values
func TestMapModesAgree(t *testing.T) {
	labels := make([]string, 50)
	values := make([]int, 50)
	for i := range labels {
		labels[i] = fmt.Sprintf("g%02d", i)
		values[i] = i
	}
	f, err := Of(labels, values)
	require.NoError(t, err)

	square := func(_ context.Context, _ string, v int) (int, error) { return v * v, nil }
	serial, err := Map(WithMode(context.Background(), ModeSerial, 0), f, square)
	require.NoError(t, err)
	parallel, err := Map(WithMode(context.Background(), ModeParallel, 4), f, square)
	require.NoError(t, err)

	assert.Equal(t, serial.Labels(), parallel.Labels())
	assert.Equal(t, serial.Values(), parallel.Values())
	assert.Equal(t, labels, parallel.Labels())
}

// Parallel mode reports every failing branch in label order
func TestParallelAggregatesFailures(t *testing.T) {
	f, err := Of([]string{"a", "b", "c"}, []int{1, 2, 3})
	require.NoError(t, err)
	boom := errors.New("boom")

	var calls atomic.Int32
	_, err = Map(WithMode(context.Background(), ModeParallel, 2), f, func(_ context.Context, label string, v int) (int, error) {
		calls.Add(1)
		if v != 2 {
			return 0, boom
		}
		return v, nil
	})
	var be *BroadcastError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"a", "c"}, be.Labels())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load())
}

// Serial mode stops at the first failure
func TestSerialStopsEarly(t *testing.T) {
	f, err := Of([]string{"a", "b"}, []int{1, 2})
	require.NoError(t, err)
	var calls int
	_, err = Map(context.Background(), f, func(_ context.Context, _ string, _ int) (int, error) {
		calls++
		return 0, errors.New("nope")
	})
	var be *BroadcastError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"a"}, be.Labels())
	assert.Equal(t, 1, calls)
}

// Panics inside branches become errors
func TestBranchPanic(t *testing.T) {
	f, err := Of([]string{"a"}, []backend.Tensor{backend.Ones(2)})
	require.NoError(t, err)
	_, err = Map(WithMode(context.Background(), ModeParallel, 0), f, func(_ context.Context, _ string, v backend.Tensor) (backend.Tensor, error) {
		return v.Add(backend.Ones(3)), nil
	})
	assert.ErrorIs(t, err, ErrPanic)
}

// Execution mode is scoped to the derived context
func TestModeScoping(t *testing.T) {
	base := context.Background()
	scoped := WithMode(base, ModeDistributed, 3)
	assert.Equal(t, ModeSerial, ExecutorFrom(base).Mode())
	assert.Equal(t, ModeDistributed, ExecutorFrom(scoped).Mode())

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSerial, m)
	_, err = ParseMode("cluster")
	assert.Error(t, err)
}

// Operators broadcast against plain values
func TestBinaryWithScalar(t *testing.T) {
	ctx := context.Background()
	f := scalars(t, "a", 1.0, "b", 2.0)

	cases := []struct {
		op     BinaryOp
		a, b   float64
		scalar Payload
	}{
		{OpAdd, 2, 3, Scalar(1)},
		{OpSub, 0, 1, Scalar(1)},
		{OpMul, 2, 4, Scalar(2)},
		{OpDiv, 0.5, 1, Scalar(2)},
		{OpFloorDiv, 0, 1, Scalar(2)},
		{OpEq, 1, 0, Scalar(1)},
		{OpNe, 0, 1, Scalar(1)},
		{OpLt, 0, 0, Scalar(1)},
		{OpLe, 1, 0, Scalar(1)},
		{OpGt, 0, 1, Scalar(1)},
		{OpGe, 1, 1, Scalar(1)},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			out, err := Binary(ctx, tc.op, f, tc.scalar)
			require.NoError(t, err)
			assert.Equal(t, tc.a, floatAt(t, out, "a"))
			assert.Equal(t, tc.b, floatAt(t, out, "b"))
		})
	}

	// plain value on the left
	out, err := Binary(ctx, OpSub, Scalar(10), f)
	require.NoError(t, err)
	assert.Equal(t, 9.0, floatAt(t, out, "a"))
}

// Two forks pair by label and must agree on labels
func TestBinaryForkFork(t *testing.T) {
	ctx := context.Background()
	out, err := Binary(ctx, OpMul, scalars(t, "a", 2.0, "b", 3.0), scalars(t, "b", 10.0, "a", 5.0))
	require.NoError(t, err)
	assert.Equal(t, 10.0, floatAt(t, out, "a"))
	assert.Equal(t, 30.0, floatAt(t, out, "b"))

	_, err = Binary(ctx, OpAdd, scalars(t, "a", 1.0), scalars(t, "z", 1.0))
	assert.ErrorIs(t, err, ErrLabelMismatch)

	_, err = Binary(ctx, OpAdd, Scalar(1), DictOf(NewDict()))
	assert.ErrorIs(t, err, ErrKind)
}

// Method-style operations broadcast over tensors
func TestApplySum(t *testing.T) {
	ctx := context.Background()
	f, err := Branches(
		Branch[Payload]{"a", Tensor(backend.New([]float64{1, 2, 3}))},
		Branch[Payload]{"b", Tensor(backend.New([]float64{-1, -1}))},
	)
	require.NoError(t, err)

	sum, err := Apply(ctx, f, OpSum)
	require.NoError(t, err)
	assert.Equal(t, 6.0, floatAt(t, sum, "a"))
	assert.Equal(t, -2.0, floatAt(t, sum, "b"))

	abs, err := Apply(ctx, f, OpAbs)
	require.NoError(t, err)
	b, _ := abs.Branch("b")
	tb, ok := b.AsTensor()
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1}, tb.Float64s())

	n, err := Apply(ctx, f, OpLen)
	require.NoError(t, err)
	assert.Equal(t, 3.0, floatAt(t, n, "a"))

	_, err = Apply(ctx, f, OpItem)
	assert.ErrorIs(t, err, backend.ErrShape)
}

// A fork of dicts supports member access, assignment and deletion
func TestForkOfDicts(t *testing.T) {
	ctx := context.Background()
	mk := func(x, y float64) Payload {
		d := NewDict()
		d.Set("x", Scalar(x))
		d.Set("y", Scalar(y))
		return DictOf(d)
	}
	f, err := Branches(Branch[Payload]{"a", mk(1, 2)}, Branch[Payload]{"b", mk(2, 4)})
	require.NoError(t, err)

	x, err := Apply(ctx, f, Field("x"))
	require.NoError(t, err)
	y, err := Apply(ctx, f, Field("y"))
	require.NoError(t, err)
	z, err := Binary(ctx, OpAdd, x, y)
	require.NoError(t, err)

	require.NoError(t, SetItem(f, "z", z))
	require.NoError(t, DeleteItem(f, "x"))
	require.NoError(t, DeleteItem(f, "y"))

	a, _ := f.Branch("a")
	da, _ := a.AsDict()
	assert.Equal(t, []string{"z"}, da.Keys())
	got, _ := da.Get("z")
	v, _ := got.Float()
	assert.Equal(t, 3.0, v)

	items, err := Items(f)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "z", items[0].Label)
	assert.Equal(t, 6.0, floatAt(t, items[0].Value, "b"))

	_, err = Apply(ctx, f, Field("missing"))
	assert.ErrorIs(t, err, ErrNoMember)

	assert.ErrorIs(t, SetItem(f, "w", scalars(t, "a", 1.0)), ErrLabelMismatch)
}

// Member access on a fork of forks
func TestForkOfForks(t *testing.T) {
	ctx := context.Background()
	f, err := Branches(
		Branch[Payload]{"a", scalars(t, "x", 1.0, "y", 2.0)},
		Branch[Payload]{"b", scalars(t, "x", 3.0, "y", 4.0)},
	)
	require.NoError(t, err)

	x, err := Apply(ctx, f, Field("x"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, floatAt(t, x, "a"))
	assert.Equal(t, 3.0, floatAt(t, x, "b"))

	a, err := Apply(ctx, f, Field("a"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, floatAt(t, a, "y"))

	// nested results flatten into concatenated labels
	neg, err := Apply(ctx, f, OpNeg)
	require.NoError(t, err)
	flat, ok := neg.AsFork()
	require.True(t, ok)
	assert.Equal(t, []string{"ax", "ay", "bx", "by"}, flat.Labels())
	assert.Equal(t, -4.0, floatAt(t, neg, "by"))
}

// Calls resolve forked arguments per branch
func TestCall(t *testing.T) {
	ctx := context.Background()
	add := Callable(func(_ context.Context, args ...Payload) (Payload, error) {
		x, _ := args[0].Float()
		y, _ := args[1].Float()
		return Scalar(x + y), nil
	})
	f, err := Branches(Branch[Payload]{"a", add}, Branch[Payload]{"b", add})
	require.NoError(t, err)

	out, err := Apply(ctx, f, Call(scalars(t, "a", 1.0, "b", 2.0), Scalar(10)))
	require.NoError(t, err)
	assert.Equal(t, 11.0, floatAt(t, out, "a"))
	assert.Equal(t, 12.0, floatAt(t, out, "b"))
}

// Structural combinators
func TestFlattenTransposeUnion(t *testing.T) {
	inner1, _ := Of([]string{"x", "y"}, []int{1, 2})
	inner2, _ := Of([]string{"x", "y"}, []int{3, 4})
	outer, _ := Of([]string{"a", "b"}, []*Fork[int]{inner1, inner2})

	flat, err := Flatten(outer)
	require.NoError(t, err)
	assert.Equal(t, []string{"ax", "ay", "bx", "by"}, flat.Labels())

	tr, err := Transpose(outer)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tr.Labels())
	y, _ := tr.Get("y")
	assert.Equal(t, []int{2, 4}, y.Values())

	odd, _ := Of([]string{"z"}, []int{5})
	bad, _ := Of([]string{"a", "b"}, []*Fork[int]{inner1, odd})
	_, err = Transpose(bad)
	assert.ErrorIs(t, err, ErrLabelMismatch)

	left, _ := Of([]string{"Man", "Woman"}, []int{1, 2})
	right, _ := Of([]string{"Man", "Black"}, []int{3, 4})
	u, err := Union(left, right, "gender", "race")
	require.NoError(t, err)
	assert.Equal(t, []string{"genderMan", "Woman", "raceMan", "Black"}, u.Labels())

	assert.Equal(t, []string{"genderMan", "genderWoman"}, Namespaced("gender", left).Labels())
}

// Categories and binary partitions
func TestCategories(t *testing.T) {
	c := Categories([]string{"Man", "Woman", "Man", "Nonbinary"})
	assert.Equal(t, []string{"Man", "Woman", "Nonbinary"}, c.Labels())
	man, _ := c.Get("Man")
	assert.Equal(t, []float64{1, 0, 1, 0}, man.Float64s())

	b := BinaryMask([]float64{1, 0, 0, 1})
	assert.Equal(t, []string{"1", "0"}, b.Labels())
	zero, _ := b.Get("0")
	assert.Equal(t, []float64{0, 1, 1, 0}, zero.Float64s())
}

// Intersections drop empty groups and never exceed the product
func TestIntersect(t *testing.T) {
	gender := Categories([]string{"Man", "Woman", "Man", "Woman"})
	race := Categories([]string{"Black", "Black", "White", "White"})
	both, err := Intersect(gender, race)
	require.NoError(t, err)
	assert.LessOrEqual(t, both.Len(), gender.Len()*race.Len())
	assert.Equal(t, []string{"Man&Black", "Man&White", "Woman&Black", "Woman&White"}, both.Labels())

	// members belong to both groups
	mb, _ := both.Get("Man&Black")
	assert.Equal(t, []float64{1, 0, 0, 0}, mb.Float64s())

	aligned := Categories([]string{"Black", "White", "Black", "White"})
	sparse, err := Intersect(gender, aligned)
	require.NoError(t, err)
	assert.Equal(t, []string{"Man&Black", "Woman&White"}, sparse.Labels())

	three, err := Intersectional(gender, race, BinaryMask([]float64{1, 1, 0, 0}))
	require.NoError(t, err)
	assert.LessOrEqual(t, three.Len(), 8)
	assert.Equal(t, 4, three.Len())
}

// Subgroups keep single attributes and add non-empty intersections
func TestSubgroups(t *testing.T) {
	values := []float64{1, 0, 1, 0, 1, 1, 0, 0}
	other := []float64{1, 1, 0, 0, 1, 0, 1, 0}

	independent, _ := Of([]string{"gender", "race"}, []*Fork[backend.Tensor]{BinaryMask(values), BinaryMask(other)})
	groups, err := Subgroups(independent)
	require.NoError(t, err)
	assert.Equal(t, 8, groups.Len())
	assert.Contains(t, groups.Labels(), "gender1&race0")

	identical, _ := Of([]string{"gender", "race"}, []*Fork[backend.Tensor]{BinaryMask(values), BinaryMask(values)})
	groups, err = Subgroups(identical)
	require.NoError(t, err)
	assert.Equal(t, 6, groups.Len())
	assert.Equal(t, []string{"gender1", "gender0", "race1", "race0", "gender1&race1", "gender0&race0"}, groups.Labels())
}

// Contract wrappers compose
func TestContracts(t *testing.T) {
	ctx := context.Background()
	ratio := func(_ context.Context, args Args) (Payload, error) {
		return Binary(ctx, OpDiv, args["num"], args["den"])
	}
	fn := WithRole("metric", Broadcast(UnitBounded(ratio)))

	out, err := fn(ctx, Args{"num": scalars(t, "a", 1.0, "b", 1.0), "den": Scalar(2)})
	require.NoError(t, err)
	assert.Equal(t, "metric", out.Role())
	assert.Equal(t, 0.5, floatAt(t, out, "b"))
	b, _ := out.Branch("b")
	assert.Equal(t, "metric", b.Role())

	_, err = fn(ctx, Args{"num": scalars(t, "a", 1.0, "b", 4.0), "den": Scalar(2)})
	assert.ErrorIs(t, err, ErrOutOfRange)
	var be *BroadcastError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"b"}, be.Labels())

	_, err = fn(ctx, Args{"num": scalars(t, "a", 1.0), "den": scalars(t, "b", 1.0)})
	assert.ErrorIs(t, err, ErrLabelMismatch)

	plain, err := fn(ctx, Args{"num": Scalar(1), "den": Scalar(4)})
	require.NoError(t, err)
	x, _ := plain.Float()
	assert.Equal(t, 0.25, x)
}

// Two attributes whose masks all overlap yield the full product
func TestIntersectFullOverlap(t *testing.T) {
	gender, err := Of([]string{"Man", "Woman"}, []backend.Tensor{backend.New([]float64{0, 1}), backend.New([]float64{0, 1})})
	require.NoError(t, err)
	race, err := Of([]string{"Black", "White"}, []backend.Tensor{backend.New([]float64{0, 1}), backend.New([]float64{0, 1})})
	require.NoError(t, err)

	both, err := Intersectional(gender, race)
	require.NoError(t, err)
	assert.Equal(t, []string{"Man&Black", "Man&White", "Woman&Black", "Woman&White"}, both.Labels())
}

// CategoriesOf keeps the domain order and empty categories
func TestCategoriesOf(t *testing.T) {
	c := CategoriesOf([]int{2, 1, 0}, []int{0, 1, 1})
	assert.Equal(t, []string{"2", "1", "0"}, c.Labels())
	two, _ := c.Get("2")
	assert.Equal(t, 0.0, two.Sum())
}
