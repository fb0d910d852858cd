package accumulate

import (
	"context"
	"testing"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tensorAt(t *testing.T, p fork.Payload, path ...string) []float64 {
	t.Helper()
	for _, key := range path {
		if f, ok := p.AsFork(); ok {
			v, found := f.Get(key)
			require.True(t, found, "branch %q", key)
			p = v
			continue
		}
		d, ok := p.AsDict()
		require.True(t, ok, "expected dict at %q, got %s", key, p.Kind())
		v, found := d.Get(key)
		require.True(t, found, "key %q", key)
		p = v
	}
	tt, ok := p.AsTensor()
	require.True(t, ok)
	return tt.Float64s()
}

func batch(t *testing.T, man, woman []float64) fork.Payload {
	t.Helper()
	p, err := fork.Branches(
		fork.Branch[fork.Payload]{Label: "Man", Value: fork.Tensor(backend.New(man))},
		fork.Branch[fork.Payload]{Label: "Woman", Value: fork.Tensor(backend.New(woman))},
	)
	require.NoError(t, err)
	return p
}

// ToDict fans plain and forked entries into one dict per branch
func TestToDict(t *testing.T) {
	ctx := context.Background()
	d, err := ToDict(ctx, fork.Args{
		"predictions": batch(t, []float64{1}, []float64{0}),
		"labels":      fork.Tensor(backend.New([]float64{1})),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, tensorAt(t, d, "Woman", "predictions"))
	assert.Equal(t, []float64{1}, tensorAt(t, d, "Woman", "labels"))

	man, _ := d.Branch("Man")
	md, _ := man.AsDict()
	assert.Equal(t, []string{"labels", "predictions"}, md.Keys())
}

// Batches accumulate per branch and key
func TestConcatenateBatches(t *testing.T) {
	ctx := context.Background()
	var acc fork.Payload
	batches := [][2][]float64{
		{{1, 0}, {1}},
		{{1}, {0, 0}},
	}
	for _, b := range batches {
		part, err := ToDict(ctx, fork.Args{"predictions": batch(t, b[0], b[1])})
		require.NoError(t, err)
		acc, err = Concatenate(ctx, acc, part)
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{1, 0, 1}, tensorAt(t, acc, "Man", "predictions"))
	assert.Equal(t, []float64{1, 0, 0}, tensorAt(t, acc, "Woman", "predictions"))
}

// Plain tensors concatenate in argument order
func TestConcatenateTensors(t *testing.T) {
	out, err := Concatenate(context.Background(),
		fork.Tensor(backend.New([]float64{1})),
		fork.Payload{},
		fork.Tensor(backend.New([]float64{2, 3})),
	)
	require.NoError(t, err)
	tt, ok := out.AsTensor()
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, tt.Float64s())

	empty, err := Concatenate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fork.KindNone, empty.Kind())
}

// Mixed kinds and mismatched forks are rejected
func TestConcatenateErrors(t *testing.T) {
	ctx := context.Background()
	_, err := Concatenate(ctx, fork.Tensor(backend.Ones(1)), fork.Scalar(1))
	assert.ErrorIs(t, err, fork.ErrKind)
	_, err = Concatenate(ctx, fork.Scalar(1), fork.Scalar(2))
	assert.ErrorIs(t, err, fork.ErrKind)

	other, err := fork.Branches(fork.Branch[fork.Payload]{Label: "Nonbinary", Value: fork.Tensor(backend.Ones(1))})
	require.NoError(t, err)
	_, err = Concatenate(ctx, batch(t, []float64{1}, []float64{1}), other)
	assert.ErrorIs(t, err, fork.ErrLabelMismatch)
}

// Extract calls sources and pulls same-named members
func TestExtract(t *testing.T) {
	ctx := context.Background()
	record := fork.NewDict()
	record.Set("labels", fork.Tensor(backend.New([]float64{0, 1})))
	loader := fork.Callable(func(context.Context, ...fork.Payload) (fork.Payload, error) {
		return fork.Tensor(backend.New([]float64{1, 1})), nil
	})

	out, err := Extract(ctx, fork.Args{"labels": fork.DictOf(record), "predictions": loader})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, tensorAt(t, out, "labels"))
	assert.Equal(t, []float64{1, 1}, tensorAt(t, out, "predictions"))
}
