package report

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/reduce"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleInput() Input {
	return Input{
		Predictions: backend.New([]float64{1, 1, 0, 1, 0, 1}),
		Labels:      backend.New([]float64{1, 0, 0, 1, 1, 1}),
		Sensitive:   fork.Categories([]string{"Man", "Woman", "Man", "Woman", "Man", "Woman"}),
	}
}

// Report layout and reduced values
func TestBuild(t *testing.T) {
	reg := descriptor.NewRegistry()
	v, err := Build(context.Background(), sampleInput(), Options{
		Metrics:  []metric.Metric{metric.TPR, metric.PR},
		Reducers: []reduce.Reducer{reduce.Max, reduce.Std},
		Registry: reg,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, "[report] report", v.Descriptor().String())

	// Man: predictions 1,0,0 labels 1,0,1 -> tpr 1/2, pr 1/3
	// Woman: predictions 1,1,1 labels 0,1,1 -> tpr 2/2, pr 1
	maxTPR, err := v.Path("max", "tpr")
	require.NoError(t, err)
	x, err := maxTPR.Float()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x, 1e-12)

	stdPR, err := v.Path("std", "pr")
	require.NoError(t, err)
	n, ok := stdPR.Number()
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, n.Value, 1e-12)
	assert.True(t, n.HasTarget)

	woman, err := v.Path("max", "tpr", "Woman")
	require.NoError(t, err)
	x, err = woman.Float()
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, x, 1e-12)

	// pulling a group to the top regroups every reduction under it
	man, err := v.Get("Man")
	require.NoError(t, err)
	assert.Len(t, man.Deps(), 2)
	tp, err := man.Path("max", "tpr", "true_positives")
	require.NoError(t, err)
	x, _ = tp.Float()
	assert.Equal(t, 1.0, x)

	assert.Len(t, v.Keys(descriptor.RoleBranch), 2)
}

// Serial and parallel builds produce identical trees
func TestBuildModesAgree(t *testing.T) {
	reg := descriptor.NewRegistry()
	serial, err := Build(fork.WithMode(context.Background(), fork.ModeSerial, 0), sampleInput(), Options{Registry: reg})
	require.NoError(t, err)
	parallel, err := Build(fork.WithMode(context.Background(), fork.ModeParallel, 3), sampleInput(), Options{Registry: reg})
	require.NoError(t, err)

	if diff := cmp.Diff(serial.Serialize(3, true), parallel.Serialize(3, true)); diff != "" {
		t.Fatalf("serial and parallel reports differ (-serial +parallel):\n%s", diff)
	}
}

// Undefined reductions are left out
func TestBuildSkipsUndefined(t *testing.T) {
	reg := descriptor.NewRegistry()
	in := sampleInput()
	in.Predictions = backend.New([]float64{0, 0, 0, 0, 0, 0})
	v, err := Build(context.Background(), in, Options{
		Metrics:  []metric.Metric{metric.PR, metric.Accuracy},
		Reducers: []reduce.Reducer{reduce.Gini},
		Registry: reg,
	})
	require.NoError(t, err)
	gini, err := v.Get("gini")
	require.NoError(t, err)
	require.Len(t, gini.Deps(), 1)
	assert.Equal(t, "accuracy", gini.Deps()[0].Descriptor().Name)
}

type countingEvaluator struct {
	calls atomic.Int32
	fail  string
}

func (c *countingEvaluator) Evaluate(ctx context.Context, m metric.Metric, in metric.Input) (metric.Result, error) {
	c.calls.Add(1)
	if m.Name == c.fail {
		return metric.Result{}, errors.New("worker unavailable")
	}
	return metric.Local{}.Evaluate(ctx, m, in)
}

// Every metric runs once per group through the evaluator
func TestBuildUsesEvaluator(t *testing.T) {
	ev := &countingEvaluator{}
	_, err := Build(fork.WithMode(context.Background(), fork.ModeParallel, 0), sampleInput(), Options{
		Metrics:   []metric.Metric{metric.TPR, metric.TNR, metric.Accuracy},
		Evaluator: ev,
		Registry:  descriptor.NewRegistry(),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(6), ev.calls.Load())

	ev = &countingEvaluator{fail: "tnr"}
	_, err = Build(fork.WithMode(context.Background(), fork.ModeParallel, 0), sampleInput(), Options{
		Metrics:   []metric.Metric{metric.TPR, metric.TNR},
		Evaluator: ev,
		Registry:  descriptor.NewRegistry(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report tnr")
	var be *fork.BroadcastError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"Man", "Woman"}, be.Labels())
}

// A report needs at least one group
func TestBuildNoGroups(t *testing.T) {
	_, err := Build(context.Background(), Input{Predictions: backend.Ones(1)}, Options{})
	assert.ErrorIs(t, err, ErrNoGroups)
}

// A budget over an all-zero metric is left out and the report still encodes
func TestBuildBudgetOfZero(t *testing.T) {
	in := sampleInput()
	in.Predictions = backend.New([]float64{0, 0, 0, 0, 0, 0})
	v, err := Build(context.Background(), in, Options{
		Metrics:  []metric.Metric{metric.TPR},
		Reducers: []reduce.Reducer{reduce.Budget, reduce.Max},
		Registry: descriptor.NewRegistry(),
	})
	require.NoError(t, err)

	_, err = v.Get("budget")
	assert.ErrorIs(t, err, tree.ErrUnknownKey)
	maxTPR, err := v.Path("max", "tpr")
	require.NoError(t, err)
	x, err := maxTPR.Float()
	require.NoError(t, err)
	assert.Equal(t, 0.0, x)

	_, err = json.Marshal(v.Serialize(10, true))
	require.NoError(t, err)
}

// The positives metric keeps its role next to the positives count of pr
func TestBuildPositivesMetricAndCount(t *testing.T) {
	v, err := Build(context.Background(), sampleInput(), Options{
		Metrics:  []metric.Metric{metric.PR, metric.Positives},
		Reducers: []reduce.Reducer{reduce.Max},
		Registry: descriptor.NewRegistry(),
	})
	require.NoError(t, err)

	maxNode, err := v.Get("max")
	require.NoError(t, err)
	var roots []string
	for _, dep := range maxNode.Deps() {
		roots = append(roots, dep.Descriptor().String())
	}
	assert.Equal(t, []string{"[metric] pr", "[metric] positives"}, roots)

	var metrics []string
	for _, d := range v.Keys(descriptor.RoleMetric) {
		metrics = append(metrics, d.Name)
	}
	assert.Equal(t, []string{"pr", "positives"}, metrics)

	pr := maxNode.Deps()[0]
	count, err := pr.Deps()[0].Get("positives")
	require.NoError(t, err)
	assert.Equal(t, descriptor.RoleCount, count.Descriptor().Role)
}

// A group literally named "unknown" is an ordinary branch
func TestBuildUnknownGroup(t *testing.T) {
	in := sampleInput()
	in.Sensitive = fork.Categories([]string{"unknown", "White", "unknown", "White", "unknown", "White"})
	reg := descriptor.NewRegistry()
	v, err := Build(context.Background(), in, Options{
		Metrics:  []metric.Metric{metric.PR},
		Reducers: []reduce.Reducer{reduce.Max},
		Registry: reg,
	})
	require.NoError(t, err)

	var branches []string
	for _, d := range v.Keys(descriptor.RoleBranch) {
		branches = append(branches, d.String())
	}
	assert.Equal(t, []string{"[branch] unknown", "[branch] White"}, branches)

	back, err := tree.FromNode(descriptor.NewRegistry(), v.Serialize(10, true))
	require.NoError(t, err)
	group, err := back.Path("max", "pr", "unknown")
	require.NoError(t, err)
	assert.Equal(t, descriptor.RoleBranch, group.Descriptor().Role)
	assert.NotEqual(t, descriptor.Missing, group.ID())
}
