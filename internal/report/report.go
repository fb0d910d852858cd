package report

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/reduce"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// #region types
// Input is a complete audit: model outputs and the groups to compare.
type Input struct {
	Predictions   backend.Tensor
	Labels        backend.Tensor
	Sensitive     *fork.Fork[backend.Tensor]
	MaxPrediction float64
}

// Options selects what a report contains and how it is computed.
type Options struct {
	Metrics   []metric.Metric
	Reducers  []reduce.Reducer
	Evaluator metric.Evaluator
	Registry  *descriptor.Registry
	Logger    *zap.Logger
}

// DefaultReducers are used when Options.Reducers is empty.
var DefaultReducers = []reduce.Reducer{reduce.Min, reduce.Max, reduce.Std, reduce.Gini}

var ErrNoGroups = errors.New("report: no sensitive groups")

func (o Options) withDefaults() Options {
	if len(o.Metrics) == 0 {
		o.Metrics = metric.Defaults
	}
	if len(o.Reducers) == 0 {
		o.Reducers = DefaultReducers
	}
	if o.Evaluator == nil {
		o.Evaluator = metric.Local{}
	}
	if o.Registry == nil {
		o.Registry = descriptor.Default
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
// #endregion types

// #region build
// Build evaluates every metric on every group and reduces each metric across
// groups. The tree reads report -> reduction -> metric -> group -> counts, and
// any key can be pulled to the top with Get.
//
// A reduction that is undefined for a metric (for example gini over all-zero
// values) is left out of the tree rather than failing the report.
func Build(ctx context.Context, in Input, opts Options) (*tree.Value, error) {
	opts = opts.withDefaults()
	reg := opts.Registry
	if in.Sensitive == nil || in.Sensitive.Len() == 0 {
		return nil, ErrNoGroups
	}
	log := opts.Logger.With(zap.String("component", "report"))

	branchIDs := make(map[string]descriptor.ID, in.Sensitive.Len())
	for _, label := range in.Sensitive.Labels() {
		branchIDs[label] = reg.Intern(descriptor.New(label, descriptor.RoleBranch,
			descriptor.WithDetails("the "+label+" group")))
	}

	perMetric := make([]*tree.Value, 0, len(opts.Metrics))
	for _, m := range opts.Metrics {
		groups, err := fork.Map(ctx, in.Sensitive, func(ctx context.Context, label string, mask backend.Tensor) (*tree.Value, error) {
			r, err := opts.Evaluator.Evaluate(ctx, m, metric.Input{
				Predictions:   in.Predictions,
				Labels:        in.Labels,
				Sensitive:     mask,
				MaxPrediction: in.MaxPrediction,
			})
			if err != nil {
				return nil, err
			}
			return m.Tree(reg, r).Rebase(branchIDs[label]), nil
		})
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", m.Name, err)
		}
		perMetric = append(perMetric, tree.Branch(reg, reg.Intern(m.Descriptor()), groups.Values()...))
		log.Debug("metric evaluated",
			zap.String("metric", m.Name),
			zap.Int("groups", groups.Len()),
			zap.String("mode", string(fork.ExecutorFrom(ctx).Mode())))
	}

	reductions := make([]*tree.Value, 0, len(opts.Reducers))
	for _, r := range opts.Reducers {
		reduced := make([]*tree.Value, 0, len(perMetric))
		for _, v := range perMetric {
			out, err := r.Reduce(v)
			if errors.Is(err, reduce.ErrUndefined) {
				log.Debug("reduction undefined",
					zap.String("reducer", r.Name),
					zap.String("metric", v.Descriptor().Name))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("report %s: %w", r.Name, err)
			}
			reduced = append(reduced, out)
		}
		reductions = append(reductions, tree.Branch(reg, reg.Intern(r.Descriptor()), reduced...))
	}

	root := reg.Intern(descriptor.New("report", descriptor.RoleReport,
		descriptor.WithDetails("a fairness report")))
	return tree.Branch(reg, root, reductions...), nil
}
// #endregion build
