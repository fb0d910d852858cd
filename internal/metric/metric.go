package metric

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// #region metric
// Metric is a named group-level classification measure.
type Metric struct {
	Name        string
	Details     string
	NeedsLabels bool
	// Bounded metrics fail with fork.ErrOutOfRange outside [0, 1].
	Bounded bool
	compute func(in Input) Result
}

// Descriptor is the metric's tree descriptor.
func (m Metric) Descriptor() descriptor.Descriptor {
	return descriptor.New(m.Name, descriptor.RoleMetric, descriptor.WithDetails(m.Details))
}

// Compute validates in and evaluates the metric.
func (m Metric) Compute(in Input) (Result, error) {
	in, err := m.normalize(in)
	if err != nil {
		return Result{}, err
	}
	r := m.compute(in)
	if m.Bounded && (math.IsNaN(r.Value) || r.Value < 0 || r.Value > 1) {
		return Result{}, fmt.Errorf("%s: %w: %g", m.Name, fork.ErrOutOfRange, r.Value)
	}
	return r, nil
}

// Evaluate computes the metric and returns it as a tree node explained by
// its counts.
func (m Metric) Evaluate(reg *descriptor.Registry, in Input) (*tree.Value, error) {
	r, err := m.Compute(in)
	if err != nil {
		return nil, err
	}
	return m.Tree(reg, r), nil
}

// Tree turns a result of m into a numeric node with one count child per field.
// Counts are named "<field> count" and aliased to the field, so a count never
// claims the name of a metric (positives is both).
func (m Metric) Tree(reg *descriptor.Registry, r Result) *tree.Value {
	counts := make([]*tree.Value, len(r.Fields))
	for i, f := range r.Fields {
		id := reg.Intern(descriptor.New(f.Name+" count", descriptor.RoleCount,
			descriptor.WithAlias(f.Name), descriptor.WithDetails(countDetails[f.Name])))
		counts[i] = tree.Leaf(reg, id, f.Value)
	}
	return tree.Leaf(reg, reg.Intern(m.Descriptor()), r.Value, counts...)
}

// Fn exposes the metric to dynamic composition: arguments "predictions",
// "labels", "sensitive" and "max_prediction", any of which may be forked.
func (m Metric) Fn() fork.Fn {
	raw := func(_ context.Context, args fork.Args) (fork.Payload, error) {
		in := Input{}
		var ok bool
		if p, has := args["predictions"]; has {
			if in.Predictions, ok = p.AsTensor(); !ok {
				return fork.Payload{}, fmt.Errorf("%s predictions: %w", m.Name, fork.ErrKind)
			}
		}
		if p, has := args["labels"]; has {
			if in.Labels, ok = p.AsTensor(); !ok {
				return fork.Payload{}, fmt.Errorf("%s labels: %w", m.Name, fork.ErrKind)
			}
		}
		if p, has := args["sensitive"]; has {
			if in.Sensitive, ok = p.AsTensor(); !ok {
				return fork.Payload{}, fmt.Errorf("%s sensitive: %w", m.Name, fork.ErrKind)
			}
		}
		if p, has := args["max_prediction"]; has {
			if in.MaxPrediction, ok = p.Float(); !ok {
				return fork.Payload{}, fmt.Errorf("%s max_prediction: %w", m.Name, fork.ErrKind)
			}
		}
		in, err := m.normalize(in)
		if err != nil {
			return fork.Payload{}, err
		}
		return fork.Scalar(m.compute(in).Value), nil
	}
	fn := fork.Fn(raw)
	if m.Bounded {
		fn = fork.UnitBounded(fn)
	}
	return fork.WithRole(descriptor.RoleMetric, fork.Broadcast(fn))
}

func (m Metric) normalize(in Input) (Input, error) {
	if in.Predictions == nil {
		return in, fmt.Errorf("%s: %w: predictions", m.Name, ErrMissingInput)
	}
	if m.NeedsLabels && in.Labels == nil {
		return in, fmt.Errorf("%s: %w: labels", m.Name, ErrMissingInput)
	}
	if in.Sensitive == nil {
		in.Sensitive = in.Predictions.OnesLike()
	}
	if in.MaxPrediction == 0 {
		in.MaxPrediction = 1
	}
	labels := in.Labels
	if !m.NeedsLabels {
		labels = nil
	}
	if _, err := backend.SameLength(in.Predictions, labels, in.Sensitive); err != nil {
		return in, fmt.Errorf("%s: %w", m.Name, err)
	}
	return in, nil
}
// #endregion metric
