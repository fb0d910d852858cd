package metric

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
)

var ErrMissingInput = errors.New("metric: missing input")

// #region input
// Input is one evaluation of a classification metric. Sensitive is a
// membership mask for the group being evaluated; nil means everyone.
// MaxPrediction is the value of a positive prediction; 0 means 1.
type Input struct {
	Predictions   backend.Tensor
	Labels        backend.Tensor
	Sensitive     backend.Tensor
	MaxPrediction float64
}
// #endregion input

// #region result
// Field is a named auxiliary count explaining a metric value.
type Field struct {
	Name  string
	Value float64
}

// Result is a metric value with the counts it was computed from.
type Result struct {
	Value  float64
	Fields []Field
}

// Field looks up one auxiliary count.
func (r Result) Field(name string) (float64, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}
// #endregion result

// #region evaluator
// Evaluator computes a metric for one group. Local evaluates in process; the
// worker package provides a remote implementation.
type Evaluator interface {
	Evaluate(ctx context.Context, m Metric, in Input) (Result, error)
}

// Local evaluates metrics in the calling goroutine.
type Local struct{}

func (Local) Evaluate(_ context.Context, m Metric, in Input) (Result, error) {
	return m.Compute(in)
}
// #endregion evaluator
