package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/fairaudit/internal/dataset"
	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/reduce"
	"github.com/danielpatrickdp/fairaudit/internal/report"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// DefaultTolerance applies when an expectation does not set one.
const DefaultTolerance = 1e-6

// Replay outcomes.
const (
	ActionMatch    = "match"
	ActionMismatch = "mismatch"
	ActionError    = "error"
)

// #region types
// Expectation pins the value at a key path of the report, or its absence.
type Expectation struct {
	Path      []string
	Value     *float64
	Tolerance float64
	Missing   bool
}

// Case is one recorded audit.
type Case struct {
	Name         string
	Input        report.Input
	Expected     []Expectation
	ExpectedGate string // "" skips the gate comparison
}

// ReplayConfig selects what every case computes and how.
type ReplayConfig struct {
	Metrics       []metric.Metric
	Reducers      []reduce.Reducer
	Mode          fork.Mode
	Workers       int
	Grouping      dataset.Grouping
	MaxPrediction float64
	GateConfig    *gate.GateConfig // nil disables the gate

	Evaluator metric.Evaluator // nil evaluates locally
	Logger    *zap.Logger
}

// DefaultReplayConfig evaluates the default metrics serially.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{Mode: fork.ModeSerial, Grouping: dataset.GroupCategories}
}

// Mismatch is one expectation that did not hold.
type Mismatch struct {
	Path   string
	Reason string
}

// ReplayResult captures the outcome of replaying one case.
type ReplayResult struct {
	Name       string
	Action     string // "match" | "mismatch" | "error"
	Reason     string
	Report     *tree.Value
	Gate       *gate.GateDecision
	Mismatches []Mismatch
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCases int
	Matches    int
	Mismatches int
	Errors     int
}

// #endregion types

// #region replay
// Replay builds the report for every case and checks its expectations. Each
// case gets a fresh descriptor registry so cases cannot leak details into one
// another.
func Replay(ctx context.Context, cases []Case, config ReplayConfig) []ReplayResult {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "replay"))
	ctx = fork.WithMode(ctx, config.Mode, config.Workers)

	var gateInst *gate.Gate
	if config.GateConfig != nil {
		gateInst = gate.NewGate(*config.GateConfig)
	}

	results := make([]ReplayResult, 0, len(cases))
	for _, c := range cases {
		v, err := report.Build(ctx, c.Input, report.Options{
			Metrics:   config.Metrics,
			Reducers:  config.Reducers,
			Evaluator: config.Evaluator,
			Registry:  descriptor.NewRegistry(),
			Logger:    log,
		})
		if err != nil {
			results = append(results, ReplayResult{Name: c.Name, Action: ActionError, Reason: err.Error()})
			log.Warn("case failed", zap.String("case", c.Name), zap.Error(err))
			continue
		}

		res := ReplayResult{Name: c.Name, Report: v}
		for _, e := range c.Expected {
			if m, ok := check(v, e); !ok {
				res.Mismatches = append(res.Mismatches, m)
			}
		}

		if gateInst != nil {
			d := gateInst.Evaluate(v)
			res.Gate = &d
			if c.ExpectedGate != "" && c.ExpectedGate != d.Action {
				res.Mismatches = append(res.Mismatches, Mismatch{
					Path:   "gate",
					Reason: fmt.Sprintf("expected %s, got %s (%s)", c.ExpectedGate, d.Action, d.Reason),
				})
			}
		}

		if len(res.Mismatches) > 0 {
			res.Action = ActionMismatch
			res.Reason = fmt.Sprintf("%s: %s", res.Mismatches[0].Path, res.Mismatches[0].Reason)
			if len(res.Mismatches) > 1 {
				res.Reason = fmt.Sprintf("%d mismatches: %s", len(res.Mismatches), res.Reason)
			}
		} else {
			res.Action = ActionMatch
			res.Reason = fmt.Sprintf("%d expectations held", len(c.Expected))
		}
		log.Debug("case replayed", zap.String("case", c.Name), zap.String("action", res.Action))
		results = append(results, res)
	}
	return results
}

func check(v *tree.Value, e Expectation) (Mismatch, bool) {
	path := strings.Join(e.Path, "/")
	got, err := v.Path(e.Path...)
	if e.Missing {
		if errors.Is(err, tree.ErrUnknownKey) {
			return Mismatch{}, true
		}
		return Mismatch{Path: path, Reason: "expected no value"}, false
	}
	if err != nil {
		return Mismatch{Path: path, Reason: err.Error()}, false
	}
	if e.Value == nil {
		return Mismatch{}, true
	}
	x, err := got.Float()
	if err != nil {
		return Mismatch{Path: path, Reason: err.Error()}, false
	}
	tol := e.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	if math.Abs(x-*e.Value) > tol {
		return Mismatch{Path: path, Reason: fmt.Sprintf("expected %.6f, got %.6f", *e.Value, x)}, false
	}
	return Mismatch{}, true
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalCases: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionMatch:
			s.Matches++
		case ActionMismatch:
			s.Mismatches++
		case ActionError:
			s.Errors++
		}
	}
	return s
}

// #endregion replay
