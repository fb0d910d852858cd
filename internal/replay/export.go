package replay

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/fairaudit/internal/dataset"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// #region export
// Expectations pins every numeric node of v whose key path has at most
// depth keys. Non-finite values are skipped since they cannot round-trip
// through JSON.
func Expectations(v *tree.Value, depth int) []FixtureExpected {
	var out []FixtureExpected
	var walk func(n *tree.Value, path []string)
	walk = func(n *tree.Value, path []string) {
		if len(path) >= depth {
			return
		}
		for _, dep := range n.Deps() {
			p := append(append([]string(nil), path...), dep.Descriptor().Alias)
			if num, ok := dep.Number(); ok && !math.IsNaN(num.Value) && !math.IsInf(num.Value, 0) {
				x := num.Value
				out = append(out, FixtureExpected{Path: p, Value: &x})
			}
			walk(dep, p)
		}
	}
	walk(v, nil)
	return out
}

// CaseFromData records a loaded table as a fixture case without
// expectations.
func CaseFromData(name string, d dataset.Data) FixtureCase {
	fc := FixtureCase{Name: name, Predictions: d.Predictions.Float64s()}
	if d.Labels != nil {
		fc.Labels = d.Labels.Float64s()
	}
	for _, a := range d.Attributes {
		fc.Sensitive = append(fc.Sensitive, FixtureAttribute{Name: a.Name, Values: a.Values})
	}
	return fc
}

// GateFixture converts a gate config to its fixture form.
func GateFixture(gc gate.GateConfig) *FixtureGateConfig {
	out := &FixtureGateConfig{}
	for _, th := range gc.Thresholds {
		out.Thresholds = append(out.Thresholds, FixtureThreshold{
			Reducer: th.Reducer,
			Metric:  th.Metric,
			Min:     th.Min,
			Max:     th.Max,
		})
	}
	return out
}

// Record replays fc under cfg and fills in its expectations from the
// resulting report, including the gate outcome when cfg has a gate.
func Record(ctx context.Context, fc FixtureCase, cfg ReplayConfig, depth int) (FixtureCase, error) {
	c, err := fc.ToCase(cfg)
	if err != nil {
		return FixtureCase{}, err
	}
	results := Replay(ctx, []Case{c}, cfg)
	res := results[0]
	if res.Action == ActionError {
		return FixtureCase{}, fmt.Errorf("case %s: %s", fc.Name, res.Reason)
	}
	fc.Expected = Expectations(res.Report, depth)
	if res.Gate != nil {
		fc.ExpectedGate = res.Gate.Action
	}
	return fc, nil
}
// #endregion export
