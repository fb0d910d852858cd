package gate

import (
	"fmt"

	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// #region gate
// Gate decides whether a report's disparities are within limits.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Config returns the thresholds the gate checks.
func (g *Gate) Config() GateConfig { return g.config }

// Evaluate checks every threshold against the report's reduction nodes. A
// threshold naming a metric that is absent from the report is a violation;
// a wildcard threshold only checks what is present.
func (g *Gate) Evaluate(report *tree.Value) GateDecision {
	var violations []Violation
	var checks []Check

	for _, th := range g.config.Thresholds {
		reduced := findDep(report, th.Reducer)
		if reduced == nil {
			if th.Metric != "*" {
				violations = append(violations, Violation{
					Type:    ViolationMissing,
					Reducer: th.Reducer,
					Metric:  th.Metric,
					Reason:  fmt.Sprintf("%s of %s not in report", th.Reducer, th.Metric),
				})
			}
			continue
		}

		matched := 0
		for _, node := range reduced.Deps() {
			name := node.Descriptor().Name
			if th.Metric != "*" && th.Metric != name {
				continue
			}
			n, ok := node.Number()
			if !ok {
				continue
			}
			matched++

			pass := true
			if th.Max != nil && n.Value > *th.Max {
				pass = false
				violations = append(violations, Violation{
					Type:    ViolationAbove,
					Reducer: th.Reducer,
					Metric:  name,
					Reason:  fmt.Sprintf("%s of %s %.4f exceeds %.4f", th.Reducer, name, n.Value, *th.Max),
				})
			}
			if th.Min != nil && n.Value < *th.Min {
				pass = false
				violations = append(violations, Violation{
					Type:    ViolationBelow,
					Reducer: th.Reducer,
					Metric:  name,
					Reason:  fmt.Sprintf("%s of %s %.4f below %.4f", th.Reducer, name, n.Value, *th.Min),
				})
			}
			checks = append(checks, Check{Reducer: th.Reducer, Metric: name, Value: n.Value, Pass: pass})
		}

		if matched == 0 && th.Metric != "*" {
			violations = append(violations, Violation{
				Type:    ViolationMissing,
				Reducer: th.Reducer,
				Metric:  th.Metric,
				Reason:  fmt.Sprintf("%s of %s not in report", th.Reducer, th.Metric),
			})
		}
	}

	if len(violations) > 0 {
		reason := fmt.Sprintf("gate failed: %s", violations[0].Reason)
		if len(violations) > 1 {
			reason = fmt.Sprintf("gate failed: %d violations: %s", len(violations), violations[0].Reason)
		}
		return GateDecision{Action: ActionFail, Reason: reason, Violations: violations, Checks: checks}
	}

	return GateDecision{
		Action: ActionPass,
		Reason: fmt.Sprintf("all %d checks passed", len(checks)),
		Checks: checks,
	}
}

// #endregion gate

// #region record
// Record captures the decision for the provenance log.
func (g *Gate) Record(d GateDecision, name, mode string, groups int) logging.GateRecord {
	rec := logging.GateRecord{
		Name:   name,
		Mode:   mode,
		Groups: groups,
		Action: d.Action,
		Reason: d.Reason,
	}
	for _, th := range g.config.Thresholds {
		rec.Thresholds = append(rec.Thresholds, logging.GateRecordThreshold{
			Reducer: th.Reducer,
			Metric:  th.Metric,
			Min:     th.Min,
			Max:     th.Max,
		})
	}
	for _, c := range d.Checks {
		rec.Checks = append(rec.Checks, logging.GateRecordCheck{
			Reducer: c.Reducer,
			Metric:  c.Metric,
			Value:   c.Value,
			Pass:    c.Pass,
		})
	}
	return rec
}

// #endregion record

// #region helpers
// findDep returns the immediate dependency with the given name, without the
// descendant search Get performs.
func findDep(v *tree.Value, name string) *tree.Value {
	for _, dep := range v.Deps() {
		if dep.Descriptor().Name == name {
			return dep
		}
	}
	return nil
}

// #endregion helpers
