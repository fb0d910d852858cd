package replay

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/reduce"
	"github.com/danielpatrickdp/fairaudit/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers
func value(x float64) *float64 { return &x }

func makeCase(name string, expected ...Expectation) Case {
	return Case{
		Name: name,
		Input: report.Input{
			Predictions: backend.New([]float64{1, 1, 0, 1, 0, 1}),
			Labels:      backend.New([]float64{1, 0, 0, 1, 1, 1}),
			Sensitive:   fork.Categories([]string{"Man", "Woman", "Man", "Woman", "Man", "Woman"}),
		},
		Expected: expected,
	}
}

func testConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	cfg.Metrics = []metric.Metric{metric.TPR}
	cfg.Reducers = []reduce.Reducer{reduce.Max, reduce.Std}
	return cfg
}

// #endregion helpers

func TestReplay_Match(t *testing.T) {
	cfg := testConfig()
	cfg.Logger = zaptest.NewLogger(t)
	results := Replay(context.Background(), []Case{
		makeCase("ok", Expectation{Path: []string{"max", "tpr"}, Value: value(1)}),
	}, cfg)

	if results[0].Action != ActionMatch {
		t.Fatalf("expected match, got %s: %s", results[0].Action, results[0].Reason)
	}
	if results[0].Report == nil {
		t.Fatal("expected report")
	}
}

func TestReplay_Mismatch(t *testing.T) {
	results := Replay(context.Background(), []Case{
		makeCase("off",
			Expectation{Path: []string{"max", "tpr"}, Value: value(0.9)},
			Expectation{Path: []string{"min", "tpr"}, Value: value(0.5)},
			Expectation{Path: []string{"std", "tpr"}, Missing: true},
		),
	}, testConfig())

	r := results[0]
	if r.Action != ActionMismatch {
		t.Fatalf("expected mismatch, got %s", r.Action)
	}
	if len(r.Mismatches) != 3 {
		t.Fatalf("expected 3 mismatches, got %d: %+v", len(r.Mismatches), r.Mismatches)
	}
	if r.Mismatches[0].Path != "max/tpr" {
		t.Fatalf("expected max/tpr first, got %s", r.Mismatches[0].Path)
	}
}

func TestReplay_ToleranceApplies(t *testing.T) {
	results := Replay(context.Background(), []Case{
		makeCase("close", Expectation{Path: []string{"max", "tpr"}, Value: value(0.99), Tolerance: 0.05}),
	}, testConfig())

	if results[0].Action != ActionMatch {
		t.Fatalf("expected match within tolerance, got %s: %s", results[0].Action, results[0].Reason)
	}
}

func TestReplay_Error(t *testing.T) {
	bad := makeCase("short")
	bad.Input.Labels = backend.New([]float64{1, 0})
	results := Replay(context.Background(), []Case{bad, makeCase("fine")}, testConfig())

	if results[0].Action != ActionError {
		t.Fatalf("expected error, got %s", results[0].Action)
	}
	if results[1].Action != ActionMatch {
		t.Fatalf("a failing case must not stop the run, got %s", results[1].Action)
	}
}

func TestReplay_GateExpectation(t *testing.T) {
	cfg := testConfig()
	gc := gate.DefaultGateConfig()
	cfg.GateConfig = &gc

	c := makeCase("gated")
	c.ExpectedGate = gate.ActionPass
	results := Replay(context.Background(), []Case{c}, cfg)

	// std of tpr is 0.25, above the default 0.1
	r := results[0]
	if r.Gate == nil || r.Gate.Action != gate.ActionFail {
		t.Fatalf("expected failing gate, got %+v", r.Gate)
	}
	if r.Action != ActionMismatch || r.Mismatches[0].Path != "gate" {
		t.Fatalf("expected gate mismatch, got %s %+v", r.Action, r.Mismatches)
	}
}

func TestReplay_Summarize(t *testing.T) {
	results := []ReplayResult{
		{Action: ActionMatch},
		{Action: ActionMatch},
		{Action: ActionMismatch},
		{Action: ActionError},
	}
	s := Summarize(results)
	want := ReplaySummary{TotalCases: 4, Matches: 2, Mismatches: 1, Errors: 1}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

// TestReplay_Deterministic checks that serial and parallel runs serialize to
// the same report.
func TestReplay_Deterministic(t *testing.T) {
	cases := []Case{makeCase("a"), makeCase("b")}

	serial := Replay(context.Background(), cases, testConfig())
	cfg := testConfig()
	cfg.Mode = fork.ModeParallel
	cfg.Workers = 4
	parallel := Replay(context.Background(), cases, cfg)

	for i := range cases {
		want := serial[i].Report.Serialize(10, true)
		got := parallel[i].Report.Serialize(10, true)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("case %s differs (-serial +parallel):\n%s", cases[i].Name, diff)
		}
	}
}
