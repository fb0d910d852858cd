package replay

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/dataset"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/reduce"
	"github.com/danielpatrickdp/fairaudit/internal/report"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Config      FixtureConfig `json:"config"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureConfig selects what every case computes.
type FixtureConfig struct {
	Metrics       []string           `json:"metrics"`
	Reducers      []string           `json:"reducers"`
	Mode          string             `json:"mode"`
	Workers       int                `json:"workers"`
	Grouping      string             `json:"grouping"`
	MaxPrediction float64            `json:"max_prediction"`
	Gate          *FixtureGateConfig `json:"gate,omitempty"`
}

// FixtureGateConfig mirrors gate.GateConfig with JSON tags.
type FixtureGateConfig struct {
	Thresholds []FixtureThreshold `json:"thresholds"`
}

// FixtureThreshold mirrors gate.Threshold with JSON tags.
type FixtureThreshold struct {
	Reducer string   `json:"reducer"`
	Metric  string   `json:"metric"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// FixtureAttribute is one sensitive column.
type FixtureAttribute struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// FixtureCase is one recorded audit input and what it must produce.
type FixtureCase struct {
	Name         string             `json:"name"`
	Predictions  []float64          `json:"predictions"`
	Labels       []float64          `json:"labels,omitempty"`
	Sensitive    []FixtureAttribute `json:"sensitive"`
	Expected     []FixtureExpected  `json:"expected"`
	ExpectedGate string             `json:"expected_gate,omitempty"`
}

// FixtureExpected pins the value found at a key path of the report.
type FixtureExpected struct {
	Path      []string `json:"path"`
	Value     *float64 `json:"value,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty"`
	Missing   bool     `json:"missing,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToReplayConfig resolves metric and reducer names. Empty lists keep the
// report defaults.
func (fc *FixtureConfig) ToReplayConfig() (ReplayConfig, error) {
	cfg := DefaultReplayConfig()

	for _, name := range fc.Metrics {
		m, ok := metric.Lookup(name)
		if !ok {
			return ReplayConfig{}, fmt.Errorf("unknown metric %q", name)
		}
		cfg.Metrics = append(cfg.Metrics, m)
	}
	for _, name := range fc.Reducers {
		r, ok := reduce.Lookup(name)
		if !ok {
			return ReplayConfig{}, fmt.Errorf("unknown reducer %q", name)
		}
		cfg.Reducers = append(cfg.Reducers, r)
	}

	mode, err := fork.ParseMode(fc.Mode)
	if err != nil {
		return ReplayConfig{}, err
	}
	cfg.Mode = mode
	cfg.Workers = fc.Workers

	grouping, err := dataset.ParseGrouping(fc.Grouping)
	if err != nil {
		return ReplayConfig{}, err
	}
	cfg.Grouping = grouping
	cfg.MaxPrediction = fc.MaxPrediction

	if fc.Gate != nil {
		gc := gate.GateConfig{}
		for _, th := range fc.Gate.Thresholds {
			gc.Thresholds = append(gc.Thresholds, gate.Threshold{
				Reducer: th.Reducer,
				Metric:  th.Metric,
				Min:     th.Min,
				Max:     th.Max,
			})
		}
		cfg.GateConfig = &gc
	}
	return cfg, nil
}

// ToCase builds the in-memory audit for a fixture case.
func (fc *FixtureCase) ToCase(cfg ReplayConfig) (Case, error) {
	attrs := make([]dataset.Attribute, len(fc.Sensitive))
	for i, a := range fc.Sensitive {
		attrs[i] = dataset.Attribute{Name: a.Name, Values: a.Values}
	}
	groups, err := dataset.Groups(attrs, cfg.Grouping)
	if err != nil {
		return Case{}, fmt.Errorf("case %s: %w", fc.Name, err)
	}

	c := Case{
		Name: fc.Name,
		Input: report.Input{
			Predictions:   backend.New(fc.Predictions),
			Sensitive:     groups,
			MaxPrediction: cfg.MaxPrediction,
		},
		ExpectedGate: fc.ExpectedGate,
	}
	if fc.Labels != nil {
		c.Input.Labels = backend.New(fc.Labels)
	}
	for _, e := range fc.Expected {
		c.Expected = append(c.Expected, Expectation{
			Path:      e.Path,
			Value:     e.Value,
			Tolerance: e.Tolerance,
			Missing:   e.Missing,
		})
	}
	return c, nil
}

// BuildCases converts every case of the fixture.
func (f *Fixture) BuildCases(cfg ReplayConfig) ([]Case, error) {
	cases := make([]Case, 0, len(f.Cases))
	for i := range f.Cases {
		c, err := f.Cases[i].ToCase(cfg)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// #endregion fixture-loader
