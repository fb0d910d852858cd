package gate

// #region violation-type
// ViolationType enumerates the ways a threshold can fail.
type ViolationType string

const (
	ViolationAbove   ViolationType = "above_max"
	ViolationBelow   ViolationType = "below_min"
	ViolationMissing ViolationType = "missing"
)

// #endregion violation-type

// #region violation
// Violation is a failed threshold check.
type Violation struct {
	Type    ViolationType
	Reducer string
	Metric  string
	Reason  string
}

// #endregion violation

// #region gate-config
// Threshold bounds one reduced value. Metric "*" matches every metric under
// the reducer; a nil bound is not checked.
type Threshold struct {
	Reducer string   `yaml:"reducer"`
	Metric  string   `yaml:"metric"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
}

// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	Thresholds []Threshold `yaml:"thresholds"`
}

// DefaultGateConfig bounds the spread of every metric across groups.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Thresholds: []Threshold{
			{Reducer: "std", Metric: "*", Max: Bound(0.1)},
			{Reducer: "gini", Metric: "*", Max: Bound(0.1)},
		},
	}
}

// Bound returns a pointer for use in Threshold literals.
func Bound(x float64) *float64 { return &x }

// #endregion gate-config

// #region gate-decision
// Check is one reduced value compared against a threshold.
type Check struct {
	Reducer string
	Metric  string
	Value   float64
	Pass    bool
}

// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action     string // "pass" | "fail"
	Reason     string
	Violations []Violation
	Checks     []Check
}

// Passed reports whether every check held.
func (d GateDecision) Passed() bool { return d.Action == ActionPass }

const (
	ActionPass = "pass"
	ActionFail = "fail"
)

// #endregion gate-decision
