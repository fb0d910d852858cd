package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	SnapshotID  string
	ConfigHash  string
	TriggerType string // "cli" | "replay" | "worker"
	GateJSON    string
	Decision    string // "pass" | "fail" | "archived"
	Reason      string
	CreatedAt   time.Time
}
// #endregion provenance-entry

// #region gate-record
// GateRecord captures the gate inputs and outcome for one audit.
// Serialized as JSON into provenance_log.gate_json so a decision can be
// re-derived from the archive.
type GateRecord struct {
	Name   string `json:"name"`
	Mode   string `json:"mode"`
	Groups int    `json:"groups"`

	// Thresholds active at decision time
	Thresholds []GateRecordThreshold `json:"thresholds"`

	// Every value the gate compared
	Checks []GateRecordCheck `json:"checks"`

	Action string `json:"action"`
	Reason string `json:"reason"`
}

// GateRecordThreshold is one configured limit.
type GateRecordThreshold struct {
	Reducer string   `json:"reducer"`
	Metric  string   `json:"metric"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// GateRecordCheck is one reduced value compared against a limit.
type GateRecordCheck struct {
	Reducer string  `json:"reducer"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Pass    bool    `json:"pass"`
}
// #endregion gate-record
