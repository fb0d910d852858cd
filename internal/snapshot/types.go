package snapshot

import "time"

// #region record
// Record is one archived report. ParentID links to the previous snapshot of
// the same audit name, so each audit keeps a lineage.
type Record struct {
	SnapshotID string
	ParentID   string
	Name       string
	ReportJSON string
	Mode       string
	Groups     int
	CreatedAt  time.Time
}
// #endregion record

// #region record-with-provenance
// RecordWithProvenance pairs a snapshot with the decision logged for it.
type RecordWithProvenance struct {
	Record
	Decision string
	Reason   string
	GateJSON string
}
// #endregion record-with-provenance
