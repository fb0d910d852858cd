package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx, so a decision can be logged
// inside the transaction that archives its snapshot.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// #region log-decision
// LogDecision appends a row to provenance_log. A zero CreatedAt is stamped
// with the current UTC time.
func LogDecision(db Execer, entry ProvenanceEntry) error {
	if entry.SnapshotID == "" || entry.Decision == "" {
		return fmt.Errorf("log decision: snapshot id and decision are required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (snapshot_id, config_hash, trigger_type, gate_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SnapshotID,
		nullIfEmpty(entry.ConfigHash),
		entry.TriggerType,
		nullIfEmpty(entry.GateJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision for %s: %w", entry.SnapshotID, err)
	}
	return nil
}
// #endregion log-decision

// #region history
// History returns every decision logged for a snapshot, oldest first.
func History(db *sql.DB, snapshotID string) ([]ProvenanceEntry, error) {
	rows, err := db.Query(
		`SELECT snapshot_id, config_hash, trigger_type, gate_json, decision, reason, created_at
		 FROM provenance_log WHERE snapshot_id = ? ORDER BY id ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", snapshotID, err)
	}
	defer rows.Close()

	var out []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var hash, gate, reason sql.NullString
		var created string
		if err := rows.Scan(&e.SnapshotID, &hash, &e.TriggerType, &gate, &e.Decision, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.ConfigHash, e.GateJSON, e.Reason = hash.String, gate.String, reason.String
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion history

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
