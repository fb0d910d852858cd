package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

var (
	ErrNotFound = errors.New("snapshot: not found")
	ErrInvalid  = errors.New("snapshot: invalid report")
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	parent_id     TEXT,
	name          TEXT NOT NULL,
	report_json   TEXT NOT NULL,
	mode          TEXT NOT NULL,
	groups_count  INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES snapshots(snapshot_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id   TEXT NOT NULL,
	config_hash   TEXT,
	trigger_type  TEXT NOT NULL,
	gate_json     TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id)
);

CREATE TABLE IF NOT EXISTS latest_snapshot (
	name          TEXT PRIMARY KEY,
	snapshot_id   TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id)
);
`
// #endregion schema

// #region store-struct
// Store archives serialized reports in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the provenance logger.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region save
// Save validates and archives a serialized report. Empty SnapshotID and
// CreatedAt are filled in; ParentID is the previous snapshot with the same
// name. The returned record is what was stored.
func (s *Store) Save(rec Record) (Record, error) {
	if err := Validate([]byte(rec.ReportJSON)); err != nil {
		return Record{}, err
	}
	if rec.SnapshotID == "" {
		rec.SnapshotID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT snapshot_id FROM latest_snapshot WHERE name = ?`, rec.Name).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get latest: %w", err)
	}
	var parentPtr interface{}
	if parent.Valid {
		rec.ParentID = parent.String
		parentPtr = parent.String
	}

	_, err = tx.Exec(
		`INSERT INTO snapshots (snapshot_id, parent_id, name, report_json, mode, groups_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SnapshotID, parentPtr, rec.Name, rec.ReportJSON, rec.Mode, rec.Groups,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO latest_snapshot (name, snapshot_id) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		rec.Name, rec.SnapshotID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("set latest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
// #endregion save

// #region get
const selectColumns = `snapshot_id, parent_id, name, report_json, mode, groups_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var parentID sql.NullString
	var createdStr string
	if err := row.Scan(&rec.SnapshotID, &parentID, &rec.Name, &rec.ReportJSON, &rec.Mode, &rec.Groups, &createdStr); err != nil {
		return Record{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// Get retrieves a snapshot by ID.
func (s *Store) Get(id string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(`SELECT `+selectColumns+` FROM snapshots WHERE snapshot_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return rec, nil
}

// Latest retrieves the most recent snapshot saved under name.
func (s *Store) Latest(name string) (Record, error) {
	var id string
	err := s.db.QueryRow(`SELECT snapshot_id FROM latest_snapshot WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("latest %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("latest %q: %w", name, err)
	}
	return s.Get(id)
}
// #endregion get

// #region list
// List returns the most recent snapshots, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM snapshots ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const provenanceQuery = `SELECT s.snapshot_id, s.parent_id, s.name, s.report_json, s.mode, s.groups_count, s.created_at,
	        COALESCE(p.decision, ''), COALESCE(p.reason, ''), COALESCE(p.gate_json, '')
	 FROM snapshots s
	 LEFT JOIN provenance_log p ON p.id = (
		SELECT MAX(id) FROM provenance_log WHERE snapshot_id = s.snapshot_id
	 )`

func scanWithProvenance(row scanner) (RecordWithProvenance, error) {
	var r RecordWithProvenance
	var parentID sql.NullString
	var createdStr string
	if err := row.Scan(&r.SnapshotID, &parentID, &r.Name, &r.ReportJSON, &r.Mode, &r.Groups, &createdStr,
		&r.Decision, &r.Reason, &r.GateJSON); err != nil {
		return RecordWithProvenance{}, err
	}
	if parentID.Valid {
		r.ParentID = parentID.String
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return r, nil
}

// ListWithProvenance returns recent snapshots joined with their latest
// provenance row, newest first.
func (s *Store) ListWithProvenance(limit int) ([]RecordWithProvenance, error) {
	rows, err := s.db.Query(provenanceQuery+` ORDER BY s.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list with provenance: %w", err)
	}
	defer rows.Close()

	var out []RecordWithProvenance
	for rows.Next() {
		r, err := scanWithProvenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetWithProvenance retrieves one snapshot with its latest provenance row.
func (s *Store) GetWithProvenance(id string) (RecordWithProvenance, error) {
	r, err := scanWithProvenance(s.db.QueryRow(provenanceQuery+` WHERE s.snapshot_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RecordWithProvenance{}, fmt.Errorf("get snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RecordWithProvenance{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return r, nil
}
// #endregion list

// #region decode
// Tree rebuilds the archived report, interning descriptors into reg.
func (rec Record) Tree(reg *descriptor.Registry) (*tree.Value, error) {
	var n tree.Node
	if err := json.Unmarshal([]byte(rec.ReportJSON), &n); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", rec.SnapshotID, err)
	}
	return tree.FromNode(reg, n)
}
// #endregion decode
