package safety

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"acey/internal/models"

	_ "modernc.org/sqlite"
)

// Journal is the durable append-only mirror of the audit log, backed by a
// local SQLite file. The in-memory ring stays the source for the operator
// console; the journal survives restarts.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %w", err)
	}

	// Append-only: no UPDATE or DELETE is ever issued against this table.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS audit_entries (
		id         TEXT PRIMARY KEY,
		timestamp  TEXT NOT NULL,
		event_type TEXT NOT NULL,
		severity   TEXT NOT NULL,
		verdict    TEXT NOT NULL,
		blocked    INTEGER NOT NULL,
		payload    TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit journal schema: %w", err)
	}

	log.Println("✅ Audit journal opened:", path)
	return &Journal{db: db}, nil
}

// Append writes one entry. The full sanitized entry is stored as JSON in
// the payload column; indexed columns exist for querying.
func (j *Journal) Append(entry models.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO audit_entries (id, timestamp, event_type, severity, verdict, blocked, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.EventType,
		string(entry.Severity),
		string(entry.Verdict),
		boolToInt(entry.Blocked),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Count returns the number of journaled entries.
func (j *Journal) Count() (int64, error) {
	var n int64
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM audit_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
