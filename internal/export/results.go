package export

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Imageomics/phenopype/internal/annotation"
)

const currentSchemaVersion = 1

var schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	image       TEXT NOT NULL,
	tag         TEXT NOT NULL,
	steps       TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  INTEGER NOT NULL REFERENCES sessions(id),
	ann_type    TEXT NOT NULL,
	ann_id      TEXT NOT NULL,
	edit        TEXT NOT NULL,
	payload     BLOB NOT NULL,
	UNIQUE(session_id, ann_type, ann_id)
);
`

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// SessionRow is one persisted session.
type SessionRow struct {
	ID        int64
	Image     string
	Tag       string
	Steps     string
	CreatedAt string
}

// AnnotationRow is one persisted annotation record.
type AnnotationRow struct {
	SessionID int64
	Type      string
	AnnID     string
	Edit      string
	Payload   []byte
}

// ResultsStore keeps session results in SQLite so runs over many images
// can be queried in one place.
type ResultsStore struct {
	db *sql.DB
}

// OpenResults opens or creates the results DB at path and runs
// migrations. The parent directory is created if missing.
func OpenResults(path string) (*ResultsStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("export: create results dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("export: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("export: ping sqlite: %w", err)
	}
	s := &ResultsStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ResultsStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("export: apply schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("export: init schema_version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("export: read schema_version: %w", err)
	case v > currentSchemaVersion:
		return fmt.Errorf("export: results db is schema v%d, this build supports v%d", v, currentSchemaVersion)
	}
	return nil
}

// Close closes the underlying database.
func (s *ResultsStore) Close() error { return s.db.Close() }

// InsertSession records one terminated session and returns its id.
func (s *ResultsStore) InsertSession(image, tag, steps string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO sessions(image, tag, steps, created_at) VALUES(?, ?, ?, ?)",
		image, tag, steps, nowUTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("export: insert session: %w", err)
	}
	return res.LastInsertId()
}

// InsertAnnotations writes every record of the store under one session.
func (s *ResultsStore) InsertAnnotations(sessionID int64, store *annotation.Store) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("export: begin: %w", err)
	}
	for _, a := range store.All() {
		payload, err := json.Marshal(a.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("export: encode %s/%s: %w", a.Type, a.ID, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO annotations(session_id, ann_type, ann_id, edit, payload) VALUES(?, ?, ?, ?, ?)",
			sessionID, string(a.Type), a.ID, string(a.Edit), payload,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("export: insert annotation %s/%s: %w", a.Type, a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: commit: %w", err)
	}
	return nil
}

// ListSessions returns all recorded sessions, oldest first.
func (s *ResultsStore) ListSessions() ([]*SessionRow, error) {
	rows, err := s.db.Query(
		"SELECT id, image, tag, steps, created_at FROM sessions ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("export: list sessions: %w", err)
	}
	defer rows.Close()
	var out []*SessionRow
	for rows.Next() {
		var v SessionRow
		if err := rows.Scan(&v.ID, &v.Image, &v.Tag, &v.Steps, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("export: scan session: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ListAnnotations returns the annotation rows of one session.
func (s *ResultsStore) ListAnnotations(sessionID int64) ([]*AnnotationRow, error) {
	rows, err := s.db.Query(
		"SELECT session_id, ann_type, ann_id, edit, payload FROM annotations WHERE session_id = ? ORDER BY ann_type, ann_id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("export: list annotations: %w", err)
	}
	defer rows.Close()
	var out []*AnnotationRow
	for rows.Next() {
		var v AnnotationRow
		if err := rows.Scan(&v.SessionID, &v.Type, &v.AnnID, &v.Edit, &v.Payload); err != nil {
			return nil, fmt.Errorf("export: scan annotation: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
