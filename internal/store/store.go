// Package store is the sqlite-backed persistence layer for compiled
// dimension records, their change history, completed sync results,
// upload history, daily rollups, and discovered tag samples.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/catherinevee/vtagger/internal/logging"
)

var log = logging.Component("store")

// Store wraps a sqlite connection pool.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS dimensions (
	vtag_name     TEXT PRIMARY KEY,
	order_index   INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	default_value TEXT NOT NULL,
	source        TEXT,
	checksum      TEXT NOT NULL,
	content       TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dimension_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	vtag_name     TEXT NOT NULL,
	previous      TEXT,
	new_content   TEXT NOT NULL,
	changed_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS last_sync_result (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	status        TEXT NOT NULL,
	sync_type     TEXT NOT NULL,
	start_date    TEXT NOT NULL,
	end_date      TEXT NOT NULL,
	total         INTEGER NOT NULL,
	matched       INTEGER NOT NULL,
	unmatched     INTEGER NOT NULL,
	error_message TEXT,
	uploads_json  TEXT NOT NULL,
	completed_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS upload_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	upload_id     TEXT NOT NULL,
	payer_id      TEXT NOT NULL,
	row_count     INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS daily_rollup (
	date          TEXT PRIMARY KEY,
	total         INTEGER NOT NULL DEFAULT 0,
	matched       INTEGER NOT NULL DEFAULT 0,
	unmatched     INTEGER NOT NULL DEFAULT 0,
	api_calls     INTEGER NOT NULL DEFAULT 0,
	errors        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS discovered_tags (
	tag_key       TEXT PRIMARY KEY,
	sample_values TEXT NOT NULL,
	discovered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// UploadRecord is one entry of the bounded upload history.
type UploadRecord struct {
	UploadID  string
	PayerID   string
	RowCount  int
	CreatedAt time.Time
}

// RecordUpload appends one upload entry and trims history beyond the
// last maxHistory rows.
func (s *Store) RecordUpload(rec UploadRecord, maxHistory int) error {
	if _, err := s.db.Exec(
		`INSERT INTO upload_history (upload_id, payer_id, row_count) VALUES (?, ?, ?)`,
		rec.UploadID, rec.PayerID, rec.RowCount,
	); err != nil {
		return fmt.Errorf("insert upload history: %w", err)
	}

	_, err := s.db.Exec(`
		DELETE FROM upload_history WHERE id NOT IN (
			SELECT id FROM upload_history ORDER BY id DESC LIMIT ?
		)`, maxHistory)
	if err != nil {
		return fmt.Errorf("trim upload history: %w", err)
	}
	return nil
}

// UploadHistory returns the most recent maxRows upload entries, newest first.
func (s *Store) UploadHistory(maxRows int) ([]UploadRecord, error) {
	rows, err := s.db.Query(
		`SELECT upload_id, payer_id, row_count, created_at FROM upload_history ORDER BY id DESC LIMIT ?`,
		maxRows,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UploadRecord
	for rows.Next() {
		var r UploadRecord
		if err := rows.Scan(&r.UploadID, &r.PayerID, &r.RowCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertDailyRollup adds the given deltas onto date's accumulated row,
// creating it if absent.
func (s *Store) UpsertDailyRollup(date string, total, matched, unmatched int, isError bool) error {
	errInc := 0
	if isError {
		errInc = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO daily_rollup (date, total, matched, unmatched, api_calls, errors)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(date) DO UPDATE SET
			total = total + excluded.total,
			matched = matched + excluded.matched,
			unmatched = unmatched + excluded.unmatched,
			api_calls = api_calls + 1,
			errors = errors + excluded.errors
	`, date, total, matched, unmatched, errInc)
	return err
}

// RecordDiscoveredTag merges a newly seen tag key and up to 10 sample
// values into the discovered_tags table.
func (s *Store) RecordDiscoveredTag(key string, samplesJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO discovered_tags (tag_key, sample_values) VALUES (?, ?)
		ON CONFLICT(tag_key) DO UPDATE SET sample_values = excluded.sample_values
	`, key, samplesJSON)
	return err
}

// DiscoveredTag is one physical tag key and its recorded sample values.
type DiscoveredTag struct {
	TagKey       string
	SampleValues string // JSON array
	DiscoveredAt time.Time
}

// ListDiscoveredTags returns every discovered tag key, alphabetically,
// for read-only operator visibility.
func (s *Store) ListDiscoveredTags() ([]DiscoveredTag, error) {
	rows, err := s.db.Query(
		`SELECT tag_key, sample_values, discovered_at FROM discovered_tags ORDER BY tag_key ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DiscoveredTag
	for rows.Next() {
		var d DiscoveredTag
		if err := rows.Scan(&d.TagKey, &d.SampleValues, &d.DiscoveredAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
