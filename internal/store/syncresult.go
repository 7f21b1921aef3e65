package store

import (
	"database/sql"
	"time"
)

// LastSyncResult is the persisted shape of the most recently completed
// (or failed/cancelled) run.
type LastSyncResult struct {
	Status       string
	SyncType     string
	StartDate    string
	EndDate      string
	Total        int
	Matched      int
	Unmatched    int
	ErrorMessage string
	UploadsJSON  string
	CompletedAt  time.Time
}

// PutLastSyncResult replaces the single last-result row.
func (s *Store) PutLastSyncResult(r LastSyncResult) error {
	_, err := s.db.Exec(`
		INSERT INTO last_sync_result
			(id, status, sync_type, start_date, end_date, total, matched, unmatched, error_message, uploads_json, completed_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			sync_type = excluded.sync_type,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			total = excluded.total,
			matched = excluded.matched,
			unmatched = excluded.unmatched,
			error_message = excluded.error_message,
			uploads_json = excluded.uploads_json,
			completed_at = excluded.completed_at
	`, r.Status, r.SyncType, r.StartDate, r.EndDate, r.Total, r.Matched, r.Unmatched, r.ErrorMessage, r.UploadsJSON, r.CompletedAt)
	return err
}

// GetLastSyncResult returns the persisted last result, or
// (nil, nil) if none has ever been recorded.
func (s *Store) GetLastSyncResult() (*LastSyncResult, error) {
	var r LastSyncResult
	err := s.db.QueryRow(`
		SELECT status, sync_type, start_date, end_date, total, matched, unmatched, error_message, uploads_json, completed_at
		FROM last_sync_result WHERE id = 1
	`).Scan(&r.Status, &r.SyncType, &r.StartDate, &r.EndDate, &r.Total, &r.Matched, &r.Unmatched, &r.ErrorMessage, &r.UploadsJSON, &r.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
