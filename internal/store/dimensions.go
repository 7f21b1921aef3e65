package store

import "database/sql"

// Query runs an arbitrary read query against the underlying database,
// used by callers (internal/dimension) that need result shapes this
// package doesn't otherwise expose a typed accessor for.
func (s *Store) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

// DimensionContent returns the stored JSON content for name, or
// sql.ErrNoRows if it does not exist.
func (s *Store) DimensionContent(name string) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM dimensions WHERE vtag_name = ?`, name).Scan(&content)
	return content, err
}

// UpsertDimension writes or replaces a dimension row.
func (s *Store) UpsertDimension(name string, orderIndex int, kind, defaultValue, source, checksum, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO dimensions (vtag_name, order_index, kind, default_value, source, checksum, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(vtag_name) DO UPDATE SET
			order_index = excluded.order_index,
			kind = excluded.kind,
			default_value = excluded.default_value,
			source = excluded.source,
			checksum = excluded.checksum,
			content = excluded.content,
			updated_at = CURRENT_TIMESTAMP
	`, name, orderIndex, kind, defaultValue, source, checksum, content)
	return err
}

// DeleteDimension removes a dimension row by name.
func (s *Store) DeleteDimension(name string) error {
	_, err := s.db.Exec(`DELETE FROM dimensions WHERE vtag_name = ?`, name)
	return err
}

// RecordDimensionHistory appends a history row capturing the previous
// content (nil on first write) and the new content.
func (s *Store) RecordDimensionHistory(name string, previous *string, newContent string) error {
	_, err := s.db.Exec(
		`INSERT INTO dimension_history (vtag_name, previous, new_content) VALUES (?, ?, ?)`,
		name, previous, newContent,
	)
	return err
}
