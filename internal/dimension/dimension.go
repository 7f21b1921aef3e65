// Package dimension manages the persisted dimension records: CRUD
// against the store, history snapshots on change, and checksum-based
// invalidation of the compiled resolver cache.
package dimension

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/catherinevee/vtagger/internal/dsl"
	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
	"github.com/catherinevee/vtagger/internal/resolve"
	"github.com/catherinevee/vtagger/internal/store"
)

// Manager owns the compiled-dimension cache and mediates all writes
// through the store, recording history and invalidating the cache on
// any change.
type Manager struct {
	st *store.Store

	mu       sync.RWMutex
	compiled []*resolve.Dimension // cached, read-mostly; fully replaced on reload
}

// New returns a Manager backed by st; callers should call Reload once
// at startup to populate the cache.
func New(st *store.Store) *Manager {
	return &Manager{st: st}
}

// Compiled returns the current compiled dimension list, ascending
// order_index. The returned slice is the cache's pointer snapshot and
// must not be mutated by callers.
func (m *Manager) Compiled() []*resolve.Dimension {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.compiled
}

// Reload replaces the compiled cache from the store's current
// contents. The swap is atomic from a reader's perspective.
func (m *Manager) Reload() error {
	rows, err := m.st.Query(`SELECT content FROM dimensions ORDER BY order_index ASC`)
	if err != nil {
		return vtagerrors.NewIO("failed to query dimensions").WithCause(err)
	}
	defer rows.Close()

	var compiled []*resolve.Dimension
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return vtagerrors.NewIO("failed to scan dimension row").WithCause(err)
		}
		var rec dsl.Record
		if err := json.Unmarshal([]byte(content), &rec); err != nil {
			return vtagerrors.NewIO("failed to unmarshal stored dimension").WithCause(err)
		}
		compiled = append(compiled, resolve.NewDimension(rec))
	}
	if err := rows.Err(); err != nil {
		return vtagerrors.NewIO("failed reading dimensions").WithCause(err)
	}

	m.mu.Lock()
	m.compiled = compiled
	m.mu.Unlock()
	return nil
}

// Put validates, checksums, and writes rec, recording a history entry
// against the previous content if one existed. Returns the validation
// errors (nil slice means valid) without writing anything when invalid.
func (m *Manager) Put(rec dsl.Record) ([]string, error) {
	if errs := dsl.Validate(rec); len(errs) > 0 {
		return errs, nil
	}

	checksum, err := dsl.Checksum(rec)
	if err != nil {
		return nil, vtagerrors.NewIO("failed to checksum dimension").WithCause(err)
	}
	content, err := json.Marshal(rec)
	if err != nil {
		return nil, vtagerrors.NewIO("failed to marshal dimension").WithCause(err)
	}

	previous, err := m.st.DimensionContent(rec.VtagName)
	if err != nil && err != sql.ErrNoRows {
		return nil, vtagerrors.NewIO("failed to read previous dimension").WithCause(err)
	}

	if err := m.st.UpsertDimension(rec.VtagName, rec.Index, rec.Kind, rec.DefaultValue, rec.Source, checksum, string(content)); err != nil {
		return nil, vtagerrors.NewIO("failed to upsert dimension").WithCause(err)
	}

	var previousPtr *string
	if err != sql.ErrNoRows {
		previousPtr = &previous
	}
	if err := m.st.RecordDimensionHistory(rec.VtagName, previousPtr, string(content)); err != nil {
		return nil, vtagerrors.NewIO("failed to record dimension history").WithCause(err)
	}

	return nil, m.Reload()
}

// Delete removes a dimension by name and reloads the cache.
func (m *Manager) Delete(name string) error {
	if err := m.st.DeleteDimension(name); err != nil {
		return vtagerrors.NewIO("failed to delete dimension").WithCause(err)
	}
	return m.Reload()
}

// TagKeysUsed returns the sorted union of every compiled dimension's
// referenced TAG keys, used to build the upstream asset query's
// columns parameter.
func (m *Manager) TagKeysUsed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var keys []string
	for _, d := range m.compiled {
		for k := range d.Index.TagKeysUsed {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Checksums returns a map of vtagName -> checksum for every compiled
// dimension, used by callers to detect whether a reload picked up a
// real content change.
func (m *Manager) Checksums() (map[string]string, error) {
	rows, err := m.st.Query(`SELECT vtag_name, checksum FROM dimensions`)
	if err != nil {
		return nil, fmt.Errorf("query checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, rows.Err()
}
