// Package importstatus caches terminal upload statuses so repeated
// polls for a completed or failed import never re-hit the upstream.
package importstatus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/catherinevee/vtagger/internal/cache"
	"github.com/catherinevee/vtagger/internal/metrics"
	"github.com/catherinevee/vtagger/internal/umbrella"
)

// Record is the merged status shape returned to callers.
type Record struct {
	UploadID         string    `json:"upload_id"`
	AccountID        string    `json:"account_id"`
	Timestamp        time.Time `json:"timestamp"`
	Phase            string    `json:"phase"`
	PhaseDescription string    `json:"phase_description"`
	TotalRows        int       `json:"total_rows"`
	ProcessedRows    int       `json:"processed_rows"`
	Errors           int       `json:"errors"`
	Status           string    `json:"status"`
	ImportMode       string    `json:"import_mode"`
	Inserted         int       `json:"inserted"`
	Updated          int       `json:"updated"`
	Deleted          int       `json:"deleted"`
	SyncType         string    `json:"sync_type"`
	StartDate        string    `json:"start_date"`
	EndDate          string    `json:"end_date"`
}

// Context carries the sync-run metadata a poll merges into a fresh
// status record when there is no cache entry yet.
type Context struct {
	AccountID string
	SyncType  string
	StartDate string
	EndDate   string
}

// Monitor caches terminal statuses; non-terminal lookups always hit
// the upstream.
type Monitor struct {
	client *umbrella.Client
	cache  cache.TerminalCache
}

// New returns a Monitor backed by the given terminal cache (Redis or
// in-memory; see internal/cache).
func New(client *umbrella.Client, c cache.TerminalCache) *Monitor {
	return &Monitor{client: client, cache: c}
}

// Poll returns the cached terminal record for uploadID if present,
// otherwise makes a single status call and merges it into the record
// shape, caching the result only when the upstream phase is terminal.
func (m *Monitor) Poll(ctx context.Context, accountKey, uploadID string, runCtx Context) (Record, error) {
	if raw, ok, err := m.cache.Get(ctx, uploadID); err == nil && ok {
		var cached Record
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.ImportStatusPollsTotal.WithLabelValues("cache").Inc()
			return cached, nil
		}
	}
	metrics.ImportStatusPollsTotal.WithLabelValues("upstream").Inc()

	status, err := m.client.GetImportStatus(ctx, accountKey, uploadID)
	if err != nil {
		return Record{
			UploadID:  uploadID,
			AccountID: runCtx.AccountID,
			Timestamp: time.Now(),
			Phase:     "fetch_error",
			Status:    "error",
			SyncType:  runCtx.SyncType,
			StartDate: runCtx.StartDate,
			EndDate:   runCtx.EndDate,
		}, err
	}

	rec := Record{
		UploadID:         uploadID,
		AccountID:        runCtx.AccountID,
		Timestamp:        time.Now(),
		Phase:            status.Phase,
		PhaseDescription: status.PhaseDescription,
		TotalRows:        status.TotalRows,
		ProcessedRows:    status.ProcessedRows,
		Errors:           status.Errors,
		Status:           status.Status,
		ImportMode:       status.ImportMode,
		Inserted:         status.Operations.Inserted,
		Updated:          status.Operations.Updated,
		Deleted:          status.Operations.Deleted,
		SyncType:         runCtx.SyncType,
		StartDate:        runCtx.StartDate,
		EndDate:          runCtx.EndDate,
	}

	if umbrella.TerminalPhases[status.Phase] {
		if raw, err := json.Marshal(rec); err == nil {
			_ = m.cache.Set(ctx, uploadID, raw)
		}
	}

	return rec, nil
}
