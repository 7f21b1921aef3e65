package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/catherinevee/vtagger/internal/progress"
)

// progressView is the merged shape returned by a progress poll: the
// live broadcaster snapshot while a run is active, otherwise a summary
// built from the last persisted sync result.
type progressView struct {
	progress.Snapshot
	LastResult *lastResultView `json:"last_result,omitempty"`
}

type lastResultView struct {
	Status       string `json:"status"`
	SyncType     string `json:"sync_type"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Total        int    `json:"total"`
	Matched      int    `json:"matched"`
	Unmatched    int    `json:"unmatched"`
	ErrorMessage string `json:"error_message,omitempty"`
	UploadsJSON  string `json:"uploads_json,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.broadcaster.Snapshot()
	view := progressView{Snapshot: snap}

	if !snap.IsRunning {
		if last, err := s.store.GetLastSyncResult(); err == nil && last != nil {
			view.LastResult = &lastResultView{
				Status:       last.Status,
				SyncType:     last.SyncType,
				StartDate:    last.StartDate,
				EndDate:      last.EndDate,
				Total:        last.Total,
				Matched:      last.Matched,
				Unmatched:    last.Unmatched,
				ErrorMessage: last.ErrorMessage,
				UploadsJSON:  last.UploadsJSON,
			}
		}
	}

	writeOK(w, view)
}

// handleProgressStream serves a Server-Sent Events stream: an initial
// snapshot, incremental snapshots on every state/progress/stat change,
// and a heartbeat at least every progress.HeartbeatInterval.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	ticker := time.NewTicker(progress.HeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcaster.Heartbeat()
		case ev, open := <-sub.C():
			if !open {
				return
			}
			writeSSEEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev progress.Event) {
	data, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
