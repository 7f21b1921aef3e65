package api

import (
	"net/http"

	"github.com/catherinevee/vtagger/internal/importstatus"
	"github.com/gorilla/mux"
)

// handleImportStatus polls the merged import-status record for one
// upload. account_id, sync_type, start_date, and end_date are passed
// as query parameters by the caller since the upload itself does not
// carry its originating run's metadata.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]
	q := r.URL.Query()
	accountKey := q.Get("account_key")

	runCtx := importstatus.Context{
		AccountID: q.Get("account_id"),
		SyncType:  q.Get("sync_type"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}

	// On an upstream failure Poll still returns a fetch_error-phase
	// record alongside the error; that record is the response.
	rec, _ := s.imports.Poll(r.Context(), accountKey, uploadID, runCtx)
	writeOK(w, rec)
}
