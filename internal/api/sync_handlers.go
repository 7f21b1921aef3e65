package api

import (
	"encoding/json"
	"net/http"
	"time"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
	"github.com/catherinevee/vtagger/internal/sync"
	"github.com/catherinevee/vtagger/internal/umbrella"
)

// startRequest is the shared request body for week/month/range sync
// starts; fields unused by a given mode are ignored.
type startRequest struct {
	AnchorDate      string          `json:"anchor_date"` // week/month
	StartDate       string          `json:"start_date"`  // range
	EndDate         string          `json:"end_date"`    // range
	Dimensions      []string        `json:"dimensions"`
	FilterMode      string          `json:"filter_mode"`
	FilterDims      []string        `json:"filter_dims"`
	ForceAll        bool            `json:"force_all"`
	AccountKeys     []string        `json:"account_keys"`
	DryRun          bool            `json:"dry_run"`
}

func (req startRequest) toSyncRequest(mode sync.Mode) (sync.Request, error) {
	var subset map[string]bool
	if !req.ForceAll && len(req.Dimensions) > 0 {
		subset = make(map[string]bool, len(req.Dimensions))
		for _, d := range req.Dimensions {
			subset[d] = true
		}
	}

	filterMode := umbrella.FilterAll
	if req.FilterMode == string(umbrella.FilterNotVtagged) {
		filterMode = umbrella.FilterNotVtagged
	}

	sr := sync.Request{
		Mode:            mode,
		DimensionSubset: subset,
		FilterMode:      filterMode,
		FilterDims:      req.FilterDims,
		ForceAll:        req.ForceAll,
		AccountKeys:     req.AccountKeys,
		DryRun:          req.DryRun,
	}

	switch mode {
	case sync.ModeWeek, sync.ModeMonth:
		anchor := time.Now()
		if req.AnchorDate != "" {
			t, err := time.Parse("2006-01-02", req.AnchorDate)
			if err != nil {
				return sync.Request{}, vtagerrors.NewValidation("anchor_date must be YYYY-MM-DD")
			}
			anchor = t
		}
		sr.AnchorDate = anchor
	case sync.ModeRange:
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return sync.Request{}, vtagerrors.NewValidation("start_date must be YYYY-MM-DD")
		}
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return sync.Request{}, vtagerrors.NewValidation("end_date must be YYYY-MM-DD")
		}
		sr.StartDate = start
		sr.EndDate = end
	}

	return sr, nil
}

func decodeStartRequest(r *http.Request) (startRequest, error) {
	var req startRequest
	if r.Body == nil {
		return req, nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil && err.Error() != "EOF" {
		return req, vtagerrors.NewValidation("malformed request body").WithCause(err)
	}
	return req, nil
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request, mode sync.Mode) {
	req, err := decodeStartRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	syncReq, err := req.toSyncRequest(mode)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.coordinator.Start(r.Context(), syncReq); err != nil {
		writeError(w, err)
		return
	}

	writeAccepted(w, map[string]string{"status": "starting", "mode": string(mode)})
}

func (s *Server) handleStartWeek(w http.ResponseWriter, r *http.Request) {
	s.startSync(w, r, sync.ModeWeek)
}

func (s *Server) handleStartMonth(w http.ResponseWriter, r *http.Request) {
	s.startSync(w, r, sync.ModeMonth)
}

func (s *Server) handleStartRange(w http.ResponseWriter, r *http.Request) {
	s.startSync(w, r, sync.ModeRange)
}

// handleCancel always returns 200, even when idle, per the control-plane
// contract.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.coordinator.Cancel()
	writeOK(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}
