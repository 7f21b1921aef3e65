// Package api implements the HTTP control-plane surface: starting and
// cancelling sync runs, polling and streaming progress, import-status
// lookups, and dimension CRUD, wired on gorilla/mux.
package api

import (
	"encoding/json"
	"net/http"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
)

// envelope is the JSON shape every handler responds with, success or
// error.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeAccepted(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: data})
}

// writeError maps a vtagger error kind to an HTTP status and writes the
// envelope. Plain (non-VtagError) errors fall back to 500.
func writeError(w http.ResponseWriter, err error) {
	ve, ok := err.(*vtagerrors.VtagError)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, envelope{
			Success: false,
			Error:   &errorBody{Kind: "unknown", Message: err.Error()},
		})
		return
	}

	status := http.StatusInternalServerError
	switch ve.Kind {
	case vtagerrors.KindValidation:
		status = http.StatusBadRequest
	case vtagerrors.KindConflict:
		status = http.StatusConflict
	case vtagerrors.KindCredential:
		status = http.StatusUnauthorized
	case vtagerrors.KindUpstreamFatal, vtagerrors.KindUpstreamTransient:
		status = http.StatusBadGateway
	case vtagerrors.KindCancelled:
		status = http.StatusOK
	case vtagerrors.KindConfig, vtagerrors.KindIO:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, envelope{
		Success: false,
		Error:   &errorBody{Kind: string(ve.Kind), Message: ve.Message, Details: ve.Details},
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Error:   &errorBody{Kind: string(vtagerrors.KindValidation), Message: message},
	})
}
