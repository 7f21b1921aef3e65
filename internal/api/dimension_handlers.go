package api

import (
	"encoding/json"
	"net/http"

	"github.com/catherinevee/vtagger/internal/dsl"
	"github.com/gorilla/mux"
)

// handleListDimensions returns the compiled dimension chain in ascending
// order_index.
func (s *Server) handleListDimensions(w http.ResponseWriter, r *http.Request) {
	compiled := s.dimensions.Compiled()

	type dimView struct {
		Name         string `json:"name"`
		OrderIndex   int    `json:"order_index"`
		DefaultValue string `json:"default_value"`
	}

	views := make([]dimView, 0, len(compiled))
	for _, d := range compiled {
		views = append(views, dimView{Name: d.Name, OrderIndex: d.OrderIndex, DefaultValue: d.DefaultValue})
	}

	writeOK(w, views)
}

// handlePutDimension validates and upserts a dimension record. On
// validation failure it returns the structured message list rather than
// aborting any in-flight state.
func (s *Server) handlePutDimension(w http.ResponseWriter, r *http.Request) {
	var rec dsl.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeBadRequest(w, "malformed dimension record")
		return
	}

	validationErrs, err := s.dimensions.Put(rec)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(validationErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Error:   &errorBody{Kind: "validation", Message: "dimension record failed validation", Details: map[string]interface{}{"errors": validationErrs}},
		})
		return
	}

	writeOK(w, map[string]string{"vtag_name": rec.VtagName, "status": "saved"})
}

func (s *Server) handleDeleteDimension(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.dimensions.Delete(name); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"vtag_name": name, "status": "deleted"})
}
