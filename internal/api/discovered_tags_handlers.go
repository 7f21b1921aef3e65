package api

import (
	"encoding/json"
	"net/http"
)

// handleListDiscoveredTags returns every physical tag key observed by
// the pipeline so far, with its recorded sample values. Purely
// observational: unrelated to dimension resolution.
func (s *Server) handleListDiscoveredTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.ListDiscoveredTags()
	if err != nil {
		writeError(w, err)
		return
	}

	type tagView struct {
		TagKey  string   `json:"tag_key"`
		Samples []string `json:"samples"`
	}

	views := make([]tagView, 0, len(tags))
	for _, t := range tags {
		var samples []string
		if err := json.Unmarshal([]byte(t.SampleValues), &samples); err != nil {
			samples = nil
		}
		views = append(views, tagView{TagKey: t.TagKey, Samples: samples})
	}

	writeOK(w, views)
}
