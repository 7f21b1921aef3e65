package api

import (
	"net/http"

	"github.com/catherinevee/vtagger/internal/dimension"
	"github.com/catherinevee/vtagger/internal/importstatus"
	"github.com/catherinevee/vtagger/internal/logging"
	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/catherinevee/vtagger/internal/store"
	"github.com/catherinevee/vtagger/internal/sync"
	"github.com/gorilla/mux"
)

// Server bundles the collaborators every handler needs. Nothing here is
// a package-level singleton; New wires it all explicitly.
type Server struct {
	coordinator *sync.Coordinator
	dimensions  *dimension.Manager
	store       *store.Store
	broadcaster *progress.Broadcaster
	imports     *importstatus.Monitor
	router      *mux.Router
}

// New builds the control-plane router over the given collaborators and
// allowed CORS origins.
func New(coord *sync.Coordinator, dims *dimension.Manager, st *store.Store, bcast *progress.Broadcaster, imports *importstatus.Monitor, corsOrigins []string) *Server {
	s := &Server{
		coordinator: coord,
		dimensions:  dims,
		store:       st,
		broadcaster: bcast,
		imports:     imports,
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware(corsOrigins))
	r.Use(loggingMiddleware(logging.Component("api")))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sync/week", s.handleStartWeek).Methods(http.MethodPost)
	api.HandleFunc("/sync/month", s.handleStartMonth).Methods(http.MethodPost)
	api.HandleFunc("/sync/range", s.handleStartRange).Methods(http.MethodPost)
	api.HandleFunc("/sync/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/sync/progress", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/sync/progress/stream", s.handleProgressStream).Methods(http.MethodGet)
	api.HandleFunc("/sync/progress/ws", s.handleProgressWebsocket).Methods(http.MethodGet)

	api.HandleFunc("/uploads/{uploadId}/status", s.handleImportStatus).Methods(http.MethodGet)

	api.HandleFunc("/dimensions", s.handleListDimensions).Methods(http.MethodGet)
	api.HandleFunc("/dimensions", s.handlePutDimension).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/dimensions/{name}", s.handleDeleteDimension).Methods(http.MethodDelete)

	api.HandleFunc("/discovered-tags", s.handleListDiscoveredTags).Methods(http.MethodGet)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler so Server can be passed directly to
// http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
