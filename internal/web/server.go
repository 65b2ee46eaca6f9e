// Package web provides the HTTP status page and operator API for the
// hydroponics daemon.
package web

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sweeney/hydroponics/internal/status"
	"github.com/sweeney/hydroponics/internal/store"
)

// CycleStarter begins a new growth cycle and returns its start time.
type CycleStarter interface {
	Start() (int64, error)
}

// OffsetSetter applies the operator acidity trim.
type OffsetSetter interface {
	SetAcidityOffset(v float64) error
}

// Journal lists recent dosing events, newest first.
type Journal interface {
	Journal(limit int) ([]store.Entry, error)
}

// Deps are the collaborators behind the routes. Nil members disable the
// routes that need them.
type Deps struct {
	Tracker *status.Tracker
	Metrics http.Handler
	Cycle   CycleStarter
	Offset  OffsetSetter
	Journal Journal
	Logger  *slog.Logger
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
	log        *slog.Logger
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{deps: deps, log: deps.Logger.With("component", "web")}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleJSON).Methods(http.MethodGet)
	if deps.Cycle != nil {
		api.HandleFunc("/cycle/start", s.handleCycleStart).Methods(http.MethodPost)
	}
	if deps.Offset != nil {
		api.HandleFunc("/acidity/offset", s.handleOffset).Methods(http.MethodPut)
	}
	if deps.Journal != nil {
		api.HandleFunc("/dosing", s.handleDosing).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
