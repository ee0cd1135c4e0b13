// Package server publishes view snapshots over HTTP for browser and
// scripted consumers.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	shutdownGrace       = 5 * time.Second

	// streamWriteWait bounds each WebSocket write.
	streamWriteWait = 5 * time.Second
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// RefreshResponse reports whether a manual refresh was accepted.
type RefreshResponse struct {
	View     string `json:"view"`
	Accepted bool   `json:"accepted"`
}

// Server serves the engine's snapshots.
type Server struct {
	engine   *fleet.Engine
	router   *mux.Router
	log      logger.Logger
	upgrader websocket.Upgrader
}

// New creates a server for engine. gatherer backs /metrics; nil omits it.
func New(engine *fleet.Engine, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		log:    logger.OrDefault(log).With("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/views", s.listViews).Methods("GET")
	api.HandleFunc("/views/{view}", s.getView).Methods("GET")
	api.HandleFunc("/views/{view}/refresh", s.refreshView).Methods("POST")
	api.HandleFunc("/history/{view}/{entity}/{signal}", s.getHistory).Methods("GET")
	api.HandleFunc("/summary", s.getSummary).Methods("GET")
	api.HandleFunc("/status", s.getStatus).Methods("GET")
	api.HandleFunc("/filter", s.getFilter).Methods("GET")
	api.HandleFunc("/filter", s.setFilter).Methods("PUT")
	api.HandleFunc("/stream", s.stream).Methods("GET")
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "Cannot serve on "+addr, "Check serve.addr")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) listViews(w http.ResponseWriter, _ *http.Request) {
	hub := s.engine.Hub()
	out := make([]fleet.Snapshot, 0, len(s.engine.Views()))
	for _, name := range s.engine.Views() {
		if snap, ok := hub.Latest(name); ok {
			out = append(out, snap)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	if !s.known(view) {
		writeError(w, "unknown view "+view, http.StatusNotFound)
		return
	}
	snap, ok := s.engine.Hub().Latest(view)
	if !ok {
		writeError(w, "no snapshot yet for "+view, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) refreshView(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	accepted, err := s.engine.Trigger(view)
	if err != nil {
		writeError(w, "unknown view "+view, http.StatusNotFound)
		return
	}
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, RefreshResponse{View: view, Accepted: accepted})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h, ok := s.engine.History(vars["view"])
	if !ok {
		writeError(w, "unknown view "+vars["view"], http.StatusNotFound)
		return
	}
	if h.Count(vars["entity"], vars["signal"]) == 0 {
		writeError(w, "no history for "+vars["entity"]+"/"+vars["signal"], http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, h.Read(vars["entity"], vars["signal"]))
}

// getSummary serves the activity counts, alerts, and leaderboard of the
// latest agents cycle.
func (s *Server) getSummary(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.engine.Hub().Latest(fleet.ViewAgents)
	if !ok || snap.Summary == nil {
		writeError(w, "no agents snapshot yet", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, snap.Summary)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) getFilter(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Filter())
}

func (s *Server) setFilter(w http.ResponseWriter, r *http.Request) {
	var f agents.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, "invalid filter: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.SetFilter(f); err != nil {
		writeError(w, errors.NewFailure("filter", err).Message, http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Filter())
}

// stream pushes every published snapshot to a WebSocket client, starting
// with the latest snapshot of each view.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	snaps, unsubscribe := s.engine.Hub().Subscribe(0)
	defer unsubscribe()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap fleet.Snapshot) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(snap); err != nil {
			s.log.Debug("stream to %s ended: %v", r.RemoteAddr, err)
			return false
		}
		return true
	}

	for _, name := range s.engine.Views() {
		if snap, ok := s.engine.Hub().Latest(name); ok && !send(snap) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case snap, ok := <-snaps:
			if !ok || !send(snap) {
				return
			}
		}
	}
}

func (s *Server) known(view string) bool {
	for _, name := range s.engine.Views() {
		if name == view {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: message, Status: status})
}
