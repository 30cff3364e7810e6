// Package server is the reference implementation of the backend collection
// service: owner-scoped in-memory collections behind a JSON API, with a
// WebSocket change feed per collection broadcasting every mutation.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"pawplan/internal/backend"
	"pawplan/internal/config"
	appLog "pawplan/internal/log"
)

// Server provides the collection HTTP API and the change-feed sockets.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	collections map[string]*collection
}

// NewServer constructs a Server with one empty collection per known
// collection name.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:         cfg,
		mux:         http.NewServeMux(),
		collections: make(map[string]*collection),
	}
	for _, name := range []string{
		backend.CollectionEvents,
		backend.CollectionPets,
		backend.CollectionShopping,
		backend.CollectionExpenses,
	} {
		s.collections[name] = newCollection(name)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/collections/{name}", s.handleList)
	s.mux.HandleFunc("POST /api/collections/{name}", s.handleCreate)
	s.mux.HandleFunc("PATCH /api/collections/{name}/{id}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /api/collections/{name}/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /api/collections/{name}/feed", s.handleFeed)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendarICS)
}

// Handler returns the http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="pawplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// lookup resolves the collection and owner from the request, writing the
// error response itself when either is missing.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*collection, string, bool) {
	name := r.PathValue("name")
	col, ok := s.collections[name]
	if !ok {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return nil, "", false
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return nil, "", false
	}
	return col, owner, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	col, owner, ok := s.lookup(w, r)
	if !ok {
		return
	}

	items := col.list(owner)
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	col, owner, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	stored, err := col.create(owner, doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(stored)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	col, ok := s.collections[name]
	if !ok {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if !col.update(r.PathValue("id"), patch) {
		http.Error(w, "no such record", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	col, ok := s.collections[name]
	if !ok {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	col.remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("write JSON response failed", err)
	}
}
