// Package server exposes stored log entries over a read-only HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mickamy/auditlog"
)

// Server serves the log API.
type Server struct {
	h     *auditlog.Handler
	store *auditlog.Store
	log   *slog.Logger
}

// New creates a server reading from store and rebuilding objects with h's registry.
func New(h *auditlog.Handler, store *auditlog.Store, log *slog.Logger) *Server {
	return &Server{h: h, store: store, log: log}
}

// Router builds the chi router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.h.Middleware)

	r.Get("/healthz", s.health)
	r.Route("/logs", func(r chi.Router) {
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Get("/{id}/object", s.object)
	})
	r.Get("/objects/{name}/{id}/history", s.history)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// list handles GET /logs.
func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logs, err := s.store.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// get handles GET /logs/{id}.
func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	l, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// object handles GET /logs/{id}/object.
func (s *Server) object(w http.ResponseWriter, r *http.Request) {
	l, ok := s.load(w, r)
	if !ok {
		return
	}
	reg := s.h.Registry()
	obj, err := l.ModelObject(r.Context(), reg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if obj == nil {
		writeJSON(w, http.StatusOK, map[string]any{"model": nil, "object": nil})
		return
	}
	name, err := l.ObjectModelName(r.Context(), reg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := reg.ModelToMap(r.Context(), obj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"model": name, "object": data})
}

// history handles GET /objects/{name}/{id}/history.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.h.Registry().ModelByLogName(name); err != nil {
		s.fail(w, r, err)
		return
	}
	logs, err := s.store.History(r.Context(), name, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*auditlog.Log, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid log id"))
		return nil, false
	}
	l, err := s.store.Get(r.Context(), uint(id))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return l, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auditlog.ErrLogNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, auditlog.ErrModelNotFound):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func parseFilter(r *http.Request) (auditlog.Filter, error) {
	q := r.URL.Query()
	f := auditlog.Filter{
		ObjectName: q.Get("object_name"),
		ObjectID:   q.Get("object_id"),
		Username:   q.Get("username"),
	}
	if v := q.Get("action"); v != "" {
		a, err := auditlog.ParseAction(v)
		if err != nil {
			return f, err
		}
		f.Action = a
	}
	if v := q.Get("level"); v != "" {
		l, err := auditlog.ParseLevel(v)
		if err != nil {
			return f, err
		}
		f.Level = l
	}
	var err error
	if f.UserID, err = intParam(q.Get("user_id")); err != nil {
		return f, errors.New("invalid user_id")
	}
	if f.Since, err = timeParam(q.Get("since")); err != nil {
		return f, errors.New("invalid since")
	}
	if f.Until, err = timeParam(q.Get("until")); err != nil {
		return f, errors.New("invalid until")
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil || limit < 0 {
		return f, errors.New("invalid limit")
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil || offset < 0 {
		return f, errors.New("invalid offset")
	}
	f.Limit, f.Offset = int(limit), int(offset)
	return f, nil
}

func intParam(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func timeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return auditlog.ParseTime(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
