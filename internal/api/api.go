package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	issues  *issues.Service
	store   store.Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewServer creates a new API server. A zero timeout leaves request contexts unbounded.
func NewServer(svc *issues.Service, s store.Store, logger *slog.Logger, timeout time.Duration) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		issues:  svc,
		store:   s,
		logger:  logger,
		timeout: timeout,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/issues/{project}", s.listIssues)
	mux.HandleFunc("POST /api/issues/{project}", s.createIssue)
	mux.HandleFunc("PUT /api/issues/{project}", s.updateIssue)
	mux.HandleFunc("DELETE /api/issues/{project}", s.deleteIssue)

	mux.HandleFunc("GET /health", s.health)

	return corsMiddleware(s.logRequests(s.withTimeout(mux)))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	if s.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resultResponse is the body of update and delete responses and of domain errors.
// An empty _id is omitted, matching callers that never sent one.
type resultResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     string `json:"_id,omitempty"`
}

// writeServiceError maps an error from the issue service onto a response. Domain
// errors keep status 200 and carry the echoed id.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, id string) {
	switch {
	case issues.IsDomainError(err):
		writeJSON(w, http.StatusOK, resultResponse{Error: err.Error(), ID: id})
	case issues.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request timed out", "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads this response.
		s.logger.Debug("request canceled", "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeFields reads a JSON or url-encoded body. An empty body yields no fields.
func decodeFields(w http.ResponseWriter, r *http.Request) (issues.Fields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		return issues.FieldsFromForm(form), nil
	}

	fields := issues.Fields{}
	if len(body) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if fields == nil {
		fields = issues.Fields{}
	}
	return fields, nil
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	found, err := s.issues.Query(r.Context(), project, issues.FirstValues(r.URL.Query()))
	if err != nil {
		if issues.IsInputError(err) {
			writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
			return
		}
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := s.issues.CreateFromFields(r.Context(), r.PathValue("project"), fields)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.issues.Update(r.Context(), fields)
	if err != nil {
		s.writeServiceError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: "successfully updated", ID: id})
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := fields.ID()
	if err := s.issues.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: "successfully deleted", ID: id})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
