package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 4 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/types", s.handleListTypes)
	mux.HandleFunc("GET /v1/types/{type}/fields", s.handleListFields)
	mux.HandleFunc("POST /v1/posts", s.handleCreatePost)
	mux.HandleFunc("GET /v1/posts", s.handleListPosts)
	mux.HandleFunc("GET /v1/posts/{id}", s.handleGetPost)
	mux.HandleFunc("PATCH /v1/posts/{id}", s.handleUpdatePost)
	mux.HandleFunc("DELETE /v1/posts/{id}", s.handleDeletePost)
	mux.HandleFunc("GET /v1/posts/{id}/revisions", s.handleListRevisions)
	mux.HandleFunc("POST /v1/posts/{id}/revisions/{rev}/restore", s.handleRestoreRevision)
	mux.HandleFunc("GET /v1/posts/{id}/events", s.handleGetEvents)
	mux.HandleFunc("GET /v1/posts/{id}/lock", s.handleGetLock)
	mux.HandleFunc("POST /v1/posts/{id}/lock", s.handleTouchLock)
	mux.HandleFunc("DELETE /v1/posts/{id}/lock", s.handleReleaseLock)
	mux.HandleFunc("GET /v1/revisions/diff", s.handleDiffRevisions)
	mux.HandleFunc("GET /v1/revisions/{id}", s.handleGetRevision)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /edit/{id}", s.handleEditScreen)
	mux.HandleFunc("POST /edit/{id}", s.handleEditSubmit)
	mux.HandleFunc("GET /revisions/diff", s.handleDiffScreen)
	mux.HandleFunc("GET /revisions/{id}", s.handleRevisionScreen)
	mux.HandleFunc("POST /revisions/{id}/restore", s.handleRestoreSubmit)

	var h http.Handler = AuthMiddleware(authToken, mux)
	h = RecoveryMiddleware(s.logger, h)
	h = LoggingMiddleware(s.logger, h)
	return RequestIDMiddleware(h)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// decodeBody decodes a JSON request body into v and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if maxErr, ok := err.(*http.MaxBytesError); ok {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeServiceError(w, r, err)
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
