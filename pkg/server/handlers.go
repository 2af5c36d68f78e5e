package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/rampart/pkg/policy/evaluator"
	"mercator-hq/rampart/pkg/telemetry/logging"
)

// Error types returned in the error body.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeServer             = "server_error"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Identifier string         `json:"identifier"`
	Features   map[string]any `json:"features,omitempty"`
}

// ResolveRequest is the body of POST /v1/resolve.
type ResolveRequest struct {
	Identifier string `json:"identifier"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail describes an error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Evaluate(r.Context(), &evaluator.Artifact{
		Identifier: req.Identifier,
		Features:   req.Features,
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Evaluation failed", "identifier", req.Identifier, "error", err)
		writeError(w, r, http.StatusInternalServerError, ErrorTypeServer, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}

	policy, err := s.engine.Resolve(r.Context(), req.Identifier)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrorTypeServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// decode reads a JSON body with a non-empty identifier field. It writes
// the error reply and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{ identifier() string }) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeError(w, r, http.StatusUnsupportedMediaType, ErrorTypeInvalidRequest, "content type must be application/json")
		return false
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, ErrorTypeInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, r, http.StatusBadRequest, ErrorTypeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if v.identifier() == "" {
		writeError(w, r, http.StatusBadRequest, ErrorTypeInvalidRequest, "identifier is required")
		return false
	}
	return true
}

func (r *EvaluateRequest) identifier() string { return r.Identifier }
func (r *ResolveRequest) identifier() string  { return r.Identifier }

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, typ, msg string) {
	writeJSON(w, code, ErrorResponse{
		Error:     ErrorDetail{Message: msg, Type: typ},
		RequestID: logging.GetRequestID(r.Context()),
	})
}

func slogLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
