package errors

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	"gitea.jw6.us/james/gigboard/internal/store"
)

type body struct {
	Error string `json:"error"`
}

// Write maps err onto a status code and writes a JSON {error} body.
// Internal details are logged; only client-safe messages are returned.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	switch {
	case status == http.StatusBadGateway:
		LogError(r, "remote calendar failure", err)
	case status >= http.StatusInternalServerError:
		LogError(r, "request failed", err)
	default:
		logger(r).Debug("request rejected", "status", status, "error", err)
	}
	JSON(w, status, body{Error: message})
}

func classify(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, apperr.MessageOf(err)
	case apperr.KindNotFound:
		return http.StatusNotFound, apperr.MessageOf(err)
	case apperr.KindAuth:
		return http.StatusUnauthorized, apperr.MessageOf(err)
	case apperr.KindRemoteService:
		return http.StatusBadGateway, apperr.MessageOf(err)
	}
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case stderrors.Is(err, store.ErrConflict):
		return http.StatusBadRequest, "a record with this email already exists"
	case stderrors.Is(err, store.ErrConstraint):
		return http.StatusBadRequest, "record violates a constraint"
	}
	return http.StatusInternalServerError, "internal server error"
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	LogError(r, message, err)
	JSON(w, http.StatusInternalServerError, body{Error: "internal server error"})
}

// Message writes a bare {error} body with the given status.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, body{Error: message})
}

func LogError(r *http.Request, message string, err error) {
	logger(r).Error(message, "error", err)
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func logger(r *http.Request) *slog.Logger {
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		return slog.With("request_id", requestID, "method", r.Method, "path", r.URL.Path)
	}
	return slog.With("method", r.Method, "path", r.URL.Path)
}
