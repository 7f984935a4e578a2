// Package api serves the JSON interface for events, musicians, event
// organizers and the credential registry.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	"gitea.jw6.us/james/gigboard/internal/auth"
	httperrors "gitea.jw6.us/james/gigboard/internal/http/errors"
	"gitea.jw6.us/james/gigboard/internal/store"
	"gitea.jw6.us/james/gigboard/internal/syncer"
)

const maxBodyBytes = 1 << 20

// Handler serves the JSON endpoints.
type Handler struct {
	store *store.Store
	sync  *syncer.Service
	auth  *auth.Service
	loc   *time.Location
	now   func() time.Time
}

// NewHandler builds a Handler. Zone-less timestamps in requests are read in loc.
func NewHandler(s *store.Store, sync *syncer.Service, authService *auth.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{store: s, sync: sync, auth: authService, loc: loc, now: time.Now}
}

type messageResponse struct {
	Message string `json:"message"`
}

// decode reads a JSON request body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		case errors.As(err, &maxErr):
			return apperr.Validation("request body must not exceed %d bytes", maxBodyBytes)
		default:
			return apperr.Validation("invalid JSON body: %v", err)
		}
	}
	return nil
}

// parseID reads the {id} URL parameter.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts RFC3339 or a zone-less date/time interpreted in loc.
func parseTime(field, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperr.Validation("%s is required", field)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("%s %q is not a valid timestamp", field, value)
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	httperrors.Write(w, r, err)
}

// named replaces a bare store miss with a message naming the record.
func named(err error, kind string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s %d not found", kind, id)
	}
	return err
}
