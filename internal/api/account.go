package api

import (
	"net/http"
	"time"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	"gitea.jw6.us/james/gigboard/internal/auth"
	httperrors "gitea.jw6.us/james/gigboard/internal/http/errors"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Category string `json:"category"`
}

type credentialsJSON struct {
	ID        int64     `json:"UserCredential_id"`
	CreatedOn time.Time `json:"createdon"`
	Category  string    `json:"category"`
	Email     string    `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type memberResponse struct {
	MemberType string `json:"memberType"`
	Details    any    `json:"details"`
}

// RegisterCredentials records a login credential for a future profile.
func (h *Handler) RegisterCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	creds, err := h.auth.RegisterCredentials(r.Context(), req.Email, req.Password, req.Category)
	if err != nil {
		fail(w, r, err)
		return
	}
	httperrors.JSON(w, http.StatusCreated, map[string]credentialsJSON{
		"user_credentials": {
			ID:        creds.ID,
			CreatedOn: creds.CreatedAt.In(h.loc),
			Category:  string(creds.Category),
			Email:     creds.Email,
		},
	})
}

// Login checks the password, issues a session cookie and returns the profile.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	member, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.auth.Sessions().Issue(w, member.Credentials); err != nil {
		httperrors.InternalError(w, r, err, "issue session")
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toMemberResponse(member))
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Sessions().Clear(w)
	httperrors.JSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// Me returns the profile behind the current session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		fail(w, r, apperr.Auth("authentication required"))
		return
	}
	member, err := h.auth.Profile(r.Context(), sess)
	if err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			h.auth.Sessions().Clear(w)
		}
		fail(w, r, err)
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toMemberResponse(member))
}

func (h *Handler) toMemberResponse(m *auth.Member) memberResponse {
	resp := memberResponse{MemberType: string(m.Category)}
	switch {
	case m.Musician != nil:
		resp.Details = h.toMusicianJSON(m.Musician)
	case m.Organizer != nil:
		resp.Details = h.toOrganizerJSON(m.Organizer)
	}
	return resp
}
