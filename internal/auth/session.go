package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/securecookie"

	"gitea.jw6.us/james/gigboard/internal/config"
	"gitea.jw6.us/james/gigboard/internal/store"
)

const (
	sessionCookieName = "gigboard_session"
	sessionTTL        = 24 * time.Hour
)

// Session is the decoded contents of the session cookie.
type Session struct {
	CredentialID int64          `json:"credential_id"`
	Email        string         `json:"email"`
	Category     store.Category `json:"category"`
	ExpiresAt    int64          `json:"exp"`
}

// SessionManager issues and reads signed, encrypted session cookies.
type SessionManager struct {
	cookieName string
	codec      *securecookie.SecureCookie
	secure     bool
	now        func() time.Time
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	hash := sha256.Sum256([]byte(cfg.Session.Secret))

	// The same 32 bytes serve as HMAC key and AES-256 block key.
	sc := securecookie.New(hash[:], hash[:])
	sc.MaxAge(int(sessionTTL.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		cookieName: sessionCookieName,
		codec:      sc,
		secure:     secure,
		now:        time.Now,
	}
}

// Issue sets the session cookie for a logged-in credential.
func (m *SessionManager) Issue(w http.ResponseWriter, creds *store.UserCredentials) error {
	expires := m.now().Add(sessionTTL)
	value := Session{
		CredentialID: creds.ID,
		Email:        creds.Email,
		Category:     creds.Category,
		ExpiresAt:    expires.Unix(),
	}

	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Current extracts the session from the request if present and unexpired.
func (m *SessionManager) Current(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil, false
	}

	var value Session
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return nil, false
	}
	if value.CredentialID == 0 || time.Unix(value.ExpiresAt, 0).Before(m.now()) {
		return nil, false
	}
	return &value, true
}
