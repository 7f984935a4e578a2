package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	httperrors "gitea.jw6.us/james/gigboard/internal/http/errors"
	"gitea.jw6.us/james/gigboard/internal/store"
)

// bcrypt rejects inputs longer than this.
const maxPasswordBytes = 72

// Deps are the collaborators of Service.
type Deps struct {
	Credentials store.CredentialRepository
	Musicians   store.MusicianRepository
	Organizers  store.OrganizerRepository
	Sessions    *SessionManager
}

// Service gates musician and organizer registration on the credential
// registry and authenticates logins against it.
type Service struct {
	creds      store.CredentialRepository
	musicians  store.MusicianRepository
	organizers store.OrganizerRepository
	sessions   *SessionManager
	hashCost   int
}

func NewService(deps Deps) *Service {
	return &Service{
		creds:      deps.Credentials,
		musicians:  deps.Musicians,
		organizers: deps.Organizers,
		sessions:   deps.Sessions,
		hashCost:   bcrypt.DefaultCost,
	}
}

// Sessions exposes the cookie manager used by login and logout handlers.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Member is a logged-in musician or organizer together with its category tag.
type Member struct {
	Credentials *store.UserCredentials
	Category    store.Category
	Musician    *store.Musician
	Organizer   *store.EventOrganizer
}

// RegisterCredentials records a new credential with a bcrypt hash of password.
func (s *Service) RegisterCredentials(ctx context.Context, email, password, category string) (*store.UserCredentials, error) {
	email = normalizeEmail(email)
	cat, ok := store.ParseCategory(category)
	if !ok {
		return nil, apperr.Validation("category must be %q or %q", store.CategoryMusician, store.CategoryEventOrganizer)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperr.Validation("password is required")
	}
	if len(password) > maxPasswordBytes {
		return nil, apperr.Validation("password must be at most %d bytes", maxPasswordBytes)
	}

	if _, err := s.creds.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Validation("Email already exists. Please Login")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, err
	}
	created, err := s.creds.Create(ctx, store.UserCredentials{Category: cat, Email: email, PasswordHash: string(hash)})
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Validation("Email already exists. Please Login")
	}
	if err != nil {
		return nil, err
	}

	slog.Info("auth_event", "event", "credentials_created", "email", email, "category", string(cat))
	return created, nil
}

// RegisterMusician creates a musician profile for a registered musician credential.
func (s *Service) RegisterMusician(ctx context.Context, m store.Musician) (*store.Musician, error) {
	m.Email = normalizeEmail(m.Email)
	if err := ValidateMusician(m); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, m.Email, store.CategoryMusician); err != nil {
		return nil, err
	}
	created, err := s.musicians.Create(ctx, m)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Validation("musician with this email already exists")
	}
	if err != nil {
		return nil, err
	}
	slog.Info("auth_event", "event", "musician_registered", "email", m.Email)
	return created, nil
}

// RegisterOrganizer creates an organizer profile for a registered organizer credential.
func (s *Service) RegisterOrganizer(ctx context.Context, o store.EventOrganizer) (*store.EventOrganizer, error) {
	o.Email = normalizeEmail(o.Email)
	if err := ValidateOrganizer(o); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, o.Email, store.CategoryEventOrganizer); err != nil {
		return nil, err
	}
	created, err := s.organizers.Create(ctx, o)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Validation("event organizer with this email already exists")
	}
	if err != nil {
		return nil, err
	}
	slog.Info("auth_event", "event", "organizer_registered", "email", o.Email)
	return created, nil
}

// UpdateMusician stores next over an existing profile. A changed email must
// still belong to a musician credential.
func (s *Service) UpdateMusician(ctx context.Context, current, next store.Musician) (*store.Musician, error) {
	next.Email = normalizeEmail(next.Email)
	if err := ValidateMusician(next); err != nil {
		return nil, err
	}
	if next.Email != current.Email {
		if err := s.checkCategory(ctx, next.Email, store.CategoryMusician); err != nil {
			return nil, err
		}
	}
	updated, err := s.musicians.Update(ctx, next)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Validation("musician with this email already exists")
	}
	return updated, err
}

// UpdateOrganizer stores next over an existing profile. A changed email must
// still belong to an organizer credential.
func (s *Service) UpdateOrganizer(ctx context.Context, current, next store.EventOrganizer) (*store.EventOrganizer, error) {
	next.Email = normalizeEmail(next.Email)
	if err := ValidateOrganizer(next); err != nil {
		return nil, err
	}
	if next.Email != current.Email {
		if err := s.checkCategory(ctx, next.Email, store.CategoryEventOrganizer); err != nil {
			return nil, err
		}
	}
	updated, err := s.organizers.Update(ctx, next)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Validation("event organizer with this email already exists")
	}
	return updated, err
}

func (s *Service) checkCategory(ctx context.Context, email string, want store.Category) error {
	creds, err := s.creds.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Validation("email not registered")
	}
	if err != nil {
		return err
	}
	if creds.Category != want {
		slog.Info("auth_event", "event", "registration_rejected", "email", email, "reason", "category_mismatch")
		return apperr.Validation("Incorrect category")
	}
	return nil
}

// Login verifies email and password and returns the matching profile.
func (s *Service) Login(ctx context.Context, email, password string) (*Member, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	creds, err := s.creds.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "not_found")
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "bad_password")
		return nil, apperr.Auth("invalid credentials")
	}

	member, err := s.loadMember(ctx, creds)
	if err != nil {
		return nil, err
	}
	slog.Info("auth_event", "event", "login_success", "email", email, "category", string(creds.Category))
	return member, nil
}

// Profile reloads the member behind a session.
func (s *Service) Profile(ctx context.Context, sess *Session) (*Member, error) {
	creds, err := s.creds.GetByEmail(ctx, sess.Email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && creds.ID != sess.CredentialID) {
		return nil, apperr.Auth("session is no longer valid")
	}
	if err != nil {
		return nil, err
	}
	return s.loadMember(ctx, creds)
}

func (s *Service) loadMember(ctx context.Context, creds *store.UserCredentials) (*Member, error) {
	member := &Member{Credentials: creds, Category: creds.Category}
	var err error
	switch creds.Category {
	case store.CategoryMusician:
		member.Musician, err = s.musicians.GetByEmail(ctx, creds.Email)
	case store.CategoryEventOrganizer:
		member.Organizer, err = s.organizers.GetByEmail(ctx, creds.Email)
	default:
		return nil, apperr.Validation("unknown category %q", creds.Category)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("%s profile not found", creds.Category)
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// RequireSession rejects requests without a valid session cookie.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Current(r)
		if !ok {
			httperrors.Message(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// ValidateMusician checks the fields every musician profile needs.
func ValidateMusician(m store.Musician) error {
	if strings.TrimSpace(m.Name) == "" {
		return apperr.Validation("name is required")
	}
	if err := validateEmail(m.Email); err != nil {
		return err
	}
	if m.Age < 0 {
		return apperr.Validation("age must not be negative")
	}
	if m.Rating < 0 || m.Rating >= 1000 {
		return apperr.Validation("rating must be between 0 and 999.99")
	}
	return nil
}

// ValidateOrganizer checks the fields every organizer profile needs.
func ValidateOrganizer(o store.EventOrganizer) error {
	if strings.TrimSpace(o.Name) == "" {
		return apperr.Validation("name is required")
	}
	if err := validateEmail(o.Email); err != nil {
		return err
	}
	if o.Age < 0 {
		return apperr.Validation("age must not be negative")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email %q is not a valid address", email)
	}
	return nil
}

// normalizeEmail reduces a parseable address such as "Ravi <r@x.com>" to its
// bare form. Unparseable input is returned trimmed for validateEmail to reject.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err == nil {
		return addr.Address
	}
	return email
}
