package api

import (
	"net/http"
	"time"

	httperrors "gitea.jw6.us/james/gigboard/internal/http/errors"
	"gitea.jw6.us/james/gigboard/internal/store"
)

type musicianJSON struct {
	ID          int64     `json:"musician_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Age         int       `json:"age"`
	CreatedOn   time.Time `json:"created_on"`
	Category    string    `json:"category"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Rating      float64   `json:"ratings"`
	ProfileLine string    `json:"profileline"`
	ImageURL    string    `json:"imageAddress"`
}

type musicianRequest struct {
	Name        *string  `json:"name"`
	Email       *string  `json:"email"`
	Age         *int     `json:"age"`
	Category    *string  `json:"category"`
	Address     *string  `json:"address"`
	City        *string  `json:"city"`
	Country     *string  `json:"country"`
	Rating      *float64 `json:"ratings"`
	ProfileLine *string  `json:"profileline"`
	ImageURL    *string  `json:"imageAddress"`
}

func (req musicianRequest) apply(m *store.Musician) {
	setString(&m.Name, req.Name)
	setString(&m.Email, req.Email)
	setString(&m.Category, req.Category)
	setString(&m.Address, req.Address)
	setString(&m.City, req.City)
	setString(&m.Country, req.Country)
	setString(&m.ProfileLine, req.ProfileLine)
	setString(&m.ImageURL, req.ImageURL)
	if req.Age != nil {
		m.Age = *req.Age
	}
	if req.Rating != nil {
		m.Rating = *req.Rating
	}
}

func (h *Handler) toMusicianJSON(m *store.Musician) musicianJSON {
	return musicianJSON{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Age:         m.Age,
		CreatedOn:   m.CreatedAt.In(h.loc),
		Category:    m.Category,
		Address:     m.Address,
		City:        m.City,
		Country:     m.Country,
		Rating:      m.Rating,
		ProfileLine: m.ProfileLine,
		ImageURL:    m.ImageURL,
	}
}

type organizerJSON struct {
	ID          int64     `json:"eventorganizer_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Age         int       `json:"age"`
	CreatedOn   time.Time `json:"created_on"`
	ClubAddress string    `json:"club_address"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	ProfileLine string    `json:"profileline"`
	ImageURL    string    `json:"imageaddress"`
}

type organizerRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Age         *int    `json:"age"`
	ClubAddress *string `json:"club_address"`
	City        *string `json:"city"`
	Country     *string `json:"country"`
	ProfileLine *string `json:"profileline"`
	ImageURL    *string `json:"imageaddress"`
}

func (req organizerRequest) apply(o *store.EventOrganizer) {
	setString(&o.Name, req.Name)
	setString(&o.Email, req.Email)
	setString(&o.ClubAddress, req.ClubAddress)
	setString(&o.City, req.City)
	setString(&o.Country, req.Country)
	setString(&o.ProfileLine, req.ProfileLine)
	setString(&o.ImageURL, req.ImageURL)
	if req.Age != nil {
		o.Age = *req.Age
	}
}

func (h *Handler) toOrganizerJSON(o *store.EventOrganizer) organizerJSON {
	return organizerJSON{
		ID:          o.ID,
		Name:        o.Name,
		Email:       o.Email,
		Age:         o.Age,
		CreatedOn:   o.CreatedAt.In(h.loc),
		ClubAddress: o.ClubAddress,
		City:        o.City,
		Country:     o.Country,
		ProfileLine: o.ProfileLine,
		ImageURL:    o.ImageURL,
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// ListMusicians returns every musician profile.
func (h *Handler) ListMusicians(w http.ResponseWriter, r *http.Request) {
	musicians, err := h.store.Musicians.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]musicianJSON, 0, len(musicians))
	for i := range musicians {
		out = append(out, h.toMusicianJSON(&musicians[i]))
	}
	httperrors.JSON(w, http.StatusOK, out)
}

// CreateMusician registers a profile for an existing musician credential.
func (h *Handler) CreateMusician(w http.ResponseWriter, r *http.Request) {
	var req musicianRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	var m store.Musician
	req.apply(&m)
	if _, err := h.auth.RegisterMusician(r.Context(), m); err != nil {
		fail(w, r, err)
		return
	}
	httperrors.JSON(w, http.StatusCreated, messageResponse{Message: "Musician created successfully"})
}

// GetMusician returns one musician profile.
func (h *Handler) GetMusician(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	m, err := h.store.Musicians.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "musician", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toMusicianJSON(m))
}

// ReplaceMusician handles PUT on a musician profile.
func (h *Handler) ReplaceMusician(w http.ResponseWriter, r *http.Request) {
	h.updateMusician(w, r, true)
}

// PatchMusician handles PATCH on a musician profile.
func (h *Handler) PatchMusician(w http.ResponseWriter, r *http.Request) {
	h.updateMusician(w, r, false)
}

func (h *Handler) updateMusician(w http.ResponseWriter, r *http.Request, full bool) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req musicianRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	current, err := h.store.Musicians.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "musician", id))
		return
	}
	next := *current
	if full {
		next = store.Musician{ID: current.ID, CreatedAt: current.CreatedAt}
	}
	req.apply(&next)
	updated, err := h.auth.UpdateMusician(r.Context(), *current, next)
	if err != nil {
		fail(w, r, named(err, "musician", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toMusicianJSON(updated))
}

// DeleteMusician removes a musician profile.
func (h *Handler) DeleteMusician(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.store.Musicians.Delete(r.Context(), id); err != nil {
		fail(w, r, named(err, "musician", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOrganizers returns every event organizer profile.
func (h *Handler) ListOrganizers(w http.ResponseWriter, r *http.Request) {
	organizers, err := h.store.Organizers.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]organizerJSON, 0, len(organizers))
	for i := range organizers {
		out = append(out, h.toOrganizerJSON(&organizers[i]))
	}
	httperrors.JSON(w, http.StatusOK, out)
}

// CreateOrganizer registers a profile for an existing organizer credential.
func (h *Handler) CreateOrganizer(w http.ResponseWriter, r *http.Request) {
	var req organizerRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	var o store.EventOrganizer
	req.apply(&o)
	if _, err := h.auth.RegisterOrganizer(r.Context(), o); err != nil {
		fail(w, r, err)
		return
	}
	httperrors.JSON(w, http.StatusCreated, messageResponse{Message: "Event Organizer created successfully"})
}

// GetOrganizer returns one event organizer profile.
func (h *Handler) GetOrganizer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.store.Organizers.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "event organizer", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toOrganizerJSON(o))
}

// ReplaceOrganizer handles PUT on an organizer profile.
func (h *Handler) ReplaceOrganizer(w http.ResponseWriter, r *http.Request) {
	h.updateOrganizer(w, r, true)
}

// PatchOrganizer handles PATCH on an organizer profile.
func (h *Handler) PatchOrganizer(w http.ResponseWriter, r *http.Request) {
	h.updateOrganizer(w, r, false)
}

func (h *Handler) updateOrganizer(w http.ResponseWriter, r *http.Request, full bool) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req organizerRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	current, err := h.store.Organizers.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "event organizer", id))
		return
	}
	next := *current
	if full {
		next = store.EventOrganizer{ID: current.ID, CreatedAt: current.CreatedAt}
	}
	req.apply(&next)
	updated, err := h.auth.UpdateOrganizer(r.Context(), *current, next)
	if err != nil {
		fail(w, r, named(err, "event organizer", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toOrganizerJSON(updated))
}

// DeleteOrganizer removes an event organizer profile.
func (h *Handler) DeleteOrganizer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.store.Organizers.Delete(r.Context(), id); err != nil {
		fail(w, r, named(err, "event organizer", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
