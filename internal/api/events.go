package api

import (
	"net/http"
	"strings"
	"time"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	httperrors "gitea.jw6.us/james/gigboard/internal/http/errors"
	"gitea.jw6.us/james/gigboard/internal/store"
	"gitea.jw6.us/james/gigboard/internal/syncer"
)

type eventResponse struct {
	ID             int64     `json:"event_id"`
	UID            string    `json:"uid"`
	Name           string    `json:"event_name"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	CreatedOn      time.Time `json:"created_on"`
	StartsAt       time.Time `json:"event_start_date"`
	EndsAt         time.Time `json:"event_end_date"`
	OrganizerEmail string    `json:"event_organiser_email"`
	OrganizerName  string    `json:"event_organiser_name"`
	Attendees      string    `json:"attendees"`
	RemoteID       *string   `json:"google_event_id"`
	SyncState      string    `json:"sync_state"`
	SyncError      *string   `json:"sync_error"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type syncResponse struct {
	State    string `json:"state"`
	RemoteID string `json:"remote_id,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

type eventMutationResponse struct {
	Message string         `json:"message,omitempty"`
	Event   *eventResponse `json:"event,omitempty"`
	Sync    syncResponse   `json:"sync"`
}

// eventRequest mirrors eventResponse's writable fields. Absent fields stay nil.
type eventRequest struct {
	Name           *string `json:"event_name"`
	Location       *string `json:"location"`
	Description    *string `json:"description"`
	StartsAt       *string `json:"event_start_date"`
	EndsAt         *string `json:"event_end_date"`
	OrganizerEmail *string `json:"event_organiser_email"`
	OrganizerName  *string `json:"event_organiser_name"`
	Attendees      *string `json:"attendees"`
}

func (h *Handler) toEventResponse(ev *store.Event) *eventResponse {
	return &eventResponse{
		ID:             ev.ID,
		UID:            ev.UID,
		Name:           ev.Name,
		Location:       ev.Location,
		Description:    ev.Description,
		CreatedOn:      ev.CreatedAt.In(h.loc),
		StartsAt:       ev.StartsAt.In(h.loc),
		EndsAt:         ev.EndsAt.In(h.loc),
		OrganizerEmail: ev.OrganizerEmail,
		OrganizerName:  ev.OrganizerName,
		Attendees:      ev.Attendees,
		RemoteID:       ev.RemoteID,
		SyncState:      string(ev.SyncState),
		SyncError:      ev.SyncError,
		UpdatedAt:      ev.UpdatedAt.In(h.loc),
	}
}

func toSyncResponse(res *syncer.Result) syncResponse {
	return syncResponse{State: string(res.State), RemoteID: res.RemoteID, Warning: res.Warning}
}

// patch converts the request into a syncer patch, parsing timestamps in loc.
func (req eventRequest) patch(loc *time.Location) (syncer.EventPatch, error) {
	p := syncer.EventPatch{
		Name:           req.Name,
		Location:       req.Location,
		Description:    req.Description,
		OrganizerEmail: req.OrganizerEmail,
		OrganizerName:  req.OrganizerName,
		Attendees:      req.Attendees,
	}
	if req.StartsAt != nil {
		t, err := parseTime("event_start_date", *req.StartsAt, loc)
		if err != nil {
			return p, err
		}
		p.StartsAt = &t
	}
	if req.EndsAt != nil {
		t, err := parseTime("event_end_date", *req.EndsAt, loc)
		if err != nil {
			return p, err
		}
		p.EndsAt = &t
	}
	return p, nil
}

// event builds a complete event; absent fields are left empty.
func (req eventRequest) event(loc *time.Location) (store.Event, error) {
	var ev store.Event
	if req.StartsAt == nil || req.EndsAt == nil {
		return ev, apperr.Validation("event_start_date and event_end_date are required")
	}
	p, err := req.patch(loc)
	if err != nil {
		return ev, err
	}
	ev.StartsAt, ev.EndsAt = *p.StartsAt, *p.EndsAt
	ev.Name = deref(p.Name)
	ev.Location = deref(p.Location)
	ev.Description = deref(p.Description)
	ev.OrganizerEmail = deref(p.OrganizerEmail)
	ev.OrganizerName = deref(p.OrganizerName)
	ev.Attendees = deref(p.Attendees)
	return ev, nil
}

// ListEvents returns every event.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	h.writeEvents(w, r, store.EventFilter{})
}

// FilterEventsByEmail returns the events of one organizer.
func (h *Handler) FilterEventsByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		httperrors.Message(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	h.writeEvents(w, r, store.EventFilter{OrganizerEmail: email})
}

func (h *Handler) writeEvents(w http.ResponseWriter, r *http.Request, filter store.EventFilter) {
	events, err := h.store.Events.List(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]*eventResponse, 0, len(events))
	for i := range events {
		out = append(out, h.toEventResponse(&events[i]))
	}
	httperrors.JSON(w, http.StatusOK, out)
}

// GetEvent returns one event.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	ev, err := h.store.Events.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "event", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, h.toEventResponse(ev))
}

// CreateEvent stores a new event and mirrors it to the remote calendar.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ev, err := req.event(h.loc)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.sync.Create(r.Context(), ev)
	if err != nil {
		fail(w, r, err)
		return
	}
	httperrors.JSON(w, http.StatusCreated, eventMutationResponse{
		Message: "Event created successfully",
		Event:   h.toEventResponse(res.Event),
		Sync:    toSyncResponse(res),
	})
}

// ReplaceEvent handles PUT: every writable field is replaced.
func (h *Handler) ReplaceEvent(w http.ResponseWriter, r *http.Request) {
	h.updateEvent(w, r, true)
}

// PatchEvent handles PATCH: only the fields present are changed.
func (h *Handler) PatchEvent(w http.ResponseWriter, r *http.Request) {
	h.updateEvent(w, r, false)
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request, full bool) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req eventRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	var patch syncer.EventPatch
	if full {
		ev, err := req.event(h.loc)
		if err != nil {
			fail(w, r, err)
			return
		}
		patch = syncer.FullPatch(ev)
	} else if patch, err = req.patch(h.loc); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.sync.Update(r.Context(), id, patch)
	if err != nil {
		fail(w, r, named(err, "event", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, eventMutationResponse{
		Message: "Event updated successfully",
		Event:   h.toEventResponse(res.Event),
		Sync:    toSyncResponse(res),
	})
}

// DeleteEvent removes the event locally and from the remote calendar.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.sync.Delete(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "event", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, eventMutationResponse{
		Message: "Event deleted successfully",
		Sync:    toSyncResponse(res),
	})
}

// ResyncEvent retries the remote mirror of a local_only event.
func (h *Handler) ResyncEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.sync.Resync(r.Context(), id)
	if err != nil {
		fail(w, r, named(err, "event", id))
		return
	}
	httperrors.JSON(w, http.StatusOK, eventMutationResponse{
		Event: h.toEventResponse(res.Event),
		Sync:  toSyncResponse(res),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
