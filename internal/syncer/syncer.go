// Package syncer applies event mutations locally and mirrors them to the
// remote calendar. The local write is authoritative; the remote call is best
// effort and its outcome is reported, never rolled back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	"gitea.jw6.us/james/gigboard/internal/metrics"
	"gitea.jw6.us/james/gigboard/internal/store"
)

// Calendar is the remote mirror. *calendar.Google satisfies it.
type Calendar interface {
	CreateEvent(ctx context.Context, ev store.Event) (string, error)
	UpdateEvent(ctx context.Context, remoteID string, ev store.Event) error
	DeleteEvent(ctx context.Context, remoteID string) error
}

// EventPatch carries the fields of a partial update; nil fields are left alone.
type EventPatch struct {
	Name           *string
	Location       *string
	Description    *string
	StartsAt       *time.Time
	EndsAt         *time.Time
	OrganizerEmail *string
	OrganizerName  *string
	Attendees      *string
}

// FullPatch turns a complete event into a patch that replaces every mutable field.
func FullPatch(ev store.Event) EventPatch {
	return EventPatch{
		Name:           &ev.Name,
		Location:       &ev.Location,
		Description:    &ev.Description,
		StartsAt:       &ev.StartsAt,
		EndsAt:         &ev.EndsAt,
		OrganizerEmail: &ev.OrganizerEmail,
		OrganizerName:  &ev.OrganizerName,
		Attendees:      &ev.Attendees,
	}
}

func (p EventPatch) apply(ev *store.Event) {
	if p.Name != nil {
		ev.Name = *p.Name
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.StartsAt != nil {
		ev.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		ev.EndsAt = *p.EndsAt
	}
	if p.OrganizerEmail != nil {
		ev.OrganizerEmail = *p.OrganizerEmail
	}
	if p.OrganizerName != nil {
		ev.OrganizerName = *p.OrganizerName
	}
	if p.Attendees != nil {
		ev.Attendees = *p.Attendees
	}
}

// Result reports the outcome of a mutation. Warning is set when the local
// write succeeded but the remote mirror did not follow.
type Result struct {
	Event    *store.Event
	State    store.SyncState
	RemoteID string
	Warning  string
}

// ReconcileReport summarizes one Reconcile pass.
type ReconcileReport struct {
	Checked int
	Synced  int
	Failed  int
}

// Service orchestrates event mutations.
type Service struct {
	events store.EventRepository
	cal    Calendar
	logger *slog.Logger
	newUID func() string
}

// New returns a Service. cal may be nil when calendar sync is disabled.
func New(events store.EventRepository, cal Calendar, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{events: events, cal: cal, logger: logger, newUID: uuid.NewString}
}

// SyncEnabled reports whether a remote calendar is configured.
func (s *Service) SyncEnabled() bool { return s.cal != nil }

const syncDisabledWarning = "calendar sync is disabled"

// Create stores ev and mirrors it to the remote calendar.
func (s *Service) Create(ctx context.Context, ev store.Event) (*Result, error) {
	normalize(&ev)
	if err := Validate(ev); err != nil {
		return nil, err
	}
	ev.UID = s.newUID()
	ev.SyncState = store.SyncLocalOnly
	ev.RemoteID = nil
	ev.SyncError = nil

	created, err := s.events.Create(ctx, ev)
	if err != nil {
		return nil, err
	}
	res := s.push(ctx, "create", created)
	metrics.RecordSyncOutcome("create", string(res.State))
	return res, nil
}

// Update applies patch to event id, validates the result and mirrors it.
func (s *Service) Update(ctx context.Context, id int64, patch EventPatch) (*Result, error) {
	current, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	patch.apply(&next)
	normalize(&next)
	if err := Validate(next); err != nil {
		return nil, err
	}

	updated, err := s.events.Update(ctx, next)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch {
	case updated.RemoteID == nil:
		res = &Result{Event: updated, State: updated.SyncState}
		if s.cal == nil {
			res.Warning = syncDisabledWarning
		}
	case s.cal == nil:
		res = s.markLocalOnly(ctx, updated, updated.RemoteID, syncDisabledWarning)
	default:
		res = s.pushUpdate(ctx, updated, false)
	}
	metrics.RecordSyncOutcome("update", string(res.State))
	return res, nil
}

// Delete removes the remote mirror first, then the local row. A remote failure
// is reported but never blocks the local delete.
func (s *Service) Delete(ctx context.Context, id int64) (*Result, error) {
	current, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &Result{Event: current, State: store.SyncDeleted}
	if current.RemoteID != nil {
		res.RemoteID = *current.RemoteID
		if s.cal == nil {
			res.State = store.SyncDeleteFailed
			res.Warning = syncDisabledWarning + "; remote event left in place"
		} else if err := s.cal.DeleteEvent(ctx, *current.RemoteID); err != nil {
			s.logger.Warn("remote delete failed", "event_id", id, "remote_id", *current.RemoteID, "error", err)
			res.State = store.SyncDeleteFailed
			res.Warning = "remote calendar delete failed: " + errorMessage(err)
		}
	}

	if err := s.events.Delete(ctx, id); err != nil {
		return nil, err
	}
	metrics.RecordSyncOutcome("delete", string(res.State))
	return res, nil
}

// Resync pushes a local_only event to the remote calendar on operator request.
func (s *Service) Resync(ctx context.Context, id int64) (*Result, error) {
	if s.cal == nil {
		return nil, apperr.Validation(syncDisabledWarning)
	}
	current, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SyncState == store.SyncSynced {
		return &Result{Event: current, State: store.SyncSynced, RemoteID: deref(current.RemoteID)}, nil
	}

	var res *Result
	if current.RemoteID == nil {
		res = s.push(ctx, "resync", current)
	} else {
		res = s.pushUpdate(ctx, current, true)
	}
	metrics.RecordSyncOutcome("resync", string(res.State))
	return res, nil
}

// Reconcile resyncs every local_only event once.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if s.cal == nil {
		return report, apperr.Validation(syncDisabledWarning)
	}
	pending, err := s.events.List(ctx, store.EventFilter{SyncState: store.SyncLocalOnly})
	if err != nil {
		return report, err
	}
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		res, err := s.Resync(ctx, ev.ID)
		switch {
		case err != nil:
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			report.Failed++
			s.logger.Error("reconcile event failed", "event_id", ev.ID, "error", err)
		case res.State == store.SyncSynced:
			report.Synced++
		default:
			report.Failed++
		}
	}
	s.logger.Info("reconcile finished", "checked", report.Checked, "synced", report.Synced, "failed", report.Failed)
	return report, nil
}

// push creates the remote mirror of ev and records the returned identifier.
func (s *Service) push(ctx context.Context, op string, ev *store.Event) *Result {
	if s.cal == nil {
		return &Result{Event: ev, State: ev.SyncState, Warning: syncDisabledWarning}
	}

	remoteID, err := s.cal.CreateEvent(ctx, *ev)
	if err != nil {
		s.logger.Warn("remote create failed", "op", op, "event_id", ev.ID, "error", err)
		return s.markLocalOnly(ctx, ev, nil, "remote calendar create failed: "+errorMessage(err))
	}

	if err := s.events.SetSync(ctx, ev.ID, &remoteID, store.SyncSynced, nil); err != nil {
		s.logger.Error("recording remote id failed", "event_id", ev.ID, "remote_id", remoteID, "error", err)
		return &Result{Event: ev, State: ev.SyncState, RemoteID: remoteID,
			Warning: "remote event created but its id could not be recorded"}
	}
	ev.RemoteID = &remoteID
	ev.SyncState = store.SyncSynced
	ev.SyncError = nil
	return &Result{Event: ev, State: store.SyncSynced, RemoteID: remoteID}
}

// pushUpdate re-sends ev to its existing remote mirror. With recreateMissing
// a mirror that vanished remotely is created again.
func (s *Service) pushUpdate(ctx context.Context, ev *store.Event, recreateMissing bool) *Result {
	remoteID := *ev.RemoteID
	err := s.cal.UpdateEvent(ctx, remoteID, *ev)
	if err == nil {
		if err := s.events.SetSync(ctx, ev.ID, &remoteID, store.SyncSynced, nil); err != nil {
			s.logger.Error("recording sync state failed", "event_id", ev.ID, "error", err)
			return &Result{Event: ev, State: ev.SyncState, RemoteID: remoteID,
				Warning: "remote event updated but sync state could not be recorded"}
		}
		ev.SyncState = store.SyncSynced
		ev.SyncError = nil
		return &Result{Event: ev, State: store.SyncSynced, RemoteID: remoteID}
	}

	s.logger.Warn("remote update failed", "event_id", ev.ID, "remote_id", remoteID, "error", err)
	if recreateMissing && apperr.Is(err, apperr.KindNotFound) {
		ev.RemoteID = nil
		return s.push(ctx, "resync", ev)
	}
	return s.markLocalOnly(ctx, ev, &remoteID, "remote calendar update failed: "+errorMessage(err))
}

func (s *Service) markLocalOnly(ctx context.Context, ev *store.Event, remoteID *string, warning string) *Result {
	if err := s.events.SetSync(ctx, ev.ID, remoteID, store.SyncLocalOnly, &warning); err != nil {
		s.logger.Error("recording sync failure failed", "event_id", ev.ID, "error", err)
	} else {
		ev.SyncState = store.SyncLocalOnly
		ev.SyncError = &warning
	}
	return &Result{Event: ev, State: store.SyncLocalOnly, RemoteID: deref(remoteID), Warning: warning}
}

// Validate checks the fields every stored event must carry.
func Validate(ev store.Event) error {
	if ev.Name == "" {
		return apperr.Validation("name is required")
	}
	if ev.OrganizerEmail == "" {
		return apperr.Validation("organizer_email is required")
	}
	if !isBareAddress(ev.OrganizerEmail) {
		return apperr.Validation("organizer_email %q is not a valid address", ev.OrganizerEmail)
	}
	if ev.StartsAt.IsZero() || ev.EndsAt.IsZero() {
		return apperr.Validation("start and end times are required")
	}
	if ev.StartsAt.After(ev.EndsAt) {
		return apperr.Validation("start time must not be after end time")
	}
	for _, a := range ev.AttendeeList() {
		if !isBareAddress(a) {
			return apperr.Validation("attendee %q is not a valid address", a)
		}
	}
	return nil
}

// isBareAddress accepts "a@x.com" but not "Name <a@x.com>".
func isBareAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// bareAddress strips a display name from a parseable address and leaves
// anything else for Validate to reject.
func bareAddress(s string) string {
	s = strings.TrimSpace(s)
	if addr, err := mail.ParseAddress(s); err == nil {
		return addr.Address
	}
	return s
}

func normalize(ev *store.Event) {
	ev.Name = strings.TrimSpace(ev.Name)
	ev.OrganizerEmail = bareAddress(ev.OrganizerEmail)
	ev.OrganizerName = strings.TrimSpace(ev.OrganizerName)
	attendees := ev.AttendeeList()
	for i, a := range attendees {
		attendees[i] = bareAddress(a)
	}
	ev.Attendees = strings.Join(attendees, ", ")
}

func errorMessage(err error) string {
	if msg := apperr.MessageOf(err); msg != "" {
		return msg
	}
	return fmt.Sprint(err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
