package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"gitea.jw6.us/james/gigboard/internal/store"
)

const icsProductID = "-//gigboard//EN"

// ExportEvent serves one event as an iCalendar file.
func (h *Handler) ExportEvent(w http.ResponseWriter, r *http.Request) {
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
	h.writeCalendar(w, r, fmt.Sprintf("event-%d.ics", id), []store.Event{*ev})
}

// ExportEvents serves every event, optionally narrowed by ?email=, as one
// iCalendar file.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	filter := store.EventFilter{OrganizerEmail: strings.TrimSpace(r.URL.Query().Get("email"))}
	events, err := h.store.Events.List(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCalendar(w, r, "events.ics", events)
}

func (h *Handler) writeCalendar(w http.ResponseWriter, r *http.Request, filename string, events []store.Event) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(toCalendar(events, h.now().UTC())); err != nil {
		fail(w, r, fmt.Errorf("encode calendar: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func toCalendar(events []store.Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icsProductID)
	for i := range events {
		cal.Children = append(cal.Children, toVEvent(&events[i], stamp))
	}
	return cal
}

func toVEvent(ev *store.Event, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.UID)
	ve.Props.SetText(ical.PropSummary, ev.Name)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartsAt.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndsAt.UTC())

	if ev.Location != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.OrganizerEmail != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.Value = "mailto:" + ev.OrganizerEmail
		if ev.OrganizerName != "" {
			p.Params.Set(ical.ParamCommonName, ev.OrganizerName)
		}
		ve.Props.Add(p)
	}
	for _, attendee := range ev.AttendeeList() {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + attendee
		ve.Props.Add(p)
	}
	return ve
}
