package store

import (
	"strings"
	"time"
)

// SyncState describes whether the remote calendar mirrors the latest local write.
type SyncState string

const (
	SyncLocalOnly SyncState = "local_only"
	SyncSynced    SyncState = "synced"

	// Reported by delete operations only; the row is gone by then.
	SyncDeleted      SyncState = "deleted"
	SyncDeleteFailed SyncState = "delete_failed"
)

// Category tags a credential as belonging to a musician or an event organizer.
type Category string

const (
	CategoryMusician       Category = "musician"
	CategoryEventOrganizer Category = "event organizer"
)

// ParseCategory accepts the spellings clients have historically sent.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "musician":
		return CategoryMusician, true
	case "event organizer", "event_organizer", "eventorganizer", "event-organizer":
		return CategoryEventOrganizer, true
	}
	return "", false
}

// Event is a locally stored gig, optionally mirrored to the remote calendar.
type Event struct {
	ID             int64
	UID            string
	Name           string
	Location       string
	Description    string
	CreatedAt      time.Time
	StartsAt       time.Time
	EndsAt         time.Time
	OrganizerEmail string
	OrganizerName  string
	Attendees      string
	RemoteID       *string
	SyncState      SyncState
	SyncError      *string
	UpdatedAt      time.Time
}

// AttendeeList splits the comma separated attendee column.
func (e Event) AttendeeList() []string {
	var out []string
	for _, a := range strings.Split(e.Attendees, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// EventFilter narrows List results. Zero values match everything.
type EventFilter struct {
	OrganizerEmail string
	SyncState      SyncState
}

type Musician struct {
	ID          int64
	Name        string
	Email       string
	Age         int
	Category    string
	Address     string
	City        string
	Country     string
	Rating      float64
	ProfileLine string
	ImageURL    string
	CreatedAt   time.Time
}

type EventOrganizer struct {
	ID          int64
	Name        string
	Email       string
	Age         int
	ClubAddress string
	City        string
	Country     string
	ProfileLine string
	ImageURL    string
	CreatedAt   time.Time
}

// UserCredentials gates musician and organizer registration.
type UserCredentials struct {
	ID           int64
	CreatedAt    time.Time
	Category     Category
	Email        string
	PasswordHash string
}
