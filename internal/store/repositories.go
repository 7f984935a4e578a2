package store

import "context"

// EventRepository handles event storage.
type EventRepository interface {
	Create(ctx context.Context, event Event) (*Event, error)
	GetByID(ctx context.Context, id int64) (*Event, error)
	List(ctx context.Context, filter EventFilter) ([]Event, error)
	Update(ctx context.Context, event Event) (*Event, error)
	SetSync(ctx context.Context, id int64, remoteID *string, state SyncState, syncErr *string) error
	Delete(ctx context.Context, id int64) error
}

// MusicianRepository handles musician profiles.
type MusicianRepository interface {
	Create(ctx context.Context, m Musician) (*Musician, error)
	GetByID(ctx context.Context, id int64) (*Musician, error)
	GetByEmail(ctx context.Context, email string) (*Musician, error)
	List(ctx context.Context) ([]Musician, error)
	Update(ctx context.Context, m Musician) (*Musician, error)
	Delete(ctx context.Context, id int64) error
}

// OrganizerRepository handles event organizer profiles.
type OrganizerRepository interface {
	Create(ctx context.Context, o EventOrganizer) (*EventOrganizer, error)
	GetByID(ctx context.Context, id int64) (*EventOrganizer, error)
	GetByEmail(ctx context.Context, email string) (*EventOrganizer, error)
	List(ctx context.Context) ([]EventOrganizer, error)
	Update(ctx context.Context, o EventOrganizer) (*EventOrganizer, error)
	Delete(ctx context.Context, id int64) error
}

// CredentialRepository stores login credentials.
type CredentialRepository interface {
	Create(ctx context.Context, c UserCredentials) (*UserCredentials, error)
	GetByEmail(ctx context.Context, email string) (*UserCredentials, error)
}
