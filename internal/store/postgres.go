package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, uid, name, location, description, created_at, starts_at, ends_at,
organizer_email, organizer_name, attendees, remote_id, sync_state, sync_error, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var state string
	err := row.Scan(&e.ID, &e.UID, &e.Name, &e.Location, &e.Description, &e.CreatedAt, &e.StartsAt, &e.EndsAt,
		&e.OrganizerEmail, &e.OrganizerName, &e.Attendees, &e.RemoteID, &state, &e.SyncError, &e.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	e.SyncState = SyncState(state)
	return &e, nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	db DBTX
}

func (r *eventRepo) Create(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "events.create")()
	if event.SyncState == "" {
		event.SyncState = SyncLocalOnly
	}
	q := `INSERT INTO events (uid, name, location, description, starts_at, ends_at,
organizer_email, organizer_name, attendees, sync_state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + eventColumns
	created, err := scanEvent(r.db.QueryRow(ctx, q,
		event.UID, event.Name, event.Location, event.Description, event.StartsAt, event.EndsAt,
		event.OrganizerEmail, event.OrganizerName, event.Attendees, string(event.SyncState)))
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

func (r *eventRepo) GetByID(ctx context.Context, id int64) (*Event, error) {
	defer observeDB(ctx, "events.get")()
	ev, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return ev, nil
}

func (r *eventRepo) List(ctx context.Context, filter EventFilter) ([]Event, error) {
	defer observeDB(ctx, "events.list")()

	var (
		where []string
		args  []any
	)
	if filter.OrganizerEmail != "" {
		args = append(args, filter.OrganizerEmail)
		where = append(where, fmt.Sprintf("lower(organizer_email)=lower($%d)", len(args)))
	}
	if filter.SyncState != "" {
		args = append(args, string(filter.SyncState))
		where = append(where, fmt.Sprintf("sync_state=$%d", len(args)))
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY starts_at, id`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (r *eventRepo) Update(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "events.update")()
	q := `UPDATE events SET name=$2, location=$3, description=$4, starts_at=$5, ends_at=$6,
organizer_email=$7, organizer_name=$8, attendees=$9, updated_at=NOW()
WHERE id=$1
RETURNING ` + eventColumns
	updated, err := scanEvent(r.db.QueryRow(ctx, q,
		event.ID, event.Name, event.Location, event.Description, event.StartsAt, event.EndsAt,
		event.OrganizerEmail, event.OrganizerName, event.Attendees))
	if err != nil {
		return nil, fmt.Errorf("update event %d: %w", event.ID, err)
	}
	return updated, nil
}

func (r *eventRepo) SetSync(ctx context.Context, id int64, remoteID *string, state SyncState, syncErr *string) error {
	defer observeDB(ctx, "events.set_sync")()
	tag, err := r.db.Exec(ctx, `UPDATE events SET remote_id=$2, sync_state=$3, sync_error=$4 WHERE id=$1`,
		id, remoteID, string(state), syncErr)
	if err != nil {
		return fmt.Errorf("set sync state for event %d: %w", id, translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set sync state for event %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *eventRepo) Delete(ctx context.Context, id int64) error {
	defer observeDB(ctx, "events.delete")()
	return deleteByID(ctx, r.db, "events", id)
}

const musicianColumns = `id, name, email, age, category, address, city, country, rating, profile_line, image_url, created_at`

func scanMusician(row pgx.Row) (*Musician, error) {
	var m Musician
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Age, &m.Category, &m.Address, &m.City, &m.Country,
		&m.Rating, &m.ProfileLine, &m.ImageURL, &m.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &m, nil
}

// musicianRepo implements MusicianRepository.
type musicianRepo struct {
	db DBTX
}

func (r *musicianRepo) Create(ctx context.Context, m Musician) (*Musician, error) {
	defer observeDB(ctx, "musicians.create")()
	q := `INSERT INTO musicians (name, email, age, category, address, city, country, rating, profile_line, image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + musicianColumns
	created, err := scanMusician(r.db.QueryRow(ctx, q,
		m.Name, m.Email, m.Age, m.Category, m.Address, m.City, m.Country, m.Rating, m.ProfileLine, m.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("create musician: %w", err)
	}
	return created, nil
}

func (r *musicianRepo) GetByID(ctx context.Context, id int64) (*Musician, error) {
	defer observeDB(ctx, "musicians.get")()
	m, err := scanMusician(r.db.QueryRow(ctx, `SELECT `+musicianColumns+` FROM musicians WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("get musician %d: %w", id, err)
	}
	return m, nil
}

func (r *musicianRepo) GetByEmail(ctx context.Context, email string) (*Musician, error) {
	defer observeDB(ctx, "musicians.get_by_email")()
	m, err := scanMusician(r.db.QueryRow(ctx, `SELECT `+musicianColumns+` FROM musicians WHERE lower(email)=lower($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("get musician by email: %w", err)
	}
	return m, nil
}

func (r *musicianRepo) List(ctx context.Context) ([]Musician, error) {
	defer observeDB(ctx, "musicians.list")()
	rows, err := r.db.Query(ctx, `SELECT `+musicianColumns+` FROM musicians ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list musicians: %w", err)
	}
	defer rows.Close()

	var out []Musician
	for rows.Next() {
		m, err := scanMusician(rows)
		if err != nil {
			return nil, fmt.Errorf("scan musician: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *musicianRepo) Update(ctx context.Context, m Musician) (*Musician, error) {
	defer observeDB(ctx, "musicians.update")()
	q := `UPDATE musicians SET name=$2, email=$3, age=$4, category=$5, address=$6, city=$7, country=$8,
rating=$9, profile_line=$10, image_url=$11
WHERE id=$1
RETURNING ` + musicianColumns
	updated, err := scanMusician(r.db.QueryRow(ctx, q,
		m.ID, m.Name, m.Email, m.Age, m.Category, m.Address, m.City, m.Country, m.Rating, m.ProfileLine, m.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("update musician %d: %w", m.ID, err)
	}
	return updated, nil
}

func (r *musicianRepo) Delete(ctx context.Context, id int64) error {
	defer observeDB(ctx, "musicians.delete")()
	return deleteByID(ctx, r.db, "musicians", id)
}

const organizerColumns = `id, name, email, age, club_address, city, country, profile_line, image_url, created_at`

func scanOrganizer(row pgx.Row) (*EventOrganizer, error) {
	var o EventOrganizer
	err := row.Scan(&o.ID, &o.Name, &o.Email, &o.Age, &o.ClubAddress, &o.City, &o.Country,
		&o.ProfileLine, &o.ImageURL, &o.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &o, nil
}

// organizerRepo implements OrganizerRepository.
type organizerRepo struct {
	db DBTX
}

func (r *organizerRepo) Create(ctx context.Context, o EventOrganizer) (*EventOrganizer, error) {
	defer observeDB(ctx, "organizers.create")()
	q := `INSERT INTO event_organizers (name, email, age, club_address, city, country, profile_line, image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + organizerColumns
	created, err := scanOrganizer(r.db.QueryRow(ctx, q,
		o.Name, o.Email, o.Age, o.ClubAddress, o.City, o.Country, o.ProfileLine, o.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("create organizer: %w", err)
	}
	return created, nil
}

func (r *organizerRepo) GetByID(ctx context.Context, id int64) (*EventOrganizer, error) {
	defer observeDB(ctx, "organizers.get")()
	o, err := scanOrganizer(r.db.QueryRow(ctx, `SELECT `+organizerColumns+` FROM event_organizers WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("get organizer %d: %w", id, err)
	}
	return o, nil
}

func (r *organizerRepo) GetByEmail(ctx context.Context, email string) (*EventOrganizer, error) {
	defer observeDB(ctx, "organizers.get_by_email")()
	o, err := scanOrganizer(r.db.QueryRow(ctx, `SELECT `+organizerColumns+` FROM event_organizers WHERE lower(email)=lower($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("get organizer by email: %w", err)
	}
	return o, nil
}

func (r *organizerRepo) List(ctx context.Context) ([]EventOrganizer, error) {
	defer observeDB(ctx, "organizers.list")()
	rows, err := r.db.Query(ctx, `SELECT `+organizerColumns+` FROM event_organizers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organizers: %w", err)
	}
	defer rows.Close()

	var out []EventOrganizer
	for rows.Next() {
		o, err := scanOrganizer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organizer: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *organizerRepo) Update(ctx context.Context, o EventOrganizer) (*EventOrganizer, error) {
	defer observeDB(ctx, "organizers.update")()
	q := `UPDATE event_organizers SET name=$2, email=$3, age=$4, club_address=$5, city=$6, country=$7,
profile_line=$8, image_url=$9
WHERE id=$1
RETURNING ` + organizerColumns
	updated, err := scanOrganizer(r.db.QueryRow(ctx, q,
		o.ID, o.Name, o.Email, o.Age, o.ClubAddress, o.City, o.Country, o.ProfileLine, o.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("update organizer %d: %w", o.ID, err)
	}
	return updated, nil
}

func (r *organizerRepo) Delete(ctx context.Context, id int64) error {
	defer observeDB(ctx, "organizers.delete")()
	return deleteByID(ctx, r.db, "event_organizers", id)
}

// credentialRepo implements CredentialRepository.
type credentialRepo struct {
	db DBTX
}

func (r *credentialRepo) Create(ctx context.Context, c UserCredentials) (*UserCredentials, error) {
	defer observeDB(ctx, "credentials.create")()
	q := `INSERT INTO user_credentials (category, email, password_hash)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	if err := r.db.QueryRow(ctx, q, string(c.Category), c.Email, c.PasswordHash).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("create credentials: %w", translateError(err))
	}
	return &c, nil
}

func (r *credentialRepo) GetByEmail(ctx context.Context, email string) (*UserCredentials, error) {
	defer observeDB(ctx, "credentials.get_by_email")()
	var c UserCredentials
	var category string
	q := `SELECT id, created_at, category, email, password_hash FROM user_credentials WHERE lower(email)=lower($1)`
	if err := r.db.QueryRow(ctx, q, email).Scan(&c.ID, &c.CreatedAt, &category, &c.Email, &c.PasswordHash); err != nil {
		return nil, fmt.Errorf("get credentials by email: %w", translateError(err))
	}
	c.Category = Category(category)
	return &c, nil
}

// deleteByID removes one row; table names are package constants, never user input.
func deleteByID(ctx context.Context, db DBTX, table string, id int64) error {
	tag, err := db.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %d from %s: %w", id, table, ErrNotFound)
	}
	return nil
}
