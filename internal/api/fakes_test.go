package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"golang.org/x/crypto/bcrypt"

	"gitea.jw6.us/james/gigboard/internal/auth"
	"gitea.jw6.us/james/gigboard/internal/config"
	"gitea.jw6.us/james/gigboard/internal/store"
	"gitea.jw6.us/james/gigboard/internal/syncer"
)

var testCreatedAt = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

type fakeEventRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]store.Event
}

func (f *fakeEventRepo) Create(ctx context.Context, ev store.Event) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ev.ID = f.nextID
	ev.CreatedAt, ev.UpdatedAt = testCreatedAt, testCreatedAt
	f.rows[ev.ID] = ev
	return &ev, nil
}

func (f *fakeEventRepo) GetByID(ctx context.Context, id int64) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ev, nil
}

func (f *fakeEventRepo) List(ctx context.Context, filter store.EventFilter) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Event{}
	for _, ev := range f.rows {
		if filter.OrganizerEmail != "" && ev.OrganizerEmail != filter.OrganizerEmail {
			continue
		}
		if filter.SyncState != "" && ev.SyncState != filter.SyncState {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEventRepo) Update(ctx context.Context, ev store.Event) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[ev.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	ev.RemoteID, ev.SyncState, ev.SyncError = cur.RemoteID, cur.SyncState, cur.SyncError
	f.rows[ev.ID] = ev
	return &ev, nil
}

func (f *fakeEventRepo) SetSync(ctx context.Context, id int64, remoteID *string, state store.SyncState, syncErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	ev.RemoteID, ev.SyncState, ev.SyncError = remoteID, state, syncErr
	f.rows[id] = ev
	return nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeCalendar struct {
	mu        sync.Mutex
	created   int
	updates   []string
	deletes   []string
	createErr error
	updateErr error
	deleteErr error
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev store.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("remote-%d", f.created), nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, remoteID string, ev store.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, remoteID)
	return f.updateErr
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, remoteID)
	return f.deleteErr
}

type fakeMusicians struct {
	nextID int64
	rows   map[int64]store.Musician
}

func (f *fakeMusicians) Create(ctx context.Context, m store.Musician) (*store.Musician, error) {
	for _, row := range f.rows {
		if row.Email == m.Email {
			return nil, store.ErrConflict
		}
	}
	f.nextID++
	m.ID, m.CreatedAt = f.nextID, testCreatedAt
	f.rows[m.ID] = m
	return &m, nil
}

func (f *fakeMusicians) GetByID(ctx context.Context, id int64) (*store.Musician, error) {
	m, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMusicians) GetByEmail(ctx context.Context, email string) (*store.Musician, error) {
	for _, m := range f.rows {
		if m.Email == email {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMusicians) List(ctx context.Context) ([]store.Musician, error) {
	out := []store.Musician{}
	for _, m := range f.rows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMusicians) Update(ctx context.Context, m store.Musician) (*store.Musician, error) {
	if _, ok := f.rows[m.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.rows[m.ID] = m
	return &m, nil
}

func (f *fakeMusicians) Delete(ctx context.Context, id int64) error {
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeOrganizers struct {
	nextID int64
	rows   map[int64]store.EventOrganizer
}

func (f *fakeOrganizers) Create(ctx context.Context, o store.EventOrganizer) (*store.EventOrganizer, error) {
	for _, row := range f.rows {
		if row.Email == o.Email {
			return nil, store.ErrConflict
		}
	}
	f.nextID++
	o.ID, o.CreatedAt = f.nextID, testCreatedAt
	f.rows[o.ID] = o
	return &o, nil
}

func (f *fakeOrganizers) GetByID(ctx context.Context, id int64) (*store.EventOrganizer, error) {
	o, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (f *fakeOrganizers) GetByEmail(ctx context.Context, email string) (*store.EventOrganizer, error) {
	for _, o := range f.rows {
		if o.Email == email {
			return &o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrganizers) List(ctx context.Context) ([]store.EventOrganizer, error) {
	out := []store.EventOrganizer{}
	for _, o := range f.rows {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrganizers) Update(ctx context.Context, o store.EventOrganizer) (*store.EventOrganizer, error) {
	if _, ok := f.rows[o.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.rows[o.ID] = o
	return &o, nil
}

func (f *fakeOrganizers) Delete(ctx context.Context, id int64) error {
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeCredentials struct {
	nextID int64
	rows   map[string]store.UserCredentials
}

func (f *fakeCredentials) Create(ctx context.Context, c store.UserCredentials) (*store.UserCredentials, error) {
	if _, ok := f.rows[c.Email]; ok {
		return nil, store.ErrConflict
	}
	f.nextID++
	c.ID, c.CreatedAt = f.nextID, testCreatedAt
	f.rows[c.Email] = c
	return &c, nil
}

func (f *fakeCredentials) GetByEmail(ctx context.Context, email string) (*store.UserCredentials, error) {
	c, ok := f.rows[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

// add stores a credential with a cheap bcrypt hash of password.
func (f *fakeCredentials) add(t *testing.T, email, password string, category store.Category) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	f.nextID++
	f.rows[email] = store.UserCredentials{ID: f.nextID, Email: email, Category: category, PasswordHash: string(hash), CreatedAt: testCreatedAt}
}

type testEnv struct {
	handler    *Handler
	events     *fakeEventRepo
	cal        *fakeCalendar
	musicians  *fakeMusicians
	organizers *fakeOrganizers
	creds      *fakeCredentials
	sessions   *auth.SessionManager
}

// newTestEnv wires a Handler over in-memory fakes. With withCalendar false the
// syncer runs with sync disabled.
func newTestEnv(t *testing.T, withCalendar bool) *testEnv {
	t.Helper()
	env := &testEnv{
		events:     &fakeEventRepo{rows: map[int64]store.Event{}},
		cal:        &fakeCalendar{},
		musicians:  &fakeMusicians{rows: map[int64]store.Musician{}},
		organizers: &fakeOrganizers{rows: map[int64]store.EventOrganizer{}},
		creds:      &fakeCredentials{rows: map[string]store.UserCredentials{}},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var svc *syncer.Service
	if withCalendar {
		svc = syncer.New(env.events, env.cal, logger)
	} else {
		svc = syncer.New(env.events, nil, logger)
	}

	cfg := &config.Config{BaseURL: "http://localhost:8080"}
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	env.sessions = auth.NewSessionManager(cfg)
	authService := auth.NewService(auth.Deps{
		Credentials: env.creds,
		Musicians:   env.musicians,
		Organizers:  env.organizers,
		Sessions:    env.sessions,
	})

	s := &store.Store{Events: env.events, Musicians: env.musicians, Organizers: env.organizers, Credentials: env.creds}
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	env.handler = NewHandler(s, svc, authService, loc)
	env.handler.now = func() time.Time { return time.Date(2024, 2, 20, 8, 0, 0, 0, time.UTC) }
	return env
}
