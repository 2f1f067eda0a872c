// Package testutil provides shared fixtures for tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventhub/eventhub/internal/model"
	"github.com/eventhub/eventhub/internal/repository"
)

type registrationKey struct {
	userID  int64
	eventID int64
}

type memState struct {
	events        map[int64]model.Event
	users         map[int64]model.User
	registrations map[registrationKey]time.Time
	nextEventID   int64
	nextUserID    int64
}

func (s *memState) clone() *memState {
	c := &memState{
		events:        make(map[int64]model.Event, len(s.events)),
		users:         make(map[int64]model.User, len(s.users)),
		registrations: make(map[registrationKey]time.Time, len(s.registrations)),
		nextEventID:   s.nextEventID,
		nextUserID:    s.nextUserID,
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	return c
}

// MemStore is an in-memory repository.Store. Transactions are serialized
// and applied only when the callback succeeds.
type MemStore struct {
	mu    sync.Mutex
	state *memState

	// Err, when set, is returned by every store operation.
	Err error
}

var _ repository.Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{state: (&memState{}).clone()}
}

// AddUser inserts a user and returns its ID.
func (m *MemStore) AddUser(name, email string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextUserID++
	id := m.state.nextUserID
	m.state.users[id] = model.User{ID: id, Name: name, Email: email}
	return id
}

// AddEvent inserts an event directly, bypassing validation, and returns its ID.
func (m *MemStore) AddEvent(title string, datetime time.Time, location string, capacity int) int64 {
	event := &model.Event{Title: title, Datetime: datetime, Location: location, Capacity: capacity}
	_ = m.CreateEvent(context.Background(), event)
	return event.ID
}

// RegistrationCount returns the committed number of registrations for an event.
func (m *MemStore) RegistrationCount(eventID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, _ := m.tx().CountRegistrations(context.Background(), eventID)
	return n
}

func (m *MemStore) tx() *memTx {
	return &memTx{state: m.state, err: m.Err}
}

// WithTx runs fn against a private copy of the state and commits the copy
// when fn succeeds.
func (m *MemStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := m.state.clone()
	if err := fn(&memTx{state: draft, err: m.Err}); err != nil {
		return err
	}
	m.state = draft
	return nil
}

// CreateEvent implements repository.Store.
func (m *MemStore) CreateEvent(ctx context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CreateEvent(ctx, event)
}

// GetEvent implements repository.Store.
func (m *MemStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetEvent(ctx, id)
}

// LockEvent implements repository.Store.
func (m *MemStore) LockEvent(ctx context.Context, id int64) (*model.Event, error) {
	return m.GetEvent(ctx, id)
}

// ListEventsAfter implements repository.Store.
func (m *MemStore) ListEventsAfter(ctx context.Context, after time.Time) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListEventsAfter(ctx, after)
}

// ListRegisteredUsers implements repository.Store.
func (m *MemStore) ListRegisteredUsers(ctx context.Context, eventIDs ...int64) (map[int64][]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListRegisteredUsers(ctx, eventIDs...)
}

// GetUser implements repository.Store.
func (m *MemStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetUser(ctx, id)
}

// RegistrationExists implements repository.Store.
func (m *MemStore) RegistrationExists(ctx context.Context, userID, eventID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().RegistrationExists(ctx, userID, eventID)
}

// CountRegistrations implements repository.Store.
func (m *MemStore) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CountRegistrations(ctx, eventID)
}

// InsertRegistration implements repository.Store.
func (m *MemStore) InsertRegistration(ctx context.Context, userID, eventID int64, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().InsertRegistration(ctx, userID, eventID, capacity)
}

// DeleteRegistration implements repository.Store.
func (m *MemStore) DeleteRegistration(ctx context.Context, userID, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().DeleteRegistration(ctx, userID, eventID)
}

// memTx operates on a state without locking; the owner holds MemStore.mu.
type memTx struct {
	state *memState
	err   error
}

func (t *memTx) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(t)
}

func (t *memTx) CreateEvent(ctx context.Context, event *model.Event) error {
	if t.err != nil {
		return t.err
	}
	t.state.nextEventID++
	event.ID = t.state.nextEventID
	stored := *event
	stored.Registrations = nil
	t.state.events[event.ID] = stored
	return nil
}

func (t *memTx) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	if t.err != nil {
		return nil, t.err
	}
	event, ok := t.state.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &event, nil
}

func (t *memTx) LockEvent(ctx context.Context, id int64) (*model.Event, error) {
	return t.GetEvent(ctx, id)
}

func (t *memTx) ListEventsAfter(ctx context.Context, after time.Time) ([]*model.Event, error) {
	if t.err != nil {
		return nil, t.err
	}
	var events []*model.Event
	for _, event := range t.state.events {
		if event.Datetime.After(after) {
			e := event
			events = append(events, &e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	model.SortUpcoming(events)
	return events, nil
}

func (t *memTx) ListRegisteredUsers(ctx context.Context, eventIDs ...int64) (map[int64][]model.User, error) {
	if t.err != nil {
		return nil, t.err
	}
	wanted := make(map[int64]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}

	keys := make([]registrationKey, 0, len(t.state.registrations))
	for key := range t.state.registrations {
		if wanted[key.eventID] {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].eventID != keys[j].eventID {
			return keys[i].eventID < keys[j].eventID
		}
		return keys[i].userID < keys[j].userID
	})

	result := make(map[int64][]model.User, len(eventIDs))
	for _, key := range keys {
		result[key.eventID] = append(result[key.eventID], t.state.users[key.userID])
	}
	return result, nil
}

func (t *memTx) GetUser(ctx context.Context, id int64) (*model.User, error) {
	if t.err != nil {
		return nil, t.err
	}
	user, ok := t.state.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (t *memTx) RegistrationExists(ctx context.Context, userID, eventID int64) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	_, ok := t.state.registrations[registrationKey{userID: userID, eventID: eventID}]
	return ok, nil
}

func (t *memTx) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n := 0
	for key := range t.state.registrations {
		if key.eventID == eventID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertRegistration(ctx context.Context, userID, eventID int64, capacity int) error {
	if t.err != nil {
		return t.err
	}
	key := registrationKey{userID: userID, eventID: eventID}
	if _, ok := t.state.registrations[key]; ok {
		return repository.ErrAlreadyRegistered
	}
	n, _ := t.CountRegistrations(ctx, eventID)
	if n >= capacity {
		return repository.ErrCapacityReached
	}
	t.state.registrations[key] = time.Now()
	return nil
}

func (t *memTx) DeleteRegistration(ctx context.Context, userID, eventID int64) error {
	if t.err != nil {
		return t.err
	}
	key := registrationKey{userID: userID, eventID: eventID}
	if _, ok := t.state.registrations[key]; !ok {
		return repository.ErrRegistrationNotFound
	}
	delete(t.state.registrations, key)
	return nil
}

// Ping reports the injected error, if any, so MemStore can stand in for a
// readiness dependency.
func (m *MemStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}
