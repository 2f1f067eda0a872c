package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eventhub/eventhub/internal/model"
)

// Common errors for event repository operations.
var (
	ErrEventNotFound = errors.New("event not found")
)

const eventColumns = `id, title, datetime, location, capacity`

// CreateEvent inserts a new event and sets its generated ID.
func (r *Repository) CreateEvent(ctx context.Context, event *model.Event) error {
	query := `
		INSERT INTO events (title, datetime, location, capacity)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		event.Title,
		event.Datetime,
		event.Location,
		event.Capacity,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEvent retrieves an event by its ID.
func (r *Repository) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// LockEvent retrieves an event and holds a row lock on it until the
// surrounding transaction ends. Outside a transaction it behaves like GetEvent.
func (r *Repository) LockEvent(ctx context.Context, id int64) (*model.Event, error) {
	if r.tx == nil {
		return r.GetEvent(ctx, id)
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 FOR UPDATE`

	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	return event, nil
}

// ListEventsAfter returns events starting strictly after the given instant,
// ordered by datetime and then location.
func (r *Repository) ListEventsAfter(ctx context.Context, after time.Time) ([]*model.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE datetime > $1
		ORDER BY datetime ASC, location COLLATE "C" ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// ListRegisteredUsers returns the users registered for each of the given
// events, keyed by event ID.
func (r *Repository) ListRegisteredUsers(ctx context.Context, eventIDs ...int64) (map[int64][]model.User, error) {
	result := make(map[int64][]model.User, len(eventIDs))
	if len(eventIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT r.event_id, u.id, u.name, u.email
		FROM registrations r
		JOIN users u ON u.id = r.user_id
		WHERE r.event_id = ANY($1)
		ORDER BY r.event_id, r.created_at, u.id
	`

	rows, err := r.db.Query(ctx, query, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			user    model.User
		)
		if err := rows.Scan(&eventID, &user.ID, &user.Name, &user.Email); err != nil {
			return nil, fmt.Errorf("failed to scan registered user: %w", err)
		}
		result[eventID] = append(result[eventID], user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registered users: %w", err)
	}

	return result, nil
}

// scanEvent scans a single row into an Event model.
func scanEvent(row pgx.Row) (*model.Event, error) {
	var event model.Event
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Datetime,
		&event.Location,
		&event.Capacity,
	)
	if err != nil {
		return nil, err
	}
	event.Datetime = event.Datetime.UTC()
	return &event, nil
}
