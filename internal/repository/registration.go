package repository

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for registration repository operations.
var (
	ErrAlreadyRegistered    = errors.New("already registered")
	ErrCapacityReached      = errors.New("event capacity reached")
	ErrRegistrationNotFound = errors.New("registration not found")
)

// RegistrationExists checks whether the user holds a slot for the event.
func (r *Repository) RegistrationExists(ctx context.Context, userID, eventID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}

	return exists, nil
}

// CountRegistrations returns the number of registrations for an event.
func (r *Repository) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	query := `SELECT COUNT(*) FROM registrations WHERE event_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}

	return count, nil
}

// InsertRegistration inserts the registration only while the event has fewer
// than capacity registrations. It returns ErrCapacityReached when no row was
// inserted and ErrAlreadyRegistered on a duplicate pair.
//
// The count and the insert are a single statement, but under READ COMMITTED
// two concurrent statements can both observe a free slot. Callers must hold
// the event row lock (LockEvent) in the same transaction.
func (r *Repository) InsertRegistration(ctx context.Context, userID, eventID int64, capacity int) error {
	query := `
		INSERT INTO registrations (user_id, event_id)
		SELECT $1::bigint, $2::bigint
		WHERE (SELECT COUNT(*) FROM registrations WHERE event_id = $2::bigint) < $3::bigint
	`

	result, err := r.db.Exec(ctx, query, userID, eventID, capacity)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("failed to insert registration: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCapacityReached
	}

	return nil
}

// DeleteRegistration removes the user's registration for the event.
func (r *Repository) DeleteRegistration(ctx context.Context, userID, eventID int64) error {
	query := `DELETE FROM registrations WHERE user_id = $1 AND event_id = $2`

	result, err := r.db.Exec(ctx, query, userID, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}

	return nil
}
