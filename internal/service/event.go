// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eventhub/eventhub/internal/cache"
	"github.com/eventhub/eventhub/internal/metrics"
	"github.com/eventhub/eventhub/internal/model"
	"github.com/eventhub/eventhub/internal/repository"
)

// Accepted ISO-8601 layouts for event datetimes. Layouts without a zone are
// interpreted as UTC.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

var validate = validator.New()

// EventCache is the read-through cache used for event details and stats.
// Writes carry the generation read before loading from the store and are
// dropped with cache.ErrStaleGeneration if an invalidation happened since.
type EventCache interface {
	Generation(ctx context.Context, id int64) (int64, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	SetEvent(ctx context.Context, gen int64, event *model.Event) error
	GetStats(ctx context.Context, id int64) (*model.Stats, error)
	SetStats(ctx context.Context, id, gen int64, stats *model.Stats) error
	InvalidateEvent(ctx context.Context, id int64) error
}

// EventService handles event and registration business logic.
type EventService struct {
	store   repository.Store
	cache   EventCache
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewEventService creates a new EventService. eventCache may be nil to disable
// caching.
func NewEventService(store repository.Store, eventCache EventCache, recorder metrics.Recorder, logger *slog.Logger) *EventService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		store:   store,
		cache:   eventCache,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateEventInput defines input for creating an event.
// Capacity holds the decoded JSON value as is; nil means it was absent or null.
type CreateEventInput struct {
	Title    string `validate:"required"`
	Datetime string `validate:"required"`
	Location string `validate:"required"`
	Capacity any
}

// CreateEvent validates the input and persists a new event.
func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*model.Event, error) {
	if err := validate.Struct(input); err != nil || input.Capacity == nil {
		return nil, ErrMissingFields
	}

	capacity, err := validateCapacity(input.Capacity)
	if err != nil {
		return nil, err
	}

	datetime, err := parseDatetime(input.Datetime)
	if err != nil {
		return nil, err
	}

	event := &model.Event{
		Title:         input.Title,
		Datetime:      datetime,
		Location:      input.Location,
		Capacity:      capacity,
		Registrations: []model.User{},
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.metrics.IncEventCreated()

	return event, nil
}

// GetEvent returns an event with its registered users.
func (s *EventService) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		event, err := s.cache.GetEvent(ctx, id)
		if err == nil {
			s.metrics.IncCacheHit()
			return event, nil
		}
		s.cacheLookupFailed(err, id)
		gen, cacheable = s.generation(ctx, id)
	}

	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}

	users, err := s.store.ListRegisteredUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	event.Registrations = nonNil(users[id])

	if cacheable {
		s.cacheStoreFailed(s.cache.SetEvent(ctx, gen, event), id)
	}

	return event, nil
}

// Register claims a slot on the event for the user. All checks and the insert
// run in one transaction holding the event row lock, so concurrent attempts at
// the last slot cannot both succeed.
func (s *EventService) Register(ctx context.Context, eventID, userID int64) error {
	if userID == 0 {
		s.metrics.IncRegistration(metrics.OutcomeRejected)
		return ErrMissingUserID
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return mapStoreError(err)
		}

		if event.IsPast(s.now()) {
			return ErrPastEvent
		}

		if _, err := tx.GetUser(ctx, userID); err != nil {
			return mapStoreError(err)
		}

		exists, err := tx.RegistrationExists(ctx, userID, eventID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyRegistered
		}

		count, err := tx.CountRegistrations(ctx, eventID)
		if err != nil {
			return err
		}
		if count >= event.Capacity {
			return ErrEventFull
		}

		return mapStoreError(tx.InsertRegistration(ctx, userID, eventID, event.Capacity))
	})

	s.metrics.IncRegistration(registrationOutcome(err))
	if err != nil {
		return err
	}

	s.invalidate(ctx, eventID)
	return nil
}

// Cancel releases the user's slot on the event.
func (s *EventService) Cancel(ctx context.Context, eventID, userID int64) error {
	if userID == 0 {
		return ErrMissingUserID
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetEvent(ctx, eventID); err != nil {
			return mapStoreError(err)
		}

		if _, err := tx.GetUser(ctx, userID); err != nil {
			return mapStoreError(err)
		}

		return mapStoreError(tx.DeleteRegistration(ctx, userID, eventID))
	})
	if err != nil {
		return err
	}

	s.metrics.IncCancellation()
	s.invalidate(ctx, eventID)
	return nil
}

// ListUpcoming returns events starting strictly after now, ordered by
// datetime and then location, each with its registered users.
func (s *EventService) ListUpcoming(ctx context.Context) ([]*model.Event, error) {
	now := s.now()

	events, err := s.store.ListEventsAfter(ctx, now)
	if err != nil {
		return nil, err
	}

	upcoming := make([]*model.Event, 0, len(events))
	ids := make([]int64, 0, len(events))
	for _, event := range events {
		if !event.IsUpcoming(now) {
			continue
		}
		upcoming = append(upcoming, event)
		ids = append(ids, event.ID)
	}

	users, err := s.store.ListRegisteredUsers(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for _, event := range upcoming {
		event.Registrations = nonNil(users[event.ID])
	}

	model.SortUpcoming(upcoming)

	return upcoming, nil
}

// Stats reports how much of an event's capacity is used.
func (s *EventService) Stats(ctx context.Context, id int64) (*model.Stats, error) {
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		stats, err := s.cache.GetStats(ctx, id)
		if err == nil {
			s.metrics.IncCacheHit()
			return stats, nil
		}
		s.cacheLookupFailed(err, id)
		gen, cacheable = s.generation(ctx, id)
	}

	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}

	total, err := s.store.CountRegistrations(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := model.ComputeStats(event.Capacity, total)

	if cacheable {
		s.cacheStoreFailed(s.cache.SetStats(ctx, id, gen, &stats), id)
	}

	return &stats, nil
}

// invalidate drops cached views of an event and fences off in-flight reads.
// Failures are logged; the TTL bounds staleness.
func (s *EventService) invalidate(ctx context.Context, eventID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
		s.logger.Warn("cache_invalidate_failed", "event_id", eventID, "error", err)
	}
}

func (s *EventService) cacheLookupFailed(err error, id int64) {
	s.metrics.IncCacheMiss()
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache_get_failed", "event_id", id, "error", err)
	}
}

// generation reads the cache generation that guards the write-back of a
// store read. The result is not cached when it cannot be read.
func (s *EventService) generation(ctx context.Context, id int64) (int64, bool) {
	gen, err := s.cache.Generation(ctx, id)
	if err != nil {
		s.logger.Warn("cache_generation_failed", "event_id", id, "error", err)
		return 0, false
	}
	return gen, true
}

func (s *EventService) cacheStoreFailed(err error, id int64) {
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStaleGeneration):
		s.logger.Debug("cache_set_skipped", "event_id", id, "reason", "invalidated during read")
	default:
		s.logger.Warn("cache_set_failed", "event_id", id, "error", err)
	}
}

// validateCapacity checks that capacity is a whole number within bounds.
// JSON numbers arrive as float64; any other type is rejected.
func validateCapacity(value any) (int, error) {
	var capacity float64
	switch v := value.(type) {
	case float64:
		capacity = v
	case int:
		capacity = float64(v)
	case int64:
		capacity = float64(v)
	default:
		return 0, ErrInvalidCapacity
	}

	if capacity != math.Trunc(capacity) || capacity < model.MinCapacity || capacity > model.MaxCapacity {
		return 0, ErrInvalidCapacity
	}
	return int(capacity), nil
}

// parseDatetime parses an ISO-8601 datetime.
func parseDatetime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// mapStoreError translates repository errors into service errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrEventNotFound):
		return ErrEventNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrRegistrationNotFound):
		return ErrNotRegistered
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return ErrAlreadyRegistered
	case errors.Is(err, repository.ErrCapacityReached):
		return ErrEventFull
	default:
		return err
	}
}

func registrationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrCapacity):
		return metrics.OutcomeFull
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func nonNil(users []model.User) []model.User {
	if users == nil {
		return []model.User{}
	}
	return users
}
