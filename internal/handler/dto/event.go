// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/eventhub/eventhub/internal/model"
)

// CreateEventRequest represents the request body for creating an event.
// Fields are left unvalidated here; the service decides what is missing.
// Capacity keeps whatever JSON value was sent so a mistyped capacity is
// reported as invalid rather than as an undecodable body.
type CreateEventRequest struct {
	Title    string `json:"title"`
	Datetime string `json:"datetime"`
	Location string `json:"location"`
	Capacity any    `json:"capacity"`
}

// CreateEventResponse is returned after an event is created.
type CreateEventResponse struct {
	EventID int64 `json:"eventId"`
}

// RegistrationRequest is the body of register and cancel requests.
// UserID may be a JSON number or a numeric string.
type RegistrationRequest struct {
	UserID any `json:"userId"`
}

// UserResponse is a registered user as exposed by the API.
type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EventResponse represents an event in API responses.
type EventResponse struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Datetime      string         `json:"datetime"`
	Location      string         `json:"location"`
	Capacity      int            `json:"capacity"`
	Registrations []UserResponse `json:"registrations"`
}

// StatsResponse reports capacity usage of an event.
type StatsResponse struct {
	TotalRegistrations int `json:"totalRegistrations"`
	RemainingCapacity  int `json:"remainingCapacity"`
	PercentUsed        int `json:"percentUsed"`
}

// MessageResponse carries a human-readable message. Errors use it too.
type MessageResponse struct {
	Message string `json:"message"`
}

// ToEventResponse converts an Event model to EventResponse DTO.
func ToEventResponse(event *model.Event) *EventResponse {
	users := make([]UserResponse, len(event.Registrations))
	for i, u := range event.Registrations {
		users[i] = UserResponse{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return &EventResponse{
		ID:            event.ID,
		Title:         event.Title,
		Datetime:      event.Datetime.UTC().Format(time.RFC3339Nano),
		Location:      event.Location,
		Capacity:      event.Capacity,
		Registrations: users,
	}
}

// ToEventListResponse converts a slice of Event models.
func ToEventListResponse(events []*model.Event) []EventResponse {
	responses := make([]EventResponse, len(events))
	for i, event := range events {
		responses[i] = *ToEventResponse(event)
	}
	return responses
}

// ToStatsResponse converts Stats to StatsResponse.
func ToStatsResponse(stats *model.Stats) *StatsResponse {
	return &StatsResponse{
		TotalRegistrations: stats.TotalRegistrations,
		RemainingCapacity:  stats.RemainingCapacity,
		PercentUsed:        stats.PercentUsed,
	}
}
