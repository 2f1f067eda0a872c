package model

import (
	"math"
	"sort"
	"time"
)

// Capacity bounds for an event.
const (
	MinCapacity = 1
	MaxCapacity = 1000
)

// Event represents a schedulable item with a time, place and attendee capacity.
type Event struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Datetime time.Time `json:"datetime"`
	Location string    `json:"location"`
	Capacity int       `json:"capacity"`

	// Registrations lists the users currently holding a slot.
	Registrations []User `json:"registrations"`
}

// IsPast reports whether the event starts before now.
func (e *Event) IsPast(now time.Time) bool {
	return e.Datetime.Before(now)
}

// IsUpcoming reports whether the event starts strictly after now.
func (e *Event) IsUpcoming(now time.Time) bool {
	return e.Datetime.After(now)
}

// Stats summarizes how much of an event's capacity is taken.
type Stats struct {
	TotalRegistrations int `json:"totalRegistrations"`
	RemainingCapacity  int `json:"remainingCapacity"`
	PercentUsed        int `json:"percentUsed"`
}

// ComputeStats derives capacity usage from a registration count.
// PercentUsed is 0 when capacity is 0.
func ComputeStats(capacity, total int) Stats {
	stats := Stats{
		TotalRegistrations: total,
		RemainingCapacity:  capacity - total,
	}
	if capacity != 0 {
		// Half rounds up.
		stats.PercentUsed = int(math.Floor(float64(total)*100/float64(capacity) + 0.5))
	}
	return stats
}

// SortUpcoming orders events by datetime, then by location.
func SortUpcoming(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Datetime.Equal(b.Datetime) {
			return a.Datetime.Before(b.Datetime)
		}
		return a.Location < b.Location
	})
}
