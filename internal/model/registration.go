package model

import "time"

// Registration records that a user holds one of an event's slots.
// Identity is the (UserID, EventID) pair.
type Registration struct {
	UserID    int64
	EventID   int64
	CreatedAt time.Time
}
