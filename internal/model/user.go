// Package model defines domain entities for the application.
package model

// User is a person who can register for events.
// Users are provisioned outside this service.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
