// Package model defines the data structures shared by the repository,
// service and handler layers.
package model

import "time"

// User is a registered account. Users are created at registration and never
// modified afterwards.
//
// PasswordHash is the full bcrypt output. The json:"-" tag keeps it out of
// every response even if a handler serializes a User directly.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
