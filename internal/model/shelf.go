package model

import "time"

// Shelf is a named, user-owned collection of books. BookCount is derived
// from the membership table on every read and never stored.
type Shelf struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	BookCount int       `json:"bookCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// ShelfInput is the body of shelf create and rename requests.
type ShelfInput struct {
	Name string `json:"name" validate:"required,max=200"`
}
