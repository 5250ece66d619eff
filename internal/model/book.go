package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BookStatus is where a book sits in the owner's reading workflow.
//
// The zero value is not a valid status; it stands for "not supplied" so that
// request decoding can tell a missing status from WantToRead.
type BookStatus int

const (
	StatusWantToRead BookStatus = iota + 1
	StatusReading
	StatusRead
)

var statusNames = map[BookStatus]string{
	StatusWantToRead: "WantToRead",
	StatusReading:    "Reading",
	StatusRead:       "Read",
}

// ErrUnknownStatus is returned for a status name outside the declared set.
var ErrUnknownStatus = errors.New("model: unknown book status")

// ParseBookStatus maps the textual name back to a BookStatus.
func ParseBookStatus(s string) (BookStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownStatus, s)
}

// Valid reports whether s is one of the declared statuses.
func (s BookStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s BookStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BookStatus(%d)", int(s))
}

// MarshalJSON writes the textual name. Marshalling an invalid status is an
// error rather than a silent number.
func (s BookStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("model: cannot marshal invalid book status %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the textual name only. An empty string or null
// leaves the zero value so the validator can report the field as missing.
func (s *BookStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = 0
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("model: book status must be a string: %w", err)
	}
	if name == "" {
		*s = 0
		return nil
	}
	parsed, err := ParseBookStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Book is a catalog entry owned by exactly one user. It may appear on any
// number of that user's shelves.
//
// Optional scalar fields are pointers so that "absent" survives the round
// trip through SQL NULL and JSON null.
type Book struct {
	ID            string     `json:"id"`
	UserID        string     `json:"-"`
	Title         string     `json:"title"`
	ISBN          *string    `json:"isbn"`
	CoverURL      *string    `json:"coverUrl"`
	CoverBlurHash *string    `json:"coverBlurHash,omitempty"`
	Description   *string    `json:"description"`
	Genres        []string   `json:"genres"`
	Status        BookStatus `json:"status"`
	Authors       []string   `json:"authors"`
	PageCount     int        `json:"pageCount"`
	DateRead      *time.Time `json:"dateReadUtc"`
	DateFinished  *time.Time `json:"dateFinishedUtc"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BookInput carries the client-editable fields of a book for Create and
// Update. ShelfIDs is only honoured by Create.
type BookInput struct {
	Title        string     `json:"title" validate:"required,max=500"`
	ISBN         *string    `json:"isbn" validate:"omitempty,max=32"`
	CoverURL     *string    `json:"coverUrl" validate:"omitempty,max=2048"`
	Description  *string    `json:"description" validate:"omitempty,max=10000"`
	Genres       []string   `json:"genres" validate:"omitempty,dive,required,max=100"`
	Status       BookStatus `json:"status" validate:"required,bookstatus"`
	Authors      []string   `json:"authors" validate:"omitempty,dive,required,max=200"`
	PageCount    int        `json:"pageCount" validate:"gte=0"`
	ShelfIDs     []string   `json:"shelfIds"`
	DateRead     *time.Time `json:"dateReadUtc"`
	DateFinished *time.Time `json:"dateFinishedUtc"`
}
