// Package repository declares the persistence interfaces the services depend
// on. Every book and shelf method takes the owning user id and scopes its SQL
// by it, so a caller can never read or modify another user's rows.
package repository

import (
	"context"

	"github.com/sakif/libshelf/internal/model"
)

type UserRepository interface {
	// Create assigns ID and CreatedAt. A duplicate email returns apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

// BookFilter narrows List. An empty Query returns every book.
type BookFilter struct {
	// Query is matched as a case-sensitive substring of the title, the ISBN
	// or any author.
	Query string
}

type BookRepository interface {
	List(ctx context.Context, userID string, filter BookFilter) ([]model.Book, error)
	ListByShelf(ctx context.Context, userID, shelfID string) ([]model.Book, error)
	Get(ctx context.Context, userID, id string) (*model.Book, error)
	// Create assigns ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, book *model.Book) error
	// Update replaces every editable field of the book identified by
	// book.ID and book.UserID, including the cover reference. The stored
	// blurhash is cleared when the cover reference changes.
	Update(ctx context.Context, book *model.Book) error
	// SetCover sets or, with nil arguments, clears the cover reference and
	// blurhash.
	SetCover(ctx context.Context, userID, id string, ref, blurHash *string) error
	Delete(ctx context.Context, userID, id string) error
}

type ShelfRepository interface {
	List(ctx context.Context, userID string) ([]model.Shelf, error)
	ListByBook(ctx context.Context, userID, bookID string) ([]model.Shelf, error)
	Get(ctx context.Context, userID, id string) (*model.Shelf, error)
	Create(ctx context.Context, shelf *model.Shelf) error
	Rename(ctx context.Context, userID, id, name string) error
	Delete(ctx context.Context, userID, id string) error
	// CountOwned returns how many of the distinct ids are shelves owned by userID.
	CountOwned(ctx context.Context, userID string, ids []string) (int, error)

	// Membership methods only see shelves and books owned by userID.
	HasBook(ctx context.Context, userID, shelfID, bookID string) (bool, error)
	// AddBook returns apperror.ErrConflict if the book is already on the
	// shelf and apperror.ErrNotFound if either side is not userID's.
	AddBook(ctx context.Context, userID, shelfID, bookID string) error
	// RemoveBook is a no-op when the book is not on the shelf.
	RemoveBook(ctx context.Context, userID, shelfID, bookID string) error
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Users() UserRepository
	Books() BookRepository
	Shelves() ShelfRepository
}

// Database is a Store that can also run a function inside a transaction.
//
// fn receives a Store bound to the transaction. It must use only that Store;
// the outer one may be waiting for the same connection. The transaction is
// committed when fn returns nil and rolled back otherwise.
type Database interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
