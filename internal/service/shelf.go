package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/repository"
	"github.com/sakif/libshelf/internal/validation"
)

// ShelfService handles business logic for shelves and shelf membership.
type ShelfService struct {
	db        repository.Database
	validator *validation.Validator
	logger    *slog.Logger
}

func NewShelfService(db repository.Database, validator *validation.Validator, logger *slog.Logger) *ShelfService {
	return &ShelfService{db: db, validator: validator, logger: logger}
}

func (s *ShelfService) List(ctx context.Context, userID string) ([]model.Shelf, error) {
	shelves, err := s.db.Shelves().List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: listing shelves: %w", err)
	}
	return shelves, nil
}

func (s *ShelfService) Get(ctx context.Context, userID, id string) (*model.Shelf, error) {
	shelf, err := s.db.Shelves().Get(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("service: getting shelf %s: %w", id, err)
	}
	return shelf, nil
}

// ListBooks returns the books on one of the caller's shelves.
func (s *ShelfService) ListBooks(ctx context.Context, userID, id string) ([]model.Book, error) {
	if _, err := s.db.Shelves().Get(ctx, userID, id); err != nil {
		return nil, fmt.Errorf("service: getting shelf %s: %w", id, err)
	}
	books, err := s.db.Books().ListByShelf(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("service: listing books of shelf %s: %w", id, err)
	}
	return books, nil
}

func (s *ShelfService) Create(ctx context.Context, userID string, in model.ShelfInput) (*model.Shelf, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	shelf := &model.Shelf{UserID: userID, Name: in.Name}
	if err := s.db.Shelves().Create(ctx, shelf); err != nil {
		return nil, fmt.Errorf("service: creating shelf: %w", err)
	}

	s.logger.Info("shelf created", "shelf_id", shelf.ID, "user_id", userID)
	return shelf, nil
}

// Update renames the shelf and returns it with its current book count.
func (s *ShelfService) Update(ctx context.Context, userID, id string, in model.ShelfInput) (*model.Shelf, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	var shelf *model.Shelf
	err := s.db.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Shelves().Rename(ctx, userID, id, in.Name); err != nil {
			return err
		}
		var err error
		shelf, err = tx.Shelves().Get(ctx, userID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service: updating shelf %s: %w", id, err)
	}

	s.logger.Info("shelf renamed", "shelf_id", id, "user_id", userID)
	return shelf, nil
}

// Delete removes the shelf and its memberships. Books are kept.
func (s *ShelfService) Delete(ctx context.Context, userID, id string) error {
	if err := s.db.Shelves().Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("service: deleting shelf %s: %w", id, err)
	}
	s.logger.Info("shelf deleted", "shelf_id", id, "user_id", userID)
	return nil
}

// AddBook puts one of the caller's books on one of the caller's shelves.
// A book already on the shelf is a validation error, not a silent success.
func (s *ShelfService) AddBook(ctx context.Context, userID, shelfID, bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return apperror.ValidationFailed("bookId", "bookId is required")
	}

	err := s.db.WithTx(ctx, func(tx repository.Store) error {
		if err := resolveMembership(ctx, tx, userID, shelfID, bookID); err != nil {
			return err
		}

		has, err := tx.Shelves().HasBook(ctx, userID, shelfID, bookID)
		if err != nil {
			return err
		}
		if has {
			return alreadyInShelf()
		}

		if err := tx.Shelves().AddBook(ctx, userID, shelfID, bookID); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return alreadyInShelf()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("service: adding book %s to shelf %s: %w", bookID, shelfID, err)
	}

	s.logger.Info("book added to shelf", "shelf_id", shelfID, "book_id", bookID, "user_id", userID)
	return nil
}

// RemoveBook takes a book off a shelf. Both must exist and belong to the
// caller; removing a book that is not on the shelf succeeds without change.
func (s *ShelfService) RemoveBook(ctx context.Context, userID, shelfID, bookID string) error {
	err := s.db.WithTx(ctx, func(tx repository.Store) error {
		if err := resolveMembership(ctx, tx, userID, shelfID, bookID); err != nil {
			return err
		}
		return tx.Shelves().RemoveBook(ctx, userID, shelfID, bookID)
	})
	if err != nil {
		return fmt.Errorf("service: removing book %s from shelf %s: %w", bookID, shelfID, err)
	}

	s.logger.Info("book removed from shelf", "shelf_id", shelfID, "book_id", bookID, "user_id", userID)
	return nil
}

// resolveMembership checks that both sides of a membership exist and are
// owned by userID.
func resolveMembership(ctx context.Context, tx repository.Store, userID, shelfID, bookID string) error {
	if _, err := tx.Shelves().Get(ctx, userID, shelfID); err != nil {
		return err
	}
	if _, err := tx.Books().Get(ctx, userID, bookID); err != nil {
		return err
	}
	return nil
}

func alreadyInShelf() error {
	return apperror.ValidationFailed("bookId", "book is already in shelf")
}
