// Package service contains the business rules of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Every method takes the authenticated user id as an explicit argument and
// passes it down to the repository, which scopes its SQL by it. Multi-step
// writes run inside repository.Database.WithTx.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/imaging"
	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/repository"
	"github.com/sakif/libshelf/internal/validation"
)

// CoverStore persists normalized cover files, one per book.
type CoverStore interface {
	Save(bookID string, data []byte) error
	Delete(bookID string) error
	Exists(bookID string) bool
	// Ref is the cover reference recorded on the book for bookID.
	Ref(bookID string) string
}

// CoverNormalizer turns an upload into the stored cover format.
type CoverNormalizer interface {
	Normalize(r io.Reader) (*imaging.Result, error)
}

// BookService handles business logic for books and their covers.
type BookService struct {
	db         repository.Database
	covers     CoverStore
	normalizer CoverNormalizer
	validator  *validation.Validator
	logger     *slog.Logger
}

func NewBookService(
	db repository.Database,
	covers CoverStore,
	normalizer CoverNormalizer,
	validator *validation.Validator,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		db:         db,
		covers:     covers,
		normalizer: normalizer,
		validator:  validator,
		logger:     logger,
	}
}

// List returns the caller's books, filtered by query when it is non-empty.
func (s *BookService) List(ctx context.Context, userID, query string) ([]model.Book, error) {
	books, err := s.db.Books().List(ctx, userID, repository.BookFilter{Query: query})
	if err != nil {
		return nil, fmt.Errorf("service: listing books: %w", err)
	}
	return books, nil
}

func (s *BookService) Get(ctx context.Context, userID, id string) (*model.Book, error) {
	book, err := s.db.Books().Get(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("service: getting book %s: %w", id, err)
	}
	return book, nil
}

// ListShelves returns the caller's shelves that contain the book.
func (s *BookService) ListShelves(ctx context.Context, userID, id string) ([]model.Shelf, error) {
	if _, err := s.db.Books().Get(ctx, userID, id); err != nil {
		return nil, fmt.Errorf("service: getting book %s: %w", id, err)
	}
	shelves, err := s.db.Shelves().ListByBook(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("service: listing shelves of book %s: %w", id, err)
	}
	return shelves, nil
}

// Create validates in and stores a new book. When shelf ids are given, every
// one of them must be a shelf the caller owns; the book and its memberships
// are written in one transaction, so a bad id leaves nothing behind.
func (s *BookService) Create(ctx context.Context, userID string, in model.BookInput) (*model.Book, error) {
	in = normalizeBookInput(in)
	if err := s.checkBookInput(in); err != nil {
		return nil, err
	}

	shelfIDs := slices.Compact(slices.Sorted(slices.Values(in.ShelfIDs)))
	book := bookFromInput(userID, in)

	err := s.db.WithTx(ctx, func(tx repository.Store) error {
		if len(shelfIDs) > 0 {
			n, err := tx.Shelves().CountOwned(ctx, userID, shelfIDs)
			if err != nil {
				return err
			}
			if n != len(shelfIDs) {
				return apperror.ValidationFailed("shelfIds", "invalid shelf ids")
			}
		}

		if err := tx.Books().Create(ctx, book); err != nil {
			return err
		}
		for _, shelfID := range shelfIDs {
			if err := tx.Shelves().AddBook(ctx, userID, shelfID, book.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: creating book: %w", err)
	}

	s.logger.Info("book created", "book_id", book.ID, "user_id", userID, "shelves", len(shelfIDs))

	return book, nil
}

// Update replaces the editable fields of an existing book. Shelf ids in the
// input are ignored; membership is managed through the shelf endpoints.
func (s *BookService) Update(ctx context.Context, userID, id string, in model.BookInput) (*model.Book, error) {
	in = normalizeBookInput(in)
	if err := s.checkBookInput(in); err != nil {
		return nil, err
	}

	var (
		updated  *model.Book
		oldCover *string
	)
	err := s.db.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Books().Get(ctx, userID, id)
		if err != nil {
			return err
		}
		oldCover = current.CoverURL

		book := bookFromInput(userID, in)
		book.ID = id
		if err := tx.Books().Update(ctx, book); err != nil {
			return err
		}

		updated, err = tx.Books().Get(ctx, userID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service: updating book %s: %w", id, err)
	}

	// The client dropped or replaced a reference to our stored file.
	if oldCover != nil && *oldCover == s.covers.Ref(id) && !sameRef(oldCover, updated.CoverURL) {
		s.removeCoverFile(id)
	}

	s.logger.Info("book updated", "book_id", id, "user_id", userID)

	return updated, nil
}

// Delete removes the book, its shelf memberships and its stored cover.
func (s *BookService) Delete(ctx context.Context, userID, id string) error {
	book, err := s.db.Books().Get(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("service: getting book %s: %w", id, err)
	}

	if err := s.db.Books().Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("service: deleting book %s: %w", id, err)
	}

	if book.CoverURL != nil {
		s.removeCoverFile(id)
	}

	s.logger.Info("book deleted", "book_id", id, "user_id", userID)
	return nil
}

// SetCover normalizes the upload, stores it as the book's cover and records
// the new reference and blurhash. Used for both first upload and replace.
func (s *BookService) SetCover(ctx context.Context, userID, id string, upload io.Reader) (*model.Book, error) {
	if _, err := s.db.Books().Get(ctx, userID, id); err != nil {
		return nil, fmt.Errorf("service: getting book %s: %w", id, err)
	}

	result, err := s.normalizer.Normalize(upload)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrUnsupportedImage):
			return nil, apperror.ValidationFailed("file", "cover is not a supported image")
		case errors.Is(err, imaging.ErrTooManyPixels):
			return nil, apperror.ValidationFailed("file", "cover dimensions are too large")
		}
		return nil, fmt.Errorf("service: normalizing cover: %w", err)
	}

	if err := s.covers.Save(id, result.Data); err != nil {
		return nil, fmt.Errorf("service: saving cover: %w", err)
	}

	ref := s.covers.Ref(id)
	if err := s.db.Books().SetCover(ctx, userID, id, &ref, &result.BlurHash); err != nil {
		// The book vanished between the check and the write.
		s.removeCoverFile(id)
		return nil, fmt.Errorf("service: recording cover: %w", err)
	}

	s.logger.Info("cover stored",
		"book_id", id,
		"source_format", result.SourceFormat,
		"width", result.Width,
		"height", result.Height,
		"bytes", len(result.Data),
	)

	return s.Get(ctx, userID, id)
}

// DeleteCover clears the cover reference and removes the stored file.
func (s *BookService) DeleteCover(ctx context.Context, userID, id string) error {
	book, err := s.db.Books().Get(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("service: getting book %s: %w", id, err)
	}
	if book.CoverURL == nil {
		return apperror.ValidationFailed("cover", "book has no cover")
	}

	if err := s.db.Books().SetCover(ctx, userID, id, nil, nil); err != nil {
		return fmt.Errorf("service: clearing cover: %w", err)
	}
	s.removeCoverFile(id)

	s.logger.Info("cover deleted", "book_id", id, "user_id", userID)
	return nil
}

// removeCoverFile deletes the stored file. Failure leaves an orphan on disk
// but the database is already consistent, so it is logged, not returned.
// A reference whose file is already gone is only noted.
func (s *BookService) removeCoverFile(id string) {
	if !s.covers.Exists(id) {
		s.logger.Debug("cover file already absent", "book_id", id)
		return
	}
	if err := s.covers.Delete(id); err != nil {
		s.logger.Warn("failed to delete cover file", "book_id", id, "error", err)
	}
}

func (s *BookService) checkBookInput(in model.BookInput) error {
	if err := s.validator.Validate(in); err != nil {
		return err
	}
	if in.DateRead != nil && in.DateFinished != nil && in.DateFinished.Before(*in.DateRead) {
		return apperror.ValidationFailed("dateFinishedUtc", "dateFinishedUtc must not be before dateReadUtc")
	}
	return nil
}

// normalizeBookInput trims the free-text fields and turns blank optional
// strings into "absent".
func normalizeBookInput(in model.BookInput) model.BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = trimOptional(in.ISBN)
	in.CoverURL = trimOptional(in.CoverURL)
	in.Description = trimOptional(in.Description)
	return in
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func bookFromInput(userID string, in model.BookInput) *model.Book {
	return &model.Book{
		UserID:       userID,
		Title:        in.Title,
		ISBN:         in.ISBN,
		CoverURL:     in.CoverURL,
		Description:  in.Description,
		Genres:       in.Genres,
		Status:       in.Status,
		Authors:      in.Authors,
		PageCount:    in.PageCount,
		DateRead:     in.DateRead,
		DateFinished: in.DateFinished,
	}
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
