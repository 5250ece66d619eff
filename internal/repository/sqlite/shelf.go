package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/repository"
)

// compile-time check that *ShelfDB implements repository.ShelfRepository
var _ repository.ShelfRepository = (*ShelfDB)(nil)

// ShelfDB implements repository.ShelfRepository.
type ShelfDB struct {
	q querier
}

// book_count is computed on every read so it can never drift from the
// membership table.
const selectShelves = `
	SELECT shelves.id, shelves.user_id, shelves.name, shelves.created_at,
	       (SELECT COUNT(*) FROM book_shelves WHERE book_shelves.shelf_id = shelves.id)
	FROM shelves`

func (s *ShelfDB) List(ctx context.Context, userID string) ([]model.Shelf, error) {
	return s.query(ctx,
		selectShelves+` WHERE shelves.user_id = ? ORDER BY shelves.created_at, shelves.rowid`,
		userID,
	)
}

// ListByBook returns the user's shelves that contain bookID.
func (s *ShelfDB) ListByBook(ctx context.Context, userID, bookID string) ([]model.Shelf, error) {
	return s.query(ctx,
		selectShelves+`
		JOIN book_shelves membership ON membership.shelf_id = shelves.id
		WHERE shelves.user_id = ? AND membership.book_id = ?
		ORDER BY shelves.created_at, shelves.rowid`,
		userID, bookID,
	)
}

func (s *ShelfDB) Get(ctx context.Context, userID, id string) (*model.Shelf, error) {
	shelf, err := scanShelf(s.q.QueryRowContext(ctx,
		selectShelves+` WHERE shelves.id = ? AND shelves.user_id = ?`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("shelf", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting shelf %s: %w", id, err)
	}
	return shelf, nil
}

func (s *ShelfDB) Create(ctx context.Context, shelf *model.Shelf) error {
	shelf.ID = xid.New().String()
	shelf.CreatedAt = time.Now().UTC()
	shelf.BookCount = 0

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO shelves (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		shelf.ID,
		shelf.UserID,
		shelf.Name,
		shelf.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting shelf: %w", err)
	}
	return nil
}

func (s *ShelfDB) Rename(ctx context.Context, userID, id, name string) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE shelves SET name = ? WHERE id = ? AND user_id = ?`,
		name, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: renaming shelf %s: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("shelf", id))
}

// Delete removes the shelf; ON DELETE CASCADE drops its memberships. The
// books themselves are untouched.
func (s *ShelfDB) Delete(ctx context.Context, userID, id string) error {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM shelves WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting shelf %s: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("shelf", id))
}

func (s *ShelfDB) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	distinct := slices.Compact(slices.Sorted(slices.Values(ids)))
	if len(distinct) == 0 {
		return 0, nil
	}

	sqlStr, args, err := sq.Select("COUNT(*)").
		From("shelves").
		Where(sq.Eq{"user_id": userID, "id": distinct}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlite: building shelf count: %w", err)
	}

	var n int
	if err := s.q.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting shelves: %w", err)
	}
	return n, nil
}

func (s *ShelfDB) HasBook(ctx context.Context, userID, shelfID, bookID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM book_shelves m
			JOIN shelves ON shelves.id = m.shelf_id AND shelves.user_id = ?
			JOIN books ON books.id = m.book_id AND books.user_id = ?
			WHERE m.shelf_id = ? AND m.book_id = ?)`,
		userID, userID, shelfID, bookID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking membership: %w", err)
	}
	return exists, nil
}

// AddBook inserts the pair only when both rows belong to userID; otherwise
// the SELECT yields nothing and no row is written.
func (s *ShelfDB) AddBook(ctx context.Context, userID, shelfID, bookID string) error {
	result, err := s.q.ExecContext(ctx,
		`INSERT INTO book_shelves (book_id, shelf_id, added_at)
		SELECT books.id, shelves.id, ?
		FROM books, shelves
		WHERE books.id = ? AND books.user_id = ?
		  AND shelves.id = ? AND shelves.user_id = ?`,
		time.Now().UTC(), bookID, userID, shelfID, userID,
	)
	if err != nil {
		if isConstraint(err) {
			return apperror.Conflict("book_shelf", bookID)
		}
		return fmt.Errorf("sqlite: adding book %s to shelf %s: %w", bookID, shelfID, err)
	}
	return checkAffected(result, apperror.NotFound("book", bookID))
}

func (s *ShelfDB) RemoveBook(ctx context.Context, userID, shelfID, bookID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM book_shelves
		WHERE shelf_id = ? AND book_id = ?
		  AND shelf_id IN (SELECT id FROM shelves WHERE user_id = ?)
		  AND book_id IN (SELECT id FROM books WHERE user_id = ?)`,
		shelfID, bookID, userID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing book %s from shelf %s: %w", bookID, shelfID, err)
	}
	return nil
}

func (s *ShelfDB) query(ctx context.Context, query string, args ...any) ([]model.Shelf, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing shelves: %w", err)
	}
	defer rows.Close()

	shelves := make([]model.Shelf, 0)
	for rows.Next() {
		shelf, err := scanShelf(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning shelf row: %w", err)
		}
		shelves = append(shelves, *shelf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating shelves: %w", err)
	}
	return shelves, nil
}

func scanShelf(row rowScanner) (*model.Shelf, error) {
	var shelf model.Shelf
	if err := row.Scan(&shelf.ID, &shelf.UserID, &shelf.Name, &shelf.CreatedAt, &shelf.BookCount); err != nil {
		return nil, err
	}
	return &shelf, nil
}
