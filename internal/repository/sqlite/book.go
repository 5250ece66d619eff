package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/repository"
)

// compile-time check that *BookDB implements repository.BookRepository
var _ repository.BookRepository = (*BookDB)(nil)

// BookDB implements repository.BookRepository.
type BookDB struct {
	q querier
}

var bookColumns = []string{
	"books.id", "books.user_id", "books.title", "books.isbn", "books.cover_url",
	"books.cover_blurhash", "books.description", "books.genres", "books.status",
	"books.authors", "books.page_count", "books.date_read", "books.date_finished",
	"books.created_at", "books.updated_at",
}

// selectBooks is the base query every read starts from. rowid breaks ties
// between books created within the same clock tick.
func selectBooks(userID string) sq.SelectBuilder {
	return sq.Select(bookColumns...).
		From("books").
		Where(sq.Eq{"books.user_id": userID}).
		OrderBy("books.created_at", "books.rowid")
}

// List returns the user's books in creation order, optionally filtered by a
// case-sensitive substring of the title, the ISBN or any author. instr is
// used instead of LIKE because LIKE folds ASCII case and treats % and _ as
// wildcards.
func (b *BookDB) List(ctx context.Context, userID string, filter repository.BookFilter) ([]model.Book, error) {
	query := selectBooks(userID)
	if filter.Query != "" {
		query = query.Where(sq.Or{
			sq.Expr("instr(books.title, ?) > 0", filter.Query),
			sq.Expr("instr(books.isbn, ?) > 0", filter.Query),
			sq.Expr("EXISTS (SELECT 1 FROM json_each(books.authors) WHERE instr(json_each.value, ?) > 0)", filter.Query),
		})
	}
	return b.query(ctx, query)
}

// ListByShelf returns the books on a shelf. The shelf's owner is not checked
// here; the books themselves are still restricted to userID.
func (b *BookDB) ListByShelf(ctx context.Context, userID, shelfID string) ([]model.Book, error) {
	query := selectBooks(userID).
		Join("book_shelves ON book_shelves.book_id = books.id").
		Where(sq.Eq{"book_shelves.shelf_id": shelfID})
	return b.query(ctx, query)
}

// Get retrieves one of the user's books. A book owned by someone else is
// reported as not found.
func (b *BookDB) Get(ctx context.Context, userID, id string) (*model.Book, error) {
	sqlStr, args, err := selectBooks(userID).Where(sq.Eq{"books.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building book query: %w", err)
	}

	book, err := scanBook(b.q.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting book %s: %w", id, err)
	}
	return book, nil
}

func (b *BookDB) Create(ctx context.Context, book *model.Book) error {
	genres, err := encodeList(book.Genres)
	if err != nil {
		return err
	}
	authors, err := encodeList(book.Authors)
	if err != nil {
		return err
	}

	book.ID = xid.New().String()
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	_, err = b.q.ExecContext(ctx,
		`INSERT INTO books (id, user_id, title, isbn, cover_url, cover_blurhash, description,
		                    genres, status, authors, page_count, date_read, date_finished,
		                    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID,
		book.UserID,
		book.Title,
		book.ISBN,
		book.CoverURL,
		book.CoverBlurHash,
		book.Description,
		genres,
		book.Status.String(),
		authors,
		book.PageCount,
		utcPtr(book.DateRead),
		utcPtr(book.DateFinished),
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting book: %w", err)
	}
	return nil
}

// Update replaces the editable fields. The blurhash is kept only while the
// cover reference is unchanged; SET expressions see the row's old values.
func (b *BookDB) Update(ctx context.Context, book *model.Book) error {
	genres, err := encodeList(book.Genres)
	if err != nil {
		return err
	}
	authors, err := encodeList(book.Authors)
	if err != nil {
		return err
	}

	book.UpdatedAt = time.Now().UTC()

	result, err := b.q.ExecContext(ctx,
		`UPDATE books
		 SET title = ?, isbn = ?, description = ?, genres = ?, status = ?, authors = ?,
		     page_count = ?, date_read = ?, date_finished = ?, updated_at = ?,
		     cover_blurhash = CASE WHEN cover_url IS ? THEN cover_blurhash ELSE NULL END,
		     cover_url = ?
		 WHERE id = ? AND user_id = ?`,
		book.Title,
		book.ISBN,
		book.Description,
		genres,
		book.Status.String(),
		authors,
		book.PageCount,
		utcPtr(book.DateRead),
		utcPtr(book.DateFinished),
		book.UpdatedAt,
		book.CoverURL,
		book.CoverURL,
		book.ID,
		book.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating book %s: %w", book.ID, err)
	}
	return checkAffected(result, apperror.NotFound("book", book.ID))
}

func (b *BookDB) SetCover(ctx context.Context, userID, id string, ref, blurHash *string) error {
	result, err := b.q.ExecContext(ctx,
		`UPDATE books SET cover_url = ?, cover_blurhash = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		ref,
		blurHash,
		time.Now().UTC(),
		id,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting cover of book %s: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("book", id))
}

// Delete removes the book; ON DELETE CASCADE drops its shelf memberships.
func (b *BookDB) Delete(ctx context.Context, userID, id string) error {
	result, err := b.q.ExecContext(ctx,
		`DELETE FROM books WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting book %s: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("book", id))
}

func (b *BookDB) query(ctx context.Context, query sq.SelectBuilder) ([]model.Book, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building book query: %w", err)
	}

	rows, err := b.q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books: %w", err)
	}
	defer rows.Close()

	books := make([]model.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning book row: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating books: %w", err)
	}

	return books, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*model.Book, error) {
	var (
		book             model.Book
		genres, authors  sql.NullString
		status           string
		dateRead, dateFn sql.NullTime
	)

	err := row.Scan(
		&book.ID,
		&book.UserID,
		&book.Title,
		&book.ISBN,
		&book.CoverURL,
		&book.CoverBlurHash,
		&book.Description,
		&genres,
		&status,
		&authors,
		&book.PageCount,
		&dateRead,
		&dateFn,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if book.Status, err = model.ParseBookStatus(status); err != nil {
		return nil, err
	}
	if book.Genres, err = decodeList(genres); err != nil {
		return nil, err
	}
	if book.Authors, err = decodeList(authors); err != nil {
		return nil, err
	}
	if dateRead.Valid {
		book.DateRead = &dateRead.Time
	}
	if dateFn.Valid {
		book.DateFinished = &dateFn.Time
	}

	return &book, nil
}

// encodeList stores a nil slice as NULL and anything else as a JSON array,
// so "not supplied" and "empty" stay distinguishable.
func encodeList(list []string) (*string, error) {
	if list == nil {
		return nil, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding list: %w", err)
	}
	s := string(data)
	return &s, nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s.String), &list); err != nil {
		return nil, fmt.Errorf("sqlite: decoding list: %w", err)
	}
	return list, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
