// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the server builds
// and cross-compiles without a C toolchain.
//
// A DB owns the *sql.DB connection pool. Users, Books and Shelves return thin
// repository values over either the pool or, inside WithTx, a *sql.Tx; both
// satisfy the querier interface, which is all the SQL code needs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/libshelf/internal/repository"
)

// compile-time check that *DB implements repository.Database
var _ repository.Database = (*DB)(nil)

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and hands out repositories bound to it.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/libshelf.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database, private to this DB (tests)
//
// PRAGMAs are passed in the DSN rather than executed once, so every pooled
// connection gets them. foreign_keys is what makes ON DELETE CASCADE work.
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")

	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if !memory {
		// WAL lets readers proceed while a write transaction is open.
		pragmas = append(pragmas, "journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_time_format=sqlite"
	for _, p := range pragmas {
		dsn += "&_pragma=" + p
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate empty database, so the pool
	// must never open a second one.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() repository.UserRepository    { return &UserDB{q: db.conn} }
func (db *DB) Books() repository.BookRepository    { return &BookDB{q: db.conn} }
func (db *DB) Shelves() repository.ShelfRepository { return &ShelfDB{q: db.conn} }

// txStore is the Store handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (s txStore) Users() repository.UserRepository    { return &UserDB{q: s.tx} }
func (s txStore) Books() repository.BookRepository    { return &BookDB{q: s.tx} }
func (s txStore) Shelves() repository.ShelfRepository { return &ShelfDB{q: s.tx} }

// WithTx runs fn inside a transaction. The transaction commits if fn returns
// nil and rolls back on an error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
			}
		}
	}()

	if err = fn(txStore{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// each start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// genres and authors hold JSON arrays; NULL means "not supplied".
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title          TEXT NOT NULL,
			isbn           TEXT,
			cover_url      TEXT,
			cover_blurhash TEXT,
			description    TEXT,
			genres         TEXT,
			status         TEXT NOT NULL CHECK (status IN ('WantToRead', 'Reading', 'Read')),
			authors        TEXT,
			page_count     INTEGER NOT NULL DEFAULT 0,
			date_read      DATETIME,
			date_finished  DATETIME,
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_books_user_created ON books(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating books table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS shelves (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_shelves_user_created ON shelves(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating shelves table: %w", err)
	}

	// The composite primary key is what makes a book appear at most once
	// per shelf.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS book_shelves (
			book_id  TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			shelf_id TEXT NOT NULL REFERENCES shelves(id) ON DELETE CASCADE,
			added_at DATETIME NOT NULL,
			PRIMARY KEY (book_id, shelf_id)
		);
		CREATE INDEX IF NOT EXISTS idx_book_shelves_shelf ON book_shelves(shelf_id);
	`)
	if err != nil {
		return fmt.Errorf("creating book_shelves table: %w", err)
	}

	return nil
}

// isConstraint reports whether err is a SQLite UNIQUE or PRIMARY KEY violation.
func isConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// checkAffected turns "no row matched" into notFound.
func checkAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
