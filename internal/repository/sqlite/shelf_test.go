package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/libshelf/internal/apperror"
)

func TestShelfCreateGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "shelves@example.com")

	shelf := createTestShelf(t, db, user.ID, "To Read")
	require.NotEmpty(t, shelf.ID)

	got, err := db.Shelves().Get(ctx, user.ID, shelf.ID)
	require.NoError(t, err)
	assert.Equal(t, "To Read", got.Name)
	assert.Equal(t, 0, got.BookCount)
	assert.Equal(t, user.ID, got.UserID)
}

func TestShelfGet_OtherUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "a@example.com")
	other := createTestUser(t, db, "b@example.com")
	shelf := createTestShelf(t, db, owner.ID, "Mine")

	_, err := db.Shelves().Get(ctx, other.ID, shelf.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.True(t, errors.Is(db.Shelves().Rename(ctx, other.ID, shelf.ID, "Stolen"), apperror.ErrNotFound))
	assert.True(t, errors.Is(db.Shelves().Delete(ctx, other.ID, shelf.ID), apperror.ErrNotFound))

	list, err := db.Shelves().List(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestShelfMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "member@example.com")
	shelf := createTestShelf(t, db, user.ID, "Sci-Fi")
	book := createTestBook(t, db, user.ID, "Solaris")

	has, err := db.Shelves().HasBook(ctx, user.ID, shelf.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, db.Shelves().AddBook(ctx, user.ID, shelf.ID, book.ID))

	has, err = db.Shelves().HasBook(ctx, user.ID, shelf.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, has)

	// The composite key rejects a second insert of the same pair.
	err = db.Shelves().AddBook(ctx, user.ID, shelf.ID, book.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	got, err := db.Shelves().Get(ctx, user.ID, shelf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookCount)

	byBook, err := db.Shelves().ListByBook(ctx, user.ID, book.ID)
	require.NoError(t, err)
	require.Len(t, byBook, 1)
	assert.Equal(t, shelf.ID, byBook[0].ID)
	assert.Equal(t, 1, byBook[0].BookCount)

	require.NoError(t, db.Shelves().RemoveBook(ctx, user.ID, shelf.ID, book.ID))
	// Removing a non-member is a no-op.
	require.NoError(t, db.Shelves().RemoveBook(ctx, user.ID, shelf.ID, book.ID))

	got, err = db.Shelves().Get(ctx, user.ID, shelf.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookCount)
}

func TestShelfMembership_ScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	shelf := createTestShelf(t, db, owner.ID, "Mine")
	book := createTestBook(t, db, owner.ID, "Mine too")
	otherShelf := createTestShelf(t, db, other.ID, "Theirs")

	// Neither a foreign shelf nor a foreign book can be linked.
	err := db.Shelves().AddBook(ctx, other.ID, shelf.ID, book.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
	err = db.Shelves().AddBook(ctx, other.ID, otherShelf.ID, book.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	require.NoError(t, db.Shelves().AddBook(ctx, owner.ID, shelf.ID, book.ID))

	has, err := db.Shelves().HasBook(ctx, other.ID, shelf.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, has)

	// A foreign RemoveBook leaves the membership in place.
	require.NoError(t, db.Shelves().RemoveBook(ctx, other.ID, shelf.ID, book.ID))
	has, err = db.Shelves().HasBook(ctx, owner.ID, shelf.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := db.Shelves().Get(ctx, owner.ID, shelf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookCount)
}

func TestShelfRename(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "rename@example.com")
	shelf := createTestShelf(t, db, user.ID, "Old name")

	require.NoError(t, db.Shelves().Rename(ctx, user.ID, shelf.ID, "New name"))

	got, err := db.Shelves().Get(ctx, user.ID, shelf.ID)
	require.NoError(t, err)
	assert.Equal(t, "New name", got.Name)
}

func TestShelfDelete_KeepsBooks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "keep@example.com")
	shelf := createTestShelf(t, db, user.ID, "Temporary")
	book := createTestBook(t, db, user.ID, "Survivor")
	require.NoError(t, db.Shelves().AddBook(ctx, user.ID, shelf.ID, book.ID))

	require.NoError(t, db.Shelves().Delete(ctx, user.ID, shelf.ID))

	_, err := db.Shelves().Get(ctx, user.ID, shelf.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = db.Books().Get(ctx, user.ID, book.ID)
	assert.NoError(t, err)

	shelves, err := db.Shelves().ListByBook(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.Empty(t, shelves)
}

func TestShelfCountOwned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "count-a@example.com")
	bob := createTestUser(t, db, "count-b@example.com")
	s1 := createTestShelf(t, db, alice.ID, "One")
	s2 := createTestShelf(t, db, alice.ID, "Two")
	bobs := createTestShelf(t, db, bob.ID, "Bob's")

	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{"none", nil, 0},
		{"own", []string{s1.ID, s2.ID}, 2},
		{"duplicates collapse", []string{s1.ID, s1.ID}, 1},
		{"foreign shelf ignored", []string{s1.ID, bobs.ID}, 1},
		{"unknown", []string{"nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := db.Shelves().CountOwned(ctx, alice.ID, tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}
