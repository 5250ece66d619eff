package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/model"
)

func TestValidate_BookInput(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		in        model.BookInput
		wantField string
	}{
		{"valid", model.BookInput{Title: "Dune", Status: model.StatusRead}, ""},
		{"missing title", model.BookInput{Status: model.StatusRead}, "title"},
		{"missing status", model.BookInput{Title: "Dune"}, "status"},
		{"out of range status", model.BookInput{Title: "Dune", Status: model.BookStatus(9)}, "status"},
		{"negative pages", model.BookInput{Title: "Dune", Status: model.StatusReading, PageCount: -1}, "pageCount"},
		{"blank author", model.BookInput{Title: "Dune", Status: model.StatusReading, Authors: []string{""}}, "authors[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestValidate_ShelfInput(t *testing.T) {
	v := New()

	err := v.Validate(model.ShelfInput{})
	require.Error(t, err)
	assert.Equal(t, "name is required", err.Error())

	assert.NoError(t, v.Validate(model.ShelfInput{Name: "Favourites"}))
}

func TestValidate_NonStruct(t *testing.T) {
	err := New().Validate("not a struct")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrValidation))
}

func TestMustRegister_PanicsOnBadRule(t *testing.T) {
	v := validator.New()
	ok := func(validator.FieldLevel) bool { return true }

	assert.Panics(t, func() { mustRegister(v, "", ok) })
	assert.Panics(t, func() { mustRegister(v, "isbn13x", nil) })
	assert.NotPanics(t, func() { mustRegister(v, "isbn13x", ok) })
}
