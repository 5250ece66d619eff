package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/service"
)

// coverFormField is the multipart field carrying the uploaded image.
const coverFormField = "file"

// multipartOverhead is allowed on top of the cover limit for boundaries and
// part headers.
const multipartOverhead = 64 << 10

// BooksHandler handles HTTP requests for books and their covers.
//
// Handlers only translate HTTP to service calls: parse the request, pass the
// authenticated user id along, write the result. Ownership checks happen in
// the repository SQL.
type BooksHandler struct {
	books         *service.BookService
	maxCoverBytes int64
	logger        *slog.Logger
}

func NewBooksHandler(books *service.BookService, maxCoverBytes int64, logger *slog.Logger) *BooksHandler {
	return &BooksHandler{
		books:         books,
		maxCoverBytes: maxCoverBytes,
		logger:        logger,
	}
}

// HandleList handles GET /api/books?query=...
func (h *BooksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	books, err := h.books.List(r.Context(), uid, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// HandleCreate handles POST /api/books.
func (h *BooksHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var in model.BookInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	book, err := h.books.Create(r.Context(), uid, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/books/"+book.ID)
	writeJSON(w, http.StatusCreated, book)
}

// HandleGet handles GET /api/books/{id}.
func (h *BooksHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	book, err := h.books.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// HandleUpdate handles PUT /api/books/{id}. The body replaces every field.
func (h *BooksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var in model.BookInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	book, err := h.books.Update(r.Context(), uid, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// HandleDelete handles DELETE /api/books/{id}.
func (h *BooksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.books.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListShelves handles GET /api/books/{id}/shelves.
func (h *BooksHandler) HandleListShelves(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	shelves, err := h.books.ListShelves(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, shelves)
}

// HandleSetCover handles POST and PATCH /api/books/{id}/cover.
//
// The body is multipart/form-data with the image in the "file" field. Both
// methods replace any existing cover.
func (h *BooksHandler) HandleSetCover(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxCoverBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxCoverBytes); err != nil {
		writeError(w, h.logger, h.uploadError(err))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("failed to remove multipart temp files", slog.String("error", err.Error()))
		}
	}()

	file, header, err := r.FormFile(coverFormField)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed(coverFormField, "file is required"))
		return
	}
	defer file.Close()

	if header.Size > h.maxCoverBytes {
		writeError(w, h.logger, h.tooLarge())
		return
	}

	book, err := h.books.SetCover(r.Context(), uid, chi.URLParam(r, "id"), file)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// HandleDeleteCover handles DELETE /api/books/{id}/cover.
func (h *BooksHandler) HandleDeleteCover(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.books.DeleteCover(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BooksHandler) uploadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return h.tooLarge()
	}
	return apperror.ValidationFailed(coverFormField, "request must be multipart/form-data with a file field")
}

func (h *BooksHandler) tooLarge() error {
	return apperror.ValidationFailed(coverFormField, fmt.Sprintf("file must not exceed %d bytes", h.maxCoverBytes))
}
