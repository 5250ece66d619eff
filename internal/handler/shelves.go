package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/service"
)

// ShelvesHandler handles HTTP requests for shelves and shelf membership.
type ShelvesHandler struct {
	shelves *service.ShelfService
	logger  *slog.Logger
}

func NewShelvesHandler(shelves *service.ShelfService, logger *slog.Logger) *ShelvesHandler {
	return &ShelvesHandler{shelves: shelves, logger: logger}
}

// AddBookRequest is the body of POST /api/shelves/{id}/books.
type AddBookRequest struct {
	BookID string `json:"bookId"`
}

// HandleList handles GET /api/shelves.
func (h *ShelvesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	shelves, err := h.shelves.List(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, shelves)
}

// HandleCreate handles POST /api/shelves.
func (h *ShelvesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var in model.ShelfInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	shelf, err := h.shelves.Create(r.Context(), uid, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/shelves/"+shelf.ID)
	writeJSON(w, http.StatusCreated, shelf)
}

// HandleGet handles GET /api/shelves/{id}.
func (h *ShelvesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	shelf, err := h.shelves.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, shelf)
}

// HandleUpdate handles PUT /api/shelves/{id}.
func (h *ShelvesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var in model.ShelfInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	shelf, err := h.shelves.Update(r.Context(), uid, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, shelf)
}

// HandleDelete handles DELETE /api/shelves/{id}. Books on the shelf are kept.
func (h *ShelvesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.shelves.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListBooks handles GET /api/shelves/{id}/books.
func (h *ShelvesHandler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	books, err := h.shelves.ListBooks(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// HandleAddBook handles POST /api/shelves/{id}/books.
//
// The book id comes from a {"bookId": "..."} body or, for older clients, the
// ?bookId= query parameter. The query parameter wins when both are present.
func (h *ShelvesHandler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	bookID := r.URL.Query().Get("bookId")
	if bookID == "" {
		var req AddBookRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
		bookID = req.BookID
	}

	if err := h.shelves.AddBook(r.Context(), uid, chi.URLParam(r, "id"), bookID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveBook handles DELETE /api/shelves/{id}/books/{bookId}.
func (h *ShelvesHandler) HandleRemoveBook(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.shelves.RemoveBook(r.Context(), uid, chi.URLParam(r, "id"), chi.URLParam(r, "bookId")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
