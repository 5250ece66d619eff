package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/libshelf/internal/service"
)

// UsersHandler serves account registration, login and the current user.
type UsersHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewUsersHandler(auth *service.AuthService, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{auth: auth, logger: logger}
}

// AuthResponse is returned by register and login. The token goes back in
// the Authorization header of later requests.
type AuthResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

func toAuthResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		ID:    res.User.ID,
		Name:  res.User.Name,
		Email: res.User.Email,
		Token: res.Token,
	}
}

// HandleRegister handles POST /api/users/register.
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// HandleLogin handles POST /api/users/login.
func (h *UsersHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// HandleMe handles GET /api/users/me.
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := h.auth.Me(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
