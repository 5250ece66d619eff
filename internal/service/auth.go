package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/auth"
	"github.com/sakif/libshelf/internal/model"
	"github.com/sakif/libshelf/internal/repository"
)

// MinPasswordLength is counted in characters (runes), not bytes.
const MinPasswordLength = 8

// wordChar is a Unicode-aware \w: RE2's \w is ASCII only, which would
// reject local parts such as "ü".
const wordChar = `[\p{L}\p{Mn}\p{Nd}\p{Pc}]`

// emailPattern is deliberately loose: a local part, one domain label and one
// or more 2-3 character suffixes.
var emailPattern = regexp.MustCompile(
	`^((?:` + wordChar + `|[.\-])+)@((?:` + wordChar + `|-)+)((\.` + wordChar + `{2,3})+)$`,
)

// AuthService handles registration and login.
//
//	UsersHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                    ↘ TokenService (JWT), PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is the user together with a freshly issued token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an account. The checks run in a fixed order and the first
// failure is returned: name, email format, email taken, password length.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	if name == "" {
		return nil, apperror.ValidationFailed("name", "Name is required")
	}
	if err := checkEmail(email); err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service: checking email: %w", err)
	}
	if exists {
		return nil, emailInUse()
	}

	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service: hashing password: %w", err)
	}

	user := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, emailInUse()
		}
		return nil, fmt.Errorf("service: creating user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)

	return s.issue(user)
}

// Login verifies credentials. An unknown email and a wrong password are
// reported separately, each as apperror.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)

	if err := checkEmail(email); err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials("email", "Email is incorrect")
		}
		return nil, fmt.Errorf("service: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login failed", "user_id", user.ID, "reason", "password mismatch")
			return nil, apperror.InvalidCredentials("password", "Password is incorrect")
		}
		return nil, fmt.Errorf("service: verifying password: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)

	return s.issue(user)
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: getting user %s: %w", userID, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("service: issuing token: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func checkEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return apperror.ValidationFailed("email", "Email is not valid")
	}
	return nil
}

func checkPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", "Password is too short")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", "Password is too long")
	}
	return nil
}

func emailInUse() error {
	return apperror.ValidationFailed("email", "Email is already in use")
}
