package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/libshelf/internal/apperror"
	"github.com/sakif/libshelf/internal/auth"
	"github.com/sakif/libshelf/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// Using a fake (not a mock framework) keeps the behaviour under test visible.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
	nextID  int
	// set to a non-nil error to simulate a database failure
	createErr error
	existsErr error
	// hideEmails makes EmailExists lie, to simulate a concurrent registration
	// that lands between the check and the insert.
	hideEmails bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*model.User{}, byEmail: map[string]*model.User{}}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	key := strings.ToLower(user.Email)
	if _, ok := f.byEmail[key]; ok {
		return apperror.Conflict("user", user.Email)
	}
	f.nextID++
	user.ID = "user-" + string(rune('0'+f.nextID))
	user.CreatedAt = time.Now()
	copied := *user
	f.byID[user.ID] = &copied
	f.byEmail[key] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	if f.hideEmails {
		return false, nil
	}
	_, ok := f.byEmail[strings.ToLower(email)]
	return ok, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Key:      "test-secret-at-least-16-chars!!",
		Issuer:   "libshelf",
		Audience: "libshelf",
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return tokens
}

func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *auth.TokenService) {
	t.Helper()
	repo := newFakeUserRepo()
	tokens := newTestTokens(t)
	svc := NewAuthService(repo, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), discardLogger())
	return svc, repo, tokens
}

// wantAppError fails the test unless err wraps sentinel and carries msg.
func wantAppError(t *testing.T, err, sentinel error, msg string) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *AppError", err)
	}
	if appErr.Message != msg {
		t.Errorf("message = %q, want %q", appErr.Message, msg)
	}
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	svc, _, tokens := newTestAuthService(t)

	res, err := svc.Register(context.Background(), RegisterInput{Name: " Alice ", Email: "a@a.com", Password: "12345678"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.User.ID == "" || res.User.Name != "Alice" || res.User.Email != "a@a.com" {
		t.Errorf("Register() user = %+v", res.User)
	}
	if res.User.PasswordHash == "12345678" {
		t.Error("Register() stored the plaintext password")
	}

	id, err := tokens.Validate(res.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if id.UserID != res.User.ID || id.Email != "a@a.com" || id.Name != "Alice" {
		t.Errorf("token identity = %+v, want the registered user", id)
	}
}

func TestRegister_UnicodeEmail(t *testing.T) {
	for _, email := range []string{"ü@example.de", "josé.pérez@correo.es", "名前@例え.jp"} {
		svc, _, _ := newTestAuthService(t)
		if _, err := svc.Register(context.Background(), RegisterInput{Name: "U", Email: email, Password: "12345678"}); err != nil {
			t.Errorf("Register(%q) error = %v", email, err)
		}
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		want string
	}{
		{"missing name", RegisterInput{Name: "  ", Email: "a@a.com", Password: "12345678"}, "Name is required"},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "12345678"}, "Email is not valid"},
		{"long tld", RegisterInput{Name: "A", Email: "a@a.comm", Password: "12345678"}, "Email is not valid"},
		{"short password", RegisterInput{Name: "A", Email: "a@a.com", Password: "1234567"}, "Password is too short"},
		{"short in runes", RegisterInput{Name: "A", Email: "a@a.com", Password: "пароль"}, "Password is too short"},
		{"too long", RegisterInput{Name: "A", Email: "a@a.com", Password: strings.Repeat("x", 73)}, "Password is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestAuthService(t)
			_, err := svc.Register(context.Background(), tt.in)
			wantAppError(t, err, apperror.ErrValidation, tt.want)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@a.com", Password: "12345678"}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	// The email check runs before the password check.
	_, err := svc.Register(ctx, RegisterInput{Name: "B", Email: "a@a.com", Password: "short"})
	wantAppError(t, err, apperror.ErrValidation, "Email is already in use")
}

func TestRegister_ConcurrentDuplicateMapsToInUse(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@a.com", Password: "12345678"}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	repo.hideEmails = true
	_, err := svc.Register(ctx, RegisterInput{Name: "B", Email: "a@a.com", Password: "12345678"})
	wantAppError(t, err, apperror.ErrValidation, "Email is already in use")
}

func TestRegister_RepositoryError(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	repo.existsErr = errors.New("disk on fire")

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@a.com", Password: "12345678"})
	if err == nil || errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Register() error = %v, want a non-validation error", err)
	}
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin_RoundTrip(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@a.com", Password: "12345678"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := svc.Login(ctx, LoginInput{Email: "a@a.com", Password: "12345678"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.User.ID != reg.User.ID {
		t.Errorf("Login() user id = %q, want %q", res.User.ID, reg.User.ID)
	}
	if res.Token == "" {
		t.Error("Login() returned no token")
	}
}

func TestLogin_Failures(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@a.com", Password: "12345678"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		in       LoginInput
		sentinel error
		want     string
	}{
		{"bad email format", LoginInput{Email: "a@", Password: "12345678"}, apperror.ErrValidation, "Email is not valid"},
		{"short password checked first", LoginInput{Email: "a@a.com", Password: "wrong"}, apperror.ErrValidation, "Password is too short"},
		{"unknown email", LoginInput{Email: "b@b.com", Password: "12345678"}, apperror.ErrInvalidCredentials, "Email is incorrect"},
		{"wrong password", LoginInput{Email: "a@a.com", Password: "wrong-password"}, apperror.ErrInvalidCredentials, "Password is incorrect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.in)
			wantAppError(t, err, tt.sentinel, tt.want)
		})
	}
}

// =========================================================================
// ME TESTS
// =========================================================================

func TestMe(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	reg, _ := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@a.com", Password: "12345678"})

	me, err := svc.Me(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.Email != "a@a.com" {
		t.Errorf("Me() email = %q", me.Email)
	}

	_, err = svc.Me(ctx, "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Me() unknown error = %v, want ErrNotFound", err)
	}
}
