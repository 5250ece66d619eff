// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New opens the database and cover store,
// builds services and handlers, and wires them to routes. Nothing else in
// the module constructs concrete dependencies.
//
//	config.Config → sqlite.DB, imaging.Storage
//	             → AuthService, BookService, ShelfService
//	             → UsersHandler, BooksHandler, ShelvesHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/libshelf/internal/auth"
	"github.com/sakif/libshelf/internal/config"
	"github.com/sakif/libshelf/internal/handler"
	"github.com/sakif/libshelf/internal/imaging"
	"github.com/sakif/libshelf/internal/middleware"
	sqliteRepo "github.com/sakif/libshelf/internal/repository/sqlite"
	"github.com/sakif/libshelf/internal/service"
	"github.com/sakif/libshelf/internal/validation"
)

// shutdownTimeout bounds how long in-flight requests may run after SIGINT or
// SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it when Start returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	covers *imaging.Storage
}

// New creates a Server from cfg.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	return newServer(cfg, logger, auth.NewPasswordService())
}

// newServer lets tests supply a cheap bcrypt cost.
func newServer(cfg config.Config, logger *slog.Logger, passwords *auth.PasswordService) (*Server, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Key:      cfg.JWTKey,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	covers, err := imaging.NewStorage(cfg.CoverDir)
	if err != nil {
		return nil, fmt.Errorf("creating cover storage: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		covers: covers,
	}
	s.setupRoutes(tokens, passwords)

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTES:
//
//	GET    /health
//	GET    /images/*                        cover files
//	POST   /api/users/register              rate limited
//	POST   /api/users/login                 rate limited
//	GET    /api/users/me                    auth
//	/api/books...                           auth
//	/api/shelves...                         auth
//
// Middleware runs in the order it is added: RequestID must precede Logger so
// the id is logged, and RealIP must precede RateLimit so limits are per client.
func (s *Server) setupRoutes(tokens *auth.TokenService, passwords *auth.PasswordService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	validator := validation.New()
	normalizer := imaging.Normalizer{
		MaxWidth:  s.config.CoverMaxWidth,
		MaxHeight: s.config.CoverMaxHeight,
		Quality:   s.config.CoverQuality,
		MaxPixels: s.config.CoverMaxPixels,
	}

	authService := service.NewAuthService(s.db.Users(), tokens, passwords, s.logger)
	bookService := service.NewBookService(s.db, s.covers, normalizer, validator, s.logger)
	shelfService := service.NewShelfService(s.db, validator, s.logger)

	users := handler.NewUsersHandler(authService, s.logger)
	books := handler.NewBooksHandler(bookService, s.config.CoverMaxBytes, s.logger)
	shelves := handler.NewShelvesHandler(shelfService, s.logger)
	health := handler.NewHealthHandler(s.db, s.logger)

	s.router.Get("/health", health.HandleHealth)
	s.router.Handle("/"+imaging.RefPrefix+"*", http.StripPrefix("/"+imaging.RefPrefix, coverFiles(s.covers.Dir())))

	limiter := middleware.NewRateLimiter(s.config.AuthRateLimit, s.config.AuthRateBurst)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.With(middleware.RateLimit(limiter, s.logger)).Post("/register", users.HandleRegister)
			r.With(middleware.RateLimit(limiter, s.logger)).Post("/login", users.HandleLogin)
			r.With(auth.RequireAuth(tokens)).Get("/me", users.HandleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Route("/books", func(r chi.Router) {
				r.Get("/", books.HandleList)
				r.Post("/", books.HandleCreate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", books.HandleGet)
					r.Put("/", books.HandleUpdate)
					r.Delete("/", books.HandleDelete)
					r.Get("/shelves", books.HandleListShelves)
					r.Post("/cover", books.HandleSetCover)
					r.Patch("/cover", books.HandleSetCover)
					r.Delete("/cover", books.HandleDeleteCover)
				})
			})

			r.Route("/shelves", func(r chi.Router) {
				r.Get("/", shelves.HandleList)
				r.Post("/", shelves.HandleCreate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", shelves.HandleGet)
					r.Put("/", shelves.HandleUpdate)
					r.Delete("/", shelves.HandleDelete)
					r.Get("/books", shelves.HandleListBooks)
					r.Post("/books", shelves.HandleAddBook)
					r.Delete("/books/{bookId}", shelves.HandleRemoveBook)
				})
			})
		})
	})
}

// coverFiles serves stored covers. Directory listings are refused so the set
// of cover ids cannot be enumerated.
func coverFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Handler exposes the router, for tests and for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on return.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully:
// stop accepting connections, wait up to 30s for in-flight requests, close
// the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.DBPath),
			slog.String("covers", s.covers.Dir()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
