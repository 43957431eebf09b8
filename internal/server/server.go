package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sfm-market/storefront/config"
	"github.com/sfm-market/storefront/internal/credential"
	"github.com/sfm-market/storefront/internal/db"
	"github.com/sfm-market/storefront/internal/handlers"
	"github.com/sfm-market/storefront/internal/mq"
	"github.com/sfm-market/storefront/internal/services"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/internal/storage"
	"github.com/sfm-market/storefront/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *db.Client
	mq         *mq.MQ
	log        logr.Logger
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Sessions   *session.CookieStore
	Users      *services.UserService
	Products   *services.ProductService
	Categories *services.CategoryService
	Media      handlers.ObjectOpener
	Log        logr.Logger
}

// New wires every collaborator from cfg. The database is opened eagerly so a
// bad DSN fails at startup instead of on the first request.
func New(ctx context.Context, cfg config.Config, log logr.Logger) (*Server, error) {
	codec, err := session.NewCodec([]byte(cfg.Session.Secret))
	if err != nil {
		return nil, err
	}
	sessions := session.NewCookieStore(codec, session.CookieOptions{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.TTL,
		Secure: cfg.Session.CookieSecure,
	}, log)

	hasher, err := credential.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	dbClient := db.NewClient(cfg.Database)
	dbConn, err := dbClient.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	media, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	broker, err := mq.FromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	var events services.EventPublisher
	if broker != nil {
		events = broker
	}

	userRepo := store.NewUserRepository(dbConn)
	productRepo := store.NewProductRepository(dbConn)
	categoryRepo := store.NewCategoryRepository(dbConn)

	router := NewRouter(Deps{
		Sessions:   sessions,
		Users:      services.NewUserService(userRepo, hasher, media, events, log),
		Products:   services.NewProductService(productRepo, categoryRepo, media, events, log),
		Categories: services.NewCategoryService(categoryRepo, media, events, log),
		Media:      media,
		Log:        log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbClient,
		mq:         broker,
		log:        log.WithName("server"),
	}, nil
}

// NewRouter builds the HTTP routes. Every request passes through session
// loading and sliding refresh before reaching a route.
func NewRouter(deps Deps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		deps.Sessions.Load,
		deps.Sessions.Refresh,
	)

	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Users, deps.Sessions, deps.Log)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, deps.Users, deps.Sessions, deps.Log)
	})
	router.Route("/products", func(r chi.Router) {
		handlers.ProductRouter(r, deps.Products)
	})
	router.Route("/categories", func(r chi.Router) {
		handlers.CategoryRouter(r, deps.Categories)
	})
	if deps.Media != nil {
		uploads := handlers.Uploads(deps.Media, deps.Log)
		router.Get("/uploads/*", uploads)
		router.Head("/uploads/*", uploads)
	}

	return router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, waits for in-flight ones, and releases
// the database pool and broker connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.log.Error(err, "failed to close broker")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error(err, "failed to close database")
		}
	}
}
