package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/config"
	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/handlers"
	"github.com/jobboard/apiserver/internal/localstate"
	"github.com/jobboard/apiserver/internal/scheduler"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	accessor   *backend.Accessor
	redis      *redis.Client
	scheduler  *scheduler.Scheduler
	logger     *zap.Logger
}

// New constructs a Server with basic middleware and defaults. The backend
// client is built on first use, so a missing or unreachable backend does
// not stop the server from starting.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessor := backend.NewAccessor(cfg, logger.Named("backend"))

	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		rdb, err = localstate.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	siteURL := strings.TrimRight(cfg.Backend.SiteURL, "/")
	sessions := handlers.NewSessionRegistry(accessor, logger.Named("sessions"), handlers.SessionOptions{
		Redis:        rdb,
		SecureCookie: strings.HasPrefix(siteURL, "https://"),
		Holder: auth.Options{
			EmailRedirectTo: siteURL + "/auth/callback",
		},
	})
	authHandler := handlers.NewAuthHandler(sessions, logger.Named("auth"))
	authMiddleware := handlers.RequireAuth(accessor)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/auth/callback", authHandler.Callback)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Route("/profile", func(r chi.Router) {
			handlers.ProfileRouter(r, accessor, logger.Named("profile"))
		})
		r.Route("/jobs", func(r chi.Router) {
			handlers.JobRouter(r, accessor, logger.Named("jobs"), authMiddleware)
		})
		r.Route("/uploads", func(r chi.Router) {
			handlers.UploadRouter(r, accessor, logger.Named("uploads"), authMiddleware)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		accessor:   accessor,
		redis:      rdb,
		scheduler:  scheduler.New(accessor, sessions, cfg.Scheduler, logger.Named("scheduler")),
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the housekeeping jobs and the HTTP server. It returns nil
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the backend client.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.scheduler.Stop()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	return errors.Join(err, s.accessor.Close())
}
