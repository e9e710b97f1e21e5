// Package server is the composition root: it opens the database, builds the
// services, the realtime hub and the HTTP handlers, and wires them to routes.
//
//	sqlite.DB ─┬─ AuthService ──── AuthHandler
//	           ├─ GameService ──┬─ GameHandler
//	           │                └─ realtime.Hub ── /ws
//	memory ────┴─ MatchmakingService ─┬─ MatchmakingHandler
//	                                  └─ scheduler (sweep, evict)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/casalena404/crypto-chess/internal/auth"
	"github.com/casalena404/crypto-chess/internal/config"
	"github.com/casalena404/crypto-chess/internal/handler"
	"github.com/casalena404/crypto-chess/internal/metrics"
	"github.com/casalena404/crypto-chess/internal/middleware"
	"github.com/casalena404/crypto-chess/internal/realtime"
	"github.com/casalena404/crypto-chess/internal/repository/memory"
	sqliteRepo "github.com/casalena404/crypto-chess/internal/repository/sqlite"
	"github.com/casalena404/crypto-chess/internal/rules"
	"github.com/casalena404/crypto-chess/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database, the hub and the background jobs. Start serves
// until its context is cancelled; Close releases what New acquired.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	db        *sqliteRepo.DB
	router    *chi.Mux
	registry  *prometheus.Registry
	hub       *realtime.Hub
	match     *service.MatchmakingService
	limiter   *middleware.RateLimiter
	scheduler gocron.Scheduler
}

func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		router:   chi.NewRouter(),
		registry: prometheus.NewRegistry(),
		limiter:  middleware.NewRateLimiter(cfg.HTTPRate, cfg.HTTPBurst),
	}

	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup() error {
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(s.registry)

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.cfg.BcryptCost)

	accounts := service.NewAuthService(s.db, tokens, passwords, s.logger)
	games := service.NewGameService(s.db, s.db, rules.NewPositionChecker(s.cfg.StrictPositions), collector, s.logger)
	s.match = service.NewMatchmakingService(memory.NewTicketStore(), games, accounts, s.cfg.TicketTTL, collector, s.logger)

	s.hub = realtime.NewHub(games, s.match, accounts, collector, realtime.Options{
		EventRate:  s.cfg.WSRate,
		EventBurst: s.cfg.WSBurst,
	}, s.logger)
	s.match.SetNotifier(s.hub)

	s.scheduler, err = s.newScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	s.routes(
		handler.NewAuthHandler(accounts, s.logger),
		handler.NewGameHandler(games, s.logger),
		handler.NewMatchmakingHandler(s.match, s.logger),
		handler.NewHealthHandler(s.db, s.logger),
		tokens,
	)
	return nil
}

// routes installs middleware and the route table.
//
//	POST   /auth/register                    public
//	POST   /auth/login                       public
//	POST   /auth/logout
//	GET    /auth/profile
//	PUT    /auth/profile
//	GET    /games
//	POST   /games
//	GET    /games/{id}
//	PUT    /games/{id}
//	GET    /games/matchmaking/tickets
//	POST   /games/matchmaking/tickets
//	DELETE /games/matchmaking/tickets/{id}
//	GET    /games/matchmaking/online         public
//	GET    /health                           public
//	GET    /metrics                          public
//	GET    /ws                               token in handshake
func (s *Server) routes(
	authH *handler.AuthHandler,
	gameH *handler.GameHandler,
	matchH *handler.MatchmakingHandler,
	healthH *handler.HealthHandler,
	tokens auth.Validator,
) {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.cfg.CORSOrigins))

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	r.Get("/health", healthH.HandleHealth)
	r.Handle("/metrics", metrics.Handler(s.registry))
	r.Get("/ws", s.hub.ServeWS)

	// Public API routes are limited per IP.
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/auth/register", authH.HandleRegister)
		r.Post("/auth/login", authH.HandleLogin)
		r.Get("/games/matchmaking/online", matchH.HandleOnline)
	})

	// Everything else needs a token and is limited per user.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Use(s.limiter.Middleware)

		r.Post("/auth/logout", authH.HandleLogout)
		r.Get("/auth/profile", authH.HandleProfile)
		r.Put("/auth/profile", authH.HandleUpdate)

		r.Get("/games", gameH.HandleList)
		r.Post("/games", gameH.HandleCreate)
		r.Get("/games/matchmaking/tickets", matchH.HandleList)
		r.Post("/games/matchmaking/tickets", matchH.HandleSubmit)
		r.Delete("/games/matchmaking/tickets/{id}", matchH.HandleDelete)
		r.Get("/games/{id}", gameH.HandleGet)
		r.Put("/games/{id}", gameH.HandleUpdate)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP and runs the background jobs until ctx is cancelled,
// then shuts down gracefully: stop accepting requests, disconnect websocket
// clients, stop the jobs.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.scheduler.Start()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
			slog.Duration("sweepInterval", s.cfg.SweepInterval),
			slog.Duration("ticketTTL", s.cfg.TicketTTL),
			slog.Bool("strictPositions", s.cfg.StrictPositions),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.stopBackground()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		s.stopBackground()
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}

// stopBackground disconnects websocket clients, which http.Server.Shutdown
// does not track, and stops the scheduled jobs.
func (s *Server) stopBackground() {
	s.hub.Shutdown()
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown", slog.String("error", err.Error()))
	}
}

// Close releases the database. Call it after Start returns.
func (s *Server) Close() error {
	return s.db.Close()
}
