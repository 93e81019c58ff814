// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and
// routes, and decides how the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go creates:  config → logger → Server
//	Server.New creates: sqlite.DB → TodoService → TodoHandler
//	                    prometheus registry → metrics → service options
//
// This is the "composition root" pattern: every dependency is wired here,
// rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/todo-tracker/internal/handler"
	"github.com/sakif/todo-tracker/internal/metrics"
	"github.com/sakif/todo-tracker/internal/middleware"
	sqliteRepo "github.com/sakif/todo-tracker/internal/repository/sqlite"
	"github.com/sakif/todo-tracker/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Config holds server configuration.
type Config struct {
	Addr   string // listen address, e.g. ":8000"
	DBPath string // live SQLite database file
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it on the way out,
// after the HTTP server has drained, so no request ever sees a closed DB.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	registry *prometheus.Registry

	// fatal receives the first unrecoverable storage error. Start shuts the
	// server down when it fires.
	fatal chan error
}

// New opens (and migrates) the database and builds the router.
//
// IMPORT ALIAS:
// repository/sqlite is imported as `sqliteRepo` so it isn't confused with the
// modernc.org/sqlite driver package.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: registry,
		fatal:    make(chan error, 1),
	}
	s.setupRoutes(metrics.New(registry))
	return s, nil
}

// reportFatal hands err to Start without ever blocking a request goroutine.
// Only the first error matters; later ones are dropped.
func (s *Server) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/todos        → list todos (JSON)
//	POST   /api/todos        → create todo
//	GET    /api/todos/{id}   → get one todo
//	PUT    /api/todos/{id}   → partial update
//	DELETE /api/todos/{id}   → delete todo
//	GET    /healthz          → liveness + database ping
//	GET    /metrics          → Prometheus metrics
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print the id; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	todoService := service.NewTodoService(s.db, s.logger,
		service.WithMetrics(m),
		service.WithFatalHandler(s.reportFatal),
	)
	todoHandler := handler.NewTodoHandler(todoService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Route("/api", todoHandler.Routes)
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it itself; use Close only when
// the server was built but never started.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until SIGINT/SIGTERM, a listener error, or a fatal
// storage error, then shuts down gracefully and closes the database.
//
// A fatal storage error is returned so main exits non-zero; a supervisor
// can then restart the process against a fresh connection.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var cause error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	case err := <-s.fatal:
		s.logger.Error("shutting down after storage failure", slog.String("error", err.Error()))
		cause = fmt.Errorf("storage failure: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	s.logger.Info("server stopped")
	return cause
}
