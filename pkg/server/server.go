// Package server exposes the calmspace store over HTTP and serves the
// app shell through the offline cache.
//
// Routes under /api read and write the state store. Every other request
// is handed to the offline registration, which answers from the active
// cache version and falls back to the network.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/0xmhha/calmspace/pkg/offline"
	"github.com/0xmhha/calmspace/pkg/progress"
	"github.com/gorilla/mux"
)

// ClientCookie holds the offline client id of a browser tab.
const ClientCookie = "calmspace_client"

// Config holds server configuration.
type Config struct {
	// Addr is the listen address.
	// Default: 127.0.0.1:8080
	Addr string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Server serves the API and the cached app shell.
type Server struct {
	config       Config
	accessors    *collection.Accessors
	recorder     *progress.Recorder
	registration *offline.Registration
	logger       logger.Logger
	router       *mux.Router
}

// New creates a server. The registration may have no active worker yet;
// shell requests then fail with 503 until one activates.
func New(cfg Config, acc *collection.Accessors, rec *progress.Recorder, reg *offline.Registration, log logger.Logger) (*Server, error) {
	if acc == nil || rec == nil || reg == nil {
		return nil, ErrNilDependency
	}
	if log == nil {
		log = logger.Noop()
	}
	cfg.applyDefaults()

	s := &Server{
		config:       cfg,
		accessors:    acc,
		recorder:     rec,
		registration: reg,
		logger:       log,
	}
	s.router = s.newRouter()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/backup", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/backup", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)
	api.HandleFunc("/usage", s.handleRecordUsage).Methods(http.MethodPost)
	api.HandleFunc("/mood", s.handleMoods).Methods(http.MethodGet)
	api.HandleFunc("/mood", s.handleSetMood).Methods(http.MethodPost)
	api.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	api.HandleFunc("/journal", s.handleSaveJournal).Methods(http.MethodPut)
	api.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleSaveProfile).Methods(http.MethodPut)
	api.HandleFunc("/theme", s.handleTheme).Methods(http.MethodGet)
	api.HandleFunc("/theme", s.handleSetTheme).Methods(http.MethodPut)
	api.HandleFunc("/theme/toggle", s.handleToggleTheme).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{type}", s.handleSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{type}", s.handleLogSession).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})

	// Everything else is the app shell.
	r.PathPrefix("/").HandlerFunc(s.handleShell)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
