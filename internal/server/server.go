// Package server serves the probe as a small diagnostics HTTP API, so a
// deployed dashboard's backend can be checked from a browser or a
// monitoring job.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/handler"
	"github.com/dashprobe/dashprobe/internal/probe"
	"github.com/dashprobe/dashprobe/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	RateLimit       int           // requests per minute per IP; 0 disables
	ProbeTimeout    time.Duration // per-check bound; 0 means none
}

// DefaultConfig returns a Config bound to localhost.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8686,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "OPTIONS"},
		RateLimit:       120,
		ProbeTimeout:    30 * time.Second,
	}
}

// Server is the diagnostics HTTP server. It owns the router and probes
// the backend held by prober.
type Server struct {
	cfg        Config
	router     chi.Router
	registry   *connector.Registry
	sel        *datasource.Selection
	prober     *probe.Prober
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server and wires its routes. sel may be nil when the
// backend was chosen explicitly rather than by the data source selector.
func New(cfg Config, registry *connector.Registry, sel *datasource.Selection, prober *probe.Prober, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		sel:      sel,
		prober:   prober,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: s.cfg.CORSMethods,
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- Probe API ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimit))

		h := handler.NewProbeHandler(s.prober, s.sel, s.cfg.ProbeTimeout)

		r.Get("/datasource", h.GetDataSource)
		r.Get("/tables/{tableName}", h.ProbeTable)
		r.Get("/tables/{tableName}/columns", h.ProbeColumns)
		r.Get("/relationships", h.ProbeRelationship)
		r.Get("/duplicates", h.DetectDuplicates)
		r.Post("/probe", h.RunPlan)
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when every connected
// backend answers a ping, 503 otherwise. A live selection with a missing
// backend URL also reports degraded.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string)

	for _, name := range s.registry.ListBackends() {
		conn, err := s.registry.Get(name)
		if err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
			continue
		}
		if err := conn.Ping(r.Context()); err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	if s.sel != nil {
		if err := s.sel.Check(); err != nil {
			checks["data_source"] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["data_source"] = string(s.sel.Mode())
		}
	}

	httpStatus := http.StatusOK
	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then drains in-flight requests and closes all backends.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.registry.CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
