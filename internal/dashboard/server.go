// Package dashboard serves the JSON API a UI uses to view and operate on
// strategies, trades and settings.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/metrics"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/scheduler"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/strategy"
	"github.com/eddiefleurent/zone_strangler/internal/trades"
)

// Strategies builds tables and lists expiries.
type Strategies interface {
	Build(ctx context.Context, req strategy.Request) (*models.StrategyTable, error)
	Expiries(ctx context.Context, idx models.Index) ([]time.Time, error)
}

// JobLister reports the scheduler's registered jobs.
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// Config holds server settings.
type Config struct {
	Port         int
	AuthToken    string
	MarketStatus func(time.Time) string
	Now          func() time.Time
}

// Server is the dashboard HTTP server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	repo       *storage.Repository
	trades     *trades.Manager
	strategies Strategies
	jobs       JobLister
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	cfg        Config
}

// NewServer wires the routes. jobs and m may be nil.
func NewServer(cfg Config, repo *storage.Repository, mgr *trades.Manager, strategies Strategies, jobs JobLister, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		router:     chi.NewRouter(),
		repo:       repo,
		trades:     mgr,
		strategies: strategies,
		jobs:       jobs,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.cfg.AuthToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/expiries", s.handleExpiries)
		r.Post("/strategies/generate", s.handleGenerate)
		r.Post("/strategies/adopt", s.handleAdopt)

		r.Get("/trades/running", s.handleRunning)
		r.Get("/trades/closed", s.handleClosed)
		r.Get("/trades/expired", s.handleExpired)
		r.Get("/stats", s.handleStats)
		r.Post("/trades/close", s.handleClose)
		r.Post("/trades/close-group", s.handleCloseGroup)
		r.Post("/trades/delete", s.handleDelete)
		r.Post("/trades/delete-batch", s.handleDeleteBatch)
		r.Post("/trades/delete-expiry", s.handleDeleteExpiry)
		r.Post("/trades/delete-closed", s.handleDeleteClosed)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/activity", s.handleActivity)
		r.Get("/jobs", s.handleJobs)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).Round(time.Millisecond),
			"req_id":   middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.cfg.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   s.cfg.Now().Format(time.RFC3339),
	}
	if s.cfg.MarketStatus != nil {
		health["market_status"] = s.cfg.MarketStatus(s.cfg.Now())
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusOK, []scheduler.JobInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.Jobs())
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, provider.ErrProviderUnavailable), errors.Is(err, provider.ErrNoData):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrWriteFailed):
		return http.StatusInternalServerError
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithField("path", r.URL.Path).WithError(err).Error("Request failed")
	}
	writeError(w, status, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
