// Package api exposes reconciliation sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/mapping"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/monitoring"
	"github.com/sells-group/recon-cli/internal/reconcile"
	"github.com/sells-group/recon-cli/internal/store"
)

// Service is the session engine the handlers drive. *reconcile.Engine
// satisfies it.
type Service interface {
	Session(ctx context.Context, id string) (*model.Session, error)
	Sessions(ctx context.Context) ([]store.SessionInfo, error)
	Import(ctx context.Context, in *model.Session) (*model.Session, error)
	Suggest(ctx context.Context, sessionID string) ([]model.CandidateMapping, error)
	Mappings(ctx context.Context, sessionID string) ([]model.CandidateMapping, error)
	Confirm(ctx context.Context, sessionID, mappingID string) (model.CandidateMapping, error)
	Reject(ctx context.Context, sessionID, mappingID string) (model.CandidateMapping, error)
	Edit(ctx context.Context, sessionID, mappingID string, ed mapping.Edit) (model.CandidateMapping, error)
	AddMapping(ctx context.Context, sessionID string, ref model.PairRef) (model.CandidateMapping, error)
	UpdateValue(ctx context.Context, sessionID string, origin model.Origin, valueID string, patch model.ValuePatch) (model.ExtractedValue, error)
	Reconcile(ctx context.Context, sessionID string, opts reconcile.Options) (*reconcile.Outcome, error)
	Summary(ctx context.Context, sessionID string) (model.SessionSummary, error)
	Runs(ctx context.Context, sessionID string, limit int) ([]model.Run, error)
	Run(ctx context.Context, runID string) (*model.Run, error)
	Records(ctx context.Context, runID string) ([]model.ReconciliationRecord, error)
	Status(ctx context.Context, sessionID string) (*reconcile.Status, error)
}

// MetricsSource reports run health for GET /metrics.
type MetricsSource interface {
	Collect(ctx context.Context, sessionID string, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Server holds the router and its dependencies.
type Server struct {
	svc     Service
	metrics MetricsSource
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts GET /metrics backed by m.
func WithMetrics(m MetricsSource) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds the router. allowedOrigins feeds the CORS policy.
func NewServer(svc Service, allowedOrigins []string, opts ...Option) *Server {
	s := &Server{svc: svc, router: chi.NewRouter()}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware(allowedOrigins)
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware(allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Get("/metrics", s.getMetrics)
	}

	r.Get("/sessions", s.listSessions)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Put("/", s.putSession)
		r.Get("/", s.getSession)
		r.Get("/status", s.status)
		r.Get("/summary", s.summary)
		r.Get("/runs", s.listRuns)
		r.Post("/reconcile", s.reconcile)
		r.Post("/values/{origin}/{valueID}", s.updateValue)

		r.Get("/mappings", s.listMappings)
		r.Post("/mappings", s.addMapping)
		r.Post("/mappings/suggest", s.suggest)
		r.Post("/mappings/{mappingID}/confirm", s.confirm)
		r.Post("/mappings/{mappingID}/reject", s.reject)
		r.Post("/mappings/{mappingID}/edit", s.edit)
	})

	r.Get("/runs/{runID}", s.getRun)
	r.Get("/runs/{runID}/records", s.listRecords)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
