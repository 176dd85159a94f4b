// Package httpapi is docbeacon's HTTP surface: the tracking pixel and GPS
// endpoint, document generation, analytics and operational endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/service"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Dependencies struct {
	Logger           zerolog.Logger
	Addr             string
	TrackingService  *service.TrackingService
	DocumentService  *service.DocumentService
	DB               Pinger // nil for the memory store
	ConfigStatus     types.ConfigStatus
	PublicBaseURL    string // empty derives the base from each request
	RateLimitPerMin  int    // /create-document and /test/*, default 30
	EnableMetrics    bool
	HealthPingWindow time.Duration // default 2s
}

type Server struct {
	httpServer      *http.Server
	logger          zerolog.Logger
	router          chi.Router
	tracking        *service.TrackingService
	documents       *service.DocumentService
	db              Pinger
	configStatus    types.ConfigStatus
	publicBaseURL   string
	healthPingLimit time.Duration
}

func NewServer(d Dependencies) *Server {
	if d.RateLimitPerMin <= 0 {
		d.RateLimitPerMin = 30
	}
	if d.HealthPingWindow <= 0 {
		d.HealthPingWindow = 2 * time.Second
	}

	r := chi.NewRouter()

	s := &Server{
		logger:          d.Logger.With().Str("component", "http").Logger(),
		router:          r,
		tracking:        d.TrackingService,
		documents:       d.DocumentService,
		db:              d.DB,
		configStatus:    d.ConfigStatus,
		publicBaseURL:   d.PublicBaseURL,
		healthPingLimit: d.HealthPingWindow,
	}

	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	// The generated document posts from file:// or any host, so tracking
	// routes accept every origin.
	trackingCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
	for _, prefix := range []string{"/track", "/track-pdf"} {
		r.Route(prefix+"/{documentID}/{recipient}", func(tr chi.Router) {
			tr.Use(trackingCORS)
			tr.Get("/", s.handleTrackPixel)
			tr.Post("/", s.handleTrackLocation)
			tr.Options("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
		})
	}

	limited := httprate.LimitByIP(d.RateLimitPerMin, time.Minute)
	r.With(limited).Post("/create-document", s.handleCreateDocument)
	r.With(limited).Post("/test/{channel}", s.handleTestChannel)

	r.Get("/analytics/{documentID}", s.handleAnalytics)
	r.Get("/health", s.handleHealth)
	r.Get("/config-status", s.handleConfigStatus)

	if d.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
