package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/DocScrub/internal/config"
	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/metrics"
	"github.com/dharsanguruparan/DocScrub/internal/signing"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

// Presigner is implemented by artifact backends that can hand out direct,
// time-limited download URLs.
type Presigner interface {
	PresignProcessedURL(ctx context.Context, location string, ttl time.Duration) (string, error)
}

// Server exposes HTTP endpoints for submissions.
type Server struct {
	cfg       *config.Config
	manager   *submission.Manager
	signer    *signing.Signer
	presigner Presigner
	router    *chi.Mux
	now       func() time.Time
}

// New constructs a Server and its routes.
func New(cfg *config.Config, manager *submission.Manager, signer *signing.Signer) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		signer:  signer,
		router:  chi.NewRouter(),
		now:     time.Now,
	}
	s.routes()
	return s
}

// SetPresigner makes download-url return backend URLs instead of links signed
// by this server.
func (s *Server) SetPresigner(p Presigner) {
	s.presigner = p
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	httpLogger := httplog.NewLogger("docscrub", httplog.Options{
		LogLevel:         logger.ParseLevel(s.cfg.LogLevel),
		JSON:             true,
		Concise:          true,
		MessageFieldName: "message",
		Tags:             map[string]string{"component": "api"},
	})

	r := s.router
	r.Use(requestID)
	r.Use(httplog.RequestLogger(httpLogger))
	r.Use(contextLogger)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", s.handleCreate)
			r.Get("/", s.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Get("/download", s.handleDownload)
				r.Get("/download-url", s.handleDownloadURL)
				r.Post("/rate", s.handleRate)
			})
		})
		r.Get("/downloads/{id}", s.handleSignedDownload)
	})
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.FromContext(ctx).Info("api listening", "address", s.cfg.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestID adopts the caller's X-Request-Id or assigns one, and echoes it on
// the response. chi's RequestID middleware downstream picks up the header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = submission.NewID()
			r.Header.Set(middleware.RequestIDHeader, id)
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// contextLogger makes the request logger available through logger.FromContext
// so code below the HTTP layer logs with the request id attached.
func contextLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.NewContext(r.Context(), httplog.LogEntry(r.Context()))
		ctx = logger.WithRequestID(ctx, middleware.GetReqID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
