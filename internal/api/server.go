// Package api serves parsing and dataset assembly over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbstate/internal/auth"
	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/health"
	"github.com/star/orbstate/internal/metrics"
	"github.com/star/orbstate/internal/store"
	"github.com/star/orbstate/internal/tle"
)

// DatasetSaver persists assembled datasets.
type DatasetSaver interface {
	SaveDataset(ctx context.Context, ds *dataset.Dataset) (store.SaveResult, error)
}

// Options configures a Server. Zero values take the defaults noted.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration // 10s
	WriteTimeout time.Duration // 60s
	IdleTimeout  time.Duration // 120s
	MaxBodyBytes int64         // 10 MiB
	MaxEpochs    int           // 1000
	TrustProxy   bool
	Parse        tle.ParseOptions
	Auth         auth.Config
}

func (o *Options) setDefaults() {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 60 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 120 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 10 << 20
	}
	if o.MaxEpochs <= 0 {
		o.MaxEpochs = 1000
	}
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	opts       Options
	assembler  *dataset.Assembler
	latest     *dataset.Latest
	saver      DatasetSaver
}

// NewServer creates a configured HTTP server. saver and checker may be nil.
func NewServer(opts Options, logger *slog.Logger, assembler *dataset.Assembler, latest *dataset.Latest, saver DatasetSaver, checker *health.Checker) *Server {
	opts.setDefaults()
	if checker == nil {
		checker = health.NewChecker(0)
	}
	s := &Server{
		logger:    logger,
		opts:      opts,
		assembler: assembler,
		latest:    latest,
		saver:     saver,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", checker.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/v1/parse", s.handleParse)
	mux.HandleFunc("POST /api/v1/assemble", s.handleAssemble)
	mux.HandleFunc("GET /api/v1/datasets/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}", s.handleSatellite)

	// Build middleware chain: metrics -> logging -> auth -> body limit -> mux.
	var handler http.Handler = mux
	handler = bodyLimit(opts.MaxBodyBytes)(handler)
	handler = auth.Middleware(opts.Auth)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", clientIP(r, trustProxy),
			)
		})
	}
}

// bodyLimit caps request bodies; reads past the limit fail and the handler
// answers 413.
func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
