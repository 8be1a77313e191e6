package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mixelka/mailhub/internal/public"
)

// Resolver resolves share codes
type Resolver interface {
	Resolve(ctx context.Context, code string) (*public.Result, error)
}

// Pinger reports store health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps dependencies for creating a server
type Deps struct {
	Resolver Resolver
	Renderer *public.Renderer
	DB       Pinger
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the public HTTP surface
type Server struct {
	resolver Resolver
	renderer *public.Renderer
	db       Pinger
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(deps Deps) *Server {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		resolver: deps.Resolver,
		renderer: deps.Renderer,
		db:       deps.DB,
		gatherer: gatherer,
		logger:   deps.Logger.With("component", "http"),
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/{code}", s.handleQuery)
	return r
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	res, err := s.resolver.Resolve(r.Context(), code)
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("share query failed", "error", err)
		}
		writeText(w, status, msg)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(s.renderer.RenderHTML(res)))
		return
	}
	writeText(w, http.StatusOK, s.renderer.RenderText(res))
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, public.ErrRuleNotFound):
		return http.StatusNotFound, "link not found"
	case errors.Is(err, public.ErrRuleExpired):
		return http.StatusForbidden, "link expired"
	case errors.Is(err, public.ErrAccountUnresolved):
		return http.StatusNotFound, "account not found"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
