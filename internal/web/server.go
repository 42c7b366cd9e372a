// Package web serves the generator page, the JSON API and the saved audio.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Page text.
const (
	PageTitle = "GenAI-Music"
	Title     = "Text2Music Generator🎵"
)

const (
	serviceName = "music-service"
	corsMaxAge  = 300
)

//go:embed templates/index.html
var templateFS embed.FS

// Runner runs generations and serves their artifacts.
type Runner interface {
	Run(ctx context.Context, req core.GenerationRequest) (*pipeline.Result, error)
	Open(ctx context.Context, key string) ([]byte, error)
}

// ReadyFunc reports whether the model is loaded.
type ReadyFunc func(ctx context.Context) error

// Options configures the server.
type Options struct {
	AllowedOrigins []string
	Ready          ReadyFunc
}

// Server holds the routes and their dependencies.
type Server struct {
	runner Runner
	ready  ReadyFunc
	page   *template.Template
	router chi.Router
	log    *logger.Logger
}

// New creates the server and registers its routes.
func New(runner Runner, opts Options, log *logger.Logger) (*Server, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}

	if runner == nil {
		return nil, errors.New("web server requires a runner")
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		runner: runner,
		ready:  opts.Ready,
		page:   page,
		router: chi.NewRouter(),
		log:    log,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleIndex)
	s.router.Post("/", s.handleGenerateForm)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/audio/{key}", s.handleAudio)

	s.router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         corsMaxAge,
		}))

		r.Post("/api/generate", s.handleGenerateAPI)
		r.Options("/api/generate", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return s, nil
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, serviceName)
}

// StatusFor maps a pipeline error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrModelLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
