package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/meddocs/internal/api"
	"github.com/cloo-solutions/meddocs/internal/api/handlers"
	"github.com/cloo-solutions/meddocs/internal/api/middleware"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/metrics"
)

const defaultMaxBodyBytes int64 = 50 * 1000 * 1000

type RouterConfig struct {
	APIToken     string
	MaxBodyBytes int64
	// RateLimiter guards the generator-backed routes. Nil disables limiting.
	RateLimiter *middleware.IPRateLimiter

	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
	ReportHandler   *handlers.ReportHandler
	DriveHandler    *handlers.DriveHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger.New("http")))
	r.Use(middleware.Metrics)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	limited := func(r chi.Router) chi.Router {
		if cfg.RateLimiter == nil {
			return r
		}
		return r.With(middleware.RateLimit(cfg.RateLimiter))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(cfg.APIToken))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Upload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Post("/{id}/reprocess", cfg.DocumentHandler.Reprocess)
			r.Get("/{id}/chunks", cfg.DocumentHandler.Chunks)
		})
		r.Get("/stats", cfg.DocumentHandler.Stats)

		limited(r).Post("/search", cfg.ChatHandler.Search)
		limited(r).Post("/chat", cfg.ChatHandler.Ask)
		r.Get("/chat/{session_id}/messages", cfg.ChatHandler.History)

		r.Route("/reports", func(r chi.Router) {
			limited(r).Post("/", cfg.ReportHandler.Create)
			r.Get("/", cfg.ReportHandler.List)
			r.Get("/{id}", cfg.ReportHandler.Get)
			r.Get("/{id}/download", cfg.ReportHandler.Download)
			r.Delete("/{id}", cfg.ReportHandler.Delete)
		})

		r.Route("/drive", func(r chi.Router) {
			r.Get("/files", cfg.DriveHandler.ListFiles)
			r.Get("/files/{id}", cfg.DriveHandler.GetFile)
			r.Get("/folders/{id}", cfg.DriveHandler.FolderContents)
			r.Post("/import", cfg.DriveHandler.Import)
		})
	})

	return r
}
