package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/session"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports whether the remote analyzer is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type App struct {
	Registry *session.Registry
	Analyzer HealthChecker
	Logger   *log.Logger
	// MaxBodySize bounds request bodies, frames included.
	MaxBodySize int64
}

func NewRouter(app *App) http.Handler {
	if app.Logger == nil {
		app.Logger = log.New(io.Discard)
	}
	if app.MaxBodySize <= 0 {
		app.MaxBodySize = 8 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(app.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/api/health", app.HealthHandler)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", app.CreateSessionHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.SnapshotHandler)
			r.Get("/live", app.LiveHandler)
			r.Post("/frames", app.FrameHandler)
			r.Post("/begin", app.BeginHandler)
			r.Post("/advance", app.AdvanceHandler)
			r.Post("/recording/start", app.StartRecordingHandler)
			r.Post("/recording/stop", app.StopRecordingHandler)
			r.Post("/end", app.EndHandler)
			r.Post("/evaluate", app.EvaluateHandler)
		})
	})

	return r
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
