package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/diewo77/go-members/internal/auth"
	"github.com/diewo77/go-members/internal/db"
	"github.com/diewo77/go-members/internal/handlers"
	"github.com/diewo77/go-members/internal/httpx"
	"github.com/diewo77/go-members/internal/identity"
	"github.com/diewo77/go-members/internal/logging"
	"github.com/diewo77/go-members/internal/membership"
	"github.com/diewo77/go-members/internal/metrics"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux     *http.ServeMux
	db      *gorm.DB
	metrics *metrics.Metrics
	log     *slog.Logger
	handler http.Handler
}

// NewApp creates a new application with all routes configured.
func NewApp(gdb *gorm.DB, deps membership.Deps, verifier identity.Verifier, m *metrics.Metrics, log *slog.Logger) *App {
	app := &App{
		mux:     http.NewServeMux(),
		db:      gdb,
		metrics: m,
		log:     log,
	}
	app.setupRoutes(deps)
	app.handler = app.withRecover(auth.Middleware(verifier)(app.withLogging(app.mux)))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) setupRoutes(deps membership.Deps) {
	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.Handle("GET /metrics", a.metrics.Handler())

	handlers.NewMembershipHandler(deps).Register(a.mux)
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if err := db.Ping(r.Context(), a.db); err != nil {
		a.log.WarnContext(r.Context(), "health check failed", "error", err)
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withLogging tags the request with an id, then logs and measures it by
// route pattern.
func (a *App) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(logging.WithRequestID(r.Context(), id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		d := time.Since(start)
		a.metrics.HTTPRequest(r.Method, route, rec.status, d)
		a.log.InfoContext(r.Context(), "http request",
			"method", r.Method, "path", r.URL.Path, "route", route, "status", rec.status, "duration", d)
	})
}

func (a *App) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.log.ErrorContext(r.Context(), "panic serving request", "panic", rec, "path", r.URL.Path)
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
