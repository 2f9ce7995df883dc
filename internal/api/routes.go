package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/segment-rules/internal/pkg/logger"
)

// Deps are the collaborators the stub routes need.
type Deps struct {
	Store          SegmentStore
	Health         *HealthChecker
	Auth           *TokenAuth
	AllowedOrigins []string
	// DefaultTenant is used when a request has no X-Tenant-ID header. Zero
	// makes the header mandatory.
	DefaultTenant int64
}

// SetupRoutes configures all stub routes.
func SetupRoutes(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	// Server identity header - distinguishes the stub from the real repository
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "segment-stub-v1.0")
			w.Header().Set("X-Server-Binary", "cmd/stub-api")
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TenantHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	health := d.Health
	if health == nil {
		health = NewHealthChecker(nil, nil)
	}
	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)

	auth := d.Auth
	if auth == nil {
		auth = NewTokenAuth("", "")
	}
	segments := NewSegmentsHandler(d.Store)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/refresh", auth.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Use(TenantMiddleware(d.DefaultTenant))
			r.Route("/email/segments", segments.RegisterRoutes)
		})
	})

	return r
}

// accessLog writes one structured line per request through the logger.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("[http] request failed", fields...)
			return
		}
		logger.Debug("[http] request", fields...)
	})
}
