package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"postpilot/internal/types"
)

// Routes assembles the ops router.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h))

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/planner/run", h.RunPlanner)
		r.Post("/dispatcher/run", h.RunDispatcher)
		r.Post("/accounts/{accountID}/publish-now", h.PublishNow)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{jobID}", h.GetJob)
	})

	return r
}

// requestID assigns each request a UUID, honoring an inbound X-Request-ID
// header, and echoes it back on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// requestLogger logs one line per request with latency and status.
func requestLogger(h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			h.logger.InfoContext(r.Context(), "request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", types.GetRequestID(r.Context()),
			)
		})
	}
}
