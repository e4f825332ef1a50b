package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/pkg/requestcontext"
)

// NewRouter mounts the engine API. The metrics handler is optional; pass
// nil to skip the /metrics endpoint.
func NewRouter(h *Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlationID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/compliance/runs", h.handleTriggerRun)
		r.Get("/compliance/runs/progress", h.handleRunProgress)
		r.Route("/tenants/{tenantID}/clients/{clientID}", func(r chi.Router) {
			r.Get("/score", h.handleGetScore)
			r.Get("/fulfillment", h.handleGetFulfillment)
		})
	})

	return r
}

// correlationID copies chi's request id into the engine's request context
// so services and handler error logs can reference it without importing
// net/http machinery.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if rid := middleware.GetReqID(req.Context()); rid != "" {
			req = req.WithContext(requestcontext.WithRequestID(req.Context(), rid))
		}
		next.ServeHTTP(w, req)
	})
}

// MetricsHandler returns the default prometheus exposition handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
