package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(svc Services, corsOrigins []string) http.Handler {
	return newRouter(svc, corsOrigins)
}

func newRouter(svc Services, corsOrigins []string) http.Handler {
	h := &handler{
		market:  svc.Market,
		refresh: svc.Refresh,
		jobs:    svc.Jobs,
	}

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// recovery -> requestID -> access log -> real IP -> CORS
	r.Use(recovery)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", h.info)
		r.Get("/symbols", h.symbols)
		r.Get("/companies", h.companies)

		r.Get("/company", h.queryCompany)
		r.Get("/company/latest", h.latestSnapshot)
		r.Get("/company/{symbol}/history", h.companyHistory)
		r.Get("/company/{symbol}/variations", h.variations)

		r.Get("/indices/latest", h.indicesLatest)

		r.Get("/history", h.history)
		r.Get("/history/{symbol}/latest", h.latestCandle)
		r.Get("/candles/{symbol}", h.candles)

		r.Get("/sources", h.listSources)
		r.Get("/jobs", h.listJobs)
		r.Get("/jobs/{id}", h.getJob)
	})

	return r
}
