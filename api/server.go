/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the payroll frontend

ROUTE GROUPS:
  /api/payroll/{employeeID}/{period}/*   Record operations (period = YYYY-MM)
  /api/batch/{period}                    Batch recalculation
  /api/history                           Finalized snapshots
  /api/scenarios/*                       Demo data (when a Seeder is set)
  /healthz                               Liveness
  /metrics                               Prometheus (when a handler is given)

ACTOR:
  Mutating endpoints read the acting user from X-Actor-ID and X-Actor-Role.
  Authentication sits in front of this service; the engine only checks the
  role against the transition table.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. metrics may
// be nil.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderActorRole},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/batch/{period}", h.CalculateBatch)

		r.Route("/payroll", func(r chi.Router) {
			r.Route("/{employeeID}/{period}", func(r chi.Router) {
				r.Get("/", h.GetRecord)
				r.Post("/calculate", h.Calculate)
				r.Post("/hr-adjustment", h.SubmitHRAdjustment)
				r.Post("/finance-adjustment", h.SubmitFinanceAdjustment)
				r.Post("/commission", h.SubmitCommission)
				r.Post("/approve", h.Approve)
				r.Post("/lock", h.Lock)
				r.Post("/finalize", h.Finalize)
			})
		})

		r.Get("/history", h.ListHistory)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenarioHandler)
		})
	})

	return r
}
