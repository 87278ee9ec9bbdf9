/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP routers (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTERS:
  NewRouter     The device API under /api (ledger, export, sync).
  NewHubRouter  The remote hub under /hub, used by remote.Client.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the manager UI (device API only)
  5. Actor:      X-Actor header attached to the request context
  6. Bearer:     Static token check (hub only, when configured)

SEE ALSO:
  - handlers.go: Device API handlers
  - hub.go: Hub handlers
  - cli/serve.go, cli/hub.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/crewtime/ledger"
)

// ActorHeader names the user a request's mutations are attributed to.
const ActorHeader = "X-Actor"

// RouterOptions tunes NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates the device API router.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))
	r.Use(actorMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Delete("/{id}", h.DeactivateEmployee)
			r.Get("/{id}/entries", h.ListEntries)
			r.Put("/{id}/entries/{date}", h.PutEntry)
			r.Delete("/{id}/entries/{date}", h.ClearEntry)
			r.Get("/{id}/summary", h.GetSummary)
		})

		r.Post("/bulk", h.ApplyBulk)
		r.Get("/history", h.GetHistory)
		r.Get("/export/{month}", h.ExportMonth)
		r.Post("/scans", h.ApplyScan)

		// Sync routes
		r.Route("/sync", func(r chi.Router) {
			r.Get("/", h.GetSyncStatus)
			r.Post("/", h.RunSync)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// NewHubRouter creates the hub router. A non-empty token is required as a
// bearer token on every request.
func NewHubRouter(h *HubHandler, token string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/hub", func(r chi.Router) {
		r.Use(requireBearer(token))
		r.Post("/records", h.UpsertRecords)
		r.Get("/records", h.ListRecords)
	})

	return r
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(ActorHeader); actor != "" {
			r = r.WithContext(ledger.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
