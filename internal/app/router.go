package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nyumbani/nyumbani-access/internal/access"
	"github.com/nyumbani/nyumbani-access/internal/audit"
	"github.com/nyumbani/nyumbani-access/internal/catalog"
	"github.com/nyumbani/nyumbani-access/internal/identity"
	"github.com/nyumbani/nyumbani-access/internal/observability"
	"github.com/nyumbani/nyumbani-access/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	IdentityHandler *identity.Handler
	AccessHandler   *access.Handler
	AuditHandler    *audit.Handler
	Guard           access.Guard
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with accessd defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.IdentityHandler.MountRoutes)
	r.Route("/access", params.AccessHandler.MountRoutes)

	if params.AuditHandler != nil {
		r.Route("/audit", func(r chi.Router) {
			r.Use(params.Guard.Require(catalog.ViewAuditLog))
			params.AuditHandler.MountRoutes(r)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
