package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/clientip"
	"github.com/dmitrymomot/tenantkit/pkg/gate"
	"github.com/dmitrymomot/tenantkit/pkg/requestid"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Auditor records user-initiated mutations.
type Auditor interface {
	Record(ctx context.Context, action string, opts ...audit.EntryOption)
}

// Routes holds everything the router mounts. Authenticate and Scope are the identity and
// tenancy middleware; the webhook and health handlers are mounted as is.
type Routes struct {
	Logger       *slog.Logger
	Errors       apierr.ErrorHandler
	ClientIP     *clientip.Resolver
	Authenticate func(http.Handler) http.Handler
	Scope        func(http.Handler) http.Handler
	Gates        *gate.Gates
	Stores       tenant.StoreFunc
	Auditor      Auditor

	IdentityWebhook http.Handler
	BillingWebhook  http.Handler
	Health          http.Handler
}

// NewRouter builds the HTTP surface of the service.
func NewRouter(rt Routes) http.Handler {
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.Errors == nil {
		rt.Errors = apierr.Default
	}

	h := &handlers{
		log:     rt.Logger,
		errors:  rt.Errors,
		gates:   rt.Gates,
		stores:  rt.Stores,
		auditor: rt.Auditor,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware)
	if rt.ClientIP != nil {
		r.Use(rt.ClientIP.Middleware)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierr.Write(w, apierr.New(http.StatusNotFound, apierr.CodeNotFound, "Not found."))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierr.Write(w, apierr.New(http.StatusMethodNotAllowed, apierr.CodeInvalidRequest, "Method not allowed."))
	})

	if rt.Health != nil {
		r.Method(http.MethodGet, "/healthz", rt.Health)
	}
	r.Route("/webhooks", func(r chi.Router) {
		if rt.IdentityWebhook != nil {
			r.Method(http.MethodPost, "/identity", rt.IdentityWebhook)
		}
		if rt.BillingWebhook != nil {
			r.Method(http.MethodPost, "/billing", rt.BillingWebhook)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.Authenticate, rt.Scope, rt.Gates.ReadOnly())

		r.Get("/tenant", h.getTenant)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.listProjects)
			r.With(
				rt.Gates.RequireRole(tenant.RoleMember),
				rt.Gates.RequireUnderLimit(tenant.ResourceProjects),
			).Post("/", h.createProject)
			r.With(rt.Gates.RequireRole(tenant.RoleAdmin)).Delete("/{id}", h.deleteProject)
		})

		r.With(rt.Gates.RequireFeature(tenant.FeatureAdvancedReports)).
			Get("/reports/advanced", h.advancedReport)

		r.With(rt.Gates.RequireRole(tenant.RoleAdmin)).
			Put("/members/{userID}/role", h.setMemberRole)
	})

	return r
}
