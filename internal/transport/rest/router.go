package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/resorption-bidonvilles/internal/auth"
	"github.com/frahmantamala/resorption-bidonvilles/internal/export"
	"github.com/frahmantamala/resorption-bidonvilles/internal/metrics"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/plan"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/stats"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport/middleware"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport/swagger"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

// Handlers groups everything mounted by RegisterAllRoutes. A nil handler leaves its
// routes unregistered.
type Handlers struct {
	Health     *HealthHandler
	Auth       *auth.Handler
	User       *user.Handler
	Shantytown *shantytown.Handler
	Export     *export.Handler
	Plan       *plan.Handler
	Stats      *stats.Handler
	Swagger    *swagger.Handler
}

type Options struct {
	AllowedOrigins []string
	MetricsEnabled bool
	MetricsPath    string
	// LoginLimit guards the credential endpoints. Nil disables rate limiting.
	LoginLimit func(http.Handler) http.Handler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options, logger *slog.Logger) {
	authz := auth.NewFeatureAuthorization(logger)

	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.TraceID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	if opts.MetricsEnabled {
		router.Use(metrics.Middleware)
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, metrics.Handler())
	}

	if h.Swagger != nil {
		router.Get("/openapi.yml", h.Swagger.ServeSpec)
		router.Handle("/swagger/*", h.Swagger.UI())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Auth != nil {
			r.Route("/auth", func(ar chi.Router) {
				ar.Group(func(lr chi.Router) {
					if opts.LoginLimit != nil {
						lr.Use(opts.LoginLimit)
					}
					lr.Post("/login", h.Auth.Login)
					lr.Post("/refresh", h.Auth.RefreshToken)
				})
				ar.Post("/logout", h.Auth.Logout)
			})
		}

		// activation links are opened by users who cannot log in yet
		if h.User != nil {
			r.Post("/accesses/{id}/activate", h.User.ActivateAccess)
		}

		if h.Auth == nil {
			return
		}

		// reads are scoped by the services: a denied list is empty and a denied record
		// is not found, so only writes are gated here
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Get("/me", h.User.GetCurrentUser)
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/", h.User.GetUsers)
					ur.Get("/{id}", h.User.GetUser)
					ur.With(authz.Require(permission.EntityUser, permission.FeatureActivate)).Post("/{id}/accesses", h.User.CreateAccess)
				})
			}

			pr.Route("/towns", func(tr chi.Router) {
				if h.Export != nil {
					tr.With(authz.Require(permission.EntityShantytown, permission.FeatureExport)).Get("/export", h.Export.ExportShantytowns)
				}
				if h.Shantytown == nil {
					return
				}
				tr.Get("/", h.Shantytown.GetShantytowns)
				tr.With(authz.Require(permission.EntityShantytown, permission.FeatureCreate)).Post("/", h.Shantytown.CreateShantytown)
				tr.Route("/{id}", func(ir chi.Router) {
					ir.Get("/", h.Shantytown.GetShantytown)
					ir.With(authz.Require(permission.EntityShantytown, permission.FeatureUpdate)).Put("/", h.Shantytown.UpdateShantytown)
					ir.With(authz.Require(permission.EntityShantytown, permission.FeatureClose)).Post("/close", h.Shantytown.CloseShantytown)
					ir.With(authz.Require(permission.EntityShantytown, permission.FeatureDelete)).Delete("/", h.Shantytown.DeleteShantytown)
					ir.Get("/changelog", h.Shantytown.GetChangelog)
					ir.With(authz.Require(permission.EntityShantytownComment, permission.FeatureCreate)).Post("/comments", h.Shantytown.CreateComment)
				})
			})

			if h.Plan != nil {
				pr.Route("/plans", func(plr chi.Router) {
					plr.Get("/", h.Plan.GetPlans)
					plr.With(authz.Require(permission.EntityPlan, permission.FeatureCreate)).Post("/", h.Plan.CreatePlan)
					plr.Get("/{id}", h.Plan.GetPlan)
					plr.With(authz.Require(permission.EntityPlan, permission.FeatureUpdate)).Post("/{id}/states", h.Plan.AddState)
					plr.With(authz.Require(permission.EntityPlan, permission.FeatureClose)).Post("/{id}/close", h.Plan.ClosePlan)
				})
			}

			if h.Stats != nil {
				pr.With(authz.Require(permission.EntityStats, permission.FeatureRead)).Get("/stats", h.Stats.GetStats)
			}
		})
	})
}
