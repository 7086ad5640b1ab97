package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

// FeatureAuthorization gates routes on the allowed flag of an (entity, feature) pair.
// Geographic restrictions are applied by the services once records are known.
type FeatureAuthorization struct {
	*transport.BaseHandler
}

func NewFeatureAuthorization(logger *slog.Logger) *FeatureAuthorization {
	return &FeatureAuthorization{BaseHandler: transport.NewBaseHandler(logger)}
}

// Require rejects requests whose user cannot use feature on entity at any level.
func (a *FeatureAuthorization) Require(entity permission.Entity, feature permission.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, ok := user.FromContext(r.Context())
			if !ok {
				a.HandleServiceError(w, internal.ErrInvalidToken)
				return
			}

			if !current.Permissions.Allowed(entity, feature) {
				a.Logger.Info("feature denied",
					"user_id", current.ID,
					"entity", entity,
					"feature", feature,
					"path", r.URL.Path)
				a.HandleServiceError(w, internal.NewPermissionDeniedError(
					"missing permission "+string(entity)+"."+string(feature)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
