package geo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	geoDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/geo"
)

type Repository interface {
	// FindChain returns nil, nil when code does not exist at level.
	FindChain(ctx context.Context, level Level, code string) (*geoDatamodel.Chain, error)
}

type Resolver struct {
	repo   Repository
	logger *slog.Logger
}

func NewResolver(repo Repository, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger,
	}
}

// Resolve returns the ancestor chain of code. Resolve(LevelNation, "") is the whole country.
func (r *Resolver) Resolve(ctx context.Context, level Level, code string) (*Location, error) {
	if level == LevelNation {
		return NationLocation(), nil
	}
	if level.depth() < 0 {
		return nil, internal.NewValidationFieldError("type", fmt.Sprintf("niveau géographique inconnu : %s", level))
	}

	chain, err := r.repo.FindChain(ctx, level, code)
	if err != nil {
		r.logger.Error("failed to resolve location", "error", err, "level", level, "code", code)
		return nil, internal.NewDataAccessError("failed to resolve location", err)
	}
	if chain == nil {
		return nil, internal.NewNotFoundError(
			fmt.Sprintf("location %s %q not found", level, code),
			"La localisation demandée n'existe pas",
			internal.ErrCodeLocationNotFound,
		)
	}

	return FromChain(level, chain), nil
}
