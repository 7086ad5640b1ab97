package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/aggregate"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

// Period is the half-open interval [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

type ShantytownCounts struct {
	Open       int64 `db:"open" json:"openShantytowns"`
	Population int64 `db:"population" json:"population"`
	Closed     int64 `db:"closed" json:"closedShantytowns"`
	Resorbed   int64 `db:"resorbed" json:"resorbedShantytowns"`
}

type Stats struct {
	ShantytownCounts
	Plans       int64   `json:"plans"`
	Comments    int64   `json:"comments"`
	ActiveUsers int64   `json:"activeUsers"`
	From        float64 `json:"from"`
	To          float64 `json:"to"`
}

// Scopes holds the permission clause rendered for each table the counts read.
type Scopes struct {
	Shantytowns query.Clause
	Plans       query.Clause
	Users       query.Clause
}

type Repository interface {
	CountShantytowns(ctx context.Context, scope query.Clause, period Period) (ShantytownCounts, error)
	CountPlans(ctx context.Context, scope query.Clause) (int64, error)
	CountComments(ctx context.Context, scope query.Clause, period Period) (int64, error)
	CountActiveUsers(ctx context.Context, scope query.Clause, period Period) (int64, error)
}

var (
	shantytownColumns = permission.Columns{
		Levels: map[geo.Level]string{
			geo.LevelRegion:      "d.region_code",
			geo.LevelDepartement: "d.code",
			geo.LevelEPCI:        "c.epci_code",
			geo.LevelCity:        "c.code",
		},
		Owner: "s.created_by = ?",
	}
	planColumns = permission.Columns{
		Levels: map[geo.Level]string{
			geo.LevelRegion:      "d.region_code",
			geo.LevelDepartement: "p.departement_code",
		},
		Owner: "EXISTS (SELECT 1 FROM plan_managers pm WHERE pm.plan_id = p.id AND pm.user_id = ?)",
	}
	userColumns = permission.Columns{
		Levels: map[geo.Level]string{
			geo.LevelRegion:      "o.region_code",
			geo.LevelDepartement: "o.departement_code",
			geo.LevelEPCI:        "o.epci_code",
			geo.LevelCity:        "o.city_code",
		},
		Owner: "u.id = ?",
	}
)

type Service struct {
	repo         Repository
	queryTimeout time.Duration
	observe      aggregate.Observer
	logger       *slog.Logger
}

func NewService(repo Repository, queryTimeout time.Duration, observe aggregate.Observer, logger *slog.Logger) *Service {
	return &Service{repo: repo, queryTimeout: queryTimeout, observe: observe, logger: logger}
}

// Get computes the dashboard counts for the viewer's territory over period.
func (s *Service) Get(ctx context.Context, viewer *user.User, period Period) (*Stats, error) {
	scope := permission.ScopeFor(viewer, permission.EntityStats, permission.FeatureRead)
	if scope.Denied() {
		return nil, internal.NewPermissionDeniedError("stats.read is not allowed")
	}

	result := &Stats{From: float64(period.From.Unix()), To: float64(period.To.Unix())}
	if !scope.Visible() {
		return result, nil
	}

	scopes, err := render(scope)
	if err != nil {
		return nil, internal.NewInternalError("failed to scope stats", err)
	}

	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	err = aggregate.FanOut(ctx, s.observe,
		aggregate.Task{Name: "stats_shantytowns", Run: func(ctx context.Context) error {
			counts, err := s.repo.CountShantytowns(ctx, scopes.Shantytowns, period)
			result.ShantytownCounts = counts
			return err
		}},
		aggregate.Task{Name: "stats_plans", Run: func(ctx context.Context) error {
			n, err := s.repo.CountPlans(ctx, scopes.Plans)
			result.Plans = n
			return err
		}},
		aggregate.Task{Name: "stats_comments", Run: func(ctx context.Context) error {
			n, err := s.repo.CountComments(ctx, scopes.Shantytowns, period)
			result.Comments = n
			return err
		}},
		aggregate.Task{Name: "stats_users", Run: func(ctx context.Context) error {
			n, err := s.repo.CountActiveUsers(ctx, scopes.Users, period)
			result.ActiveUsers = n
			return err
		}},
	)
	if err != nil {
		s.logger.Error("failed to compute stats", "error", err)
		return nil, internal.NewDataAccessError("failed to compute stats", err)
	}
	return result, nil
}

func render(scope permission.Scope) (Scopes, error) {
	var (
		out Scopes
		err error
	)
	if out.Shantytowns, err = scope.Clause(shantytownColumns); err != nil {
		return out, fmt.Errorf("shantytowns: %w", err)
	}
	if out.Plans, err = scope.Clause(planColumns); err != nil {
		return out, fmt.Errorf("plans: %w", err)
	}
	if out.Users, err = scope.Clause(userColumns); err != nil {
		return out, fmt.Errorf("users: %w", err)
	}
	return out, nil
}
