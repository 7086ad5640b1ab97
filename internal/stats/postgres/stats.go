package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/stats"
)

// StatsRepository runs the dashboard counts as plain SQL. Every value, dates
// included, is a bound parameter.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) stats.Repository {
	return &StatsRepository{db: db}
}

const (
	statusOpen     = "open"
	statusResorbed = "resorbed"
	statusActive   = "active"
)

func (r *StatsRepository) CountShantytowns(ctx context.Context, scope query.Clause, period stats.Period) (stats.ShantytownCounts, error) {
	var counts stats.ShantytownCounts
	err := r.get(ctx, &counts, `
SELECT
	COUNT(*) FILTER (WHERE s.status = ?) AS open,
	COALESCE(SUM(s.population_total) FILTER (WHERE s.status = ?), 0) AS population,
	COUNT(*) FILTER (WHERE s.closed_at >= ? AND s.closed_at < ?) AS closed,
	COUNT(*) FILTER (WHERE s.status = ? AND s.closed_at >= ? AND s.closed_at < ?) AS resorbed
FROM shantytowns s
JOIN cities c ON c.code = s.city_code
JOIN departements d ON d.code = c.departement_code`,
		[]any{statusOpen, statusOpen, period.From, period.To, statusResorbed, period.From, period.To},
		scope,
	)
	if err != nil {
		return counts, fmt.Errorf("count shantytowns: %w", err)
	}
	return counts, nil
}

func (r *StatsRepository) CountPlans(ctx context.Context, scope query.Clause) (int64, error) {
	var n int64
	err := r.get(ctx, &n, `
SELECT COUNT(*)
FROM plans p
JOIN departements d ON d.code = p.departement_code`, nil,
		query.And(query.Clause{SQL: "p.closed_at IS NULL"}, scope),
	)
	if err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	return n, nil
}

func (r *StatsRepository) CountComments(ctx context.Context, scope query.Clause, period stats.Period) (int64, error) {
	var n int64
	err := r.get(ctx, &n, `
SELECT COUNT(*)
FROM shantytown_comments sc
JOIN shantytowns s ON s.id = sc.shantytown_id
JOIN cities c ON c.code = s.city_code
JOIN departements d ON d.code = c.departement_code`, nil,
		query.And(within("sc.created_at", period), scope),
	)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

func (r *StatsRepository) CountActiveUsers(ctx context.Context, scope query.Clause, period stats.Period) (int64, error) {
	var n int64
	err := r.get(ctx, &n, `
SELECT COUNT(*)
FROM users u
JOIN organizations o ON o.id = u.organization_id`, nil,
		query.And(query.Eq("u.status", statusActive), within("u.last_login_at", period), scope),
	)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func within(column string, period stats.Period) query.Clause {
	return query.Clause{
		SQL:  column + " >= ? AND " + column + " < ?",
		Args: []any{period.From, period.To},
	}
}

// get runs base with its select arguments followed by where, expanding slice
// arguments and rebinding the `?` placeholders for the driver.
func (r *StatsRepository) get(ctx context.Context, dest interface{}, base string, selectArgs []any, where query.Clause) error {
	sql := base
	args := append([]any{}, selectArgs...)
	if !where.IsEmpty() {
		sql += "\nWHERE " + where.SQL
		args = append(args, where.Args...)
	}

	sql, args, err := sqlx.In(sql, args...)
	if err != nil {
		return err
	}
	return r.db.GetContext(ctx, dest, r.db.Rebind(sql), args...)
}
