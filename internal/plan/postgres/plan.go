package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	planDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/plan"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/plan"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) plan.Repository {
	return &PlanRepository{db: db}
}

const planSelect = `
SELECT
	p.*,
	d.name AS departement_name,
	r.code AS region_code, r.name AS region_name,
	au.first_name AS author_first_name, au.last_name AS author_last_name
FROM plans p
JOIN departements d ON d.code = p.departement_code
JOIN regions r ON r.code = d.region_code
LEFT JOIN users au ON au.id = COALESCE(p.updated_by, p.created_by)`

func (r *PlanRepository) FindRows(ctx context.Context, where query.Clause) ([]planDatamodel.Row, error) {
	sql := planSelect
	if !where.IsEmpty() {
		sql += "\nWHERE " + where.SQL
	}
	sql += "\nORDER BY d.code ASC, p.name ASC, p.id ASC"

	var rows []planDatamodel.Row
	if err := r.db.WithContext(ctx).Raw(sql, where.Args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// planUsers reads the users linked to plans through table, which must have plan_id
// and user_id columns.
func (r *PlanRepository) planUsers(ctx context.Context, table string, ids []int64) ([]planDatamodel.UserRow, error) {
	var rows []planDatamodel.UserRow
	err := r.db.WithContext(ctx).Raw(fmt.Sprintf(`
SELECT
	link.plan_id, u.id, u.first_name, u.last_name, u.email,
	o.id AS organization_id, o.name AS organization_name, o.abbreviation AS organization_abbreviation
FROM %s link
JOIN users u ON u.id = link.user_id
JOIN organizations o ON o.id = u.organization_id
WHERE link.plan_id IN ?
ORDER BY u.last_name ASC, u.first_name ASC, u.id ASC`, table), ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PlanRepository) Managers(ctx context.Context, ids []int64) ([]planDatamodel.UserRow, error) {
	return r.planUsers(ctx, planDatamodel.Manager{}.TableName(), ids)
}

func (r *PlanRepository) Operators(ctx context.Context, ids []int64) ([]planDatamodel.UserRow, error) {
	return r.planUsers(ctx, planDatamodel.Operator{}.TableName(), ids)
}

func (r *PlanRepository) Finances(ctx context.Context, ids []int64) ([]planDatamodel.Finance, error) {
	var rows []planDatamodel.Finance
	err := r.db.WithContext(ctx).
		Where("plan_id IN ?", ids).
		Order("year DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PlanRepository) States(ctx context.Context, ids []int64) ([]planDatamodel.State, error) {
	var rows []planDatamodel.State
	err := r.db.WithContext(ctx).
		Where("plan_id IN ?", ids).
		Order("date DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PlanRepository) Shantytowns(ctx context.Context, ids []int64) ([]planDatamodel.ShantytownRow, error) {
	var rows []planDatamodel.ShantytownRow
	err := r.db.WithContext(ctx).Raw(`
SELECT ps.plan_id, s.id, s.name, s.address, s.city_code, c.name AS city_name, s.status
FROM plan_shantytowns ps
JOIN shantytowns s ON s.id = ps.shantytown_id
JOIN cities c ON c.code = s.city_code
WHERE ps.plan_id IN ?
ORDER BY c.name ASC, s.id ASC`, ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PlanRepository) Create(ctx context.Context, p *planDatamodel.Plan, links plan.Links) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}

		managers := make([]planDatamodel.Manager, 0, len(links.Managers))
		for _, id := range links.Managers {
			managers = append(managers, planDatamodel.Manager{PlanID: p.ID, UserID: id})
		}
		operators := make([]planDatamodel.Operator, 0, len(links.Operators))
		for _, id := range links.Operators {
			operators = append(operators, planDatamodel.Operator{PlanID: p.ID, UserID: id})
		}
		towns := make([]planDatamodel.PlanShantytown, 0, len(links.Shantytowns))
		for _, id := range links.Shantytowns {
			towns = append(towns, planDatamodel.PlanShantytown{PlanID: p.ID, ShantytownID: id})
		}
		finances := make([]planDatamodel.Finance, 0, len(links.Finances))
		for _, f := range links.Finances {
			f.PlanID = p.ID
			finances = append(finances, f)
		}

		if err := insertAll(tx, "managers", managers); err != nil {
			return err
		}
		if err := insertAll(tx, "operators", operators); err != nil {
			return err
		}
		if err := insertAll(tx, "shantytowns", towns); err != nil {
			return err
		}
		return insertAll(tx, "finances", finances)
	})
}

func (r *PlanRepository) CreateState(ctx context.Context, s *planDatamodel.State) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *PlanRepository) Update(ctx context.Context, id int64, mutate func(*planDatamodel.Plan)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p planDatamodel.Plan
		if err := tx.First(&p, id).Error; err != nil {
			return fmt.Errorf("load plan %d: %w", id, err)
		}
		mutate(&p)
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("update plan %d: %w", id, err)
		}
		return nil
	})
}

func insertAll[T any](tx *gorm.DB, what string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert %s: %w", what, err)
	}
	return nil
}
