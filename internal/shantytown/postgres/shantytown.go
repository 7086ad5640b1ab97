package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	planDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/plan"
	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
)

type ShantytownRepository struct {
	db *gorm.DB
}

func NewShantytownRepository(db *gorm.DB) shantytown.Repository {
	return &ShantytownRepository{db: db}
}

const shantytownSelect = `
SELECT
	s.*,
	c.name AS city_name, c.main AS city_main,
	e.code AS epci_code, e.name AS epci_name,
	d.code AS departement_code, d.name AS departement_name,
	r.code AS region_code, r.name AS region_name,
	ft.label AS field_type_label,
	ot.label AS owner_type_label,
	et.label AS electricity_type_label,
	au.first_name AS author_first_name, au.last_name AS author_last_name
FROM shantytowns s
JOIN cities c ON c.code = s.city_code
LEFT JOIN epci e ON e.code = c.epci_code
JOIN departements d ON d.code = c.departement_code
JOIN regions r ON r.code = d.region_code
JOIN field_types ft ON ft.id = s.field_type_id
JOIN owner_types ot ON ot.id = s.owner_type_id
JOIN electricity_types et ON et.id = s.electricity_type_id
LEFT JOIN users au ON au.id = COALESCE(s.updated_by, s.created_by)`

func (r *ShantytownRepository) FindRows(ctx context.Context, where query.Clause) ([]shantytownDatamodel.Row, error) {
	sql := shantytownSelect
	if !where.IsEmpty() {
		sql += "\nWHERE " + where.SQL
	}
	sql += "\nORDER BY d.code ASC, c.name ASC, s.id ASC"

	var rows []shantytownDatamodel.Row
	if err := r.db.WithContext(ctx).Raw(sql, where.Args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ShantytownRepository) Comments(ctx context.Context, ids []int64, includePrivate bool) ([]shantytownDatamodel.CommentRow, error) {
	sql := `
SELECT
	sc.id, sc.shantytown_id, sc.description, sc.private, sc.created_at, sc.created_by,
	u.first_name AS author_first_name, u.last_name AS author_last_name, u.position AS author_position,
	o.id AS organization_id, o.name AS organization_name, o.abbreviation AS organization_abbreviation
FROM shantytown_comments sc
JOIN users u ON u.id = sc.created_by
JOIN organizations o ON o.id = u.organization_id
WHERE sc.shantytown_id IN ?`
	if !includePrivate {
		sql += " AND sc.private = ?"
	}
	sql += "\nORDER BY sc.created_at DESC, sc.id DESC"

	args := []any{ids}
	if !includePrivate {
		args = append(args, false)
	}

	var rows []shantytownDatamodel.CommentRow
	if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ShantytownRepository) SocialOrigins(ctx context.Context, ids []int64) ([]shantytownDatamodel.OriginRow, error) {
	var rows []shantytownDatamodel.OriginRow
	err := r.db.WithContext(ctx).Raw(`
SELECT so_link.shantytown_id AS parent_id, so.id, so.label
FROM shantytown_origins so_link
JOIN social_origins so ON so.id = so_link.social_origin_id
WHERE so_link.shantytown_id IN ?
ORDER BY so.id ASC`, ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ShantytownRepository) ClosingSolutions(ctx context.Context, ids []int64) ([]shantytownDatamodel.ClosingSolutionRow, error) {
	var rows []shantytownDatamodel.ClosingSolutionRow
	err := r.db.WithContext(ctx).Raw(`
SELECT scs.shantytown_id, cs.id, cs.label, scs.people_affected, scs.households_affected, scs.message
FROM shantytown_closing_solutions scs
JOIN closing_solutions cs ON cs.id = scs.closing_solution_id
WHERE scs.shantytown_id IN ?
ORDER BY cs.id ASC`, ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ShantytownRepository) Actions(ctx context.Context, ids []int64) ([]shantytownDatamodel.ActionRow, error) {
	var rows []shantytownDatamodel.ActionRow
	err := r.db.WithContext(ctx).
		Model(&shantytownDatamodel.Action{}).
		Select("id, shantytown_id, type, description, started_at, ended_at").
		Where("shantytown_id IN ?", ids).
		Order("started_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ShantytownRepository) History(ctx context.Context, id int64) ([]shantytownDatamodel.HistoryRow, []shantytownDatamodel.OriginRow, error) {
	db := r.db.WithContext(ctx)

	var history []shantytownDatamodel.HistoryRow
	err := db.Raw(`
SELECT
	h.*,
	ft.label AS field_type_label,
	ot.label AS owner_type_label,
	et.label AS electricity_type_label,
	au.first_name AS author_first_name, au.last_name AS author_last_name
FROM shantytowns_history h
LEFT JOIN field_types ft ON ft.id = h.field_type_id
LEFT JOIN owner_types ot ON ot.id = h.owner_type_id
LEFT JOIN electricity_types et ON et.id = h.electricity_type_id
LEFT JOIN users au ON au.id = COALESCE(h.updated_by, h.created_by)
WHERE h.shantytown_id = ?
ORDER BY h.archived_at ASC, h.hid ASC`, id).Scan(&history).Error
	if err != nil {
		return nil, nil, fmt.Errorf("history rows: %w", err)
	}
	if len(history) == 0 {
		return history, nil, nil
	}

	hids := make([]int64, 0, len(history))
	for _, h := range history {
		hids = append(hids, h.HID)
	}

	var origins []shantytownDatamodel.OriginRow
	err = db.Raw(`
SELECT soh.hid AS parent_id, so.id, so.label
FROM shantytown_origins_history soh
JOIN social_origins so ON so.id = soh.social_origin_id
WHERE soh.hid IN ?
ORDER BY so.id ASC`, hids).Scan(&origins).Error
	if err != nil {
		return nil, nil, fmt.Errorf("history origins: %w", err)
	}
	return history, origins, nil
}

func (r *ShantytownRepository) Create(ctx context.Context, st *shantytownDatamodel.Shantytown, origins []int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(st).Error; err != nil {
			return fmt.Errorf("insert shantytown: %w", err)
		}
		return replaceOrigins(tx, st.ID, origins)
	})
}

func (r *ShantytownRepository) Update(ctx context.Context, id int64, origins []int64, mutate func(*shantytownDatamodel.Fields)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		live, err := archive(tx, id)
		if err != nil {
			return err
		}
		mutate(&live.Fields)
		if err := tx.Save(live).Error; err != nil {
			return fmt.Errorf("update shantytown: %w", err)
		}
		return replaceOrigins(tx, id, origins)
	})
}

func (r *ShantytownRepository) Close(ctx context.Context, id int64, solutions []shantytownDatamodel.ShantytownClosingSolution, mutate func(*shantytownDatamodel.Fields)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		live, err := archive(tx, id)
		if err != nil {
			return err
		}
		mutate(&live.Fields)
		if err := tx.Save(live).Error; err != nil {
			return fmt.Errorf("close shantytown: %w", err)
		}
		if err := tx.Where("shantytown_id = ?", id).Delete(&shantytownDatamodel.ShantytownClosingSolution{}).Error; err != nil {
			return fmt.Errorf("clear closing solutions: %w", err)
		}
		if len(solutions) == 0 {
			return nil
		}
		if err := tx.Create(&solutions).Error; err != nil {
			return fmt.Errorf("insert closing solutions: %w", err)
		}
		return nil
	})
}

// Delete archives the row one last time so that its history outlives it.
func (r *ShantytownRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := archive(tx, id); err != nil {
			return err
		}
		for _, model := range []interface{}{
			&shantytownDatamodel.Comment{},
			&shantytownDatamodel.Action{},
			&shantytownDatamodel.ShantytownClosingSolution{},
			&shantytownDatamodel.ShantytownOrigin{},
			&planDatamodel.PlanShantytown{},
		} {
			if err := tx.Where("shantytown_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("delete dependents: %w", err)
			}
		}
		if err := tx.Delete(&shantytownDatamodel.Shantytown{}, id).Error; err != nil {
			return fmt.Errorf("delete shantytown: %w", err)
		}
		return nil
	})
}

func (r *ShantytownRepository) CreateComment(ctx context.Context, c *shantytownDatamodel.Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// archive copies the live row and its origins into the history tables and returns the
// live row for the caller to mutate.
func archive(tx *gorm.DB, id int64) (*shantytownDatamodel.Shantytown, error) {
	var live shantytownDatamodel.Shantytown
	if err := tx.First(&live, id).Error; err != nil {
		return nil, fmt.Errorf("load shantytown %d: %w", id, err)
	}

	history := shantytownDatamodel.History{
		ShantytownID: live.ID,
		ArchivedAt:   tx.NowFunc(),
		Fields:       live.Fields,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, fmt.Errorf("archive shantytown %d: %w", id, err)
	}

	var originIDs []int64
	if err := tx.Model(&shantytownDatamodel.ShantytownOrigin{}).
		Where("shantytown_id = ?", id).
		Pluck("social_origin_id", &originIDs).Error; err != nil {
		return nil, fmt.Errorf("load origins of %d: %w", id, err)
	}
	if len(originIDs) > 0 {
		rows := make([]shantytownDatamodel.ShantytownOriginHistory, 0, len(originIDs))
		for _, o := range originIDs {
			rows = append(rows, shantytownDatamodel.ShantytownOriginHistory{HID: history.HID, SocialOriginID: o})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("archive origins of %d: %w", id, err)
		}
	}
	return &live, nil
}

func replaceOrigins(tx *gorm.DB, id int64, origins []int64) error {
	if err := tx.Where("shantytown_id = ?", id).Delete(&shantytownDatamodel.ShantytownOrigin{}).Error; err != nil {
		return fmt.Errorf("clear origins: %w", err)
	}
	if len(origins) == 0 {
		return nil
	}
	rows := make([]shantytownDatamodel.ShantytownOrigin, 0, len(origins))
	for _, o := range origins {
		rows = append(rows, shantytownDatamodel.ShantytownOrigin{ShantytownID: id, SocialOriginID: o})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert origins: %w", err)
	}
	return nil
}
