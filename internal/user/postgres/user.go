package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	userDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/user"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

const userSelect = `
SELECT
	u.id, u.first_name, u.last_name, u.email, u.role, u.status, u.position, u.last_login_at, u.created_at,
	o.id AS organization_id,
	o.name AS organization_name,
	o.abbreviation AS organization_abbreviation,
	o.type AS organization_type,
	o.active AS organization_active,
	o.location_type,
	r.code AS region_code, r.name AS region_name,
	d.code AS departement_code, d.name AS departement_name,
	e.code AS epci_code, e.name AS epci_name,
	c.code AS city_code, c.name AS city_name
FROM users u
JOIN organizations o ON o.id = u.organization_id
LEFT JOIN regions r ON r.code = o.region_code
LEFT JOIN departements d ON d.code = o.departement_code
LEFT JOIN epci e ON e.code = o.epci_code
LEFT JOIN cities c ON c.code = o.city_code`

var ErrAccessAlreadyUsed = errors.New("access already used")

func (r *UserRepository) FindRows(ctx context.Context, where query.Clause) ([]userDatamodel.Row, error) {
	sql := userSelect
	if !where.IsEmpty() {
		sql += "\nWHERE " + where.SQL
	}
	sql += "\nORDER BY u.last_name ASC, u.first_name ASC"

	var rows []userDatamodel.Row
	if err := r.db.WithContext(ctx).Raw(sql, where.Args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *UserRepository) FindRow(ctx context.Context, id int64) (*userDatamodel.Row, error) {
	rows, err := r.FindRows(ctx, query.Eq("u.id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *UserRepository) PermissionRows(ctx context.Context, role string, organizationID int64) ([]permission.Row, []permission.Row, error) {
	var roleRows, orgRows []permission.Row

	err := r.db.WithContext(ctx).
		Model(&userDatamodel.RolePermission{}).
		Where("role = ?", role).
		Scan(&roleRows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("role permissions: %w", err)
	}

	err = r.db.WithContext(ctx).
		Model(&userDatamodel.OrganizationPermission{}).
		Where("organization_id = ?", organizationID).
		Scan(&orgRows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("organization permissions: %w", err)
	}

	return roleRows, orgRows, nil
}

func (r *UserRepository) CreateAccess(ctx context.Context, access *userDatamodel.UserAccess) error {
	return r.db.WithContext(ctx).Create(access).Error
}

func (r *UserRepository) FindAccess(ctx context.Context, id int64) (*userDatamodel.UserAccess, error) {
	var access userDatamodel.UserAccess
	err := r.db.WithContext(ctx).First(&access, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &access, nil
}

// ActivateAccess consumes the link and activates its user in one transaction.
func (r *UserRepository) ActivateAccess(ctx context.Context, access *userDatamodel.UserAccess, passwordHash string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userDatamodel.UserAccess{}).
			Where("id = ? AND used_at IS NULL", access.ID).
			Update("used_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccessAlreadyUsed
		}

		return tx.Model(&userDatamodel.User{}).
			Where("id = ?", access.UserID).
			Updates(map[string]interface{}{
				"status":        string(user.StatusActive),
				"password_hash": passwordHash,
				"updated_at":    at,
			}).Error
	})
}

func (r *UserRepository) ExpireAccess(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&userDatamodel.UserAccess{}).
		Where("id = ? AND used_at IS NULL AND expired_at IS NULL", id).
		Update("expired_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
