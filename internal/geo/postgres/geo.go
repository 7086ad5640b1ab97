package postgres

import (
	"context"
	"fmt"

	geoDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"gorm.io/gorm"
)

type GeoRepository struct {
	db *gorm.DB
}

func NewGeoRepository(db *gorm.DB) geo.Repository {
	return &GeoRepository{db: db}
}

const chainSelect = `
SELECT
	r.code AS region_code, r.name AS region_name,
	d.code AS departement_code, d.name AS departement_name,
	%s
FROM %s`

func (r *GeoRepository) FindChain(ctx context.Context, level geo.Level, code string) (*geoDatamodel.Chain, error) {
	var query string
	switch level {
	case geo.LevelRegion:
		query = `SELECT r.code AS region_code, r.name AS region_name FROM regions r WHERE r.code = ?`
	case geo.LevelDepartement:
		query = fmt.Sprintf(chainSelect, "NULL AS epci_code", `departements d
	JOIN regions r ON r.code = d.region_code
WHERE d.code = ?`)
	case geo.LevelEPCI:
		query = fmt.Sprintf(chainSelect, "e.code AS epci_code, e.name AS epci_name", `epci e
	JOIN departements d ON d.code = e.departement_code
	JOIN regions r ON r.code = d.region_code
WHERE e.code = ?`)
	case geo.LevelCity:
		query = fmt.Sprintf(chainSelect, "e.code AS epci_code, e.name AS epci_name, c.code AS city_code, c.name AS city_name", `cities c
	JOIN departements d ON d.code = c.departement_code
	JOIN regions r ON r.code = d.region_code
	LEFT JOIN epci e ON e.code = c.epci_code
WHERE c.code = ?`)
	default:
		return nil, fmt.Errorf("cannot resolve level %q", level)
	}

	var rows []geoDatamodel.Chain
	if err := r.db.WithContext(ctx).Raw(query, code).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
