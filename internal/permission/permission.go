package permission

import (
	"fmt"
)

// GeographicLevel says how far a granted feature reaches. It is parsed once when
// permissions are loaded and only ever compared through an exhaustive switch.
type GeographicLevel int

const (
	LevelNation GeographicLevel = iota + 1
	LevelLocal
	LevelOwn
)

func ParseGeographicLevel(s string) (GeographicLevel, error) {
	switch s {
	case "nation":
		return LevelNation, nil
	case "local":
		return LevelLocal, nil
	case "own":
		return LevelOwn, nil
	default:
		return 0, fmt.Errorf("unknown geographic level %q", s)
	}
}

func (l GeographicLevel) String() string {
	switch l {
	case LevelNation:
		return "nation"
	case LevelLocal:
		return "local"
	case LevelOwn:
		return "own"
	default:
		return "unknown"
	}
}

func (l GeographicLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

type Entity string

const (
	EntityShantytown        Entity = "shantytown"
	EntityShantytownComment Entity = "shantytown_comment"
	EntityPlan              Entity = "plan"
	EntityUser              Entity = "user"
	EntityStats             Entity = "stats"
)

type Feature string

const (
	FeatureList        Feature = "list"
	FeatureRead        Feature = "read"
	FeatureCreate      Feature = "create"
	FeatureUpdate      Feature = "update"
	FeatureClose       Feature = "close"
	FeatureDelete      Feature = "delete"
	FeatureExport      Feature = "export"
	FeatureListPrivate Feature = "listPrivate"
	FeatureActivate    Feature = "activate"
)

type Permission struct {
	Allowed         bool            `json:"allowed"`
	GeographicLevel GeographicLevel `json:"geographic_level"`
	DataJustice     bool            `json:"data_justice"`
}

type Key struct {
	Entity  Entity
	Feature Feature
}

// Set is the resolved permission table of one user for one request.
type Set map[Key]Permission

func (s Set) Get(entity Entity, feature Feature) (Permission, bool) {
	p, ok := s[Key{Entity: entity, Feature: feature}]
	return p, ok
}

func (s Set) Allowed(entity Entity, feature Feature) bool {
	p, ok := s.Get(entity, feature)
	return ok && p.Allowed
}

// Row is a stored permission as found in role_permissions or organization_permissions.
type Row struct {
	Entity          string `gorm:"column:entity"`
	Feature         string `gorm:"column:feature"`
	Allowed         bool   `gorm:"column:allowed"`
	GeographicLevel string `gorm:"column:geographic_level"`
	DataJustice     bool   `gorm:"column:data_justice"`
}

func (r Row) parse() (Key, Permission, error) {
	level, err := ParseGeographicLevel(r.GeographicLevel)
	if err != nil {
		return Key{}, Permission{}, fmt.Errorf("permission %s.%s: %w", r.Entity, r.Feature, err)
	}
	return Key{Entity: Entity(r.Entity), Feature: Feature(r.Feature)},
		Permission{Allowed: r.Allowed, GeographicLevel: level, DataJustice: r.DataJustice},
		nil
}

// Resolve layers organization overrides on top of role defaults.
func Resolve(roleRows, organizationRows []Row) (Set, error) {
	set := make(Set, len(roleRows)+len(organizationRows))
	for _, rows := range [][]Row{roleRows, organizationRows} {
		for _, r := range rows {
			key, perm, err := r.parse()
			if err != nil {
				return nil, err
			}
			set[key] = perm
		}
	}
	return set, nil
}
