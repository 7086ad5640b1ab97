package geo

import (
	"fmt"

	geoDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/geo"
)

// Level is one rung of the nation > region > departement > epci > city hierarchy.
type Level string

const (
	LevelNation      Level = "nation"
	LevelRegion      Level = "region"
	LevelDepartement Level = "departement"
	LevelEPCI        Level = "epci"
	LevelCity        Level = "city"
)

var hierarchy = []Level{LevelNation, LevelRegion, LevelDepartement, LevelEPCI, LevelCity}

func ParseLevel(s string) (Level, error) {
	for _, l := range hierarchy {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown geographic level %q", s)
}

func (l Level) depth() int {
	for i, h := range hierarchy {
		if h == l {
			return i
		}
	}
	return -1
}

// Parent returns the next coarser level. The nation has no parent.
func (l Level) Parent() (Level, bool) {
	d := l.depth()
	if d <= 0 {
		return "", false
	}
	return hierarchy[d-1], true
}

// Contains reports whether l is at least as coarse as other.
func (l Level) Contains(other Level) bool {
	return l.depth() >= 0 && l.depth() <= other.depth()
}

type Area struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Location is a resolved position in the hierarchy. Areas finer than Type are nil.
type Location struct {
	Type        Level `json:"type"`
	Region      *Area `json:"region"`
	Departement *Area `json:"departement"`
	EPCI        *Area `json:"epci"`
	City        *Area `json:"city"`
}

func NationLocation() *Location {
	return &Location{Type: LevelNation}
}

func (l *Location) AreaAt(level Level) *Area {
	if l == nil {
		return nil
	}
	switch level {
	case LevelRegion:
		return l.Region
	case LevelDepartement:
		return l.Departement
	case LevelEPCI:
		return l.EPCI
	case LevelCity:
		return l.City
	default:
		return nil
	}
}

// FromChain builds a Location typed at level, dropping anything finer.
func FromChain(level Level, c *geoDatamodel.Chain) *Location {
	loc := &Location{Type: level}
	if c == nil {
		return loc
	}
	if level.depth() >= LevelRegion.depth() {
		loc.Region = area(c.RegionCode, c.RegionName)
	}
	if level.depth() >= LevelDepartement.depth() {
		loc.Departement = area(c.DepartementCode, c.DepartementName)
	}
	if level.depth() >= LevelEPCI.depth() {
		loc.EPCI = area(c.EPCICode, c.EPCIName)
	}
	if level.depth() >= LevelCity.depth() {
		loc.City = area(c.CityCode, c.CityName)
	}
	return loc
}

func area(code, name *string) *Area {
	if code == nil {
		return nil
	}
	a := &Area{Code: *code}
	if name != nil {
		a.Name = *name
	}
	return a
}
