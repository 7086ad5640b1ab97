package permission_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
)

type subject struct {
	id       int64
	location *geo.Location
	set      permission.Set
}

func (s subject) SubjectID() int64              { return s.id }
func (s subject) Location() *geo.Location       { return s.location }
func (s subject) PermissionSet() permission.Set { return s.set }

func withLevel(level permission.GeographicLevel) permission.Set {
	return permission.Set{
		{Entity: permission.EntityShantytown, Feature: permission.FeatureList}: {Allowed: true, GeographicLevel: level},
	}
}

var seineSaintDenis = &geo.Location{
	Type:        geo.LevelDepartement,
	Region:      &geo.Area{Code: "11", Name: "Île-de-France"},
	Departement: &geo.Area{Code: "93", Name: "Seine-Saint-Denis"},
}

var townColumns = permission.Columns{
	Levels: map[geo.Level]string{
		geo.LevelRegion:      "r.code",
		geo.LevelDepartement: "d.code",
		geo.LevelEPCI:        "e.code",
		geo.LevelCity:        "c.code",
	},
	Owner: "s.created_by = ?",
}

var _ = Describe("ScopeFor", func() {
	It("denies a missing feature", func() {
		scope := permission.ScopeFor(subject{set: permission.Set{}}, permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeDenied))
	})

	It("denies a feature that is present but not allowed", func() {
		set := permission.Set{
			{Entity: permission.EntityShantytown, Feature: permission.FeatureList}: {Allowed: false, GeographicLevel: permission.LevelNation},
		}
		scope := permission.ScopeFor(subject{set: set}, permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Denied()).To(BeTrue())
	})

	It("is unrestricted at nation level", func() {
		scope := permission.ScopeFor(subject{set: withLevel(permission.LevelNation), location: seineSaintDenis},
			permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeUnrestricted))
	})

	It("uses the organization level for local permissions", func() {
		scope := permission.ScopeFor(subject{set: withLevel(permission.LevelLocal), location: seineSaintDenis},
			permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeGeographic))
		Expect(scope.Level).To(Equal(geo.LevelDepartement))

		clause, err := scope.Clause(townColumns)
		Expect(err).NotTo(HaveOccurred())
		Expect(clause).To(Equal(query.Clause{SQL: "d.code = ?", Args: []any{"93"}}))
	})

	It("treats a nation-wide organization as unrestricted for local permissions", func() {
		scope := permission.ScopeFor(subject{set: withLevel(permission.LevelLocal), location: geo.NationLocation()},
			permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeUnrestricted))
	})

	It("returns an empty scope when the organization has no territory at its level", func() {
		misconfigured := &geo.Location{Type: geo.LevelDepartement, Region: &geo.Area{Code: "11"}}
		scope := permission.ScopeFor(subject{set: withLevel(permission.LevelLocal), location: misconfigured},
			permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeEmpty))
		Expect(scope.Visible()).To(BeFalse())

		clause, err := scope.Clause(townColumns)
		Expect(err).NotTo(HaveOccurred())
		Expect(clause).To(Equal(query.Nothing))
	})

	It("filters on ownership for own permissions", func() {
		scope := permission.ScopeFor(subject{id: 42, set: withLevel(permission.LevelOwn)},
			permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeOwner))

		clause, err := scope.Clause(townColumns)
		Expect(err).NotTo(HaveOccurred())
		Expect(clause).To(Equal(query.Clause{SQL: "s.created_by = ?", Args: []any{int64(42)}}))
	})
})

var _ = Describe("NationScope", func() {
	It("never reads the subject location", func() {
		scope := permission.NationScope(subject{set: withLevel(permission.LevelLocal)},
			permission.EntityShantytown, permission.FeatureList)
		Expect(scope.Kind).To(Equal(permission.ScopeUnrestricted))
	})
})

var _ = Describe("Scope", func() {
	Describe("Clause", func() {
		It("falls back to a coarser level when the store lacks the column", func() {
			city := &geo.Location{
				Type:        geo.LevelCity,
				Region:      &geo.Area{Code: "11"},
				Departement: &geo.Area{Code: "93"},
				City:        &geo.Area{Code: "93066"},
			}
			scope := permission.ScopeFor(subject{set: withLevel(permission.LevelLocal), location: city},
				permission.EntityShantytown, permission.FeatureList)

			clause, err := scope.Clause(permission.Columns{Levels: map[geo.Level]string{geo.LevelDepartement: "p.departement_code"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(clause).To(Equal(query.Clause{SQL: "p.departement_code = ?", Args: []any{"93"}}))
		})

		It("renders nothing when unrestricted", func() {
			clause, err := permission.Scope{Kind: permission.ScopeUnrestricted}.Clause(townColumns)
			Expect(err).NotTo(HaveOccurred())
			Expect(clause.IsEmpty()).To(BeTrue())
		})

		It("fails when the store has no owner predicate", func() {
			_, err := permission.Scope{Kind: permission.ScopeOwner, OwnerID: 1}.Clause(permission.Columns{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Allows", func() {
		scope := permission.Scope{Kind: permission.ScopeGeographic, Level: geo.LevelDepartement, Location: seineSaintDenis}

		It("accepts a record inside the territory", func() {
			Expect(scope.Allows(&geo.Location{Type: geo.LevelCity, Departement: &geo.Area{Code: "93"}})).To(BeTrue())
		})

		It("rejects a record outside the territory", func() {
			Expect(scope.Allows(&geo.Location{Type: geo.LevelCity, Departement: &geo.Area{Code: "75"}})).To(BeFalse())
		})

		It("compares a coarser record at its own level", func() {
			montreuil := &geo.Location{
				Type:        geo.LevelCity,
				Region:      seineSaintDenis.Region,
				Departement: seineSaintDenis.Departement,
				City:        &geo.Area{Code: "93048", Name: "Montreuil"},
			}
			city := permission.Scope{Kind: permission.ScopeGeographic, Level: geo.LevelCity, Location: montreuil}

			Expect(city.Allows(seineSaintDenis)).To(BeTrue())
			Expect(city.Allows(&geo.Location{Type: geo.LevelDepartement, Departement: &geo.Area{Code: "75"}})).To(BeFalse())
		})

		It("does not widen a city scope to sibling cities", func() {
			montreuil := &geo.Location{Type: geo.LevelCity, Departement: &geo.Area{Code: "93"}, City: &geo.Area{Code: "93048"}}
			city := permission.Scope{Kind: permission.ScopeGeographic, Level: geo.LevelCity, Location: montreuil}

			Expect(city.Allows(&geo.Location{Type: geo.LevelCity, Departement: &geo.Area{Code: "93"}, City: &geo.Area{Code: "93066"}})).To(BeFalse())
		})

		It("rejects a record without location", func() {
			Expect(scope.Allows(nil)).To(BeFalse())
		})

		It("matches any of the owners", func() {
			own := permission.Scope{Kind: permission.ScopeOwner, OwnerID: 7}
			Expect(own.Allows(nil, 3, 7)).To(BeTrue())
			Expect(own.Allows(nil, 3)).To(BeFalse())
		})

		It("never allows a denied scope", func() {
			Expect(permission.Scope{Kind: permission.ScopeDenied}.Allows(seineSaintDenis)).To(BeFalse())
		})
	})
})
