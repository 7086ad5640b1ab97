package geo_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	geoDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
)

type mockGeoRepository struct {
	chains map[string]*geoDatamodel.Chain
	err    error
	calls  int
}

func (m *mockGeoRepository) FindChain(ctx context.Context, level geo.Level, code string) (*geoDatamodel.Chain, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.chains[string(level)+":"+code], nil
}

func strPtr(s string) *string { return &s }

var _ = Describe("Resolver", func() {
	var (
		repo     *mockGeoRepository
		resolver *geo.Resolver
	)

	BeforeEach(func() {
		repo = &mockGeoRepository{chains: map[string]*geoDatamodel.Chain{
			"city:93066": {
				RegionCode: strPtr("11"), RegionName: strPtr("Île-de-France"),
				DepartementCode: strPtr("93"), DepartementName: strPtr("Seine-Saint-Denis"),
				EPCICode: strPtr("200054781"), EPCIName: strPtr("Métropole du Grand Paris"),
				CityCode: strPtr("93066"), CityName: strPtr("Saint-Denis"),
			},
			"departement:93": {
				RegionCode: strPtr("11"), RegionName: strPtr("Île-de-France"),
				DepartementCode: strPtr("93"), DepartementName: strPtr("Seine-Saint-Denis"),
			},
		}}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		resolver = geo.NewResolver(repo, logger)
	})

	It("returns the full ancestor chain of a city", func() {
		loc, err := resolver.Resolve(context.Background(), geo.LevelCity, "93066")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Type).To(Equal(geo.LevelCity))
		Expect(loc.Region).To(Equal(&geo.Area{Code: "11", Name: "Île-de-France"}))
		Expect(loc.Departement.Code).To(Equal("93"))
		Expect(loc.EPCI.Code).To(Equal("200054781"))
		Expect(loc.City.Name).To(Equal("Saint-Denis"))
	})

	It("leaves levels finer than the requested one empty", func() {
		loc, err := resolver.Resolve(context.Background(), geo.LevelDepartement, "93")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Departement.Name).To(Equal("Seine-Saint-Denis"))
		Expect(loc.EPCI).To(BeNil())
		Expect(loc.City).To(BeNil())
	})

	It("resolves the nation without touching the store", func() {
		loc, err := resolver.Resolve(context.Background(), geo.LevelNation, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Type).To(Equal(geo.LevelNation))
		Expect(loc.Region).To(BeNil())
		Expect(loc.Departement).To(BeNil())
		Expect(repo.calls).To(Equal(0))
	})

	It("returns a not found error for an unknown code", func() {
		_, err := resolver.Resolve(context.Background(), geo.LevelCity, "00000")
		Expect(internal.IsNotFound(err)).To(BeTrue())
	})

	It("wraps store failures into a data access error", func() {
		repo.err = errors.New("connection refused")
		_, err := resolver.Resolve(context.Background(), geo.LevelCity, "93066")
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeDataAccess))
		Expect(errors.Unwrap(err)).To(MatchError("connection refused"))
	})
})

var _ = Describe("Level", func() {
	It("walks up to the parent level", func() {
		parent, ok := geo.LevelCity.Parent()
		Expect(ok).To(BeTrue())
		Expect(parent).To(Equal(geo.LevelEPCI))

		_, ok = geo.LevelNation.Parent()
		Expect(ok).To(BeFalse())
	})

	It("rejects unknown levels", func() {
		_, err := geo.ParseLevel("county")
		Expect(err).To(HaveOccurred())
	})

	It("orders levels by containment", func() {
		Expect(geo.LevelRegion.Contains(geo.LevelCity)).To(BeTrue())
		Expect(geo.LevelCity.Contains(geo.LevelRegion)).To(BeFalse())
	})
})
