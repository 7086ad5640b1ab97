package export_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/export"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

type fakeLister struct {
	mu          sync.Mutex
	towns       []shantytown.View
	err         error
	lastFeature permission.Feature
	lastFilters []query.Filter
}

func (f *fakeLister) FindAll(ctx context.Context, viewer *user.User, filters []query.Filter, feature permission.Feature) ([]shantytown.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFeature = feature
	f.lastFilters = filters
	return f.towns, f.err
}

func ptr[T any](v T) *T { return &v }

func exporter(justice bool) *user.User {
	return &user.User{
		ID:     9,
		Status: user.StatusActive,
		Permissions: permission.Set{
			{Entity: permission.EntityShantytown, Feature: permission.FeatureExport}: {
				Allowed:         true,
				GeographicLevel: permission.LevelNation,
				DataJustice:     justice,
			},
		},
	}
}

func town() shantytown.View {
	builtAt := float64(1577836800) // 2020-01-01
	return shantytown.View{
		ID:                12,
		Name:              ptr("Le Pont"),
		Status:            "open",
		Address:           "1 rue du Canal 93300 Aubervilliers",
		City:              shantytown.CityView{Code: "93001", Name: "Aubervilliers"},
		Departement:       shantytown.AreaView{Code: "93", Name: "Seine-Saint-Denis"},
		BuiltAt:           &builtAt,
		FieldType:         shantytown.RefView{ID: 1, Label: "Terrain"},
		PopulationTotal:   ptr(40),
		AccessToWater:     ptr(true),
		SocialOrigins:     []shantytown.RefView{{ID: 1, Label: "Français"}, {ID: 2, Label: "Union européenne"}},
		JusticeView:       &shantytown.JusticeView{OwnerComplaint: ptr(false), Bailiff: ptr("Maître Roux")},
	}
}

func open(wb *export.Workbook) *excelize.File {
	var buf bytes.Buffer
	_, err := wb.WriteTo(&buf)
	Expect(err).NotTo(HaveOccurred())
	f, err := excelize.OpenReader(&buf)
	Expect(err).NotTo(HaveOccurred())
	return f
}

func headers(f *excelize.File) []string {
	rows, err := f.GetRows("Sites")
	Expect(err).NotTo(HaveOccurred())
	Expect(rows).NotTo(BeEmpty())
	return rows[0]
}

var _ = Describe("Export", func() {
	var (
		lister  *fakeLister
		service *export.Service
		log     *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		lister = &fakeLister{towns: []shantytown.View{town()}}
		service = export.NewService(lister, log)
	})

	Describe("Service.Shantytowns", func() {
		It("renders one row per shantytown under the header", func() {
			wb, err := service.Shantytowns(context.Background(), exporter(false), nil)
			Expect(err).NotTo(HaveOccurred())
			defer wb.Close()
			Expect(wb.Filename).To(MatchRegexp(`^sites-\d{4}-\d{2}-\d{2}\.xlsx$`))
			Expect(lister.lastFeature).To(Equal(permission.FeatureExport))

			f := open(wb)
			defer f.Close()
			rows, err := f.GetRows("Sites")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))

			header := rows[0]
			Expect(header[0]).To(Equal("Identifiant"))
			Expect(header).NotTo(ContainElement("Huissier"))

			row := rows[1]
			Expect(row[0]).To(Equal("12"))
			Expect(row[1]).To(Equal("Le Pont"))
			Expect(row[2]).To(Equal("93 - Seine-Saint-Denis"))
			Expect(row[3]).To(Equal("Aubervilliers"))
			Expect(row).To(ContainElement("01/01/2020"))
			Expect(row).To(ContainElement("Français, Union européenne"))
			Expect(row).To(ContainElement("oui"))
		})

		It("adds the justice columns when the permission carries them", func() {
			wb, err := service.Shantytowns(context.Background(), exporter(true), nil)
			Expect(err).NotTo(HaveOccurred())
			defer wb.Close()

			f := open(wb)
			defer f.Close()
			Expect(headers(f)).To(ContainElements("Plainte du propriétaire", "Huissier"))

			rows, err := f.GetRows("Sites")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows[1]).To(ContainElement("Maître Roux"))
		})

		It("renders only the header when nothing matches", func() {
			lister.towns = nil
			wb, err := service.Shantytowns(context.Background(), exporter(false), nil)
			Expect(err).NotTo(HaveOccurred())
			defer wb.Close()

			f := open(wb)
			defer f.Close()
			rows, err := f.GetRows("Sites")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})

		It("refuses viewers without the export permission", func() {
			viewer := exporter(false)
			viewer.Permissions = permission.Set{}
			_, err := service.Shantytowns(context.Background(), viewer, nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeForbidden))
		})

		It("propagates lister failures", func() {
			lister.err = internal.NewDataAccessError("boom", errors.New("conn reset"))
			_, err := service.Shantytowns(context.Background(), exporter(false), nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeDataAccess))
		})
	})

	Describe("Handler.ExportShantytowns", func() {
		It("streams the workbook as an attachment", func() {
			handler := export.NewHandler(service)
			req := httptest.NewRequest(http.MethodGet, "/towns/export?departement=93&status=open", nil)
			req = req.WithContext(user.WithUser(req.Context(), exporter(false)))
			rec := httptest.NewRecorder()

			handler.ExportShantytowns(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring("attachment; filename=\"sites-"))
			Expect(lister.lastFilters).To(HaveLen(2))

			f, err := excelize.OpenReader(rec.Body)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()
			Expect(headers(f)[0]).To(Equal("Identifiant"))
		})

		It("answers 401 without an authenticated user", func() {
			handler := export.NewHandler(service)
			req := httptest.NewRequest(http.MethodGet, "/towns/export", nil)
			rec := httptest.NewRecorder()

			handler.ExportShantytowns(rec, req)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
