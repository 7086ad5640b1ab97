package stats_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/stats"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

type mockStatsRepository struct {
	mu     sync.Mutex
	scopes map[string]query.Clause
	period stats.Period
	err    error
}

func (m *mockStatsRepository) record(name string, scope query.Clause) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes == nil {
		m.scopes = map[string]query.Clause{}
	}
	m.scopes[name] = scope
}

func (m *mockStatsRepository) CountShantytowns(ctx context.Context, scope query.Clause, period stats.Period) (stats.ShantytownCounts, error) {
	m.record("shantytowns", scope)
	m.mu.Lock()
	m.period = period
	m.mu.Unlock()
	return stats.ShantytownCounts{Open: 10, Population: 250, Closed: 2, Resorbed: 1}, m.err
}

func (m *mockStatsRepository) CountPlans(ctx context.Context, scope query.Clause) (int64, error) {
	m.record("plans", scope)
	return 3, nil
}

func (m *mockStatsRepository) CountComments(ctx context.Context, scope query.Clause, period stats.Period) (int64, error) {
	m.record("comments", scope)
	return 17, nil
}

func (m *mockStatsRepository) CountActiveUsers(ctx context.Context, scope query.Clause, period stats.Period) (int64, error) {
	m.record("users", scope)
	return 6, nil
}

func statsViewer(level permission.GeographicLevel, loc *geo.Location) *user.User {
	return &user.User{
		ID:           4,
		Status:       user.StatusActive,
		Organization: user.Organization{ID: 1, Location: loc},
		Permissions: permission.Set{
			{Entity: permission.EntityStats, Feature: permission.FeatureRead}: {Allowed: true, GeographicLevel: level},
		},
	}
}

var _ = Describe("Stats", func() {
	var (
		repo    *mockStatsRepository
		service *stats.Service
		ctx     context.Context
		period  stats.Period
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &mockStatsRepository{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = stats.NewService(repo, time.Second, nil, lg)
		period = stats.Period{
			From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		}
	})

	Describe("Service.Get", func() {
		It("gathers every count", func() {
			result, err := service.Get(ctx, statsViewer(permission.LevelNation, nil), period)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Open).To(Equal(int64(10)))
			Expect(result.Population).To(Equal(int64(250)))
			Expect(result.Plans).To(Equal(int64(3)))
			Expect(result.Comments).To(Equal(int64(17)))
			Expect(result.ActiveUsers).To(Equal(int64(6)))
			Expect(result.From).To(Equal(float64(1704067200)))
			Expect(repo.scopes["shantytowns"].IsEmpty()).To(BeTrue())
		})

		It("renders the viewer's territory for each table", func() {
			loc := &geo.Location{
				Type:        geo.LevelCity,
				Region:      &geo.Area{Code: "11"},
				Departement: &geo.Area{Code: "93"},
				City:        &geo.Area{Code: "93066"},
			}
			_, err := service.Get(ctx, statsViewer(permission.LevelLocal, loc), period)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.scopes["shantytowns"]).To(Equal(query.Eq("c.code", "93066")))
			Expect(repo.scopes["users"]).To(Equal(query.Eq("o.city_code", "93066")))
			Expect(repo.scopes["plans"]).To(Equal(query.Eq("p.departement_code", "93")))
		})

		It("returns zeros for a misconfigured organization", func() {
			loc := &geo.Location{Type: geo.LevelDepartement, Region: &geo.Area{Code: "11"}}
			result, err := service.Get(ctx, statsViewer(permission.LevelLocal, loc), period)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Open).To(BeZero())
			Expect(repo.scopes).To(BeEmpty())
		})

		It("refuses viewers without the permission", func() {
			viewer := statsViewer(permission.LevelNation, nil)
			viewer.Permissions = permission.Set{}
			_, err := service.Get(ctx, viewer, period)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeForbidden))
		})

		It("reports store failures as data access errors", func() {
			repo.err = errors.New("boom")
			_, err := service.Get(ctx, statsViewer(permission.LevelNation, nil), period)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeDataAccess))
		})
	})

	Describe("Handler.GetStats", func() {
		var handler *stats.Handler

		BeforeEach(func() {
			handler = stats.NewHandler(service)
		})

		serve := func(target string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, target, nil)
			req = req.WithContext(user.WithUser(req.Context(), statsViewer(permission.LevelNation, nil)))
			rec := httptest.NewRecorder()
			handler.GetStats(rec, req)
			return rec
		}

		It("treats the upper bound as inclusive", func() {
			rec := serve("/stats?from=2024-01-01&to=2024-01-31")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(repo.period.From).To(Equal(period.From))
			Expect(repo.period.To).To(Equal(period.To))
			Expect(rec.Body.String()).To(ContainSubstring(`"openShantytowns":10`))
		})

		It("rejects malformed dates", func() {
			rec := serve("/stats?from=01/01/2024")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an inverted period", func() {
			rec := serve("/stats?from=2024-02-01&to=2024-01-01")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
