package plan_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	planDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/plan"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/plan"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

type mockPlanRepository struct {
	mu        sync.Mutex
	rows      []planDatamodel.Row
	managers  []planDatamodel.UserRow
	finances  []planDatamodel.Finance
	states    []planDatamodel.State
	lastWhere query.Clause
	err       error

	created      *planDatamodel.Plan
	createdLinks plan.Links
	createdState *planDatamodel.State
}

func (m *mockPlanRepository) FindRows(ctx context.Context, where query.Clause) ([]planDatamodel.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWhere = where
	if m.err != nil {
		return nil, m.err
	}
	if strings.HasPrefix(where.SQL, "p.id = ?") {
		id := where.Args[0].(int64)
		for _, r := range m.rows {
			if r.Plan.ID == id {
				return []planDatamodel.Row{r}, nil
			}
		}
		return nil, nil
	}
	return m.rows, nil
}

func (m *mockPlanRepository) Managers(ctx context.Context, ids []int64) ([]planDatamodel.UserRow, error) {
	return m.managers, nil
}

func (m *mockPlanRepository) Operators(ctx context.Context, ids []int64) ([]planDatamodel.UserRow, error) {
	return nil, nil
}

func (m *mockPlanRepository) Finances(ctx context.Context, ids []int64) ([]planDatamodel.Finance, error) {
	return m.finances, nil
}

func (m *mockPlanRepository) States(ctx context.Context, ids []int64) ([]planDatamodel.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states, nil
}

func (m *mockPlanRepository) Shantytowns(ctx context.Context, ids []int64) ([]planDatamodel.ShantytownRow, error) {
	return nil, nil
}

func (m *mockPlanRepository) Create(ctx context.Context, p *planDatamodel.Plan, links plan.Links) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = 40
	m.created = p
	m.createdLinks = links
	m.rows = append(m.rows, planDatamodel.Row{Plan: *p, DepartementName: "Seine-Saint-Denis", RegionCode: "11"})
	return nil
}

func (m *mockPlanRepository) CreateState(ctx context.Context, s *planDatamodel.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = 7
	m.createdState = s
	m.states = append(m.states, *s)
	return nil
}

func (m *mockPlanRepository) Update(ctx context.Context, id int64, mutate func(*planDatamodel.Plan)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Plan.ID == id {
			mutate(&m.rows[i].Plan)
			return nil
		}
	}
	return errors.New("not found")
}

type fakeLocations map[string]*geo.Location

func (f fakeLocations) Resolve(ctx context.Context, level geo.Level, code string) (*geo.Location, error) {
	if loc, ok := f[code]; ok {
		return loc, nil
	}
	return nil, internal.NewNotFoundError("location not found", "La localisation demandée n'existe pas", internal.ErrCodeLocationNotFound)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func departementLocation(code string) *geo.Location {
	return &geo.Location{
		Type:        geo.LevelDepartement,
		Region:      &geo.Area{Code: "11"},
		Departement: &geo.Area{Code: code},
	}
}

func actor(level permission.GeographicLevel, loc *geo.Location) *user.User {
	perm := permission.Permission{Allowed: true, GeographicLevel: level}
	set := permission.Set{}
	for _, f := range []permission.Feature{
		permission.FeatureList, permission.FeatureRead, permission.FeatureCreate,
		permission.FeatureUpdate, permission.FeatureClose,
	} {
		set[permission.Key{Entity: permission.EntityPlan, Feature: f}] = perm
	}
	return &user.User{
		ID:           5,
		FirstName:    "Malik",
		LastName:     "Robert",
		Status:       user.StatusActive,
		Organization: user.Organization{ID: 3, Name: "DDETS 93", Location: loc},
		Permissions:  set,
	}
}

func planRow(id int64, departement, name string, topics ...string) planDatamodel.Row {
	raw, _ := json.Marshal(topics)
	return planDatamodel.Row{
		Plan: planDatamodel.Plan{
			ID:              id,
			Name:            name,
			DepartementCode: departement,
			StartedAt:       time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
			Topics:          raw,
			CreatedBy:       5,
			CreatedAt:       time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		DepartementName: "Seine-Saint-Denis",
		RegionCode:      "11",
		RegionName:      "Île-de-France",
	}
}

var _ = Describe("Service", func() {
	var (
		repo      *mockPlanRepository
		publisher *recordingPublisher
		service   *plan.Service
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &mockPlanRepository{}
		publisher = &recordingPublisher{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = plan.NewService(repo, fakeLocations{
			"93": departementLocation("93"),
			"75": departementLocation("75"),
		}, publisher, plan.Options{}, lg)
	})

	Describe("FindAll", func() {
		It("folds finances and keeps only the indicators of declared topics", func() {
			repo.rows = []planDatamodel.Row{planRow(1, "93", "Accompagnement", "health")}
			repo.finances = []planDatamodel.Finance{
				{PlanID: 1, Year: 2021, Type: "etatique", Amount: decimal.RequireFromString("1500.50")},
				{PlanID: 1, Year: 2022, Type: "etatique", Amount: decimal.RequireFromString("499.50")},
				{PlanID: 99, Year: 2022, Type: "orphan", Amount: decimal.RequireFromString("1")},
			}
			repo.states = []planDatamodel.State{{
				ID: 3, PlanID: 1, Date: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
				AudienceInTotal: 20, AudienceInFamilies: 6,
				Indicators: []byte(`{"health":{"ame_valide":4},"school":{"scolarises":2}}`),
			}}

			plans, err := service.FindAll(ctx, actor(permission.LevelNation, nil), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(plans).To(HaveLen(1))
			Expect(plans[0].Finances).To(HaveLen(2))
			Expect(plans[0].FinanceTotal.Equal(decimal.RequireFromString("2000"))).To(BeTrue())
			Expect(plans[0].States).To(HaveLen(1))
			Expect(plans[0].States[0].Audience.In.Total).To(Equal(20))
			Expect(plans[0].States[0].Indicators).To(HaveKey(plan.TopicHealth))
			Expect(plans[0].States[0].Indicators).NotTo(HaveKey(plan.TopicSchool))
			Expect(plans[0].Status).To(Equal(plan.StatusActive))
		})

		It("scopes local users to their departement", func() {
			_, err := service.FindAll(ctx, actor(permission.LevelLocal, departementLocation("93")), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastWhere.SQL).To(Equal("p.departement_code = ?"))
			Expect(repo.lastWhere.Args).To(Equal([]any{"93"}))
		})

		It("scopes own users to the plans they manage", func() {
			_, err := service.FindAll(ctx, actor(permission.LevelOwn, nil), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastWhere.SQL).To(ContainSubstring("plan_managers"))
			Expect(repo.lastWhere.Args).To(Equal([]any{int64(5)}))
		})

		It("returns an empty list without permission", func() {
			viewer := actor(permission.LevelNation, nil)
			viewer.Permissions = permission.Set{}
			plans, err := service.FindAll(ctx, viewer, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(plans).To(BeEmpty())
		})

		It("wraps store failures", func() {
			repo.err = errors.New("connection reset")
			_, err := service.FindAll(ctx, actor(permission.LevelNation, nil), nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeDataAccess))
		})
	})

	Describe("Create", func() {
		dto := func() plan.CreateDTO {
			return plan.CreateDTO{
				Name:        "Insertion par le logement",
				Departement: "93",
				StartedAt:   time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
				Topics:      []plan.Topic{plan.TopicHousing},
				Finances: []plan.FinanceDTO{
					{Year: 2021, Type: "etatique", Amount: decimal.RequireFromString("1000.456")},
				},
			}
		}

		It("defaults the managers to the creator and publishes", func() {
			view, err := service.Create(ctx, actor(permission.LevelLocal, departementLocation("93")), dto())
			Expect(err).NotTo(HaveOccurred())
			Expect(view.ID).To(Equal(int64(40)))
			Expect(repo.createdLinks.Managers).To(Equal([]int64{5}))
			Expect(repo.createdLinks.Finances[0].Amount.String()).To(Equal("1000.46"))
			Expect(string(repo.created.Topics)).To(Equal(`["housing"]`))
			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypePlanCreated))
		})

		It("rejects a departement outside the actor's scope", func() {
			_, err := service.Create(ctx, actor(permission.LevelLocal, departementLocation("75")), dto())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeForbidden))
		})

		It("collects every invalid field", func() {
			bad := dto()
			bad.Name = ""
			bad.Topics = []plan.Topic{"cooking"}
			bad.Finances[0].Amount = decimal.RequireFromString("-5")
			_, err := service.Create(ctx, actor(permission.LevelNation, nil), bad)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			fields := appErr.Details.(internal.FieldErrors)
			Expect(fields).To(HaveKey("name"))
			Expect(fields).To(HaveKey("topics[0]"))
			Expect(fields).To(HaveKey("finances[0].amount"))
		})

		It("reports an unknown departement on the field", func() {
			bad := dto()
			bad.Departement = "00"
			_, err := service.Create(ctx, actor(permission.LevelNation, nil), bad)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.FieldErrors)).To(HaveKey("departement"))
		})
	})

	Describe("AddState", func() {
		BeforeEach(func() {
			repo.rows = []planDatamodel.Row{planRow(1, "93", "Accompagnement", "health", "work")}
		})

		It("stores only the declared topics", func() {
			_, err := service.AddState(ctx, actor(permission.LevelNation, nil), 1, plan.StateDTO{
				Date:       time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
				AudienceIn: plan.AudienceDTO{Total: 12, Families: 4},
				Indicators: map[plan.Topic]json.RawMessage{
					plan.TopicHealth: json.RawMessage(`{"ame_valide":3}`),
					plan.TopicSafety: json.RawMessage(`{"incidents":1}`),
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.createdState.CreatedBy).To(Equal(int64(5)))
			Expect(string(repo.createdState.Indicators)).To(Equal(`{"health":{"ame_valide":3}}`))
		})

		It("rejects a state dated before the plan started", func() {
			_, err := service.AddState(ctx, actor(permission.LevelNation, nil), 1, plan.StateDTO{
				Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.FieldErrors)).To(HaveKey("date"))
		})

		It("rejects more families than people", func() {
			_, err := service.AddState(ctx, actor(permission.LevelNation, nil), 1, plan.StateDTO{
				Date:       time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
				AudienceIn: plan.AudienceDTO{Total: 2, Families: 3},
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.FieldErrors)).To(HaveKey("audienceIn.families"))
		})

		It("lets a manager update a plan under own scope", func() {
			repo.managers = []planDatamodel.UserRow{{PlanID: 1, ID: 5}}
			_, err := service.AddState(ctx, actor(permission.LevelOwn, nil), 1, plan.StateDTO{
				Date: time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses own scope to non managers", func() {
			repo.managers = []planDatamodel.UserRow{{PlanID: 1, ID: 8}}
			_, err := service.AddState(ctx, actor(permission.LevelOwn, nil), 1, plan.StateDTO{
				Date: time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeForbidden))
		})
	})

	Describe("Close", func() {
		BeforeEach(func() {
			repo.rows = []planDatamodel.Row{planRow(1, "93", "Accompagnement", "health")}
		})

		It("closes the plan and publishes", func() {
			closedAt := time.Date(2022, 6, 30, 0, 0, 0, 0, time.UTC)
			view, err := service.Close(ctx, actor(permission.LevelNation, nil), 1, plan.CloseDTO{
				ClosedAt:     &closedAt,
				FinalComment: "Objectifs atteints",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Status).To(Equal(plan.StatusClosed))
			Expect(*view.FinalComment).To(Equal("Objectifs atteints"))
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypePlanClosed))

			_, err = service.Close(ctx, actor(permission.LevelNation, nil), 1, plan.CloseDTO{
				ClosedAt:     &closedAt,
				FinalComment: "encore",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePlanClosed))
		})

		It("requires a closing date", func() {
			_, err := service.Close(ctx, actor(permission.LevelNation, nil), 1, plan.CloseDTO{FinalComment: "ok"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.FieldErrors)).To(HaveKey("closedAt"))
		})

		It("lets a city scoped local user close a plan of their departement", func() {
			montreuil := &geo.Location{
				Type:        geo.LevelCity,
				Region:      &geo.Area{Code: "11"},
				Departement: &geo.Area{Code: "93"},
				City:        &geo.Area{Code: "93048", Name: "Montreuil"},
			}
			repo.rows = append(repo.rows, planRow(2, "75", "Paris Centre", "health"))
			closedAt := time.Date(2022, 6, 30, 0, 0, 0, 0, time.UTC)

			view, err := service.Close(ctx, actor(permission.LevelLocal, montreuil), 1, plan.CloseDTO{
				ClosedAt:     &closedAt,
				FinalComment: "Objectifs atteints",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Status).To(Equal(plan.StatusClosed))

			_, err = service.Close(ctx, actor(permission.LevelLocal, montreuil), 2, plan.CloseDTO{
				ClosedAt:     &closedAt,
				FinalComment: "Objectifs atteints",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePermissionDenied))
		})

		It("reports unknown plans", func() {
			_, err := service.Close(ctx, actor(permission.LevelNation, nil), 404, plan.CloseDTO{FinalComment: "ok"})
			Expect(internal.IsNotFound(err)).To(BeTrue())
		})
	})
})
