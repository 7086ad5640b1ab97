package user_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	userDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/user"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

type mockUserRepository struct {
	rows      map[int64]userDatamodel.Row
	roleRows  []permission.Row
	orgRows   []permission.Row
	accesses  map[int64]*userDatamodel.UserAccess
	lastWhere query.Clause
	err       error
	activated []int64
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		rows:     map[int64]userDatamodel.Row{},
		accesses: map[int64]*userDatamodel.UserAccess{},
	}
}

func (m *mockUserRepository) FindRows(ctx context.Context, where query.Clause) ([]userDatamodel.Row, error) {
	m.lastWhere = where
	if m.err != nil {
		return nil, m.err
	}
	var rows []userDatamodel.Row
	for _, r := range m.rows {
		rows = append(rows, r)
	}
	return rows, nil
}

func (m *mockUserRepository) FindRow(ctx context.Context, id int64) (*userDatamodel.Row, error) {
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.rows[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *mockUserRepository) PermissionRows(ctx context.Context, role string, organizationID int64) ([]permission.Row, []permission.Row, error) {
	return m.roleRows, m.orgRows, m.err
}

func (m *mockUserRepository) CreateAccess(ctx context.Context, access *userDatamodel.UserAccess) error {
	access.ID = int64(len(m.accesses) + 1)
	m.accesses[access.ID] = access
	return nil
}

func (m *mockUserRepository) FindAccess(ctx context.Context, id int64) (*userDatamodel.UserAccess, error) {
	return m.accesses[id], nil
}

func (m *mockUserRepository) ActivateAccess(ctx context.Context, access *userDatamodel.UserAccess, passwordHash string, at time.Time) error {
	m.accesses[access.ID].UsedAt = &at
	m.activated = append(m.activated, access.UserID)
	return nil
}

func (m *mockUserRepository) ExpireAccess(ctx context.Context, id int64, at time.Time) (bool, error) {
	a := m.accesses[id]
	if a == nil || a.UsedAt != nil || a.ExpiredAt != nil {
		return false, nil
	}
	a.ExpiredAt = &at
	return true, nil
}

type fakeScheduler struct {
	scheduled map[int64]time.Time
	cancelled []int64
	err       error
}

func (f *fakeScheduler) ScheduleAccessExpiry(ctx context.Context, accessID int64, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled[accessID] = at
	return nil
}

func (f *fakeScheduler) CancelAccessExpiry(ctx context.Context, accessID int64) error {
	f.cancelled = append(f.cancelled, accessID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func strPtr(s string) *string { return &s }

func departementRow(id int64, status string, departement string) userDatamodel.Row {
	return userDatamodel.Row{
		ID:               id,
		FirstName:        "Camille",
		LastName:         "Martin",
		Email:            "camille@example.org",
		Role:             "collaborator",
		Status:           status,
		OrganizationID:   10,
		OrganizationName: "DDETS",
		LocationType:     "departement",
		RegionCode:       strPtr("11"),
		DepartementCode:  strPtr(departement),
	}
}

func actorWith(level permission.GeographicLevel, features ...permission.Feature) *user.User {
	set := permission.Set{}
	for _, f := range features {
		set[permission.Key{Entity: permission.EntityUser, Feature: f}] = permission.Permission{Allowed: true, GeographicLevel: level}
	}
	return &user.User{
		ID: 1,
		Organization: user.Organization{
			ID: 10,
			Location: &geo.Location{
				Type:        geo.LevelDepartement,
				Region:      &geo.Area{Code: "11"},
				Departement: &geo.Area{Code: "93"},
			},
		},
		Permissions: set,
	}
}

var _ = Describe("UserService", func() {
	var (
		repo      *mockUserRepository
		scheduler *fakeScheduler
		publisher *recordingPublisher
		service   *user.Service
	)

	BeforeEach(func() {
		repo = newMockUserRepository()
		scheduler = &fakeScheduler{scheduled: map[int64]time.Time{}}
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = user.NewService(repo, scheduler, publisher, user.Options{AccessTTL: 7 * 24 * time.Hour, BCryptCost: 4}, logger)
	})

	Describe("Load", func() {
		It("resolves permissions with organization overrides", func() {
			repo.rows[2] = departementRow(2, "active", "93")
			repo.roleRows = []permission.Row{{Entity: "shantytown", Feature: "list", Allowed: true, GeographicLevel: "local"}}
			repo.orgRows = []permission.Row{{Entity: "shantytown", Feature: "list", Allowed: true, GeographicLevel: "nation"}}

			u, err := service.Load(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Organization.Location.Departement.Code).To(Equal("93"))

			p, _ := u.Permissions.Get(permission.EntityShantytown, permission.FeatureList)
			Expect(p.GeographicLevel).To(Equal(permission.LevelNation))
		})

		It("returns not found for an unknown user", func() {
			_, err := service.Load(context.Background(), 99)
			Expect(internal.IsNotFound(err)).To(BeTrue())
		})

		It("wraps store failures", func() {
			repo.err = errors.New("conn reset")
			_, err := service.Load(context.Background(), 2)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeDataAccess))
		})
	})

	Describe("List", func() {
		It("returns an empty list when listing is not granted", func() {
			repo.rows[2] = departementRow(2, "active", "93")
			users, err := service.List(context.Background(), actorWith(permission.LevelLocal), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(BeEmpty())
		})

		It("scopes the query to the viewer's departement", func() {
			repo.rows[2] = departementRow(2, "active", "93")
			_, err := service.List(context.Background(), actorWith(permission.LevelLocal, permission.FeatureList),
				[]query.Filter{{"status": {"active"}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastWhere.SQL).To(Equal("(u.status IN ?) AND (o.departement_code = ?)"))
			Expect(repo.lastWhere.Args[1]).To(Equal("93"))
		})
	})

	Describe("Get", func() {
		It("hides users outside the viewer's territory", func() {
			repo.rows[3] = departementRow(3, "active", "75")
			_, err := service.Get(context.Background(), actorWith(permission.LevelLocal, permission.FeatureRead), 3)
			Expect(internal.IsNotFound(err)).To(BeTrue())
		})

		It("returns users inside the territory", func() {
			repo.rows[3] = departementRow(3, "active", "93")
			u, err := service.Get(context.Background(), actorWith(permission.LevelLocal, permission.FeatureRead), 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(Equal(int64(3)))
		})
	})

	Describe("access lifecycle", func() {
		BeforeEach(func() {
			repo.rows[4] = departementRow(4, "new", "93")
		})

		It("refuses to create an access without the activate feature", func() {
			_, err := service.CreateAccess(context.Background(), actorWith(permission.LevelNation), 4)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeForbidden))
		})

		It("creates an access and schedules its expiry", func() {
			access, err := service.CreateAccess(context.Background(), actorWith(permission.LevelLocal, permission.FeatureActivate), 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(access.Token).NotTo(BeEmpty())
			Expect(scheduler.scheduled).To(HaveKeyWithValue(access.ID, access.ExpiresAt))
			Expect(publisher.types()).To(ConsistOf(events.EventTypeAccessCreated))
		})

		It("still creates the access when scheduling fails", func() {
			scheduler.err = errors.New("redis down")
			_, err := service.CreateAccess(context.Background(), actorWith(permission.LevelNation, permission.FeatureActivate), 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.accesses).To(HaveLen(1))
		})

		It("activates the user and cancels the scheduled expiry", func() {
			access, err := service.CreateAccess(context.Background(), actorWith(permission.LevelNation, permission.FeatureActivate), 4)
			Expect(err).NotTo(HaveOccurred())

			err = service.ActivateAccess(context.Background(), access.ID, user.ActivateAccessDTO{Token: access.Token, Password: "a-long-enough-password"})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.activated).To(ConsistOf(int64(4)))
			Expect(scheduler.cancelled).To(ConsistOf(access.ID))

			err = service.ActivateAccess(context.Background(), access.ID, user.ActivateAccessDTO{Token: access.Token, Password: "a-long-enough-password"})
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Code).To(Equal(internal.ErrCodeAccessUsed))
		})

		It("rejects a wrong token as not found", func() {
			access, _ := service.CreateAccess(context.Background(), actorWith(permission.LevelNation, permission.FeatureActivate), 4)
			err := service.ActivateAccess(context.Background(), access.ID, user.ActivateAccessDTO{Token: "4b0e2a8e-2d0b-4c7f-9a0c-0e0e0e0e0e0e", Password: "a-long-enough-password"})
			Expect(internal.IsNotFound(err)).To(BeTrue())
		})

		It("rejects a token differing only by its last character", func() {
			access, err := service.CreateAccess(context.Background(), actorWith(permission.LevelNation, permission.FeatureActivate), 4)
			Expect(err).NotTo(HaveOccurred())

			last := access.Token[len(access.Token)-1]
			swapped := byte('0')
			if last == '0' {
				swapped = '1'
			}
			forged := access.Token[:len(access.Token)-1] + string(swapped)

			err = service.ActivateAccess(context.Background(), access.ID, user.ActivateAccessDTO{Token: forged, Password: "a-long-enough-password"})
			Expect(internal.IsNotFound(err)).To(BeTrue())
			Expect(repo.activated).To(BeEmpty())
		})

		It("keeps the access when publishing fails", func() {
			publisher.err = errors.New("bus closed")

			access, err := service.CreateAccess(context.Background(), actorWith(permission.LevelNation, permission.FeatureActivate), 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.accesses).To(HaveLen(1))

			err = service.ActivateAccess(context.Background(), access.ID, user.ActivateAccessDTO{Token: access.Token, Password: "a-long-enough-password"})
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.types()).To(Equal([]string{events.EventTypeAccessCreated, events.EventTypeAccessActivated}))
		})

		It("rejects an invalid payload with every field error", func() {
			err := service.ActivateAccess(context.Background(), 1, user.ActivateAccessDTO{Token: "nope", Password: "short"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details).To(HaveKey("token"))
			Expect(appErr.Details).To(HaveKey("password"))
		})

		It("expires an unused access once and publishes it", func() {
			access, _ := service.CreateAccess(context.Background(), actorWith(permission.LevelNation, permission.FeatureActivate), 4)

			Expect(service.ExpireAccess(context.Background(), access.ID)).To(Succeed())
			Expect(service.ExpireAccess(context.Background(), access.ID)).To(Succeed())
			Expect(publisher.types()).To(Equal([]string{events.EventTypeAccessCreated, events.EventTypeAccessExpired}))

			err := service.ActivateAccess(context.Background(), access.ID, user.ActivateAccessDTO{Token: access.Token, Password: "a-long-enough-password"})
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Code).To(Equal(internal.ErrCodeAccessExpired))
		})
	})
})
