package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/aggregate"
	planDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/plan"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

// Links are the relations written together with a new plan.
type Links struct {
	Managers    []int64
	Operators   []int64
	Shantytowns []int64
	Finances    []planDatamodel.Finance
}

type Repository interface {
	// FindRows runs the primary query, ordered by departement code then plan name.
	FindRows(ctx context.Context, where query.Clause) ([]planDatamodel.Row, error)
	Managers(ctx context.Context, ids []int64) ([]planDatamodel.UserRow, error)
	Operators(ctx context.Context, ids []int64) ([]planDatamodel.UserRow, error)
	Finances(ctx context.Context, ids []int64) ([]planDatamodel.Finance, error)
	States(ctx context.Context, ids []int64) ([]planDatamodel.State, error)
	Shantytowns(ctx context.Context, ids []int64) ([]planDatamodel.ShantytownRow, error)

	Create(ctx context.Context, p *planDatamodel.Plan, links Links) error
	CreateState(ctx context.Context, s *planDatamodel.State) error
	Update(ctx context.Context, id int64, mutate func(*planDatamodel.Plan)) error
}

type LocationResolver interface {
	Resolve(ctx context.Context, level geo.Level, code string) (*geo.Location, error)
}

var filterColumns = query.Columns{
	"departement": "p.departement_code",
	"region":      "d.region_code",
}

// FilterKeys are the query string parameters accepted by FindAll.
var FilterKeys = []string{"departement", "region"}

// Managers own the plans they manage.
var scopeColumns = permission.Columns{
	Levels: map[geo.Level]string{
		geo.LevelRegion:      "d.region_code",
		geo.LevelDepartement: "p.departement_code",
	},
	Owner: "EXISTS (SELECT 1 FROM plan_managers pm WHERE pm.plan_id = p.id AND pm.user_id = ?)",
}

type Options struct {
	QueryTimeout time.Duration
	Observer     aggregate.Observer
}

type Service struct {
	repo         Repository
	locations    LocationResolver
	publisher    events.Publisher
	queryTimeout time.Duration
	observe      aggregate.Observer
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(repo Repository, locations LocationResolver, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		locations:    locations,
		publisher:    publisher,
		queryTimeout: opts.QueryTimeout,
		observe:      opts.Observer,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) FindAll(ctx context.Context, viewer *user.User, filters []query.Filter) ([]View, error) {
	scope := permission.ScopeFor(viewer, permission.EntityPlan, permission.FeatureList)
	if !scope.Visible() {
		return []View{}, nil
	}

	scopeClause, err := scope.Clause(scopeColumns)
	if err != nil {
		return nil, internal.NewInternalError("failed to scope plans", err)
	}
	where, err := query.Where(filters, filterColumns, scopeClause)
	if err != nil {
		return nil, internal.NewValidationFieldError("filters", err.Error())
	}
	return s.load(ctx, where)
}

// FindOne hides plans outside the viewer's read scope.
func (s *Service) FindOne(ctx context.Context, viewer *user.User, id int64) (*View, error) {
	scope := permission.ScopeFor(viewer, permission.EntityPlan, permission.FeatureRead)
	if !scope.Visible() {
		return nil, planNotFound(id)
	}

	scopeClause, err := scope.Clause(scopeColumns)
	if err != nil {
		return nil, internal.NewInternalError("failed to scope plan", err)
	}
	views, err := s.load(ctx, query.And(query.Eq("p.id", id), scopeClause))
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, planNotFound(id)
	}
	return &views[0], nil
}

func (s *Service) load(ctx context.Context, where query.Clause) ([]View, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.repo.FindRows(ctx, where)
	if err != nil {
		s.logger.Error("failed to fetch plans", "error", err)
		return nil, internal.NewDataAccessError("failed to fetch plans", err)
	}
	if len(rows) == 0 {
		return []View{}, nil
	}

	ix := aggregate.NewIndex[View](len(rows))
	for _, row := range rows {
		ix.Add(row.Plan.ID, Serialize(row))
	}
	ids := ix.IDs()

	var (
		managers    []planDatamodel.UserRow
		operators   []planDatamodel.UserRow
		finances    []planDatamodel.Finance
		states      []planDatamodel.State
		shantytowns []planDatamodel.ShantytownRow
	)
	err = aggregate.FanOut(ctx, s.observe,
		aggregate.Fetch("plan_managers", &managers, func(ctx context.Context) ([]planDatamodel.UserRow, error) {
			return s.repo.Managers(ctx, ids)
		}),
		aggregate.Fetch("plan_operators", &operators, func(ctx context.Context) ([]planDatamodel.UserRow, error) {
			return s.repo.Operators(ctx, ids)
		}),
		aggregate.Fetch("plan_finances", &finances, func(ctx context.Context) ([]planDatamodel.Finance, error) {
			return s.repo.Finances(ctx, ids)
		}),
		aggregate.Fetch("plan_states", &states, func(ctx context.Context) ([]planDatamodel.State, error) {
			return s.repo.States(ctx, ids)
		}),
		aggregate.Fetch("plan_shantytowns", &shantytowns, func(ctx context.Context) ([]planDatamodel.ShantytownRow, error) {
			return s.repo.Shantytowns(ctx, ids)
		}),
	)
	if err != nil {
		s.logger.Error("failed to fetch plan details", "error", err)
		return nil, internal.NewDataAccessError("failed to fetch plan details", err)
	}

	userParent := func(r planDatamodel.UserRow) int64 { return r.PlanID }
	skipped := aggregate.Attach(ix, managers, userParent, func(v *View, r planDatamodel.UserRow) {
		v.Managers = append(v.Managers, userView(r))
	})
	skipped += aggregate.Attach(ix, operators, userParent, func(v *View, r planDatamodel.UserRow) {
		v.Operators = append(v.Operators, userView(r))
	})
	skipped += aggregate.Attach(ix, finances,
		func(f planDatamodel.Finance) int64 { return f.PlanID },
		func(v *View, f planDatamodel.Finance) {
			v.Finances = append(v.Finances, financeView(f))
			v.FinanceTotal = v.FinanceTotal.Add(f.Amount)
		})
	skipped += aggregate.Attach(ix, states,
		func(st planDatamodel.State) int64 { return st.PlanID },
		func(v *View, st planDatamodel.State) {
			v.States = append(v.States, stateView(st, v.Topics))
		})
	skipped += aggregate.Attach(ix, shantytowns,
		func(r planDatamodel.ShantytownRow) int64 { return r.PlanID },
		func(v *View, r planDatamodel.ShantytownRow) {
			v.Shantytowns = append(v.Shantytowns, shantytownView(r))
		})
	if skipped > 0 {
		s.logger.Debug("skipped orphan satellite rows", "count", skipped)
	}

	return ix.Items(), nil
}

// findRow loads a plan with its managers and checks it against the actor's scope.
func (s *Service) findRow(ctx context.Context, actor *user.User, id int64, feature permission.Feature) (*planDatamodel.Row, error) {
	scope := permission.ScopeFor(actor, permission.EntityPlan, feature)
	if scope.Denied() {
		return nil, internal.NewPermissionDeniedError(fmt.Sprintf("plan.%s is not allowed", feature))
	}

	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.repo.FindRows(ctx, query.Eq("p.id", id))
	if err != nil {
		s.logger.Error("failed to fetch plan", "error", err, "plan_id", id)
		return nil, internal.NewDataAccessError("failed to fetch plan", err)
	}
	if len(rows) == 0 {
		return nil, planNotFound(id)
	}
	managers, err := s.repo.Managers(ctx, []int64{id})
	if err != nil {
		s.logger.Error("failed to fetch plan managers", "error", err, "plan_id", id)
		return nil, internal.NewDataAccessError("failed to fetch plan managers", err)
	}

	owners := make([]int64, 0, len(managers))
	for _, m := range managers {
		owners = append(owners, m.ID)
	}
	row := rows[0]
	if !scope.Allows(rowLocation(row), owners...) {
		return nil, internal.NewPermissionDeniedError(fmt.Sprintf("plan %d is outside the %s scope", id, feature))
	}
	return &row, nil
}

func (s *Service) Create(ctx context.Context, actor *user.User, dto CreateDTO) (*View, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	scope := permission.ScopeFor(actor, permission.EntityPlan, permission.FeatureCreate)
	if scope.Denied() {
		return nil, internal.NewPermissionDeniedError("plan.create is not allowed")
	}
	loc, err := s.locations.Resolve(ctx, geo.LevelDepartement, dto.Departement)
	if err != nil {
		if internal.IsNotFound(err) {
			return nil, internal.NewValidationFieldError("departement", "Ce département n'existe pas")
		}
		return nil, err
	}

	managers := dto.Managers
	if len(managers) == 0 {
		managers = []int64{actor.ID}
	}
	if !scope.Allows(loc, managers...) {
		return nil, internal.NewPermissionDeniedError(fmt.Sprintf("departement %s is outside the actor's scope", dto.Departement))
	}

	p := &planDatamodel.Plan{
		Name:            dto.Name,
		DepartementCode: dto.Departement,
		StartedAt:       dto.StartedAt,
		ExpectedToEndAt: dto.ExpectedToEndAt,
		Goals:           dto.Goals,
		Topics:          dto.topicsJSON(),
		CreatedBy:       actor.ID,
		CreatedAt:       s.now(),
	}
	links := Links{
		Managers:    managers,
		Operators:   dto.Operators,
		Shantytowns: dto.Shantytowns,
		Finances:    dto.finances(),
	}

	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.repo.Create(writeCtx, p, links); err != nil {
		s.logger.Error("failed to create plan", "error", err)
		return nil, internal.NewDataAccessError("failed to create plan", err)
	}

	s.publish(ctx, events.NewPlanEvent(events.EventTypePlanCreated, p.ID, actor.ID))
	return s.reload(ctx, p.ID)
}

// AddState records a new snapshot of the people reached by an open plan.
func (s *Service) AddState(ctx context.Context, actor *user.User, id int64, dto StateDTO) (*View, error) {
	row, err := s.findRow(ctx, actor, id, permission.FeatureUpdate)
	if err != nil {
		return nil, err
	}
	if row.Plan.ClosedAt != nil {
		return nil, planClosed(id)
	}
	if appErr := dto.Validate(row.Plan.StartedAt); appErr != nil {
		return nil, appErr
	}

	state := dto.state(id, decodeTopics(row.Plan.Topics))
	state.CreatedBy = actor.ID
	state.CreatedAt = s.now()

	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.repo.CreateState(writeCtx, &state); err != nil {
		s.logger.Error("failed to create plan state", "error", err, "plan_id", id)
		return nil, internal.NewDataAccessError("failed to create plan state", err)
	}
	return s.reload(ctx, id)
}

func (s *Service) Close(ctx context.Context, actor *user.User, id int64, dto CloseDTO) (*View, error) {
	row, err := s.findRow(ctx, actor, id, permission.FeatureClose)
	if err != nil {
		return nil, err
	}
	if row.Plan.ClosedAt != nil {
		return nil, planClosed(id)
	}
	if appErr := dto.Validate(row.Plan.StartedAt); appErr != nil {
		return nil, appErr
	}

	now := s.now()
	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	err = s.repo.Update(writeCtx, id, func(p *planDatamodel.Plan) {
		p.ClosedAt = dto.ClosedAt
		p.FinalComment = &dto.FinalComment
		p.UpdatedBy = &actor.ID
		p.UpdatedAt = &now
	})
	if err != nil {
		s.logger.Error("failed to close plan", "error", err, "plan_id", id)
		return nil, internal.NewDataAccessError("failed to close plan", err)
	}

	s.publish(ctx, events.NewPlanEvent(events.EventTypePlanClosed, id, actor.ID))
	return s.reload(ctx, id)
}

func (s *Service) reload(ctx context.Context, id int64) (*View, error) {
	views, err := s.load(ctx, query.Eq("p.id", id))
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, planNotFound(id)
	}
	return &views[0], nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "event_type", event.EventType())
	}
}

func planNotFound(id int64) *internal.AppError {
	return internal.NewNotFoundError(
		fmt.Sprintf("plan %d not found", id),
		"L'action demandée n'existe pas",
		internal.ErrCodePlanNotFound,
	)
}

func planClosed(id int64) *internal.AppError {
	return internal.NewConflictError(
		fmt.Sprintf("plan %d is already closed", id),
		"Cette action est déjà terminée",
		internal.ErrCodePlanClosed,
	)
}
