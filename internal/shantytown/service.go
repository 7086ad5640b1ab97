package shantytown

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/aggregate"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/validation"
	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

type Repository interface {
	// FindRows runs the primary query, ordered by departement code then city name.
	FindRows(ctx context.Context, where query.Clause) ([]shantytownDatamodel.Row, error)
	Comments(ctx context.Context, ids []int64, includePrivate bool) ([]shantytownDatamodel.CommentRow, error)
	SocialOrigins(ctx context.Context, ids []int64) ([]shantytownDatamodel.OriginRow, error)
	ClosingSolutions(ctx context.Context, ids []int64) ([]shantytownDatamodel.ClosingSolutionRow, error)
	Actions(ctx context.Context, ids []int64) ([]shantytownDatamodel.ActionRow, error)
	// History returns the archived versions oldest first, with their origins keyed by hid.
	History(ctx context.Context, id int64) ([]shantytownDatamodel.HistoryRow, []shantytownDatamodel.OriginRow, error)

	Create(ctx context.Context, st *shantytownDatamodel.Shantytown, origins []int64) error
	// Update archives the live row then applies mutate to it, in one transaction.
	Update(ctx context.Context, id int64, origins []int64, mutate func(*shantytownDatamodel.Fields)) error
	Close(ctx context.Context, id int64, solutions []shantytownDatamodel.ShantytownClosingSolution, mutate func(*shantytownDatamodel.Fields)) error
	Delete(ctx context.Context, id int64) error
	CreateComment(ctx context.Context, c *shantytownDatamodel.Comment) error
}

// LocationResolver turns a city code into its geo chain.
type LocationResolver interface {
	Resolve(ctx context.Context, level geo.Level, code string) (*geo.Location, error)
}

var filterColumns = query.Columns{
	"status":      "s.status",
	"departement": "d.code",
	"city":        "c.code",
	"fieldType":   "s.field_type_id",
}

var scopeColumns = permission.Columns{
	Levels: map[geo.Level]string{
		geo.LevelRegion:      "d.region_code",
		geo.LevelDepartement: "d.code",
		geo.LevelEPCI:        "c.epci_code",
		geo.LevelCity:        "c.code",
	},
	Owner: "s.created_by = ?",
}

// FilterKeys are the query string parameters accepted by FindAll.
var FilterKeys = []string{"status", "departement", "city", "fieldType"}

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

// FindAll lists the shantytowns matching filters within the viewer's scope for feature.
func (s *Service) FindAll(ctx context.Context, viewer *user.User, filters []query.Filter, feature permission.Feature) ([]View, error) {
	scope := permission.ScopeFor(viewer, permission.EntityShantytown, feature)
	if !scope.Visible() {
		return []View{}, nil
	}

	scopeClause, err := scope.Clause(scopeColumns)
	if err != nil {
		return nil, internal.NewInternalError("failed to scope shantytowns", err)
	}
	where, err := query.Where(filters, filterColumns, scopeClause)
	if err != nil {
		return nil, internal.NewValidationFieldError("filters", err.Error())
	}

	return s.load(ctx, viewer, scope.Permission, where)
}

// FindOne returns a single shantytown. Shantytowns outside the viewer's read scope are
// reported as missing.
func (s *Service) FindOne(ctx context.Context, viewer *user.User, id int64) (*View, error) {
	scope := permission.ScopeFor(viewer, permission.EntityShantytown, permission.FeatureRead)
	if !scope.Visible() {
		return nil, shantytownNotFound(id)
	}

	scopeClause, err := scope.Clause(scopeColumns)
	if err != nil {
		return nil, internal.NewInternalError("failed to scope shantytown", err)
	}
	views, err := s.load(ctx, viewer, scope.Permission, query.And(query.Eq("s.id", id), scopeClause))
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, shantytownNotFound(id)
	}
	return &views[0], nil
}

// load runs the primary query, fans the satellite queries out and folds their rows
// into the primary order.
func (s *Service) load(ctx context.Context, viewer *user.User, perm permission.Permission, where query.Clause) ([]View, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.repo.FindRows(ctx, where)
	if err != nil {
		s.logger.Error("failed to fetch shantytowns", "error", err)
		return nil, internal.NewDataAccessError("failed to fetch shantytowns", err)
	}
	if len(rows) == 0 {
		return []View{}, nil
	}

	ix := aggregate.NewIndex[View](len(rows))
	for _, row := range rows {
		ix.Add(row.ID, Serialize(row, perm))
	}
	ids := ix.IDs()

	withComments := viewer.Permissions.Allowed(permission.EntityShantytownComment, permission.FeatureList)
	includePrivate := viewer.Permissions.Allowed(permission.EntityShantytownComment, permission.FeatureListPrivate)

	var (
		comments  []shantytownDatamodel.CommentRow
		origins   []shantytownDatamodel.OriginRow
		solutions []shantytownDatamodel.ClosingSolutionRow
		actions   []shantytownDatamodel.ActionRow
	)
	tasks := []aggregate.Task{
		aggregate.Fetch("shantytown_origins", &origins, func(ctx context.Context) ([]shantytownDatamodel.OriginRow, error) {
			return s.repo.SocialOrigins(ctx, ids)
		}),
		aggregate.Fetch("shantytown_closing_solutions", &solutions, func(ctx context.Context) ([]shantytownDatamodel.ClosingSolutionRow, error) {
			return s.repo.ClosingSolutions(ctx, ids)
		}),
		aggregate.Fetch("shantytown_actions", &actions, func(ctx context.Context) ([]shantytownDatamodel.ActionRow, error) {
			return s.repo.Actions(ctx, ids)
		}),
	}
	if withComments {
		tasks = append(tasks, aggregate.Fetch("shantytown_comments", &comments, func(ctx context.Context) ([]shantytownDatamodel.CommentRow, error) {
			return s.repo.Comments(ctx, ids, includePrivate)
		}))
	}
	if err := aggregate.FanOut(ctx, s.observe, tasks...); err != nil {
		s.logger.Error("failed to fetch shantytown details", "error", err)
		return nil, internal.NewDataAccessError("failed to fetch shantytown details", err)
	}

	skipped := aggregate.Attach(ix, origins,
		func(r shantytownDatamodel.OriginRow) int64 { return r.ParentID },
		func(v *View, r shantytownDatamodel.OriginRow) {
			v.SocialOrigins = append(v.SocialOrigins, RefView{ID: r.ID, Label: r.Label})
		})
	skipped += aggregate.Attach(ix, solutions,
		func(r shantytownDatamodel.ClosingSolutionRow) int64 { return r.ShantytownID },
		func(v *View, r shantytownDatamodel.ClosingSolutionRow) {
			v.ClosingSolutions = append(v.ClosingSolutions, closingSolutionView(r))
		})
	skipped += aggregate.Attach(ix, actions,
		func(r shantytownDatamodel.ActionRow) int64 { return r.ShantytownID },
		func(v *View, r shantytownDatamodel.ActionRow) {
			v.Actions = append(v.Actions, actionView(r))
		})
	skipped += aggregate.Attach(ix, comments,
		func(r shantytownDatamodel.CommentRow) int64 { return r.ShantytownID },
		func(v *View, r shantytownDatamodel.CommentRow) {
			if r.Private && !includePrivate {
				return
			}
			v.Comments = append(v.Comments, commentView(r))
		})
	if skipped > 0 {
		s.logger.Debug("skipped orphan satellite rows", "count", skipped)
	}

	return ix.Items(), nil
}

// findRow loads the live row of id and checks it against the actor's scope for feature.
func (s *Service) findRow(ctx context.Context, actor *user.User, id int64, feature permission.Feature) (*shantytownDatamodel.Row, permission.Scope, error) {
	scope := permission.ScopeFor(actor, permission.EntityShantytown, feature)
	if scope.Denied() {
		return nil, scope, internal.NewPermissionDeniedError(fmt.Sprintf("shantytown.%s is not allowed", feature))
	}

	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.repo.FindRows(ctx, query.Eq("s.id", id))
	if err != nil {
		s.logger.Error("failed to fetch shantytown", "error", err, "shantytown_id", id)
		return nil, scope, internal.NewDataAccessError("failed to fetch shantytown", err)
	}
	if len(rows) == 0 {
		return nil, scope, shantytownNotFound(id)
	}

	row := rows[0]
	if !scope.Allows(rowLocation(row), row.Fields.CreatedBy) {
		return nil, scope, internal.NewPermissionDeniedError(fmt.Sprintf("shantytown %d is outside the %s scope", id, feature))
	}
	return &row, scope, nil
}

// resolveCity checks that code exists and that the actor may write there.
func (s *Service) resolveCity(ctx context.Context, actor *user.User, scope permission.Scope, code string) (*geo.Location, error) {
	loc, err := s.locations.Resolve(ctx, geo.LevelCity, code)
	if err != nil {
		if internal.IsNotFound(err) {
			return nil, internal.NewValidationFieldError("citycode", "Cette commune n'existe pas")
		}
		return nil, err
	}
	if !scope.Allows(loc, actor.ID) {
		return nil, internal.NewPermissionDeniedError(fmt.Sprintf("city %s is outside the actor's scope", code))
	}
	return loc, nil
}

func (s *Service) Create(ctx context.Context, actor *user.User, dto ShantytownDTO) (*View, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	scope := permission.ScopeFor(actor, permission.EntityShantytown, permission.FeatureCreate)
	if scope.Denied() {
		return nil, internal.NewPermissionDeniedError("shantytown.create is not allowed")
	}
	loc, err := s.resolveCity(ctx, actor, scope, dto.CityCode)
	if err != nil {
		return nil, err
	}

	st := &shantytownDatamodel.Shantytown{}
	dto.apply(&st.Fields, scope.Permission.DataJustice)
	st.Fields.Status = string(StatusOpen)
	st.Fields.CreatedBy = actor.ID
	st.Fields.CreatedAt = s.now()

	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.repo.Create(writeCtx, st, dto.SocialOrigins); err != nil {
		s.logger.Error("failed to create shantytown", "error", err)
		return nil, internal.NewDataAccessError("failed to create shantytown", err)
	}

	s.publish(ctx, events.NewShantytownEvent(events.EventTypeShantytownCreated, st.ID, loc.Departement.Code, actor.ID))
	return s.reload(ctx, actor, st.ID, scope.Permission)
}

func (s *Service) Update(ctx context.Context, actor *user.User, id int64, dto ShantytownDTO) (*View, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row, scope, err := s.findRow(ctx, actor, id, permission.FeatureUpdate)
	if err != nil {
		return nil, err
	}
	loc := rowLocation(*row)
	if dto.CityCode != row.Fields.CityCode {
		if loc, err = s.resolveCity(ctx, actor, scope, dto.CityCode); err != nil {
			return nil, err
		}
	}

	now := s.now()
	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	err = s.repo.Update(writeCtx, id, dto.SocialOrigins, func(f *shantytownDatamodel.Fields) {
		dto.apply(f, scope.Permission.DataJustice)
		f.UpdatedBy = &actor.ID
		f.UpdatedAt = &now
	})
	if err != nil {
		s.logger.Error("failed to update shantytown", "error", err, "shantytown_id", id)
		return nil, internal.NewDataAccessError("failed to update shantytown", err)
	}

	s.publish(ctx, events.NewShantytownEvent(events.EventTypeShantytownUpdated, id, loc.Departement.Code, actor.ID))
	return s.reload(ctx, actor, id, scope.Permission)
}

func (s *Service) Close(ctx context.Context, actor *user.User, id int64, dto CloseDTO) (*View, error) {
	row, scope, err := s.findRow(ctx, actor, id, permission.FeatureClose)
	if err != nil {
		return nil, err
	}
	if appErr := dto.Validate(row.Fields.BuiltAt); appErr != nil {
		return nil, appErr
	}
	if row.Fields.Status != string(StatusOpen) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("shantytown %d is already closed", id),
			"Ce site est déjà fermé",
			internal.ErrCodeShantytownClosed,
		)
	}

	now := s.now()
	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	err = s.repo.Close(writeCtx, id, dto.solutions(id), func(f *shantytownDatamodel.Fields) {
		f.Status = dto.Status
		f.ClosedAt = dto.ClosedAt
		f.ClosingContext = dto.ClosingContext
		f.UpdatedBy = &actor.ID
		f.UpdatedAt = &now
	})
	if err != nil {
		s.logger.Error("failed to close shantytown", "error", err, "shantytown_id", id)
		return nil, internal.NewDataAccessError("failed to close shantytown", err)
	}

	s.publish(ctx, events.NewShantytownEvent(events.EventTypeShantytownClosed, id, row.DepartementCode, actor.ID))
	return s.reload(ctx, actor, id, scope.Permission)
}

func (s *Service) Delete(ctx context.Context, actor *user.User, id int64) error {
	row, _, err := s.findRow(ctx, actor, id, permission.FeatureDelete)
	if err != nil {
		return err
	}

	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.repo.Delete(writeCtx, id); err != nil {
		s.logger.Error("failed to delete shantytown", "error", err, "shantytown_id", id)
		return internal.NewDataAccessError("failed to delete shantytown", err)
	}

	s.publish(ctx, events.NewShantytownEvent(events.EventTypeShantytownDeleted, id, row.DepartementCode, actor.ID))
	return nil
}

// Changelog returns the readable history of a shantytown the viewer can read.
func (s *Service) Changelog(ctx context.Context, viewer *user.User, id int64) ([]ChangelogEntry, error) {
	row, scope, err := s.findRow(ctx, viewer, id, permission.FeatureRead)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeForbidden {
			return nil, shantytownNotFound(id)
		}
		return nil, err
	}

	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var (
		history        []shantytownDatamodel.HistoryRow
		historyOrigins []shantytownDatamodel.OriginRow
		liveOrigins    []shantytownDatamodel.OriginRow
	)
	err = aggregate.FanOut(ctx, s.observe,
		aggregate.Task{Name: "shantytown_history", Run: func(ctx context.Context) error {
			var err error
			history, historyOrigins, err = s.repo.History(ctx, id)
			return err
		}},
		aggregate.Fetch("shantytown_origins", &liveOrigins, func(ctx context.Context) ([]shantytownDatamodel.OriginRow, error) {
			return s.repo.SocialOrigins(ctx, []int64{id})
		}),
	)
	if err != nil {
		s.logger.Error("failed to fetch shantytown history", "error", err, "shantytown_id", id)
		return nil, internal.NewDataAccessError("failed to fetch shantytown history", err)
	}

	byHID := make(map[int64][]string, len(history))
	for _, o := range historyOrigins {
		byHID[o.ParentID] = append(byHID[o.ParentID], o.Label)
	}
	snapshots := make([]Snapshot, 0, len(history))
	for _, h := range history {
		snapshots = append(snapshots, snapshotFromHistory(h, byHID[h.HID]))
	}
	labels := make([]string, 0, len(liveOrigins))
	for _, o := range liveOrigins {
		labels = append(labels, o.Label)
	}
	current := snapshotFromRow(*row, labels)

	return Changelog(snapshots, &current, scope.Permission.DataJustice), nil
}

func (s *Service) AddComment(ctx context.Context, actor *user.User, id int64, dto CommentDTO) (*CommentView, error) {
	if appErr := validation.NewValidator().Struct(dto).Validate(); appErr != nil {
		return nil, appErr
	}

	row, _, err := s.findRow(ctx, actor, id, permission.FeatureRead)
	if err != nil {
		return nil, err
	}
	scope := permission.ScopeFor(actor, permission.EntityShantytownComment, permission.FeatureCreate)
	if !scope.Allows(rowLocation(*row), row.Fields.CreatedBy, actor.ID) {
		return nil, internal.NewPermissionDeniedError("shantytown_comment.create is not allowed")
	}

	comment := &shantytownDatamodel.Comment{
		ShantytownID: id,
		Description:  dto.Description,
		Private:      dto.Private,
		CreatedBy:    actor.ID,
		CreatedAt:    s.now(),
	}
	writeCtx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.repo.CreateComment(writeCtx, comment); err != nil {
		s.logger.Error("failed to create comment", "error", err, "shantytown_id", id)
		return nil, internal.NewDataAccessError("failed to create comment", err)
	}

	s.publish(ctx, events.NewCommentCreatedEvent(comment.ID, id, actor.ID, comment.Private))

	view := commentView(shantytownDatamodel.CommentRow{
		ID:               comment.ID,
		ShantytownID:     id,
		Description:      comment.Description,
		Private:          comment.Private,
		CreatedAt:        comment.CreatedAt,
		CreatedBy:        actor.ID,
		AuthorFirstName:  actor.FirstName,
		AuthorLastName:   actor.LastName,
		AuthorPosition:   actor.Position,
		OrganizationID:   actor.Organization.ID,
		OrganizationName: actor.Organization.Name,

		OrganizationAbbreviation: actor.Organization.Abbreviation,
	})
	return &view, nil
}

// reload fetches a freshly written shantytown without re-applying a read scope.
func (s *Service) reload(ctx context.Context, actor *user.User, id int64, perm permission.Permission) (*View, error) {
	views, err := s.load(ctx, actor, perm, query.Eq("s.id", id))
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, shantytownNotFound(id)
	}
	return &views[0], nil
}

// publish runs after commit. A failing subscriber never undoes the write.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "event_type", event.EventType())
	}
}

func shantytownNotFound(id int64) *internal.AppError {
	return internal.NewNotFoundError(
		fmt.Sprintf("shantytown %d not found", id),
		"Le site demandé n'existe pas",
		internal.ErrCodeShantytownNotFound,
	)
}
