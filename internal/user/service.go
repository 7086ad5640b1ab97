package user

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/validation"
	userDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/user"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
)

type Repository interface {
	FindRows(ctx context.Context, where query.Clause) ([]userDatamodel.Row, error)
	// FindRow returns nil, nil when the user does not exist.
	FindRow(ctx context.Context, id int64) (*userDatamodel.Row, error)
	PermissionRows(ctx context.Context, role string, organizationID int64) (roleRows, organizationRows []permission.Row, err error)
	CreateAccess(ctx context.Context, access *userDatamodel.UserAccess) error
	FindAccess(ctx context.Context, id int64) (*userDatamodel.UserAccess, error)
	ActivateAccess(ctx context.Context, access *userDatamodel.UserAccess, passwordHash string, at time.Time) error
	// ExpireAccess reports false when the access was already used or expired.
	ExpireAccess(ctx context.Context, id int64, at time.Time) (bool, error)
}

// AccessScheduler arms and disarms the delayed expiry of an access link.
type AccessScheduler interface {
	ScheduleAccessExpiry(ctx context.Context, accessID int64, at time.Time) error
	CancelAccessExpiry(ctx context.Context, accessID int64) error
}

var filterColumns = query.Columns{
	"organization": "o.id",
	"status":       "u.status",
	"role":         "u.role",
	"departement":  "o.departement_code",
}

var ScopeColumns = permission.Columns{
	Levels: map[geo.Level]string{
		geo.LevelRegion:      "o.region_code",
		geo.LevelDepartement: "o.departement_code",
		geo.LevelEPCI:        "o.epci_code",
		geo.LevelCity:        "o.city_code",
	},
	Owner: "u.id = ?",
}

type Service struct {
	repo         Repository
	scheduler    AccessScheduler
	publisher    events.Publisher
	accessTTL    time.Duration
	bcryptCost   int
	queryTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

type Options struct {
	AccessTTL    time.Duration
	BCryptCost   int
	QueryTimeout time.Duration
}

func NewService(repo Repository, scheduler AccessScheduler, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	if opts.BCryptCost == 0 {
		opts.BCryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:         repo,
		scheduler:    scheduler,
		publisher:    publisher,
		accessTTL:    opts.AccessTTL,
		bcryptCost:   opts.BCryptCost,
		queryTimeout: opts.QueryTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Load returns the user with its permissions resolved for the current request.
func (s *Service) Load(ctx context.Context, id int64) (*User, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row, err := s.repo.FindRow(ctx, id)
	if err != nil {
		s.logger.Error("failed to load user", "error", err, "user_id", id)
		return nil, internal.NewDataAccessError("failed to load user", err)
	}
	if row == nil {
		return nil, userNotFound(id)
	}

	u := FromRow(*row)
	roleRows, orgRows, err := s.repo.PermissionRows(ctx, u.Role, u.Organization.ID)
	if err != nil {
		s.logger.Error("failed to load permissions", "error", err, "user_id", id)
		return nil, internal.NewDataAccessError("failed to load permissions", err)
	}
	if u.Permissions, err = permission.Resolve(roleRows, orgRows); err != nil {
		return nil, internal.NewInternalError("invalid stored permission", err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, viewer *User, filters []query.Filter) ([]*User, error) {
	scope := permission.ScopeFor(viewer, permission.EntityUser, permission.FeatureList)
	if !scope.Visible() {
		return []*User{}, nil
	}

	scopeClause, err := scope.Clause(ScopeColumns)
	if err != nil {
		return nil, internal.NewInternalError("failed to scope user list", err)
	}
	where, err := query.Where(filters, filterColumns, scopeClause)
	if err != nil {
		return nil, internal.NewValidationFieldError("filters", err.Error())
	}

	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.repo.FindRows(ctx, where)
	if err != nil {
		s.logger.Error("failed to list users", "error", err, "viewer_id", viewer.ID)
		return nil, internal.NewDataAccessError("failed to list users", err)
	}

	users := make([]*User, 0, len(rows))
	for _, r := range rows {
		users = append(users, FromRow(r))
	}
	return users, nil
}

// Get hides users outside the viewer's scope behind a not found error.
func (s *Service) Get(ctx context.Context, viewer *User, id int64) (*User, error) {
	scope := permission.ScopeFor(viewer, permission.EntityUser, permission.FeatureRead)
	if !scope.Visible() {
		return nil, userNotFound(id)
	}

	ctx, cancel := internal.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row, err := s.repo.FindRow(ctx, id)
	if err != nil {
		s.logger.Error("failed to get user", "error", err, "user_id", id)
		return nil, internal.NewDataAccessError("failed to get user", err)
	}
	if row == nil {
		return nil, userNotFound(id)
	}

	u := FromRow(*row)
	if !scope.Allows(u.Organization.Location, u.ID) {
		return nil, userNotFound(id)
	}
	return u, nil
}

// CreateAccess issues an activation link for id and arms its expiry.
func (s *Service) CreateAccess(ctx context.Context, actor *User, id int64) (*Access, error) {
	scope := permission.ScopeFor(actor, permission.EntityUser, permission.FeatureActivate)
	if scope.Denied() {
		return nil, internal.NewPermissionDeniedError("user.activate not granted")
	}

	row, err := s.repo.FindRow(ctx, id)
	if err != nil {
		return nil, internal.NewDataAccessError("failed to get user", err)
	}
	if row == nil {
		return nil, userNotFound(id)
	}
	target := FromRow(*row)
	if !scope.Allows(target.Organization.Location, target.ID) {
		return nil, internal.NewPermissionDeniedError(fmt.Sprintf("user %d is outside the actor's territory", id))
	}
	if target.Status == StatusActive {
		return nil, internal.NewConflictError(fmt.Sprintf("user %d is already active", id), "Ce compte est déjà actif", internal.ErrCodeAccessUsed)
	}

	now := s.now()
	record := &userDatamodel.UserAccess{
		UserID:    id,
		CreatedBy: actor.ID,
		Token:     uuid.New().String(),
		ExpiresAt: now.Add(s.accessTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateAccess(ctx, record); err != nil {
		s.logger.Error("failed to create access", "error", err, "user_id", id)
		return nil, internal.NewDataAccessError("failed to create access", err)
	}

	// the expiry date is also checked on activation, so a failed schedule only delays cleanup
	if err := s.scheduler.ScheduleAccessExpiry(ctx, record.ID, record.ExpiresAt); err != nil {
		s.logger.Error("failed to schedule access expiry", "error", err, "access_id", record.ID)
	}

	s.publish(ctx, events.NewAccessEvent(events.EventTypeAccessCreated, record.ID, id, record.ExpiresAt))
	s.logger.Info("access created", "access_id", record.ID, "user_id", id, "expires_at", record.ExpiresAt)

	return AccessFromDataModel(record), nil
}

func (s *Service) ActivateAccess(ctx context.Context, accessID int64, dto ActivateAccessDTO) error {
	v := validation.NewValidator().Struct(dto)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}

	record, err := s.repo.FindAccess(ctx, accessID)
	if err != nil {
		return internal.NewDataAccessError("failed to get access", err)
	}
	if record == nil || subtle.ConstantTimeCompare([]byte(record.Token), []byte(dto.Token)) != 1 {
		return internal.NewNotFoundError(fmt.Sprintf("access %d not found", accessID), "Ce lien d'activation n'existe pas", internal.ErrCodeAccessNotFound)
	}

	access := AccessFromDataModel(record)
	now := s.now()
	if access.UsedAt != nil {
		return internal.NewConflictError("access already used", "Ce lien d'activation a déjà été utilisé", internal.ErrCodeAccessUsed)
	}
	if !access.Usable(now) {
		return internal.NewConflictError("access expired", "Ce lien d'activation a expiré", internal.ErrCodeAccessExpired)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	if err := s.repo.ActivateAccess(ctx, record, string(hash), now); err != nil {
		s.logger.Error("failed to activate access", "error", err, "access_id", accessID)
		return internal.NewDataAccessError("failed to activate access", err)
	}

	if err := s.scheduler.CancelAccessExpiry(ctx, accessID); err != nil {
		s.logger.Warn("failed to cancel access expiry", "error", err, "access_id", accessID)
	}

	s.publish(ctx, events.NewAccessEvent(events.EventTypeAccessActivated, accessID, record.UserID, record.ExpiresAt))
	s.logger.Info("access activated", "access_id", accessID, "user_id", record.UserID)
	return nil
}

// ExpireAccess is run by the worker when an access link reaches its expiry date.
func (s *Service) ExpireAccess(ctx context.Context, accessID int64) error {
	expired, err := s.repo.ExpireAccess(ctx, accessID, s.now())
	if err != nil {
		return fmt.Errorf("expire access %d: %w", accessID, err)
	}
	if !expired {
		s.logger.Info("access already settled, nothing to expire", "access_id", accessID)
		return nil
	}

	record, err := s.repo.FindAccess(ctx, accessID)
	if err != nil {
		return fmt.Errorf("reload access %d: %w", accessID, err)
	}
	if record == nil {
		return fmt.Errorf("access %d vanished after expiry", accessID)
	}

	s.publish(ctx, events.NewAccessEvent(events.EventTypeAccessExpired, accessID, record.UserID, record.ExpiresAt))
	s.logger.Info("access expired", "access_id", accessID, "user_id", record.UserID)
	return nil
}

// publish runs after the write is stored. Subscriber failures are only logged.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "event_type", event.EventType())
	}
}

func userNotFound(id int64) *internal.AppError {
	return internal.NewNotFoundError(fmt.Sprintf("user %d not found", id), "L'utilisateur demandé n'existe pas", internal.ErrCodeUserNotFound)
}
