package user

import (
	"context"
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/unixtime"
	geoDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/geo"
	userDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/user"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
)

type Status string

const (
	StatusNew      Status = "new"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Organization struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Abbreviation *string       `json:"abbreviation"`
	Type         string        `json:"type"`
	Active       bool          `json:"active"`
	Location     *geo.Location `json:"location"`
}

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	Role         string
	Status       Status
	Position     string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	Organization Organization
	Permissions  permission.Set
}

func (u *User) SubjectID() int64 {
	return u.ID
}

func (u *User) Location() *geo.Location {
	return u.Organization.Location
}

func (u *User) PermissionSet() permission.Set {
	return u.Permissions
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func FromRow(r userDatamodel.Row) *User {
	level, err := geo.ParseLevel(r.LocationType)
	if err != nil {
		level = geo.LevelNation
	}
	chain := &geoDatamodel.Chain{
		RegionCode:      r.RegionCode,
		RegionName:      r.RegionName,
		DepartementCode: r.DepartementCode,
		DepartementName: r.DepartementName,
		EPCICode:        r.EPCICode,
		EPCIName:        r.EPCIName,
		CityCode:        r.CityCode,
		CityName:        r.CityName,
	}

	return &User{
		ID:          r.ID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Email:       r.Email,
		Role:        r.Role,
		Status:      Status(r.Status),
		Position:    r.Position,
		LastLoginAt: r.LastLoginAt,
		CreatedAt:   r.CreatedAt,
		Organization: Organization{
			ID:           r.OrganizationID,
			Name:         r.OrganizationName,
			Abbreviation: r.OrganizationAbbr,
			Type:         r.OrganizationType,
			Active:       r.OrganizationActive,
			Location:     geo.FromChain(level, chain),
		},
	}
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil
}

type PermissionView struct {
	Allowed         bool   `json:"allowed"`
	GeographicLevel string `json:"geographic_level"`
	DataJustice     bool   `json:"data_justice"`
}

type View struct {
	ID           int64                                `json:"id"`
	FirstName    string                               `json:"firstName"`
	LastName     string                               `json:"lastName"`
	Email        string                               `json:"email"`
	Role         string                               `json:"role"`
	Status       Status                               `json:"status"`
	Position     string                               `json:"position"`
	LastLoginAt  *float64                             `json:"lastLoginAt"`
	CreatedAt    float64                              `json:"createdAt"`
	Organization Organization                         `json:"organization"`
	Permissions  map[string]map[string]PermissionView `json:"permissions,omitempty"`
}

// ToView renders the user. Permissions are only included for the user's own profile.
func (u *User) ToView(withPermissions bool) View {
	v := View{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Role:         u.Role,
		Status:       u.Status,
		Position:     u.Position,
		LastLoginAt:  unixtime.Ptr(u.LastLoginAt),
		CreatedAt:    unixtime.Seconds(u.CreatedAt),
		Organization: u.Organization,
	}
	if withPermissions {
		v.Permissions = make(map[string]map[string]PermissionView)
		for key, p := range u.Permissions {
			entity := string(key.Entity)
			if v.Permissions[entity] == nil {
				v.Permissions[entity] = make(map[string]PermissionView)
			}
			v.Permissions[entity][string(key.Feature)] = PermissionView{
				Allowed:         p.Allowed,
				GeographicLevel: p.GeographicLevel.String(),
				DataJustice:     p.DataJustice,
			}
		}
	}
	return v
}

type Access struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Token     string     `json:"-"`
	ExpiresAt time.Time  `json:"-"`
	UsedAt    *time.Time `json:"-"`
	ExpiredAt *time.Time `json:"-"`
}

func AccessFromDataModel(a *userDatamodel.UserAccess) *Access {
	return &Access{
		ID:        a.ID,
		UserID:    a.UserID,
		Token:     a.Token,
		ExpiresAt: a.ExpiresAt,
		UsedAt:    a.UsedAt,
		ExpiredAt: a.ExpiredAt,
	}
}

// Usable reports whether the link can still activate an account at now.
func (a *Access) Usable(now time.Time) bool {
	return a.UsedAt == nil && a.ExpiredAt == nil && now.Before(a.ExpiresAt)
}
