package user

import "time"

type Organization struct {
	ID              int64     `gorm:"primaryKey"`
	Name            string    `gorm:"column:name;not null"`
	Abbreviation    *string   `gorm:"column:abbreviation"`
	Type            string    `gorm:"column:type;not null"`
	LocationType    string    `gorm:"column:location_type;not null"`
	RegionCode      *string   `gorm:"column:region_code"`
	DepartementCode *string   `gorm:"column:departement_code"`
	EPCICode        *string   `gorm:"column:epci_code"`
	CityCode        *string   `gorm:"column:city_code"`
	Active          bool      `gorm:"column:active;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

type User struct {
	ID             int64      `gorm:"primaryKey"`
	FirstName      string     `gorm:"column:first_name;not null"`
	LastName       string     `gorm:"column:last_name;not null"`
	Email          string     `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash   string     `gorm:"column:password_hash"`
	Role           string     `gorm:"column:role;not null"`
	Status         string     `gorm:"column:status;not null"`
	Position       string     `gorm:"column:position"`
	OrganizationID int64      `gorm:"column:organization_id;not null;index"`
	LastLoginAt    *time.Time `gorm:"column:last_login_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

type RolePermission struct {
	Role            string `gorm:"column:role;primaryKey"`
	Entity          string `gorm:"column:entity;primaryKey"`
	Feature         string `gorm:"column:feature;primaryKey"`
	Allowed         bool   `gorm:"column:allowed;not null"`
	GeographicLevel string `gorm:"column:geographic_level;not null"`
	DataJustice     bool   `gorm:"column:data_justice;not null"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

type OrganizationPermission struct {
	OrganizationID  int64  `gorm:"column:organization_id;primaryKey"`
	Entity          string `gorm:"column:entity;primaryKey"`
	Feature         string `gorm:"column:feature;primaryKey"`
	Allowed         bool   `gorm:"column:allowed;not null"`
	GeographicLevel string `gorm:"column:geographic_level;not null"`
	DataJustice     bool   `gorm:"column:data_justice;not null"`
}

func (OrganizationPermission) TableName() string {
	return "organization_permissions"
}

type UserAccess struct {
	ID        int64      `gorm:"primaryKey"`
	UserID    int64      `gorm:"column:user_id;not null;index"`
	CreatedBy int64      `gorm:"column:created_by;not null"`
	Token     string     `gorm:"column:token;uniqueIndex;not null"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	ExpiredAt *time.Time `gorm:"column:expired_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (UserAccess) TableName() string {
	return "user_accesses"
}

// Row is the flattened read of a user joined with its organization and geography.
type Row struct {
	ID                 int64      `gorm:"column:id"`
	FirstName          string     `gorm:"column:first_name"`
	LastName           string     `gorm:"column:last_name"`
	Email              string     `gorm:"column:email"`
	Role               string     `gorm:"column:role"`
	Status             string     `gorm:"column:status"`
	Position           string     `gorm:"column:position"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	OrganizationID     int64      `gorm:"column:organization_id"`
	OrganizationName   string     `gorm:"column:organization_name"`
	OrganizationAbbr   *string    `gorm:"column:organization_abbreviation"`
	OrganizationType   string     `gorm:"column:organization_type"`
	OrganizationActive bool       `gorm:"column:organization_active"`
	LocationType       string     `gorm:"column:location_type"`
	RegionCode         *string    `gorm:"column:region_code"`
	RegionName         *string    `gorm:"column:region_name"`
	DepartementCode    *string    `gorm:"column:departement_code"`
	DepartementName    *string    `gorm:"column:departement_name"`
	EPCICode           *string    `gorm:"column:epci_code"`
	EPCIName           *string    `gorm:"column:epci_name"`
	CityCode           *string    `gorm:"column:city_code"`
	CityName           *string    `gorm:"column:city_name"`
}
