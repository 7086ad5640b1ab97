package plan

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Plan struct {
	ID              int64          `gorm:"primaryKey"`
	Name            string         `gorm:"column:name;not null"`
	DepartementCode string         `gorm:"column:departement_code;not null;index"`
	StartedAt       time.Time      `gorm:"column:started_at;not null"`
	ExpectedToEndAt *time.Time     `gorm:"column:expected_to_end_at"`
	ClosedAt        *time.Time     `gorm:"column:closed_at"`
	Goals           *string        `gorm:"column:goals"`
	FinalComment    *string        `gorm:"column:final_comment"`
	Topics          datatypes.JSON `gorm:"column:topics;type:jsonb;not null"`
	CreatedBy       int64          `gorm:"column:created_by;not null"`
	UpdatedBy       *int64         `gorm:"column:updated_by"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       *time.Time     `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (Plan) TableName() string {
	return "plans"
}

type Manager struct {
	PlanID int64 `gorm:"column:plan_id;primaryKey"`
	UserID int64 `gorm:"column:user_id;primaryKey"`
}

func (Manager) TableName() string {
	return "plan_managers"
}

type Operator struct {
	PlanID int64 `gorm:"column:plan_id;primaryKey"`
	UserID int64 `gorm:"column:user_id;primaryKey"`
}

func (Operator) TableName() string {
	return "plan_operators"
}

type PlanShantytown struct {
	PlanID       int64 `gorm:"column:plan_id;primaryKey"`
	ShantytownID int64 `gorm:"column:shantytown_id;primaryKey"`
}

func (PlanShantytown) TableName() string {
	return "plan_shantytowns"
}

// Finance is one funding line of a plan for a given year.
type Finance struct {
	ID      int64           `gorm:"primaryKey"`
	PlanID  int64           `gorm:"column:plan_id;not null;index"`
	Year    int             `gorm:"column:year;not null"`
	Type    string          `gorm:"column:type;not null"`
	Amount  decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Details *string         `gorm:"column:details"`
}

func (Finance) TableName() string {
	return "plan_finances"
}

// State is a dated snapshot of the people reached by a plan. Indicators holds one
// object per declared topic.
type State struct {
	ID                  int64          `gorm:"primaryKey"`
	PlanID              int64          `gorm:"column:plan_id;not null;index"`
	Date                time.Time      `gorm:"column:date;not null"`
	AudienceInTotal     int            `gorm:"column:audience_in_total;not null"`
	AudienceInFamilies  int            `gorm:"column:audience_in_families;not null"`
	AudienceOutTotal    int            `gorm:"column:audience_out_total;not null"`
	AudienceOutFamilies int            `gorm:"column:audience_out_families;not null"`
	Indicators          datatypes.JSON `gorm:"column:indicators;type:jsonb;not null"`
	CreatedBy           int64          `gorm:"column:created_by;not null"`
	CreatedAt           time.Time      `gorm:"column:created_at"`
}

func (State) TableName() string {
	return "plan_states"
}

// Row is one result of the primary query.
type Row struct {
	Plan            Plan    `gorm:"embedded"`
	DepartementName string  `gorm:"column:departement_name"`
	RegionCode      string  `gorm:"column:region_code"`
	RegionName      string  `gorm:"column:region_name"`
	AuthorFirstName *string `gorm:"column:author_first_name"`
	AuthorLastName  *string `gorm:"column:author_last_name"`
}

// UserRow is a manager or operator of a plan.
type UserRow struct {
	PlanID                   int64   `gorm:"column:plan_id"`
	ID                       int64   `gorm:"column:id"`
	FirstName                string  `gorm:"column:first_name"`
	LastName                 string  `gorm:"column:last_name"`
	Email                    string  `gorm:"column:email"`
	OrganizationID           int64   `gorm:"column:organization_id"`
	OrganizationName         string  `gorm:"column:organization_name"`
	OrganizationAbbreviation *string `gorm:"column:organization_abbreviation"`
}

type ShantytownRow struct {
	PlanID   int64   `gorm:"column:plan_id"`
	ID       int64   `gorm:"column:id"`
	Name     *string `gorm:"column:name"`
	Address  string  `gorm:"column:address"`
	CityCode string  `gorm:"column:city_code"`
	CityName string  `gorm:"column:city_name"`
	Status   string  `gorm:"column:status"`
}
