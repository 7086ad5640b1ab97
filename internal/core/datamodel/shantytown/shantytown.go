package shantytown

import "time"

// Fields holds every historized column of a shantytown. It is embedded by the live
// table and by its history so that archiving a row is a plain struct copy.
type Fields struct {
	Name              *string    `gorm:"column:name"`
	Latitude          float64    `gorm:"column:latitude;not null"`
	Longitude         float64    `gorm:"column:longitude;not null"`
	Address           string     `gorm:"column:address;not null"`
	AddressDetails    *string    `gorm:"column:address_details"`
	CityCode          string     `gorm:"column:city_code;not null;index"`
	FieldTypeID       int64      `gorm:"column:field_type_id;not null"`
	OwnerTypeID       int64      `gorm:"column:owner_type_id;not null"`
	Owner             *string    `gorm:"column:owner"`
	BuiltAt           *time.Time `gorm:"column:built_at"`
	DeclaredAt        *time.Time `gorm:"column:declared_at"`
	ClosedAt          *time.Time `gorm:"column:closed_at"`
	Status            string     `gorm:"column:status;not null"`
	ClosingContext    *string    `gorm:"column:closing_context"`
	CensusStatus      *string    `gorm:"column:census_status"`
	CensusConductedAt *time.Time `gorm:"column:census_conducted_at"`
	CensusConductedBy *string    `gorm:"column:census_conducted_by"`
	PopulationTotal   *int       `gorm:"column:population_total"`
	PopulationCouples *int       `gorm:"column:population_couples"`
	PopulationMinors  *int       `gorm:"column:population_minors"`
	ElectricityTypeID int64      `gorm:"column:electricity_type_id;not null"`
	AccessToWater     *bool      `gorm:"column:access_to_water"`
	TrashEvacuation   *bool      `gorm:"column:trash_evacuation"`
	OwnerComplaint    *bool      `gorm:"column:owner_complaint"`
	JusticeProcedure  *bool      `gorm:"column:justice_procedure"`
	JusticeRendered   *bool      `gorm:"column:justice_rendered"`
	JusticeRenderedBy *string    `gorm:"column:justice_rendered_by"`
	JusticeRenderedAt *time.Time `gorm:"column:justice_rendered_at"`
	JusticeChallenged *bool      `gorm:"column:justice_challenged"`
	PoliceStatus      *string    `gorm:"column:police_status"`
	PoliceRequestedAt *time.Time `gorm:"column:police_requested_at"`
	PoliceGrantedAt   *time.Time `gorm:"column:police_granted_at"`
	Bailiff           *string    `gorm:"column:bailiff"`
	CreatedBy         int64      `gorm:"column:created_by;not null"`
	UpdatedBy         *int64     `gorm:"column:updated_by"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

type Shantytown struct {
	ID     int64  `gorm:"primaryKey"`
	Fields Fields `gorm:"embedded"`
}

func (Shantytown) TableName() string {
	return "shantytowns"
}

// History is an archived copy of a live row, written before every mutation.
type History struct {
	HID          int64     `gorm:"column:hid;primaryKey"`
	ShantytownID int64     `gorm:"column:shantytown_id;not null;index"`
	ArchivedAt   time.Time `gorm:"column:archived_at;not null"`
	Fields       Fields    `gorm:"embedded"`
}

func (History) TableName() string {
	return "shantytowns_history"
}

type FieldType struct {
	ID    int64  `gorm:"primaryKey"`
	Label string `gorm:"column:label;not null"`
}

func (FieldType) TableName() string {
	return "field_types"
}

type OwnerType struct {
	ID    int64  `gorm:"primaryKey"`
	Label string `gorm:"column:label;not null"`
}

func (OwnerType) TableName() string {
	return "owner_types"
}

type ElectricityType struct {
	ID    int64  `gorm:"primaryKey"`
	Label string `gorm:"column:label;not null"`
}

func (ElectricityType) TableName() string {
	return "electricity_types"
}

type SocialOrigin struct {
	ID    int64  `gorm:"primaryKey"`
	Label string `gorm:"column:label;not null"`
}

func (SocialOrigin) TableName() string {
	return "social_origins"
}

type ShantytownOrigin struct {
	ShantytownID   int64 `gorm:"column:shantytown_id;primaryKey"`
	SocialOriginID int64 `gorm:"column:social_origin_id;primaryKey"`
}

func (ShantytownOrigin) TableName() string {
	return "shantytown_origins"
}

type ShantytownOriginHistory struct {
	HID            int64 `gorm:"column:hid;primaryKey"`
	SocialOriginID int64 `gorm:"column:social_origin_id;primaryKey"`
}

func (ShantytownOriginHistory) TableName() string {
	return "shantytown_origins_history"
}

type ClosingSolution struct {
	ID    int64  `gorm:"primaryKey"`
	Label string `gorm:"column:label;not null"`
}

func (ClosingSolution) TableName() string {
	return "closing_solutions"
}

type ShantytownClosingSolution struct {
	ShantytownID       int64   `gorm:"column:shantytown_id;primaryKey"`
	ClosingSolutionID  int64   `gorm:"column:closing_solution_id;primaryKey"`
	PeopleAffected     *int    `gorm:"column:people_affected"`
	HouseholdsAffected *int    `gorm:"column:households_affected"`
	Message            *string `gorm:"column:message"`
}

func (ShantytownClosingSolution) TableName() string {
	return "shantytown_closing_solutions"
}

type Comment struct {
	ID           int64     `gorm:"primaryKey"`
	ShantytownID int64     `gorm:"column:shantytown_id;not null;index"`
	Description  string    `gorm:"column:description;not null"`
	Private      bool      `gorm:"column:private;not null"`
	CreatedBy    int64     `gorm:"column:created_by;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (Comment) TableName() string {
	return "shantytown_comments"
}

type Action struct {
	ID           int64      `gorm:"primaryKey"`
	ShantytownID int64      `gorm:"column:shantytown_id;not null;index"`
	Type         string     `gorm:"column:type;not null"`
	Description  *string    `gorm:"column:description"`
	StartedAt    time.Time  `gorm:"column:started_at;not null"`
	EndedAt      *time.Time `gorm:"column:ended_at"`
	CreatedBy    int64      `gorm:"column:created_by;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}

func (Action) TableName() string {
	return "shantytown_actions"
}

// Row is one result of the primary query: the live row with every 1:1 reference
// and the geo chain of its city already joined.
type Row struct {
	ID                   int64   `gorm:"column:id"`
	Fields               Fields  `gorm:"embedded"`
	CityName             string  `gorm:"column:city_name"`
	CityMain             *string `gorm:"column:city_main"`
	EPCICode             *string `gorm:"column:epci_code"`
	EPCIName             *string `gorm:"column:epci_name"`
	DepartementCode      string  `gorm:"column:departement_code"`
	DepartementName      string  `gorm:"column:departement_name"`
	RegionCode           string  `gorm:"column:region_code"`
	RegionName           string  `gorm:"column:region_name"`
	FieldTypeLabel       string  `gorm:"column:field_type_label"`
	OwnerTypeLabel       string  `gorm:"column:owner_type_label"`
	ElectricityTypeLabel string  `gorm:"column:electricity_type_label"`
	AuthorFirstName      *string `gorm:"column:author_first_name"`
	AuthorLastName       *string `gorm:"column:author_last_name"`
}

// HistoryRow is an archived row with the labels needed to describe it.
type HistoryRow struct {
	HID                  int64     `gorm:"column:hid"`
	ShantytownID         int64     `gorm:"column:shantytown_id"`
	ArchivedAt           time.Time `gorm:"column:archived_at"`
	Fields               Fields    `gorm:"embedded"`
	FieldTypeLabel       *string   `gorm:"column:field_type_label"`
	OwnerTypeLabel       *string   `gorm:"column:owner_type_label"`
	ElectricityTypeLabel *string   `gorm:"column:electricity_type_label"`
	AuthorFirstName      *string   `gorm:"column:author_first_name"`
	AuthorLastName       *string   `gorm:"column:author_last_name"`
}

type CommentRow struct {
	ID                       int64     `gorm:"column:id"`
	ShantytownID             int64     `gorm:"column:shantytown_id"`
	Description              string    `gorm:"column:description"`
	Private                  bool      `gorm:"column:private"`
	CreatedAt                time.Time `gorm:"column:created_at"`
	CreatedBy                int64     `gorm:"column:created_by"`
	AuthorFirstName          string    `gorm:"column:author_first_name"`
	AuthorLastName           string    `gorm:"column:author_last_name"`
	AuthorPosition           string    `gorm:"column:author_position"`
	OrganizationID           int64     `gorm:"column:organization_id"`
	OrganizationName         string    `gorm:"column:organization_name"`
	OrganizationAbbreviation *string   `gorm:"column:organization_abbreviation"`
}

// OriginRow is keyed by ShantytownID for live rows and by HID for history rows.
type OriginRow struct {
	ParentID int64  `gorm:"column:parent_id"`
	ID       int64  `gorm:"column:id"`
	Label    string `gorm:"column:label"`
}

type ClosingSolutionRow struct {
	ShantytownID       int64   `gorm:"column:shantytown_id"`
	ID                 int64   `gorm:"column:id"`
	Label              string  `gorm:"column:label"`
	PeopleAffected     *int    `gorm:"column:people_affected"`
	HouseholdsAffected *int    `gorm:"column:households_affected"`
	Message            *string `gorm:"column:message"`
}

type ActionRow struct {
	ID           int64      `gorm:"column:id"`
	ShantytownID int64      `gorm:"column:shantytown_id"`
	Type         string     `gorm:"column:type"`
	Description  *string    `gorm:"column:description"`
	StartedAt    time.Time  `gorm:"column:started_at"`
	EndedAt      *time.Time `gorm:"column:ended_at"`
}
