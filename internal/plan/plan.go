package plan

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/unixtime"
	planDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/plan"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
)

type Topic string

const (
	TopicHealth  Topic = "health"
	TopicSchool  Topic = "school"
	TopicWork    Topic = "work"
	TopicHousing Topic = "housing"
	TopicSafety  Topic = "safety"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

type AreaView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type UserView struct {
	ID                       int64   `json:"id"`
	FirstName                string  `json:"firstName"`
	LastName                 string  `json:"lastName"`
	Email                    string  `json:"email"`
	OrganizationID           int64   `json:"organizationId"`
	Organization             string  `json:"organization"`
	OrganizationAbbreviation *string `json:"organizationAbbreviation"`
}

type FinanceView struct {
	Year    int             `json:"year"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Details *string         `json:"details"`
}

type AudienceCount struct {
	Total    int `json:"total"`
	Families int `json:"families"`
}

type AudienceView struct {
	In  AudienceCount `json:"in"`
	Out AudienceCount `json:"out"`
}

type StateView struct {
	ID         int64                     `json:"id"`
	Date       float64                   `json:"date"`
	Audience   AudienceView              `json:"audience"`
	Indicators map[Topic]json.RawMessage `json:"indicators"`
}

type ShantytownView struct {
	ID       int64   `json:"id"`
	Name     *string `json:"name"`
	Address  string  `json:"address"`
	CityCode string  `json:"citycode"`
	CityName string  `json:"city"`
	Status   string  `json:"status"`
}

type AuthorView struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type View struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Status          string           `json:"status"`
	Departement     AreaView         `json:"departement"`
	Region          AreaView         `json:"region"`
	StartedAt       float64          `json:"startedAt"`
	ExpectedToEndAt *float64         `json:"expectedToEndAt"`
	ClosedAt        *float64         `json:"closedAt"`
	Goals           *string          `json:"goals"`
	FinalComment    *string          `json:"finalComment"`
	Topics          []Topic          `json:"topics"`
	Managers        []UserView       `json:"managers"`
	Operators       []UserView       `json:"operators"`
	Finances        []FinanceView    `json:"finances"`
	FinanceTotal    decimal.Decimal  `json:"financeTotal"`
	States          []StateView      `json:"states"`
	Shantytowns     []ShantytownView `json:"shantytowns"`
	CreatedBy       int64            `json:"createdBy"`
	CreatedAt       float64          `json:"createdAt"`
	UpdatedAt       *float64         `json:"updatedAt"`
	UpdatedBy       *AuthorView      `json:"updatedBy"`
}

type PlansResponse struct {
	Plans []View `json:"plans"`
}

// Serialize maps a primary row to its view. Collections start empty and are filled
// by the satellite fold.
func Serialize(row planDatamodel.Row) View {
	p := row.Plan
	v := View{
		ID:              p.ID,
		Name:            p.Name,
		Status:          StatusActive,
		Departement:     AreaView{Code: p.DepartementCode, Name: row.DepartementName},
		Region:          AreaView{Code: row.RegionCode, Name: row.RegionName},
		StartedAt:       unixtime.Seconds(p.StartedAt),
		ExpectedToEndAt: unixtime.Ptr(p.ExpectedToEndAt),
		ClosedAt:        unixtime.Ptr(p.ClosedAt),
		Goals:           p.Goals,
		FinalComment:    p.FinalComment,
		Topics:          decodeTopics(p.Topics),
		Managers:        []UserView{},
		Operators:       []UserView{},
		Finances:        []FinanceView{},
		FinanceTotal:    decimal.Zero,
		States:          []StateView{},
		Shantytowns:     []ShantytownView{},
		CreatedBy:       p.CreatedBy,
		CreatedAt:       unixtime.Seconds(p.CreatedAt),
		UpdatedAt:       unixtime.Ptr(p.UpdatedAt),
	}
	if p.ClosedAt != nil {
		v.Status = StatusClosed
	}
	if row.AuthorFirstName != nil && row.AuthorLastName != nil {
		v.UpdatedBy = &AuthorView{FirstName: *row.AuthorFirstName, LastName: *row.AuthorLastName}
	}
	return v
}

func userView(r planDatamodel.UserRow) UserView {
	return UserView{
		ID:                       r.ID,
		FirstName:                r.FirstName,
		LastName:                 r.LastName,
		Email:                    r.Email,
		OrganizationID:           r.OrganizationID,
		Organization:             r.OrganizationName,
		OrganizationAbbreviation: r.OrganizationAbbreviation,
	}
}

func financeView(f planDatamodel.Finance) FinanceView {
	return FinanceView{Year: f.Year, Type: f.Type, Amount: f.Amount, Details: f.Details}
}

func shantytownView(r planDatamodel.ShantytownRow) ShantytownView {
	return ShantytownView{
		ID:       r.ID,
		Name:     r.Name,
		Address:  r.Address,
		CityCode: r.CityCode,
		CityName: r.CityName,
		Status:   r.Status,
	}
}

// stateView keeps only the indicator blocks of topics the plan declares.
func stateView(s planDatamodel.State, topics []Topic) StateView {
	return StateView{
		ID:   s.ID,
		Date: unixtime.Seconds(s.Date),
		Audience: AudienceView{
			In:  AudienceCount{Total: s.AudienceInTotal, Families: s.AudienceInFamilies},
			Out: AudienceCount{Total: s.AudienceOutTotal, Families: s.AudienceOutFamilies},
		},
		Indicators: keepTopics(decodeIndicators(s.Indicators), topics),
	}
}

func decodeTopics(raw []byte) []Topic {
	topics := []Topic{}
	if len(raw) == 0 {
		return topics
	}
	_ = json.Unmarshal(raw, &topics)
	return topics
}

func decodeIndicators(raw []byte) map[Topic]json.RawMessage {
	indicators := map[Topic]json.RawMessage{}
	if len(raw) == 0 {
		return indicators
	}
	_ = json.Unmarshal(raw, &indicators)
	return indicators
}

func keepTopics(indicators map[Topic]json.RawMessage, topics []Topic) map[Topic]json.RawMessage {
	kept := make(map[Topic]json.RawMessage, len(topics))
	for _, t := range topics {
		if block, ok := indicators[t]; ok {
			kept[t] = block
		}
	}
	return kept
}

// rowLocation places a plan at the departement it belongs to.
func rowLocation(row planDatamodel.Row) *geo.Location {
	return &geo.Location{
		Type:        geo.LevelDepartement,
		Region:      &geo.Area{Code: row.RegionCode, Name: row.RegionName},
		Departement: &geo.Area{Code: row.Plan.DepartementCode, Name: row.DepartementName},
	}
}
