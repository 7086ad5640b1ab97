package shantytown

import (
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/unixtime"
	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
)

type RefView struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

type AreaView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type CityView struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Main *string `json:"main"`
}

type AuthorView struct {
	ID                       int64   `json:"id"`
	FirstName                string  `json:"firstName"`
	LastName                 string  `json:"lastName"`
	Position                 string  `json:"position,omitempty"`
	OrganizationID           int64   `json:"organizationId,omitempty"`
	Organization             string  `json:"organization,omitempty"`
	OrganizationAbbreviation *string `json:"organizationAbbreviation,omitempty"`
}

type CommentView struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Private     bool       `json:"private"`
	CreatedAt   float64    `json:"createdAt"`
	CreatedBy   AuthorView `json:"createdBy"`
}

type ClosingSolutionView struct {
	ID                 int64   `json:"id"`
	Label              string  `json:"label"`
	PeopleAffected     *int    `json:"peopleAffected"`
	HouseholdsAffected *int    `json:"householdsAffected"`
	Message            *string `json:"message"`
}

type ActionView struct {
	ID          int64    `json:"id"`
	Type        string   `json:"type"`
	Description *string  `json:"description"`
	StartedAt   float64  `json:"startedAt"`
	EndedAt     *float64 `json:"endedAt"`
}

// JusticeView groups the restricted columns. It is embedded by pointer so that a nil
// value removes the keys from the JSON document instead of rendering nulls.
type JusticeView struct {
	OwnerComplaint    *bool    `json:"ownerComplaint"`
	JusticeProcedure  *bool    `json:"justiceProcedure"`
	JusticeRendered   *bool    `json:"justiceRendered"`
	JusticeRenderedBy *string  `json:"justiceRenderedBy"`
	JusticeRenderedAt *float64 `json:"justiceRenderedAt"`
	JusticeChallenged *bool    `json:"justiceChallenged"`
	PoliceStatus      *string  `json:"policeStatus"`
	PoliceRequestedAt *float64 `json:"policeRequestedAt"`
	PoliceGrantedAt   *float64 `json:"policeGrantedAt"`
	Bailiff           *string  `json:"bailiff"`
}

type View struct {
	ID                int64                 `json:"id"`
	Name              *string               `json:"name"`
	Status            string                `json:"status"`
	ClosingContext    *string               `json:"closingContext"`
	Latitude          float64               `json:"latitude"`
	Longitude         float64               `json:"longitude"`
	Address           string                `json:"address"`
	AddressSimple     string                `json:"addressSimple"`
	AddressDetails    *string               `json:"addressDetails"`
	City              CityView              `json:"city"`
	EPCI              *AreaView             `json:"epci"`
	Departement       AreaView              `json:"departement"`
	Region            AreaView              `json:"region"`
	BuiltAt           *float64              `json:"builtAt"`
	DeclaredAt        *float64              `json:"declaredAt"`
	ClosedAt          *float64              `json:"closedAt"`
	FieldType         RefView               `json:"fieldType"`
	OwnerType         RefView               `json:"ownerType"`
	Owner             *string               `json:"owner"`
	CensusStatus      *string               `json:"censusStatus"`
	CensusConductedAt *float64              `json:"censusConductedAt"`
	CensusConductedBy *string               `json:"censusConductedBy"`
	PopulationTotal   *int                  `json:"populationTotal"`
	PopulationCouples *int                  `json:"populationCouples"`
	PopulationMinors  *int                  `json:"populationMinors"`
	ElectricityType   RefView               `json:"electricityType"`
	AccessToWater     *bool                 `json:"accessToWater"`
	TrashEvacuation   *bool                 `json:"trashEvacuation"`
	SocialOrigins     []RefView             `json:"socialOrigins"`
	ClosingSolutions  []ClosingSolutionView `json:"closingSolutions"`
	Comments          []CommentView         `json:"comments"`
	Actions           []ActionView          `json:"actions"`
	CreatedAt         float64               `json:"createdAt"`
	UpdatedAt         *float64              `json:"updatedAt"`
	*JusticeView
}

// Serialize projects a primary row into its public shape. Collections start empty and
// are filled by the aggregation. Restricted columns need perm.DataJustice.
func Serialize(row shantytownDatamodel.Row, perm permission.Permission) View {
	f := row.Fields
	v := View{
		ID:             row.ID,
		Name:           f.Name,
		Status:         f.Status,
		ClosingContext: f.ClosingContext,
		Latitude:       f.Latitude,
		Longitude:      f.Longitude,
		Address:        f.Address,
		AddressSimple:  simpleAddress(f.Address),
		AddressDetails: f.AddressDetails,
		City: CityView{
			Code: f.CityCode,
			Name: row.CityName,
			Main: row.CityMain,
		},
		Departement:       AreaView{Code: row.DepartementCode, Name: row.DepartementName},
		Region:            AreaView{Code: row.RegionCode, Name: row.RegionName},
		BuiltAt:           unixtime.Ptr(f.BuiltAt),
		DeclaredAt:        unixtime.Ptr(f.DeclaredAt),
		ClosedAt:          unixtime.Ptr(f.ClosedAt),
		FieldType:         RefView{ID: f.FieldTypeID, Label: row.FieldTypeLabel},
		OwnerType:         RefView{ID: f.OwnerTypeID, Label: row.OwnerTypeLabel},
		Owner:             f.Owner,
		CensusStatus:      f.CensusStatus,
		CensusConductedAt: unixtime.Ptr(f.CensusConductedAt),
		CensusConductedBy: f.CensusConductedBy,
		PopulationTotal:   f.PopulationTotal,
		PopulationCouples: f.PopulationCouples,
		PopulationMinors:  f.PopulationMinors,
		ElectricityType:   RefView{ID: f.ElectricityTypeID, Label: row.ElectricityTypeLabel},
		AccessToWater:     f.AccessToWater,
		TrashEvacuation:   f.TrashEvacuation,
		SocialOrigins:     []RefView{},
		ClosingSolutions:  []ClosingSolutionView{},
		Comments:          []CommentView{},
		Actions:           []ActionView{},
		CreatedAt:         unixtime.Seconds(f.CreatedAt),
		UpdatedAt:         unixtime.Ptr(f.UpdatedAt),
	}
	if row.EPCICode != nil {
		v.EPCI = &AreaView{Code: *row.EPCICode}
		if row.EPCIName != nil {
			v.EPCI.Name = *row.EPCIName
		}
	}

	if perm.DataJustice {
		v.JusticeView = &JusticeView{
			OwnerComplaint:    f.OwnerComplaint,
			JusticeProcedure:  f.JusticeProcedure,
			JusticeRendered:   f.JusticeRendered,
			JusticeRenderedBy: f.JusticeRenderedBy,
			JusticeRenderedAt: unixtime.Ptr(f.JusticeRenderedAt),
			JusticeChallenged: f.JusticeChallenged,
			PoliceStatus:      f.PoliceStatus,
			PoliceRequestedAt: unixtime.Ptr(f.PoliceRequestedAt),
			PoliceGrantedAt:   unixtime.Ptr(f.PoliceGrantedAt),
			Bailiff:           f.Bailiff,
		}
	}
	return v
}

func commentView(c shantytownDatamodel.CommentRow) CommentView {
	return CommentView{
		ID:          c.ID,
		Description: c.Description,
		Private:     c.Private,
		CreatedAt:   unixtime.Seconds(c.CreatedAt),
		CreatedBy: AuthorView{
			ID:                       c.CreatedBy,
			FirstName:                c.AuthorFirstName,
			LastName:                 c.AuthorLastName,
			Position:                 c.AuthorPosition,
			OrganizationID:           c.OrganizationID,
			Organization:             c.OrganizationName,
			OrganizationAbbreviation: c.OrganizationAbbreviation,
		},
	}
}

func closingSolutionView(c shantytownDatamodel.ClosingSolutionRow) ClosingSolutionView {
	return ClosingSolutionView{
		ID:                 c.ID,
		Label:              c.Label,
		PeopleAffected:     c.PeopleAffected,
		HouseholdsAffected: c.HouseholdsAffected,
		Message:            c.Message,
	}
}

func actionView(a shantytownDatamodel.ActionRow) ActionView {
	return ActionView{
		ID:          a.ID,
		Type:        a.Type,
		Description: a.Description,
		StartedAt:   unixtime.Seconds(a.StartedAt),
		EndedAt:     unixtime.Ptr(a.EndedAt),
	}
}
