package shantytown

import (
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/validation"
	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
)

// ShantytownDTO is the full editable state of a shantytown, used by create and update.
type ShantytownDTO struct {
	Name              *string    `json:"name" validate:"omitempty,max=255"`
	Latitude          float64    `json:"latitude" validate:"required,latitude"`
	Longitude         float64    `json:"longitude" validate:"required,longitude"`
	Address           string     `json:"address" validate:"required,max=500"`
	AddressDetails    *string    `json:"addressDetails"`
	CityCode          string     `json:"citycode" validate:"required,len=5"`
	FieldType         int64      `json:"fieldType" validate:"required,gt=0"`
	OwnerType         int64      `json:"ownerType" validate:"required,gt=0"`
	Owner             *string    `json:"owner"`
	BuiltAt           *time.Time `json:"builtAt"`
	DeclaredAt        *time.Time `json:"declaredAt"`
	CensusStatus      *string    `json:"censusStatus" validate:"omitempty,census_status"`
	CensusConductedAt *time.Time `json:"censusConductedAt"`
	CensusConductedBy *string    `json:"censusConductedBy"`
	PopulationTotal   *int       `json:"populationTotal" validate:"omitempty,min=0"`
	PopulationCouples *int       `json:"populationCouples" validate:"omitempty,min=0"`
	PopulationMinors  *int       `json:"populationMinors" validate:"omitempty,min=0"`
	SocialOrigins     []int64    `json:"socialOrigins" validate:"dive,gt=0"`
	ElectricityType   int64      `json:"electricityType" validate:"required,gt=0"`
	AccessToWater     *bool      `json:"accessToWater"`
	TrashEvacuation   *bool      `json:"trashEvacuation"`
	OwnerComplaint    *bool      `json:"ownerComplaint"`
	JusticeProcedure  *bool      `json:"justiceProcedure"`
	JusticeRendered   *bool      `json:"justiceRendered"`
	JusticeRenderedBy *string    `json:"justiceRenderedBy"`
	JusticeRenderedAt *time.Time `json:"justiceRenderedAt"`
	JusticeChallenged *bool      `json:"justiceChallenged"`
	PoliceStatus      *string    `json:"policeStatus" validate:"omitempty,police_status"`
	PoliceRequestedAt *time.Time `json:"policeRequestedAt"`
	PoliceGrantedAt   *time.Time `json:"policeGrantedAt"`
	Bailiff           *string    `json:"bailiff"`
}

// Validate reports every tag and business rule failure at once.
func (d ShantytownDTO) Validate() *internal.AppError {
	v := validation.NewValidator().Struct(d)
	v.Field("builtAt", d.BuiltAt).NotFuture()
	v.Field("declaredAt", d.DeclaredAt).
		NotFuture().
		NotBefore(d.BuiltAt, "La date de signalement ne peut pas être antérieure à la date d'installation")
	census := v.Field("censusConductedAt", d.CensusConductedAt).NotFuture()
	if d.CensusStatus != nil && (*d.CensusStatus == "scheduled" || *d.CensusStatus == "done") {
		census.Required()
	}
	v.Field("justiceRenderedAt", d.JusticeRenderedAt).NotFuture()
	v.Field("policeGrantedAt", d.PoliceGrantedAt).
		NotBefore(d.PoliceRequestedAt, "La date d'octroi ne peut pas être antérieure à la date de demande")
	v.Field("populationMinors", d.PopulationMinors).Custom(func(value interface{}) string {
		minors, _ := value.(*int)
		if minors != nil && d.PopulationTotal != nil && *minors > *d.PopulationTotal {
			return "Le nombre de mineurs ne peut pas dépasser le nombre de personnes"
		}
		return ""
	})
	return v.Validate()
}

// apply copies the editable state onto f. Justice columns are only written when the
// author may see them.
func (d ShantytownDTO) apply(f *shantytownDatamodel.Fields, withJustice bool) {
	f.Name = d.Name
	f.Latitude = d.Latitude
	f.Longitude = d.Longitude
	f.Address = d.Address
	f.AddressDetails = d.AddressDetails
	f.CityCode = d.CityCode
	f.FieldTypeID = d.FieldType
	f.OwnerTypeID = d.OwnerType
	f.Owner = d.Owner
	f.BuiltAt = d.BuiltAt
	f.DeclaredAt = d.DeclaredAt
	f.CensusStatus = d.CensusStatus
	f.CensusConductedAt = d.CensusConductedAt
	f.CensusConductedBy = d.CensusConductedBy
	f.PopulationTotal = d.PopulationTotal
	f.PopulationCouples = d.PopulationCouples
	f.PopulationMinors = d.PopulationMinors
	f.ElectricityTypeID = d.ElectricityType
	f.AccessToWater = d.AccessToWater
	f.TrashEvacuation = d.TrashEvacuation

	if !withJustice {
		return
	}
	f.OwnerComplaint = d.OwnerComplaint
	f.JusticeProcedure = d.JusticeProcedure
	f.JusticeRendered = d.JusticeRendered
	f.JusticeRenderedBy = d.JusticeRenderedBy
	f.JusticeRenderedAt = d.JusticeRenderedAt
	f.JusticeChallenged = d.JusticeChallenged
	f.PoliceStatus = d.PoliceStatus
	f.PoliceRequestedAt = d.PoliceRequestedAt
	f.PoliceGrantedAt = d.PoliceGrantedAt
	f.Bailiff = d.Bailiff
}

type ClosingSolutionDTO struct {
	ID                 int64   `json:"id" validate:"required,gt=0"`
	PeopleAffected     *int    `json:"peopleAffected" validate:"omitempty,min=0"`
	HouseholdsAffected *int    `json:"householdsAffected" validate:"omitempty,min=0"`
	Message            *string `json:"message"`
}

type CloseDTO struct {
	Status           string               `json:"status" validate:"required,shantytown_status,ne=open"`
	ClosedAt         *time.Time           `json:"closedAt"`
	ClosingContext   *string              `json:"closingContext"`
	ClosingSolutions []ClosingSolutionDTO `json:"closingSolutions" validate:"dive"`
}

func (d CloseDTO) Validate(builtAt *time.Time) *internal.AppError {
	v := validation.NewValidator().Struct(d)
	v.Field("closedAt", d.ClosedAt).
		Required().
		NotFuture().
		NotBefore(builtAt, "La date de fermeture ne peut pas être antérieure à la date d'installation")
	return v.Validate()
}

func (d CloseDTO) solutions(shantytownID int64) []shantytownDatamodel.ShantytownClosingSolution {
	out := make([]shantytownDatamodel.ShantytownClosingSolution, 0, len(d.ClosingSolutions))
	for _, s := range d.ClosingSolutions {
		out = append(out, shantytownDatamodel.ShantytownClosingSolution{
			ShantytownID:       shantytownID,
			ClosingSolutionID:  s.ID,
			PeopleAffected:     s.PeopleAffected,
			HouseholdsAffected: s.HouseholdsAffected,
			Message:            s.Message,
		})
	}
	return out
}

type CommentDTO struct {
	Description string `json:"description" validate:"required,max=5000"`
	Private     bool   `json:"private"`
}

type ShantytownsResponse struct {
	Shantytowns []View `json:"shantytowns"`
}

type ChangelogResponse struct {
	Changelog []ChangelogEntry `json:"changelog"`
}
