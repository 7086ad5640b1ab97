package shantytown

import (
	"strings"
	"time"

	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
)

type Status string

const (
	StatusOpen            Status = "open"
	StatusClosedByJustice Status = "closed_by_justice"
	StatusClosedByAdmin   Status = "closed_by_admin"
	StatusOther           Status = "other"
	StatusUnknown         Status = "unknown"
	StatusResorbed        Status = "resorbed"
)

var statusLabels = map[string]string{
	string(StatusOpen):            "ouvert",
	string(StatusClosedByJustice): "fermé suite à une décision de justice",
	string(StatusClosedByAdmin):   "fermé suite à une décision administrative",
	string(StatusOther):           "autre",
	string(StatusUnknown):         "raison inconnue",
	string(StatusResorbed):        "résorbé",
}

var censusStatusLabels = map[string]string{
	"none":      "non prévu",
	"scheduled": "prévu",
	"done":      "réalisé",
}

var policeStatusLabels = map[string]string{
	"none":      "non demandé",
	"requested": "demandé",
	"granted":   "obtenu",
}

// StatusLabel returns the French label of a status keyword.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// CensusStatusLabel and PoliceStatusLabel return "" for an unset status.
func CensusStatusLabel(status *string) string {
	return optionalLabel(censusStatusLabels, status)
}

func PoliceStatusLabel(status *string) string {
	return optionalLabel(policeStatusLabels, status)
}

func optionalLabel(labels map[string]string, status *string) string {
	if status == nil {
		return ""
	}
	if label, ok := labels[*status]; ok {
		return label
	}
	return *status
}

// Snapshot is a shantytown as it was at one point in time, live or archived.
type Snapshot struct {
	ShantytownID    int64
	Fields          shantytownDatamodel.Fields
	FieldType       *string
	OwnerType       *string
	ElectricityType *string
	SocialOrigins   []string
	AuthorFirstName *string
	AuthorLastName  *string
}

// At is the moment the snapshot became current.
func (s Snapshot) At() time.Time {
	if s.Fields.UpdatedAt != nil {
		return *s.Fields.UpdatedAt
	}
	return s.Fields.CreatedAt
}

// AuthorID is whoever produced this version of the row.
func (s Snapshot) AuthorID() int64 {
	if s.Fields.UpdatedBy != nil {
		return *s.Fields.UpdatedBy
	}
	return s.Fields.CreatedBy
}

func snapshotFromRow(row shantytownDatamodel.Row, origins []string) Snapshot {
	return Snapshot{
		ShantytownID:    row.ID,
		Fields:          row.Fields,
		FieldType:       &row.FieldTypeLabel,
		OwnerType:       &row.OwnerTypeLabel,
		ElectricityType: &row.ElectricityTypeLabel,
		SocialOrigins:   origins,
		AuthorFirstName: row.AuthorFirstName,
		AuthorLastName:  row.AuthorLastName,
	}
}

func snapshotFromHistory(row shantytownDatamodel.HistoryRow, origins []string) Snapshot {
	return Snapshot{
		ShantytownID:    row.ShantytownID,
		Fields:          row.Fields,
		FieldType:       row.FieldTypeLabel,
		OwnerType:       row.OwnerTypeLabel,
		ElectricityType: row.ElectricityTypeLabel,
		SocialOrigins:   origins,
		AuthorFirstName: row.AuthorFirstName,
		AuthorLastName:  row.AuthorLastName,
	}
}

// rowLocation rebuilds the geo chain of the city a row is attached to.
func rowLocation(row shantytownDatamodel.Row) *geo.Location {
	loc := &geo.Location{
		Type:        geo.LevelCity,
		Region:      &geo.Area{Code: row.RegionCode, Name: row.RegionName},
		Departement: &geo.Area{Code: row.DepartementCode, Name: row.DepartementName},
		City:        &geo.Area{Code: row.Fields.CityCode, Name: row.CityName},
	}
	if row.EPCICode != nil {
		loc.EPCI = &geo.Area{Code: *row.EPCICode}
		if row.EPCIName != nil {
			loc.EPCI.Name = *row.EPCIName
		}
	}
	return loc
}

// simpleAddress drops the postcode and city that usually trail a full address.
func simpleAddress(address string) string {
	if i := strings.Index(address, ","); i >= 0 {
		address = address[:i]
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "Pas d'adresse précise"
	}
	return address
}
