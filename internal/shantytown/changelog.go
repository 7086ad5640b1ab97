package shantytown

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/unixtime"
)

var frenchMonths = [...]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Aout", "Septembre", "Octobre", "Novembre", "Décembre",
}

func formatText(v *string) string {
	if v == nil || *v == "" {
		return "non renseigné"
	}
	return *v
}

func formatInt(v *int) string {
	if v == nil {
		return "non renseigné"
	}
	return strconv.Itoa(*v)
}

func formatDate(v *time.Time) string {
	if v == nil {
		return "non renseignée"
	}
	return fmt.Sprintf("%02d %s %d", v.Day(), frenchMonths[v.Month()-1], v.Year())
}

func formatTriState(v *bool) string {
	switch {
	case v == nil:
		return "inconnu"
	case *v:
		return "oui"
	default:
		return "non"
	}
}

func formatEnum(labels map[string]string, nilLabel string) func(*string) string {
	return func(v *string) string {
		if v == nil || *v == "" {
			return nilLabel
		}
		if label, ok := labels[*v]; ok {
			return label
		}
		return *v
	}
}

// formatList renders "a, b, et c".
func formatList(items []string) string {
	switch len(items) {
	case 0:
		return "non renseignées"
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", et " + items[len(items)-1]
	}
}

var (
	formatStatus       = formatEnum(statusLabels, "non renseigné")
	formatCensusStatus = formatEnum(censusStatusLabels, "inconnu")
	formatPoliceStatus = formatEnum(policeStatusLabels, "inconnu")
)

type trackedField struct {
	key     string
	label   string
	justice bool
	format  func(s *Snapshot) string
}

// trackedFields is the ordered list of historized fields. Coordinates are left out.
var trackedFields = []trackedField{
	{key: "name", label: "Appellation du site", format: func(s *Snapshot) string { return formatText(s.Fields.Name) }},
	{key: "builtAt", label: "Date d'installation", format: func(s *Snapshot) string { return formatDate(s.Fields.BuiltAt) }},
	{key: "declaredAt", label: "Date de signalement", format: func(s *Snapshot) string { return formatDate(s.Fields.DeclaredAt) }},
	{key: "address", label: "Adresse", format: func(s *Snapshot) string { return formatText(&s.Fields.Address) }},
	{key: "addressDetails", label: "Informations d'accès", format: func(s *Snapshot) string { return formatText(s.Fields.AddressDetails) }},
	{key: "fieldType", label: "Type de site", format: func(s *Snapshot) string { return formatText(s.FieldType) }},
	{key: "ownerType", label: "Type de propriétaire", format: func(s *Snapshot) string { return formatText(s.OwnerType) }},
	{key: "owner", label: "Propriétaire", format: func(s *Snapshot) string { return formatText(s.Fields.Owner) }},
	{key: "censusStatus", label: "Statut du diagnostic", format: func(s *Snapshot) string { return formatCensusStatus(s.Fields.CensusStatus) }},
	{key: "censusConductedAt", label: "Date du diagnostic", format: func(s *Snapshot) string { return formatDate(s.Fields.CensusConductedAt) }},
	{key: "censusConductedBy", label: "Service en charge du diagnostic", format: func(s *Snapshot) string { return formatText(s.Fields.CensusConductedBy) }},
	{key: "populationTotal", label: "Nombre de personnes", format: func(s *Snapshot) string { return formatInt(s.Fields.PopulationTotal) }},
	{key: "populationCouples", label: "Nombre de ménages", format: func(s *Snapshot) string { return formatInt(s.Fields.PopulationCouples) }},
	{key: "populationMinors", label: "Nombre de mineurs", format: func(s *Snapshot) string { return formatInt(s.Fields.PopulationMinors) }},
	{key: "socialOrigins", label: "Origines", format: func(s *Snapshot) string { return formatList(s.SocialOrigins) }},
	{key: "electricityType", label: "Accès à l'électricité", format: func(s *Snapshot) string { return formatText(s.ElectricityType) }},
	{key: "accessToWater", label: "Accès à l'eau", format: func(s *Snapshot) string { return formatTriState(s.Fields.AccessToWater) }},
	{key: "trashEvacuation", label: "Évacuation des déchets", format: func(s *Snapshot) string { return formatTriState(s.Fields.TrashEvacuation) }},
	{key: "ownerComplaint", label: "Dépôt de plainte par le propriétaire", justice: true, format: func(s *Snapshot) string { return formatTriState(s.Fields.OwnerComplaint) }},
	{key: "justiceProcedure", label: "Existence d'une procédure judiciaire", justice: true, format: func(s *Snapshot) string { return formatTriState(s.Fields.JusticeProcedure) }},
	{key: "justiceRendered", label: "Décision de justice rendue", justice: true, format: func(s *Snapshot) string { return formatTriState(s.Fields.JusticeRendered) }},
	{key: "justiceRenderedBy", label: "Origine de la décision", justice: true, format: func(s *Snapshot) string { return formatText(s.Fields.JusticeRenderedBy) }},
	{key: "justiceRenderedAt", label: "Date de la décision", justice: true, format: func(s *Snapshot) string { return formatDate(s.Fields.JusticeRenderedAt) }},
	{key: "justiceChallenged", label: "Contentieux relatif à la décision de justice", justice: true, format: func(s *Snapshot) string { return formatTriState(s.Fields.JusticeChallenged) }},
	{key: "policeStatus", label: "Concours de la force publique", justice: true, format: func(s *Snapshot) string { return formatPoliceStatus(s.Fields.PoliceStatus) }},
	{key: "policeRequestedAt", label: "Date de la demande du CFP", justice: true, format: func(s *Snapshot) string { return formatDate(s.Fields.PoliceRequestedAt) }},
	{key: "policeGrantedAt", label: "Date d'octroi du CFP", justice: true, format: func(s *Snapshot) string { return formatDate(s.Fields.PoliceGrantedAt) }},
	{key: "bailiff", label: "Nom de l'étude d'huissiers", justice: true, format: func(s *Snapshot) string { return formatText(s.Fields.Bailiff) }},
	{key: "status", label: "Statut", format: func(s *Snapshot) string { return formatStatus(&s.Fields.Status) }},
	{key: "closedAt", label: "Date de fermeture", format: func(s *Snapshot) string { return formatDate(s.Fields.ClosedAt) }},
}

type FieldDiff struct {
	FieldKey string `json:"fieldKey"`
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

type ChangelogEntry struct {
	Author AuthorView  `json:"author"`
	Date   float64     `json:"date"`
	Diff   []FieldDiff `json:"diff"`
}

// Diff lists the tracked fields whose formatted value differs between prev and cur.
func Diff(prev, cur *Snapshot, withJustice bool) []FieldDiff {
	var diffs []FieldDiff
	for _, f := range trackedFields {
		if f.justice && !withJustice {
			continue
		}
		oldValue, newValue := f.format(prev), f.format(cur)
		if oldValue == newValue {
			continue
		}
		diffs = append(diffs, FieldDiff{
			FieldKey: f.key,
			Field:    f.label,
			OldValue: oldValue,
			NewValue: newValue,
		})
	}
	return diffs
}

// Changelog compares every consecutive pair of versions, oldest to newest, and returns
// the non-empty diffs newest first. current is the live row; it is ignored when nil or
// when it belongs to another shantytown than the last archived version.
func Changelog(history []Snapshot, current *Snapshot, withJustice bool) []ChangelogEntry {
	versions := history
	if current != nil && (len(history) == 0 || history[len(history)-1].ShantytownID == current.ShantytownID) {
		versions = append(versions[:len(versions):len(versions)], *current)
	}

	entries := make([]ChangelogEntry, 0, len(versions))
	for i := len(versions) - 1; i > 0; i-- {
		prev, cur := &versions[i-1], &versions[i]
		diff := Diff(prev, cur, withJustice)
		if len(diff) == 0 {
			continue
		}
		entries = append(entries, ChangelogEntry{
			Author: AuthorView{
				ID:        cur.AuthorID(),
				FirstName: deref(cur.AuthorFirstName),
				LastName:  deref(cur.AuthorLastName),
			},
			Date: unixtime.Seconds(cur.At()),
			Diff: diff,
		})
	}
	return entries
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
