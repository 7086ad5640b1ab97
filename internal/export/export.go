// Package export renders shantytown lists as spreadsheets.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
)

const sheetName = "Sites"

// Lister is the part of the shantytown service the export reads from.
type Lister interface {
	FindAll(ctx context.Context, viewer *user.User, filters []query.Filter, feature permission.Feature) ([]shantytown.View, error)
}

type column struct {
	header  string
	width   float64
	justice bool
	value   func(v shantytown.View) interface{}
}

var columns = []column{
	{header: "Identifiant", width: 12, value: func(v shantytown.View) interface{} { return v.ID }},
	{header: "Nom du site", width: 30, value: func(v shantytown.View) interface{} { return deref(v.Name) }},
	{header: "Département", width: 25, value: func(v shantytown.View) interface{} {
		return v.Departement.Code + " - " + v.Departement.Name
	}},
	{header: "Commune", width: 25, value: func(v shantytown.View) interface{} { return v.City.Name }},
	{header: "Adresse", width: 40, value: func(v shantytown.View) interface{} { return v.Address }},
	{header: "Statut", width: 25, value: func(v shantytown.View) interface{} { return shantytown.StatusLabel(v.Status) }},
	{header: "Date d'installation", width: 18, value: func(v shantytown.View) interface{} { return date(v.BuiltAt) }},
	{header: "Date de signalement", width: 18, value: func(v shantytown.View) interface{} { return date(v.DeclaredAt) }},
	{header: "Date de fermeture", width: 18, value: func(v shantytown.View) interface{} { return date(v.ClosedAt) }},
	{header: "Type de site", width: 18, value: func(v shantytown.View) interface{} { return v.FieldType.Label }},
	{header: "Type de propriétaire", width: 18, value: func(v shantytown.View) interface{} { return v.OwnerType.Label }},
	{header: "Statut du diagnostic", width: 18, value: func(v shantytown.View) interface{} {
		return shantytown.CensusStatusLabel(v.CensusStatus)
	}},
	{header: "Nombre de personnes", width: 14, value: func(v shantytown.View) interface{} { return count(v.PopulationTotal) }},
	{header: "Nombre de ménages", width: 14, value: func(v shantytown.View) interface{} { return count(v.PopulationCouples) }},
	{header: "Nombre de mineurs", width: 14, value: func(v shantytown.View) interface{} { return count(v.PopulationMinors) }},
	{header: "Origines", width: 30, value: func(v shantytown.View) interface{} {
		labels := make([]string, 0, len(v.SocialOrigins))
		for _, o := range v.SocialOrigins {
			labels = append(labels, o.Label)
		}
		return strings.Join(labels, ", ")
	}},
	{header: "Accès à l'électricité", width: 18, value: func(v shantytown.View) interface{} { return v.ElectricityType.Label }},
	{header: "Accès à l'eau", width: 14, value: func(v shantytown.View) interface{} { return yesNo(v.AccessToWater) }},
	{header: "Évacuation des déchets", width: 14, value: func(v shantytown.View) interface{} { return yesNo(v.TrashEvacuation) }},
	{header: "Plainte du propriétaire", width: 14, justice: true, value: func(v shantytown.View) interface{} {
		return yesNo(v.OwnerComplaint)
	}},
	{header: "Procédure judiciaire", width: 14, justice: true, value: func(v shantytown.View) interface{} {
		return yesNo(v.JusticeProcedure)
	}},
	{header: "Décision de justice", width: 14, justice: true, value: func(v shantytown.View) interface{} {
		return yesNo(v.JusticeRendered)
	}},
	{header: "Concours de la force publique", width: 18, justice: true, value: func(v shantytown.View) interface{} {
		return shantytown.PoliceStatusLabel(v.PoliceStatus)
	}},
	{header: "Huissier", width: 20, justice: true, value: func(v shantytown.View) interface{} { return deref(v.Bailiff) }},
}

type Service struct {
	towns  Lister
	logger *slog.Logger
	now    func() time.Time
}

func NewService(towns Lister, logger *slog.Logger) *Service {
	return &Service{towns: towns, logger: logger, now: time.Now}
}

// Workbook is a rendered export. Callers must Close it.
type Workbook struct {
	*excelize.File
	Filename string
}

// Shantytowns renders every shantytown the viewer may export. Justice columns are
// included only when the export permission carries them.
func (s *Service) Shantytowns(ctx context.Context, viewer *user.User, filters []query.Filter) (*Workbook, error) {
	perm, ok := viewer.Permissions.Get(permission.EntityShantytown, permission.FeatureExport)
	if !ok || !perm.Allowed {
		return nil, internal.NewPermissionDeniedError("shantytown.export is not allowed")
	}

	towns, err := s.towns.FindAll(ctx, viewer, filters, permission.FeatureExport)
	if err != nil {
		return nil, err
	}

	cols := make([]column, 0, len(columns))
	for _, c := range columns {
		if c.justice && !perm.DataJustice {
			continue
		}
		cols = append(cols, c)
	}

	f, err := render(cols, towns)
	if err != nil {
		s.logger.Error("failed to render export", "error", err)
		return nil, internal.NewInternalError("failed to render export", err)
	}
	s.logger.Info("shantytowns exported", "rows", len(towns), "user_id", viewer.ID)
	return &Workbook{
		File:     f,
		Filename: fmt.Sprintf("sites-%s.xlsx", s.now().Format("2006-01-02")),
	}, nil
}

func render(cols []column, towns []shantytown.View) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, closeOnError(f, err)
	}

	header := make([]interface{}, 0, len(cols))
	for i, c := range cols {
		header = append(header, c.header)
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, closeOnError(f, err)
		}
		if err := f.SetColWidth(sheetName, name, name, c.width); err != nil {
			return nil, closeOnError(f, err)
		}
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, closeOnError(f, err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "center"},
	})
	if err != nil {
		return nil, closeOnError(f, err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return nil, closeOnError(f, err)
	}
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, style); err != nil {
		return nil, closeOnError(f, err)
	}

	for i, town := range towns {
		row := make([]interface{}, 0, len(cols))
		for _, c := range cols {
			row = append(row, c.value(town))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, closeOnError(f, err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, closeOnError(f, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, closeOnError(f, err)
	}
	if err := f.AutoFilter(sheetName, "A1:"+lastHeader, nil); err != nil {
		return nil, closeOnError(f, err)
	}
	return f, nil
}

func closeOnError(f *excelize.File, err error) error {
	_ = f.Close()
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func count(n *int) interface{} {
	if n == nil {
		return ""
	}
	return *n
}

func yesNo(b *bool) string {
	switch {
	case b == nil:
		return ""
	case *b:
		return "oui"
	default:
		return "non"
	}
}

func date(seconds *float64) string {
	if seconds == nil {
		return ""
	}
	return time.UnixMilli(int64(*seconds * 1000)).UTC().Format("02/01/2006")
}
