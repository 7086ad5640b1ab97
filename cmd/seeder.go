package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	geoDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/geo"
	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
	userDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/user"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

const (
	roleNationalAdmin = "national_admin"
	roleLocalAdmin    = "local_admin"
	roleCollaborator  = "collaborator"
	roleAssociation   = "association"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with reference and sample data",
	Long:  `Seed reference tables, role permissions and two sample accounts for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, gdb, err := initDB(cfg.Database, logger.LoggerWrapper())
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		err = gdb.Transaction(func(tx *gorm.DB) error {
			if clearData {
				if err := clearSeeded(tx); err != nil {
					return err
				}
			}
			steps := []struct {
				name string
				run  func(*gorm.DB) error
			}{
				{"geography", seedGeo},
				{"reference labels", seedReferences},
				{"role permissions", seedRolePermissions},
				{"accounts", func(tx *gorm.DB) error { return seedAccounts(tx, cfg.Security.BCryptCost) }},
			}
			for _, step := range steps {
				if err := step.run(tx); err != nil {
					return fmt.Errorf("seed %s: %w", step.name, err)
				}
				fmt.Println("Seeded", step.name)
			}
			return resetSequences(tx)
		})
		if err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
	},
}

func insertIgnore[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func clearSeeded(tx *gorm.DB) error {
	return tx.Exec(`TRUNCATE
		plan_states, plan_finances, plan_shantytowns, plan_operators, plan_managers, plans,
		shantytown_actions, shantytown_comments, shantytown_closing_solutions,
		shantytown_origins_history, shantytown_origins, shantytowns_history, shantytowns,
		user_accesses, organization_permissions, role_permissions, users, organizations
		RESTART IDENTITY CASCADE`).Error
}

func seedGeo(tx *gorm.DB) error {
	if err := insertIgnore(tx, []geoDatamodel.Region{
		{Code: "11", Name: "Île-de-France"},
		{Code: "84", Name: "Auvergne-Rhône-Alpes"},
	}); err != nil {
		return err
	}
	if err := insertIgnore(tx, []geoDatamodel.Departement{
		{Code: "93", Name: "Seine-Saint-Denis", RegionCode: "11"},
		{Code: "75", Name: "Paris", RegionCode: "11"},
		{Code: "69", Name: "Rhône", RegionCode: "84"},
	}); err != nil {
		return err
	}
	if err := insertIgnore(tx, []geoDatamodel.EPCI{
		{Code: "200054781", Name: "Métropole du Grand Paris", DepartementCode: "75"},
		{Code: "200046977", Name: "Métropole de Lyon", DepartementCode: "69"},
	}); err != nil {
		return err
	}
	return insertIgnore(tx, []geoDatamodel.City{
		{Code: "75056", Name: "Paris", EPCICode: "200054781", DepartementCode: "75"},
		{Code: "93001", Name: "Aubervilliers", EPCICode: "200054781", DepartementCode: "93"},
		{Code: "93066", Name: "Saint-Denis", EPCICode: "200054781", DepartementCode: "93"},
		{Code: "69123", Name: "Lyon", EPCICode: "200046977", DepartementCode: "69"},
	})
}

func seedReferences(tx *gorm.DB) error {
	fieldTypes := []shantytownDatamodel.FieldType{{ID: 1, Label: "Inconnu"}, {ID: 2, Label: "Immeuble bâti"}, {ID: 3, Label: "Terrain"}}
	ownerTypes := []shantytownDatamodel.OwnerType{{ID: 1, Label: "Inconnu"}, {ID: 2, Label: "Public"}, {ID: 3, Label: "Particulier"}}
	electricity := []shantytownDatamodel.ElectricityType{{ID: 1, Label: "Inconnu"}, {ID: 2, Label: "Non"}, {ID: 3, Label: "Oui"}}
	origins := []shantytownDatamodel.SocialOrigin{{ID: 1, Label: "Ressortissants français"}, {ID: 2, Label: "Ressortissants européens"}, {ID: 3, Label: "Ressortissants extracommunautaires"}}
	solutions := []shantytownDatamodel.ClosingSolution{
		{ID: 1, Label: "Mise à l'abri / hébergement d'urgence"},
		{ID: 2, Label: "Logement"},
		{ID: 3, Label: "Dispositif insertion"},
		{ID: 4, Label: "Autre"},
	}

	if err := insertIgnore(tx, fieldTypes); err != nil {
		return err
	}
	if err := insertIgnore(tx, ownerTypes); err != nil {
		return err
	}
	if err := insertIgnore(tx, electricity); err != nil {
		return err
	}
	if err := insertIgnore(tx, origins); err != nil {
		return err
	}
	return insertIgnore(tx, solutions)
}

func grant(role string, level permission.GeographicLevel, justice bool, entity permission.Entity, features ...permission.Feature) []userDatamodel.RolePermission {
	rows := make([]userDatamodel.RolePermission, 0, len(features))
	for _, f := range features {
		rows = append(rows, userDatamodel.RolePermission{
			Role:            role,
			Entity:          string(entity),
			Feature:         string(f),
			Allowed:         true,
			GeographicLevel: level.String(),
			DataJustice:     justice,
		})
	}
	return rows
}

func seedRolePermissions(tx *gorm.DB) error {
	townAll := []permission.Feature{
		permission.FeatureList, permission.FeatureRead, permission.FeatureCreate, permission.FeatureUpdate,
		permission.FeatureClose, permission.FeatureDelete, permission.FeatureExport,
	}
	planAll := []permission.Feature{
		permission.FeatureList, permission.FeatureRead, permission.FeatureCreate,
		permission.FeatureUpdate, permission.FeatureClose,
	}
	commentAll := []permission.Feature{permission.FeatureList, permission.FeatureListPrivate, permission.FeatureCreate}

	var rows []userDatamodel.RolePermission
	rows = append(rows, grant(roleNationalAdmin, permission.LevelNation, true, permission.EntityShantytown, townAll...)...)
	rows = append(rows, grant(roleNationalAdmin, permission.LevelNation, false, permission.EntityShantytownComment, commentAll...)...)
	rows = append(rows, grant(roleNationalAdmin, permission.LevelNation, false, permission.EntityPlan, planAll...)...)
	rows = append(rows, grant(roleNationalAdmin, permission.LevelNation, false, permission.EntityUser,
		permission.FeatureList, permission.FeatureRead, permission.FeatureActivate)...)
	rows = append(rows, grant(roleNationalAdmin, permission.LevelNation, false, permission.EntityStats, permission.FeatureRead)...)

	rows = append(rows, grant(roleLocalAdmin, permission.LevelLocal, true, permission.EntityShantytown, townAll...)...)
	rows = append(rows, grant(roleLocalAdmin, permission.LevelLocal, false, permission.EntityShantytownComment, commentAll...)...)
	rows = append(rows, grant(roleLocalAdmin, permission.LevelLocal, false, permission.EntityPlan, planAll...)...)
	rows = append(rows, grant(roleLocalAdmin, permission.LevelLocal, false, permission.EntityUser,
		permission.FeatureList, permission.FeatureRead, permission.FeatureActivate)...)
	rows = append(rows, grant(roleLocalAdmin, permission.LevelLocal, false, permission.EntityStats, permission.FeatureRead)...)

	rows = append(rows, grant(roleCollaborator, permission.LevelLocal, false, permission.EntityShantytown,
		permission.FeatureList, permission.FeatureRead, permission.FeatureCreate, permission.FeatureUpdate, permission.FeatureExport)...)
	rows = append(rows, grant(roleCollaborator, permission.LevelLocal, false, permission.EntityShantytownComment,
		permission.FeatureList, permission.FeatureCreate)...)
	rows = append(rows, grant(roleCollaborator, permission.LevelLocal, false, permission.EntityPlan,
		permission.FeatureList, permission.FeatureRead)...)
	rows = append(rows, grant(roleCollaborator, permission.LevelLocal, false, permission.EntityStats, permission.FeatureRead)...)

	rows = append(rows, grant(roleAssociation, permission.LevelNation, false, permission.EntityShantytown,
		permission.FeatureList, permission.FeatureRead)...)
	rows = append(rows, grant(roleAssociation, permission.LevelNation, false, permission.EntityShantytownComment,
		permission.FeatureList, permission.FeatureCreate)...)
	rows = append(rows, grant(roleAssociation, permission.LevelOwn, false, permission.EntityPlan,
		permission.FeatureList, permission.FeatureRead, permission.FeatureUpdate)...)

	return insertIgnore(tx, rows)
}

func seedAccounts(tx *gorm.DB, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	dep := "93"
	region := "11"
	now := time.Now()
	orgs := []userDatamodel.Organization{
		{ID: 1, Name: "Délégation interministérielle", Abbreviation: ptr("DIHAL"), Type: "administration", LocationType: "nation", Active: true, CreatedAt: now},
		{ID: 2, Name: "Préfecture de Seine-Saint-Denis", Type: "prefecture", LocationType: "departement", RegionCode: &region, DepartementCode: &dep, Active: true, CreatedAt: now},
	}
	if err := insertIgnore(tx, orgs); err != nil {
		return err
	}

	users := []userDatamodel.User{
		{FirstName: "Admin", LastName: "National", Email: "admin@resorption.local", PasswordHash: string(hash), Role: roleNationalAdmin, Status: "active", OrganizationID: 1, CreatedAt: now, UpdatedAt: now},
		{FirstName: "Camille", LastName: "Prefecture", Email: "pref93@resorption.local", PasswordHash: string(hash), Role: roleLocalAdmin, Status: "active", OrganizationID: 2, CreatedAt: now, UpdatedAt: now},
	}
	return insertIgnore(tx, users)
}

// resetSequences moves serial counters past the explicit ids inserted above.
func resetSequences(tx *gorm.DB) error {
	for _, table := range []string{
		"organizations", "field_types", "owner_types", "electricity_types", "social_origins", "closing_solutions",
	} {
		q := fmt.Sprintf("SELECT setval('%[1]s_id_seq', (SELECT COALESCE(MAX(id), 1) FROM %[1]s))", table)
		if err := tx.Exec(q).Error; err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
