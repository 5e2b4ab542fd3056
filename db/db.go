package db

import (
	"os"
	"path/filepath"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"sarthi/catalog"
	"sarthi/config"
	"sarthi/models"
)

// ActiveGiverIndex enforces at most one active reflection per giver.
const ActiveGiverIndex = "ux_reflections_active_giver"

var foreignKeys = []struct {
	model       interface{}
	field, dest string
}{
	{&models.Reflection{}, "stage_no", "stages_dict(stage_no)"},
	{&models.Reflection{}, "category_no", "category_dict(category_no)"},
	{&models.Reflection{}, "giver_user_id", "users(user_id)"},
	{&models.Message{}, "reflection_id", "reflections(reflection_id)"},
	{&models.Message{}, "stage_no", "stages_dict(stage_no)"},
	{&models.Alert{}, "message_id", "messages(message_id)"},
}

var legacyNameConstraints = []struct{ table, name string }{
	{"stages_dict", "stages_dict_stage_name_key"},
	{"category_dict", "category_dict_category_name_key"},
}

// Connect abre conexão com DB (sqlite3 por padrão).
func Connect(conf config.Configuration) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch conf.Database {
	case "postgres", "postgresql":
		log.Info("Utilizando conexão com o postgresql...")
		dsn := conf.DbDSN
		if dsn == "" {
			dsn = "host=" + conf.DbHost + " port=" + conf.DbPort
			dsn += " user=" + conf.DbUser + " dbname=" + conf.DbName
			dsn += " password=" + conf.DbPass
		}
		db, err = gorm.Open("postgres", dsn)
	default:
		log.Info("Utilizando conexão com o sqlite3...")
		path := conf.DbPath
		if path != ":memory:" {
			if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
				return nil, errors.Wrap(mkErr, "create sqlite directory")
			}
		}
		db, err = gorm.Open("sqlite3", path)
		if err == nil {
			// sqlite só aceita um escritor por vez; uma conexão evita "database is locked"
			db.DB().SetMaxOpenConns(1)
			db.Exec("PRAGMA foreign_keys = ON")
		}
	}

	if err != nil {
		log.WithError(err).Error("could not connect to db")
		return nil, err
	}

	db.LogMode(conf.DbDebug)
	return db, nil
}

// Migrate creates the tables, the partial unique index on active reflections
// and mirrors the catalog into stages_dict and category_dict.
func Migrate(db *gorm.DB, cat *catalog.Catalog) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Stage{},
		&models.Category{},
		&models.Reflection{},
		&models.Message{},
		&models.Alert{},
		&models.Exemplar{},
	).Error; err != nil {
		return errors.Wrap(err, "automigrate")
	}

	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + ActiveGiverIndex +
		" ON reflections (giver_user_id) WHERE status = 1").Error; err != nil {
		return errors.Wrap(err, "create active reflection index")
	}

	// sqlite não suporta ALTER TABLE ... ADD CONSTRAINT
	if db.Dialect().GetName() == "postgres" {
		// older schemas made the mirrored names unique, which breaks renames on seed
		for _, c := range legacyNameConstraints {
			if err := db.Exec("ALTER TABLE " + c.table + " DROP CONSTRAINT IF EXISTS " + c.name).Error; err != nil {
				return errors.Wrapf(err, "drop constraint %s", c.name)
			}
		}
		for _, fk := range foreignKeys {
			if err := db.Model(fk.model).AddForeignKey(fk.field, fk.dest, "RESTRICT", "RESTRICT").Error; err != nil {
				return errors.Wrapf(err, "add foreign key %s", fk.field)
			}
		}
	}

	return SeedCatalog(db, cat)
}

// SeedCatalog upserts every stage and category so the reference tables match
// the configuration the process started with.
func SeedCatalog(db *gorm.DB, cat *catalog.Catalog) error {
	tx := db.Begin()

	for _, s := range cat.Stages() {
		row := models.Stage{StageNo: s.No, StageName: s.Name, Status: statusOf(s.Active)}
		if err := tx.Save(&row).Error; err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "seed stage %d", s.No)
		}
	}
	for _, c := range cat.Categories() {
		row := models.Category{CategoryNo: c.No, CategoryName: c.Name, Status: statusOf(c.Active)}
		if err := tx.Save(&row).Error; err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "seed category %d", c.No)
		}
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return errors.Wrap(err, "commit catalog seed")
	}
	log.WithFields(log.Fields{"stages": len(cat.Stages()), "categories": len(cat.Categories())}).Info("catalog seeded")
	return nil
}

func statusOf(active bool) int {
	if active {
		return 1
	}
	return 0
}
