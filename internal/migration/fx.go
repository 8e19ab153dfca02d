package migration

import (
	"strings"

	"github.com/smallbiznis/paymatrix/internal/config"
	exportdomain "github.com/smallbiznis/paymatrix/internal/export/domain"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	"github.com/smallbiznis/paymatrix/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if strings.EqualFold(cfg.DBType, db.TypePostgres) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB, log.Named("migration"))
		}
		// golang-migrate ships the postgres dialect only; other databases
		// get the same tables from the gorm models.
		log.Info("auto-migrating schema", zap.String("type", cfg.DBType))
		return AutoMigrate(conn)
	}),
)

// AutoMigrate creates the schema from the gorm models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&registrydomain.Project{},
		&registrydomain.Login{},
		&exportdomain.ExportLog{},
	)
}
