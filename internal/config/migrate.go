package config

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// RunMigrations applies pending SQL migrations before the pool is handed to
// the application. The path defaults to the db/migrations directory next to
// the binary's working directory.
func RunMigrations(config *koanf.Koanf, log *zap.Logger) {
	migrationPath := config.String("MIGRATION_PATH")
	if migrationPath == "" {
		migrationPath = "file://db/migrations"
	}

	m, err := migrate.New(migrationPath, config.String("POSTGRES_URL"))
	if err != nil {
		log.Fatal("failed to create migrate instance", zap.Error(err))
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Warn("failed to close migration source", zap.Error(srcErr))
	}
	if dbErr != nil {
		log.Warn("failed to close migration db connection", zap.Error(dbErr))
	}

	log.Info("database migrations applied")
}
