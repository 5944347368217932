package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	agronomydomain "github.com/farmerpower/platform/internal/agronomy/domain"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	referencedomain "github.com/farmerpower/platform/internal/reference/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// This migration package ensures the platform is fully usable out of the box
// for local and self-hosted environments. All core tables are created
// automatically on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Apply runs the schema path matching the dialect: embedded SQL migrations
// on postgres, AutoMigrate everywhere else.
func Apply(conn *gorm.DB, dbType string) error {
	if dbType == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn)
}

// AutoMigrate creates the schema straight from the models. The sqlite demo
// path uses it; postgres deployments run the embedded SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&referencedomain.Country{},
		&plantationdomain.Region{},
		&plantationdomain.Factory{},
		&plantationdomain.CollectionPoint{},
		&plantationdomain.Farmer{},
		&agronomydomain.FarmerPerformance{},
		&agronomydomain.WeatherObservation{},
		&documentdomain.Document{},
		&costsdomain.CostEvent{},
		&costsdomain.CostRollup{},
	)
}
