package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/internal/sequence"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations applies the embedded postgres migrations.
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

// Models lists every table owned by the service, parents first.
func Models() []any {
	return []any{
		&machinedomain.Machine{},
		&jobdomain.Job{},
		&inputrolldomain.InputRoll{},
		&outputrolldomain.OutputRoll{},
		&outputrolldomain.OutputRollInput{},
		&sequence.RollSequence{},
		&postingdomain.Posting{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for sqlite and
// mysql, which have no embedded migrations.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
