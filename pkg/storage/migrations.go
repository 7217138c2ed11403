package storage

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/nexuslabs/nexusmem/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending migration under
// pkg/storage/migrations, following the teacher's golang-migrate +
// embedded-iofs wiring (pkg/database/client.go's runMigrations).
func RunMigrations(cfg *config.StorageConfig) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	// Only the source driver needs explicit cleanup here: m.Close() would
	// also close the database connection migrate opened for itself, which
	// is separate from the pgxpool the rest of this package shares.
	_ = sourceDriver.Close()

	return nil
}
