package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/asakaida/warehouse/internal/infrastructure/config"
	"github.com/asakaida/warehouse/internal/infrastructure/database"
)

// SetupTestDB creates a test database connection and runs migrations.
// Tests are skipped when no test database is configured or reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Initialize test config
	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping: test database not configured: %v", err)
	}

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping: test database unreachable: %v", err)
	}

	// Run migrations
	if err := pg.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanTables(t, pg.DB)
	return pg.DB
}

// CleanupTestDB closes the database connection and cleans up test data
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	cleanTables(t, db)

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

func cleanTables(t *testing.T, db *sql.DB) {
	t.Helper()

	// Children first
	tables := []string{"project_attribute", "project", "account", "entity"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}
}
