package global

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

// Migrate builds a migration instance for the tasks schema. srcURL points at
// the migrations directory (file://...), dbURL at the Postgres instance.
func Migrate(srcURL, dbURL string) (*migrate.Migrate, error) {
	m, err := migrate.New(srcURL, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}
