package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change; each file registers one version named
// after its file name prefix.
var Migrations = migrate.NewMigrations()
