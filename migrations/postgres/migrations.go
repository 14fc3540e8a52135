package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external runners.
var FS = migrationFS

// Migrations is a bun/migrate registry for this module.
var Migrations = migrate.NewMigrations()

func init() {
	// Discover SQL migrations from embedded filesystem.
	_ = Migrations.Discover(migrationFS)
}

// UpScript is one forward migration.
type UpScript struct {
	Name string
	SQL  string
}

// UpScripts returns the forward migrations in version order, for callers that
// apply them with their own driver.
func UpScripts() ([]UpScript, error) {
	names, err := fs.Glob(migrationFS, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]UpScript, 0, len(names))
	for _, n := range names {
		b, err := migrationFS.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, UpScript{Name: strings.TrimSuffix(n, ".up.sql"), SQL: string(b)})
	}
	return out, nil
}
