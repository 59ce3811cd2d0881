package db

import (
	"database/sql"
	"embed"
	"path"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logger"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// migration is one embedded schema step. Version is the file name prefix
// before the first underscore; 000 creates schema_migrations itself.
type migration struct {
	Version string
	File    string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		out = append(out, migration{Version: version, File: name})
	}
	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// AppliedVersions lists recorded migration versions in order. A database
// without schema_migrations has none.
func AppliedVersions(db *sql.DB) ([]string, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations')").Scan(&exists)
	if err != nil {
		return nil, Classify(err, "look up schema_migrations")
	}
	if !exists {
		return nil, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, Classify(err, "list applied migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, Classify(err, "scan migration version")
		}
		versions = append(versions, v)
	}
	return versions, Classify(rows.Err(), "list applied migrations")
}

// Migrate applies every embedded migration not yet recorded, each in its own
// transaction. A nil logger runs silently.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)

	pending, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := AppliedVersions(db)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range pending {
		if slices.Contains(applied, m.Version) {
			continue
		}
		if len(applied) == 0 && count == 0 && m.Version != "000" {
			return errors.Newf("schema_migrations table missing, but first migration is %s", m.File)
		}

		log.Debugw("Applying migration", "migration", m.File, "version", m.Version)
		if err := applyMigration(db, m); err != nil {
			return err
		}
		count++
	}

	log.Debugw("Migrations complete", "applied", count, "total_migrations", len(pending))
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	stmts, err := migrationFS.ReadFile(path.Join(migrationDir, m.File))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.File)
	}

	tx, err := db.Begin()
	if err != nil {
		return Classify(err, "begin tx for "+m.File)
	}
	if _, err := tx.Exec(string(stmts)); err != nil {
		tx.Rollback()
		return Classify(err, "execute "+m.File)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return Classify(err, "record "+m.File)
	}
	return Classify(tx.Commit(), "commit "+m.File)
}
