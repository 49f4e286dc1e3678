package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

const (
	// LatestMigrationVersion is the newest schema version this binary
	// knows. It MUST be bumped together with a new migration file.
	LatestMigrationVersion uint = 2
)

// MigrationTarget moves mig to the wanted version.
type MigrationTarget func(mig *migrate.Migrate) error

var (
	// TargetLatest migrates all the way up.
	TargetLatest MigrationTarget = func(mig *migrate.Migrate) error {
		return mig.Up()
	}

	// TargetVersion migrates up or down to version.
	TargetVersion = func(version uint) MigrationTarget {
		return func(mig *migrate.Migrate) error {
			return mig.Migrate(version)
		}
	}
)

// ErrMigrationDowngrade is returned when the database was written by a
// newer binary.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

type migrateOptions struct {
	latestVersion uint
	target        MigrationTarget
	backup        bool
}

// MigrateOpt modifies how ApplyMigrations behaves.
type MigrateOpt func(*migrateOptions)

// WithLatestVersion overrides LatestMigrationVersion, for tests.
func WithLatestVersion(version uint) MigrateOpt {
	return func(o *migrateOptions) {
		o.latestVersion = version
	}
}

// WithTarget overrides TargetLatest.
func WithTarget(target MigrationTarget) MigrateOpt {
	return func(o *migrateOptions) {
		o.target = target
	}
}

// WithoutBackup skips the VACUUM INTO copy taken before upgrading an
// existing database.
func WithoutBackup() MigrateOpt {
	return func(o *migrateOptions) {
		o.backup = false
	}
}

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	log *slog.Logger
}

func (m *migrationLogger) Printf(format string, v ...any) {
	m.log.Info(fmt.Sprintf(strings.TrimRight(format, "\n"), v...))
}

func (m *migrationLogger) Verbose() bool {
	return false
}

// ApplyMigrations brings the schema of sqlDB, stored at dbPath, up to date
// using the embedded migration files. An existing database is backed up
// before it is upgraded.
func ApplyMigrations(sqlDB *sql.DB, dbPath string, log *slog.Logger,
	opts ...MigrateOpt) error {

	if log == nil {
		log = slog.Default()
	}

	o := &migrateOptions{
		latestVersion: LatestMigrationVersion,
		target:        TargetLatest,
		backup:        true,
	}
	for _, opt := range opts {
		opt(o)
	}

	driver, err := sqlite_migrate.WithInstance(
		sqlDB, &sqlite_migrate.Config{},
	)
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	return applyMigrations(
		sqlSchemas, driver, "migrations", "sqlite3", dbPath, sqlDB, o,
		log,
	)
}

func applyMigrations(fsys fs.FS, driver database.Driver, path,
	dbName, dbPath string, sqlDB *sql.DB, opts *migrateOptions,
	log *slog.Logger) error {

	src, err := httpfs.New(http.FS(fsys), path)
	if err != nil {
		return err
	}

	mig, err := migrate.NewWithInstance("migrations", src, dbName, driver)
	if err != nil {
		return err
	}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("determine migration version: %w", err)
	}

	// A dirty version means a previous migration died halfway.
	if dirty {
		return fmt.Errorf("database is dirty at version %d, manual "+
			"intervention required", version)
	}

	// Down migrations drop data, so a newer schema is never touched.
	if version > opts.latestVersion {
		return fmt.Errorf("%w: db_version=%d, latest=%d",
			ErrMigrationDowngrade, version, opts.latestVersion)
	}

	if opts.backup && version > 0 && version < opts.latestVersion {
		if err := backupSqliteDatabase(sqlDB, dbPath, log); err != nil {
			return fmt.Errorf("backup before migration: %w", err)
		}
	}

	log.InfoContext(context.Background(), "Applying migrations",
		"current_db_version", version,
		"latest_migration_version", opts.latestVersion)

	mig.Log = &migrationLogger{log: log}

	err = opts.target(mig)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	after, _, err := driver.Version()
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	log.InfoContext(context.Background(), "Database version after "+
		"migration", "current_db_version", after)

	return nil
}

// backupSqliteDatabase copies the database next to itself with VACUUM INTO.
func backupSqliteDatabase(sqlDB *sql.DB, dbPath string,
	log *slog.Logger) error {

	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}

	backupPath := fmt.Sprintf("%s.%d.backup", dbPath,
		time.Now().UnixNano())

	log.InfoContext(context.Background(), "Creating database backup",
		"source", dbPath, "backup", backupPath)

	_, err := sqlDB.Exec("VACUUM INTO ?", backupPath)

	return err
}
