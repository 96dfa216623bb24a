package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema migrations for tables shared across periods.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	if dirty {
		logger.Warn("database migration is dirty", zap.Uint("version", version))
	} else {
		logger.Info("database migrations applied", zap.Uint("version", version))
	}
	return nil
}

// periodTablesDDL creates the isomorphic dataset of one academic period. Every period
// owns its own subjects, groups, slots and assignments tables; no key crosses periods.
const periodTablesDDL = `
CREATE TABLE IF NOT EXISTS subjects_{{suffix}} (
    id             UUID PRIMARY KEY,
    name           TEXT NOT NULL,
    instructor_id  UUID NULL REFERENCES instructors(id),
    program_id     TEXT NULL,
    owner_id       TEXT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_subjects_{{suffix}}_program ON subjects_{{suffix}} (program_id);
CREATE INDEX IF NOT EXISTS idx_subjects_{{suffix}}_owner ON subjects_{{suffix}} (owner_id);
CREATE TABLE IF NOT EXISTS groups_{{suffix}} (
    id          UUID PRIMARY KEY,
    subject_id  UUID NOT NULL REFERENCES subjects_{{suffix}}(id) ON DELETE CASCADE,
    label       TEXT NOT NULL,
    students    INTEGER NOT NULL CHECK (students >= 0),
    shift       TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS group_slots_{{suffix}} (
    id           UUID PRIMARY KEY,
    group_id     UUID NOT NULL REFERENCES groups_{{suffix}}(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    day_of_week  TEXT NOT NULL,
    start_time   TEXT NOT NULL,
    end_time     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS assignments_{{suffix}} (
    id           UUID PRIMARY KEY,
    group_id     UUID NOT NULL,
    subject_id   UUID NOT NULL,
    room_id      UUID NULL REFERENCES rooms(id),
    day_of_week  TEXT NOT NULL,
    start_time   TEXT NOT NULL,
    end_time     TEXT NOT NULL,
    shift        TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_assignments_{{suffix}}_subject ON assignments_{{suffix}} (subject_id);
`

// EnsurePeriodTables provisions the per-period tables for each configured suffix.
// Suffixes are validated by the config loader before they reach this point.
func EnsurePeriodTables(ctx context.Context, db *sql.DB, suffixes []string, logger *zap.Logger) error {
	for _, suffix := range suffixes {
		ddl := strings.ReplaceAll(periodTablesDDL, "{{suffix}}", suffix)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure period tables %s: %w", suffix, err)
		}
		logger.Debug("period tables ready", zap.String("suffix", suffix))
	}
	return nil
}
