package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.2.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
	{
		Version: "1.2.0",
		Up:      migrationV12Up,
		Down:    migrationV12Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Accounts
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    is_student BOOLEAN NOT NULL DEFAULT 0,
    is_tutor BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Profiles; list fields are JSON arrays of strings
CREATE TABLE IF NOT EXISTS students (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL UNIQUE,
    bio TEXT NOT NULL DEFAULT '',
    help_needed TEXT NOT NULL DEFAULT '[]',
    preferred_locations TEXT NOT NULL DEFAULT '[]',
    major TEXT NOT NULL DEFAULT '',
    grad_year INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tutors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL UNIQUE,
    bio TEXT NOT NULL DEFAULT '',
    help_provided TEXT NOT NULL DEFAULT '[]',
    preferred_locations TEXT NOT NULL DEFAULT '[]',
    major TEXT NOT NULL DEFAULT '',
    grad_year INTEGER NOT NULL DEFAULT 0,
    hourly_rate_cents INTEGER NOT NULL DEFAULT 0,
    session_mode TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Classes and the links to them
CREATE TABLE IF NOT EXISTS classes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    subject TEXT NOT NULL,
    class_number TEXT NOT NULL,
    professor TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(subject, class_number, professor)
);

CREATE TABLE IF NOT EXISTS student_classes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    student_user_id INTEGER NOT NULL,
    class_id INTEGER NOT NULL,
    help_level INTEGER NOT NULL DEFAULT 5 CHECK (help_level BETWEEN 1 AND 10),
    estimated_grade TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (student_user_id) REFERENCES students(user_id) ON DELETE CASCADE,
    FOREIGN KEY (class_id) REFERENCES classes(id) ON DELETE CASCADE,
    UNIQUE(student_user_id, class_id)
);

CREATE TABLE IF NOT EXISTS tutor_classes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tutor_user_id INTEGER NOT NULL,
    class_id INTEGER NOT NULL,
    semester TEXT NOT NULL DEFAULT '',
    year_taken INTEGER NOT NULL DEFAULT 0,
    grade_received TEXT NOT NULL DEFAULT '',
    has_taed BOOLEAN NOT NULL DEFAULT 0,
    FOREIGN KEY (tutor_user_id) REFERENCES tutors(user_id) ON DELETE CASCADE,
    FOREIGN KEY (class_id) REFERENCES classes(id) ON DELETE CASCADE,
    UNIQUE(tutor_user_id, class_id)
);

-- Weekly availability in minutes after midnight, day 0 = Monday
CREATE TABLE IF NOT EXISTS user_availability (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
    start_minute INTEGER NOT NULL,
    end_minute INTEGER NOT NULL,
    CHECK (start_minute < end_minute),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(user_id, day_of_week, start_minute, end_minute)
);

-- Embedding slot cache
CREATE TABLE IF NOT EXISTS user_embeddings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    entity_type TEXT NOT NULL CHECK (entity_type IN ('student', 'tutor')),
    field_name TEXT NOT NULL CHECK (field_name IN ('bio', 'help', 'locations')),
    model_name TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(user_id, entity_type, field_name, model_name)
);

-- Match history
CREATE TABLE IF NOT EXISTS match_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    student_id INTEGER NOT NULL,
    model_name TEXT NOT NULL,
    top_k INTEGER NOT NULL DEFAULT 0,
    weights_json TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (student_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS matches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    student_id INTEGER NOT NULL,
    tutor_id INTEGER NOT NULL,
    rank INTEGER NOT NULL,
    similarity_score REAL NOT NULL,
    embedding_similarity REAL NOT NULL DEFAULT 0,
    class_strength REAL NOT NULL DEFAULT 0,
    availability_overlap REAL NOT NULL DEFAULT 0,
    location_match REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES match_runs(id) ON DELETE CASCADE,
    FOREIGN KEY (student_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (tutor_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(run_id, rank),
    UNIQUE(run_id, tutor_id)
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS matches;
DROP TABLE IF EXISTS match_runs;
DROP TABLE IF EXISTS user_embeddings;
DROP TABLE IF EXISTS user_availability;
DROP TABLE IF EXISTS tutor_classes;
DROP TABLE IF EXISTS student_classes;
DROP TABLE IF EXISTS classes;
DROP TABLE IF EXISTS tutors;
DROP TABLE IF EXISTS students;
DROP TABLE IF EXISTS users;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
CREATE INDEX IF NOT EXISTS idx_embeddings_lookup ON user_embeddings(entity_type, model_name, user_id);
CREATE INDEX IF NOT EXISTS idx_match_runs_latest ON match_runs(student_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_matches_student_tutor ON matches(student_id, tutor_id);
CREATE INDEX IF NOT EXISTS idx_availability_user ON user_availability(user_id);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_availability_user;
DROP INDEX IF EXISTS idx_matches_student_tutor;
DROP INDEX IF EXISTS idx_match_runs_latest;
DROP INDEX IF EXISTS idx_embeddings_lookup;
`

// Ranked rows and selections share the matches table; selected_at is set
// only when the student picked the tutor.
const migrationV12Up = `
ALTER TABLE matches ADD COLUMN selected_at TIMESTAMP;
`

const migrationV12Down = `
ALTER TABLE matches DROP COLUMN selected_at;
`

// currentSchemaVersion returns the highest recorded version, or 0.0.0 when
// nothing has been applied yet
func currentSchemaVersion(ctx context.Context, q querier) (*semver.Version, error) {
	zero := semver.MustParse("0.0.0")

	var tableName string
	err := q.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return zero, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := q.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if err := runMigration(ctx, db, migration.Up, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	currentVersion, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if currentVersion.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		v := semver.MustParse(AllMigrations[i].Version)
		if v.Equal(currentVersion) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	// The first migration drops schema_version itself, so there is nothing to delete
	record := "DELETE FROM schema_version WHERE version = ?"
	if migration.Version == AllMigrations[0].Version {
		record = ""
	}
	if err := runMigration(ctx, db, migration.Down, record, migration.Version); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, script, record, version string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if record != "" {
		if _, err := tx.ExecContext(ctx, record, version); err != nil {
			return fmt.Errorf("record version: %w", err)
		}
	}
	return tx.Commit()
}
