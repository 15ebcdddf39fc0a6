package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness rule
	ErrConflict = errors.New("conflict")
	// ErrInvalidRow is returned when a write violates a CHECK constraint
	ErrInvalidRow = errors.New("invalid row")
	// ErrNestedTx is returned by BeginTx on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// One connection: every transaction, and so every run append, is serialized
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// inTx runs fn inside a fresh transaction and commits when it succeeds
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mapConstraintError translates SQLite constraint failures into package
// errors. Both drivers report constraint failures with the same text.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return err
}

// inClause returns "(?,?,...)" with n placeholders and the ids as arguments
func inClause(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}
	return "(" + strings.Join(marks, ",") + ")", args
}

// maxInParams bounds the ids bound into a single IN clause
const maxInParams = 500

// chunkIDs splits ids into slices of at most maxInParams
func chunkIDs(ids []int64) [][]int64 {
	var chunks [][]int64
	for len(ids) > maxInParams {
		chunks = append(chunks, ids[:maxInParams])
		ids = ids[maxInParams:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func now() time.Time {
	return time.Now().UTC()
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{
		DriverName: DriverName,
		BuildMode:  BuildMode,
	}

	counts := []struct {
		table string
		dst   *int
	}{
		{"users", &status.UsersCount},
		{"students", &status.StudentsCount},
		{"tutors", &status.TutorsCount},
		{"classes", &status.ClassesCount},
		{"user_embeddings", &status.EmbeddingsCount},
		{"match_runs", &status.RunsCount},
		{"matches", &status.MatchesCount},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	version, err := currentSchemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}
