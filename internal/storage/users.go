package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// User operations

func (s *SQLiteStorage) createUserWithQuerier(ctx context.Context, q querier, user *User) error {
	query := `
		INSERT INTO users (email, first_name, last_name, is_student, is_tutor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	ts := now()
	result, err := q.ExecContext(ctx, query,
		user.Email, user.FirstName, user.LastName, user.IsStudent, user.IsTutor, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapConstraintError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *User) error {
	return s.createUserWithQuerier(ctx, s.querier(), user)
}

func (s *SQLiteStorage) getUserWithQuerier(ctx context.Context, q querier, userID int64) (*User, error) {
	query := `
		SELECT id, email, first_name, last_name, is_student, is_tutor, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	var user User
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.IsStudent, &user.IsTutor, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, userID int64) (*User, error) {
	return s.getUserWithQuerier(ctx, s.querier(), userID)
}

// deleteUserWithQuerier removes a user; profiles, slots and match history
// cascade with it
func (s *SQLiteStorage) deleteUserWithQuerier(ctx context.Context, q querier, userID int64) error {
	result, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, userID int64) error {
	return s.deleteUserWithQuerier(ctx, s.querier(), userID)
}

// Class operations

func (s *SQLiteStorage) createClassWithQuerier(ctx context.Context, q querier, class *Class) error {
	query := `
		INSERT INTO classes (subject, class_number, professor, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject, class_number, professor) DO UPDATE SET
			subject = excluded.subject
		RETURNING id
	`
	ts := now()
	err := q.QueryRowContext(ctx, query, class.Subject, class.ClassNumber, class.Professor, ts).
		Scan(&class.ID)
	if err != nil {
		return fmt.Errorf("failed to create class: %w", mapConstraintError(err))
	}
	class.CreatedAt = ts
	return nil
}

// CreateClass inserts a class, or returns the existing id for an identical one
func (s *SQLiteStorage) CreateClass(ctx context.Context, class *Class) error {
	return s.createClassWithQuerier(ctx, s.querier(), class)
}

func (s *SQLiteStorage) getClassWithQuerier(ctx context.Context, q querier, classID int64) (*Class, error) {
	query := `SELECT id, subject, class_number, professor, created_at FROM classes WHERE id = ?`
	var class Class
	err := q.QueryRowContext(ctx, query, classID).Scan(
		&class.ID, &class.Subject, &class.ClassNumber, &class.Professor, &class.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (s *SQLiteStorage) GetClass(ctx context.Context, classID int64) (*Class, error) {
	return s.getClassWithQuerier(ctx, s.querier(), classID)
}
