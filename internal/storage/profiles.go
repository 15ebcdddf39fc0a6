package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dshills/tutormatch/pkg/types"
)

// Profile operations

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

func (s *SQLiteStorage) upsertStudentProfileWithQuerier(ctx context.Context, q querier, p *types.StudentFeatures) error {
	for _, c := range p.Classes {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: class %d: %v", ErrInvalidRow, c.ClassID, err)
		}
	}
	help, err := encodeList(p.HelpNeeded)
	if err != nil {
		return err
	}
	locations, err := encodeList(p.Locations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO students (user_id, bio, help_needed, preferred_locations, major, grad_year, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			bio = excluded.bio,
			help_needed = excluded.help_needed,
			preferred_locations = excluded.preferred_locations,
			major = excluded.major,
			grad_year = excluded.grad_year,
			updated_at = excluded.updated_at
	`
	ts := now()
	if _, err := q.ExecContext(ctx, query, p.UserID, p.Bio, help, locations, p.Major, p.GradYear, ts, ts); err != nil {
		return fmt.Errorf("failed to upsert student profile: %w", mapConstraintError(err))
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM student_classes WHERE student_user_id = ?", p.UserID); err != nil {
		return fmt.Errorf("failed to clear student classes: %w", err)
	}
	for _, c := range p.Classes {
		helpLevel := c.HelpLevel
		if helpLevel == 0 {
			helpLevel = types.DefaultHelpLevel
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO student_classes (student_user_id, class_id, help_level, estimated_grade)
			VALUES (?, ?, ?, ?)
		`, p.UserID, c.ClassID, helpLevel, c.EstimatedGrade)
		if err != nil {
			return fmt.Errorf("failed to insert student class %d: %w", c.ClassID, mapConstraintError(err))
		}
	}
	return nil
}

// UpsertStudentProfile writes the profile and replaces its class rows atomically
func (s *SQLiteStorage) UpsertStudentProfile(ctx context.Context, profile *types.StudentFeatures) error {
	return s.inTx(ctx, func(q querier) error {
		return s.upsertStudentProfileWithQuerier(ctx, q, profile)
	})
}

const studentColumns = `user_id, bio, help_needed, preferred_locations, major, grad_year`

func scanStudent(scan func(dest ...interface{}) error) (*types.StudentFeatures, error) {
	var p types.StudentFeatures
	var help, locations string
	if err := scan(&p.UserID, &p.Bio, &help, &locations, &p.Major, &p.GradYear); err != nil {
		return nil, err
	}
	var err error
	if p.HelpNeeded, err = decodeList(help); err != nil {
		return nil, err
	}
	if p.Locations, err = decodeList(locations); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStorage) getStudentProfileWithQuerier(ctx context.Context, q querier, userID int64) (*types.StudentFeatures, error) {
	row := q.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE user_id = ?", userID)
	p, err := scanStudent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT class_id, help_level, estimated_grade
		FROM student_classes
		WHERE student_user_id = ?
		ORDER BY class_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list student classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c types.StudentClass
		if err := rows.Scan(&c.ClassID, &c.HelpLevel, &c.EstimatedGrade); err != nil {
			return nil, err
		}
		p.Classes = append(p.Classes, c)
	}
	return p, rows.Err()
}

func (s *SQLiteStorage) GetStudentProfile(ctx context.Context, userID int64) (*types.StudentFeatures, error) {
	return s.getStudentProfileWithQuerier(ctx, s.querier(), userID)
}

// listStudentProfilesWithQuerier returns profiles without class rows, which
// only matter when the student is the one being matched
func (s *SQLiteStorage) listStudentProfilesWithQuerier(ctx context.Context, q querier) ([]*types.StudentFeatures, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*types.StudentFeatures
	for rows.Next() {
		p, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStorage) ListStudentProfiles(ctx context.Context) ([]*types.StudentFeatures, error) {
	return s.listStudentProfilesWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) upsertTutorProfileWithQuerier(ctx context.Context, q querier, p *types.TutorFeatures) error {
	help, err := encodeList(p.HelpProvided)
	if err != nil {
		return err
	}
	locations, err := encodeList(p.Locations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tutors (user_id, bio, help_provided, preferred_locations, major, grad_year,
		                    hourly_rate_cents, session_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			bio = excluded.bio,
			help_provided = excluded.help_provided,
			preferred_locations = excluded.preferred_locations,
			major = excluded.major,
			grad_year = excluded.grad_year,
			hourly_rate_cents = excluded.hourly_rate_cents,
			session_mode = excluded.session_mode,
			updated_at = excluded.updated_at
	`
	ts := now()
	_, err = q.ExecContext(ctx, query, p.UserID, p.Bio, help, locations, p.Major, p.GradYear,
		p.HourlyRateCents, p.SessionMode, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to upsert tutor profile: %w", mapConstraintError(err))
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM tutor_classes WHERE tutor_user_id = ?", p.UserID); err != nil {
		return fmt.Errorf("failed to clear tutor classes: %w", err)
	}
	for _, c := range p.Classes {
		_, err := q.ExecContext(ctx, `
			INSERT INTO tutor_classes (tutor_user_id, class_id, semester, year_taken, grade_received, has_taed)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.UserID, c.ClassID, c.Semester, c.YearTaken, c.GradeReceived, c.HasTAed)
		if err != nil {
			return fmt.Errorf("failed to insert tutor class %d: %w", c.ClassID, mapConstraintError(err))
		}
	}
	return nil
}

// UpsertTutorProfile writes the profile and replaces its class rows atomically
func (s *SQLiteStorage) UpsertTutorProfile(ctx context.Context, profile *types.TutorFeatures) error {
	return s.inTx(ctx, func(q querier) error {
		return s.upsertTutorProfileWithQuerier(ctx, q, profile)
	})
}

const tutorColumns = `user_id, bio, help_provided, preferred_locations, major, grad_year, hourly_rate_cents, session_mode`

func scanTutor(scan func(dest ...interface{}) error) (*types.TutorFeatures, error) {
	var p types.TutorFeatures
	var help, locations string
	if err := scan(&p.UserID, &p.Bio, &help, &locations, &p.Major, &p.GradYear, &p.HourlyRateCents, &p.SessionMode); err != nil {
		return nil, err
	}
	var err error
	if p.HelpProvided, err = decodeList(help); err != nil {
		return nil, err
	}
	if p.Locations, err = decodeList(locations); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStorage) getTutorProfileWithQuerier(ctx context.Context, q querier, userID int64) (*types.TutorFeatures, error) {
	profiles, err := s.listTutorProfilesByIDsWithQuerier(ctx, q, []int64{userID})
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNotFound
	}
	return profiles[0], nil
}

func (s *SQLiteStorage) GetTutorProfile(ctx context.Context, userID int64) (*types.TutorFeatures, error) {
	return s.getTutorProfileWithQuerier(ctx, s.querier(), userID)
}

// listTutorProfilesWithQuerier returns every tutor ordered by user id, with
// class rows attached
func (s *SQLiteStorage) listTutorProfilesWithQuerier(ctx context.Context, q querier) ([]*types.TutorFeatures, error) {
	profiles, err := s.queryTutors(ctx, q, "SELECT "+tutorColumns+" FROM tutors ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	classes, err := s.queryTutorClasses(ctx, q, `
		SELECT tutor_user_id, class_id, semester, year_taken, grade_received, has_taed
		FROM tutor_classes
		ORDER BY tutor_user_id, class_id
	`)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		p.Classes = classes[p.UserID]
	}
	return profiles, nil
}

func (s *SQLiteStorage) ListTutorProfiles(ctx context.Context) ([]*types.TutorFeatures, error) {
	return s.listTutorProfilesWithQuerier(ctx, s.querier())
}

// listTutorProfilesByIDsWithQuerier returns the tutors among userIDs ordered
// by user id. Unknown ids are skipped.
func (s *SQLiteStorage) listTutorProfilesByIDsWithQuerier(ctx context.Context, q querier, userIDs []int64) ([]*types.TutorFeatures, error) {
	var profiles []*types.TutorFeatures
	for _, chunk := range chunkIDs(userIDs) {
		in, args := inClause(chunk)
		found, err := s.queryTutors(ctx, q, "SELECT "+tutorColumns+" FROM tutors WHERE user_id IN "+in+" ORDER BY user_id", args...)
		if err != nil {
			return nil, err
		}
		classes, err := s.queryTutorClasses(ctx, q, `
			SELECT tutor_user_id, class_id, semester, year_taken, grade_received, has_taed
			FROM tutor_classes
			WHERE tutor_user_id IN `+in+`
			ORDER BY tutor_user_id, class_id
		`, args...)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			p.Classes = classes[p.UserID]
		}
		profiles = append(profiles, found...)
	}
	return profiles, nil
}

func (s *SQLiteStorage) ListTutorProfilesByIDs(ctx context.Context, userIDs []int64) ([]*types.TutorFeatures, error) {
	return s.listTutorProfilesByIDsWithQuerier(ctx, s.querier(), userIDs)
}

func (s *SQLiteStorage) queryTutors(ctx context.Context, q querier, query string, args ...interface{}) ([]*types.TutorFeatures, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tutors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*types.TutorFeatures
	for rows.Next() {
		p, err := scanTutor(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStorage) queryTutorClasses(ctx context.Context, q querier, query string, args ...interface{}) (map[int64][]types.TutorClass, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tutor classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byTutor := make(map[int64][]types.TutorClass)
	for rows.Next() {
		var tutorID int64
		var c types.TutorClass
		if err := rows.Scan(&tutorID, &c.ClassID, &c.Semester, &c.YearTaken, &c.GradeReceived, &c.HasTAed); err != nil {
			return nil, err
		}
		byTutor[tutorID] = append(byTutor[tutorID], c)
	}
	return byTutor, rows.Err()
}

// Availability operations

func (s *SQLiteStorage) replaceAvailabilityWithQuerier(ctx context.Context, q querier, userID int64, slots []types.AvailabilitySlot) error {
	for _, slot := range slots {
		if err := slot.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRow, err)
		}
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM user_availability WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear availability: %w", err)
	}
	for _, slot := range slots {
		_, err := q.ExecContext(ctx, `
			INSERT INTO user_availability (user_id, day_of_week, start_minute, end_minute)
			VALUES (?, ?, ?, ?)
		`, userID, slot.DayOfWeek, slot.StartMinute, slot.EndMinute)
		if err != nil {
			return fmt.Errorf("failed to insert availability: %w", mapConstraintError(err))
		}
	}
	return nil
}

// ReplaceAvailability swaps a user's weekly slots for the given set
func (s *SQLiteStorage) ReplaceAvailability(ctx context.Context, userID int64, slots []types.AvailabilitySlot) error {
	return s.inTx(ctx, func(q querier) error {
		return s.replaceAvailabilityWithQuerier(ctx, q, userID, slots)
	})
}

func (s *SQLiteStorage) listAvailabilityByUsersWithQuerier(ctx context.Context, q querier, userIDs []int64) (map[int64][]types.AvailabilitySlot, error) {
	byUser := make(map[int64][]types.AvailabilitySlot)
	for _, chunk := range chunkIDs(userIDs) {
		in, args := inClause(chunk)
		rows, err := q.QueryContext(ctx, `
			SELECT user_id, day_of_week, start_minute, end_minute
			FROM user_availability
			WHERE user_id IN `+in+`
			ORDER BY user_id, day_of_week, start_minute
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list availability: %w", err)
		}
		for rows.Next() {
			var userID int64
			var slot types.AvailabilitySlot
			if err := rows.Scan(&userID, &slot.DayOfWeek, &slot.StartMinute, &slot.EndMinute); err != nil {
				_ = rows.Close()
				return nil, err
			}
			byUser[userID] = append(byUser[userID], slot)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return byUser, nil
}

func (s *SQLiteStorage) ListAvailabilityByUsers(ctx context.Context, userIDs []int64) (map[int64][]types.AvailabilitySlot, error) {
	return s.listAvailabilityByUsersWithQuerier(ctx, s.querier(), userIDs)
}

func (s *SQLiteStorage) ListAvailability(ctx context.Context, userID int64) ([]types.AvailabilitySlot, error) {
	byUser, err := s.listAvailabilityByUsersWithQuerier(ctx, s.querier(), []int64{userID})
	if err != nil {
		return nil, err
	}
	return byUser[userID], nil
}
