package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dshills/tutormatch/pkg/types"
)

// Match operations

// ensureStudent checks that studentID has a student profile
func ensureStudent(ctx context.Context, q querier, studentID int64) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM students WHERE user_id = ?", studentID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %w: %d", ErrNotFound, types.ErrStudentNotFound, studentID)
	}
	return err
}

// ensureTutor checks that tutorID has a tutor profile
func ensureTutor(ctx context.Context, q querier, tutorID int64) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM tutors WHERE user_id = ?", tutorID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %w: %d", ErrNotFound, types.ErrTutorNotFound, tutorID)
	}
	return err
}

func insertRun(ctx context.Context, q querier, run *MatchRun) error {
	weights, err := json.Marshal(run.Weights)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	ts := now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO match_runs (student_id, model_name, top_k, weights_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.StudentID, run.ModelName, run.TopK, string(weights), ts)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", mapConstraintError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	run.CreatedAt = ts
	return nil
}

func insertMatch(ctx context.Context, q querier, m *Match) error {
	ts := now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO matches (run_id, student_id, tutor_id, rank, similarity_score, embedding_similarity,
		                     class_strength, availability_overlap, location_match, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.RunID, m.StudentID, m.TutorID, m.Rank, m.SimilarityScore, m.EmbeddingSimilarity,
		m.ClassStrength, m.AvailabilityOverlap, m.LocationMatch, ts)
	if err != nil {
		return fmt.Errorf("failed to insert match for tutor %d: %w", m.TutorID, mapConstraintError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	m.CreatedAt = ts
	return nil
}

func newMatch(runID, studentID int64, rank int, row types.RankedMatch) *Match {
	return &Match{
		RunID:               runID,
		StudentID:           studentID,
		TutorID:             row.TutorID,
		Rank:                rank,
		SimilarityScore:     row.FinalScore,
		EmbeddingSimilarity: row.EmbeddingSimilarity,
		ClassStrength:       row.ClassStrength,
		AvailabilityOverlap: row.AvailabilityOverlap,
		LocationMatch:       row.LocationMatch,
	}
}

// createRunWithMatchesWithQuerier records a run with top_k = len(rows) and
// stores rows with ranks 1..n in the order given. Every id is checked before
// the first write.
func (s *SQLiteStorage) createRunWithMatchesWithQuerier(ctx context.Context, q querier, run *MatchRun, rows []types.RankedMatch) ([]*Match, error) {
	if run.ModelName == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidRow)
	}
	if err := ensureStudent(ctx, q, run.StudentID); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		if seen[row.TutorID] {
			return nil, fmt.Errorf("%w: tutor %d listed twice", ErrConflict, row.TutorID)
		}
		seen[row.TutorID] = true
		if err := ensureTutor(ctx, q, row.TutorID); err != nil {
			return nil, err
		}
	}

	run.TopK = len(rows)
	if err := insertRun(ctx, q, run); err != nil {
		return nil, err
	}

	matches := make([]*Match, 0, len(rows))
	for i, row := range rows {
		m := newMatch(run.ID, run.StudentID, i+1, row)
		if err := insertMatch(ctx, q, m); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// CreateRunWithMatches persists a run and its rows in one transaction
func (s *SQLiteStorage) CreateRunWithMatches(ctx context.Context, run *MatchRun, rows []types.RankedMatch) ([]*Match, error) {
	var matches []*Match
	err := s.inTx(ctx, func(q querier) error {
		var err error
		matches, err = s.createRunWithMatchesWithQuerier(ctx, q, run, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *SQLiteStorage) getLatestRunWithQuerier(ctx context.Context, q querier, studentID int64) (*MatchRun, error) {
	query := `
		SELECT id, student_id, model_name, top_k, weights_json, created_at
		FROM match_runs
		WHERE student_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var run MatchRun
	var weights string
	err := q.QueryRowContext(ctx, query, studentID).Scan(
		&run.ID, &run.StudentID, &run.ModelName, &run.TopK, &weights, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(weights), &run.Weights); err != nil {
		return nil, fmt.Errorf("decode weights of run %d: %w", run.ID, err)
	}
	return &run, nil
}

// GetLatestRun returns the student's most recent run, ErrNotFound if none
func (s *SQLiteStorage) GetLatestRun(ctx context.Context, studentID int64) (*MatchRun, error) {
	return s.getLatestRunWithQuerier(ctx, s.querier(), studentID)
}

const matchColumns = `id, run_id, student_id, tutor_id, rank, similarity_score, embedding_similarity,
	class_strength, availability_overlap, location_match, created_at, selected_at`

func scanMatch(scan func(dest ...interface{}) error) (*Match, error) {
	var m Match
	var selected sql.NullTime
	err := scan(&m.ID, &m.RunID, &m.StudentID, &m.TutorID, &m.Rank, &m.SimilarityScore,
		&m.EmbeddingSimilarity, &m.ClassStrength, &m.AvailabilityOverlap, &m.LocationMatch, &m.CreatedAt, &selected)
	if err != nil {
		return nil, err
	}
	if selected.Valid {
		m.SelectedAt = &selected.Time
	}
	return &m, nil
}

func (s *SQLiteStorage) listMatchesByRunWithQuerier(ctx context.Context, q querier, runID int64) ([]*Match, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+matchColumns+" FROM matches WHERE run_id = ? ORDER BY rank", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []*Match
	for rows.Next() {
		m, err := scanMatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListMatchesByRun returns a run's rows in ascending rank order
func (s *SQLiteStorage) ListMatchesByRun(ctx context.Context, runID int64) ([]*Match, error) {
	return s.listMatchesByRunWithQuerier(ctx, s.querier(), runID)
}

// appendMatchWithQuerier adds req.Row to the student's latest run, creating
// an empty run first when there is none. A tutor already in that run is
// returned unchanged with created=false.
func (s *SQLiteStorage) appendMatchWithQuerier(ctx context.Context, q querier, req AppendRequest) (*Match, bool, error) {
	if err := ensureStudent(ctx, q, req.StudentID); err != nil {
		return nil, false, err
	}
	if err := ensureTutor(ctx, q, req.Row.TutorID); err != nil {
		return nil, false, err
	}

	run, err := s.getLatestRunWithQuerier(ctx, q, req.StudentID)
	if err == ErrNotFound {
		if req.ModelName == "" {
			return nil, false, fmt.Errorf("%w: model name is required", ErrInvalidRow)
		}
		run = &MatchRun{StudentID: req.StudentID, ModelName: req.ModelName, Weights: req.Weights}
		err = insertRun(ctx, q, run)
	}
	if err != nil {
		return nil, false, err
	}

	row := q.QueryRowContext(ctx, "SELECT "+matchColumns+" FROM matches WHERE run_id = ? AND tutor_id = ?", run.ID, req.Row.TutorID)
	existing, err := scanMatch(row.Scan)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	var maxRank int
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(rank), 0) FROM matches WHERE run_id = ?", run.ID).Scan(&maxRank); err != nil {
		return nil, false, fmt.Errorf("failed to read max rank: %w", err)
	}

	m := newMatch(run.ID, req.StudentID, maxRank+1, req.Row)
	if err := insertMatch(ctx, q, m); err != nil {
		return nil, false, err
	}

	// Ranks are never reused, so the new rank is the run's max even after
	// tutor deletions removed rows
	if _, err := q.ExecContext(ctx, "UPDATE match_runs SET top_k = ? WHERE id = ?", m.Rank, run.ID); err != nil {
		return nil, false, fmt.Errorf("failed to update run top_k: %w", err)
	}
	return m, true, nil
}

// AppendMatch runs the append in one transaction. The single pooled
// connection serializes concurrent appends, and the (run_id, rank) and
// (run_id, tutor_id) constraints reject anything that slips past.
func (s *SQLiteStorage) AppendMatch(ctx context.Context, req AppendRequest) (*Match, bool, error) {
	var (
		match   *Match
		created bool
	)
	err := s.inTx(ctx, func(q querier) error {
		var err error
		match, created, err = s.appendMatchWithQuerier(ctx, q, req)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return match, created, nil
}

// markSelectedWithQuerier stamps the row as picked by the student. It
// reports false when the row was already selected.
func (s *SQLiteStorage) markSelectedWithQuerier(ctx context.Context, q querier, match *Match) (bool, error) {
	ts := now()
	result, err := q.ExecContext(ctx,
		"UPDATE matches SET selected_at = ? WHERE id = ? AND selected_at IS NULL", ts, match.ID)
	if err != nil {
		return false, fmt.Errorf("failed to mark match %d selected: %w", match.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM matches WHERE id = ?)", match.ID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, fmt.Errorf("%w: match %d", ErrNotFound, match.ID)
		}
		return false, nil
	}
	match.SelectedAt = &ts
	return true, nil
}

// MarkSelected records that the student picked the tutor of match
func (s *SQLiteStorage) MarkSelected(ctx context.Context, match *Match) (bool, error) {
	return s.markSelectedWithQuerier(ctx, s.querier(), match)
}

func (s *SQLiteStorage) getSelectedMatchWithQuerier(ctx context.Context, q querier, studentID, tutorID int64) (*Match, error) {
	row := q.QueryRowContext(ctx, "SELECT "+matchColumns+`
		FROM matches
		WHERE student_id = ? AND tutor_id = ? AND selected_at IS NOT NULL
		ORDER BY selected_at DESC, id DESC
		LIMIT 1
	`, studentID, tutorID)
	m, err := scanMatch(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetSelectedMatch returns the most recent selection of tutorID by the
// student across all runs, ErrNotFound if there is none
func (s *SQLiteStorage) GetSelectedMatch(ctx context.Context, studentID, tutorID int64) (*Match, error) {
	return s.getSelectedMatchWithQuerier(ctx, s.querier(), studentID, tutorID)
}

func (s *SQLiteStorage) hasStudentMatchedTutorWithQuerier(ctx context.Context, q querier, studentID, tutorID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM matches WHERE student_id = ? AND tutor_id = ? AND selected_at IS NOT NULL)
	`, studentID, tutorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check match history: %w", err)
	}
	return exists, nil
}

// HasStudentMatchedTutor reports whether the student selected the tutor in
// any run. Rows written by a ranking alone do not count.
func (s *SQLiteStorage) HasStudentMatchedTutor(ctx context.Context, studentID, tutorID int64) (bool, error) {
	return s.hasStudentMatchedTutorWithQuerier(ctx, s.querier(), studentID, tutorID)
}
