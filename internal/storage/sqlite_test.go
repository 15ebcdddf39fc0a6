package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tutormatch/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

var emailSeq int

func createUser(t *testing.T, s Storage, student, tutor bool) *User {
	t.Helper()
	emailSeq++
	u := &User{
		Email:     fmt.Sprintf("user%d@example.edu", emailSeq),
		FirstName: "Test",
		IsStudent: student,
		IsTutor:   tutor,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedStudent(t *testing.T, s Storage, p types.StudentFeatures) int64 {
	t.Helper()
	u := createUser(t, s, true, false)
	p.UserID = u.ID
	require.NoError(t, s.UpsertStudentProfile(context.Background(), &p))
	return u.ID
}

func seedTutor(t *testing.T, s Storage, p types.TutorFeatures) int64 {
	t.Helper()
	u := createUser(t, s, false, true)
	p.UserID = u.ID
	require.NoError(t, s.UpsertTutorProfile(context.Background(), &p))
	return u.ID
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	status, err := storage.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, DriverName, status.DriverName)
	assert.Equal(t, 0, status.UsersCount)
}

func TestMigrationsIdempotent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, storage.db))

	var count int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.db))
	version, err := currentSchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", version.String())

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	version, err = currentSchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestUsers(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	u := &User{Email: "ada@example.edu", FirstName: "Ada", IsStudent: true}
	require.NoError(t, storage.CreateUser(ctx, u))
	assert.Greater(t, u.ID, int64(0))

	got, err := storage.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.True(t, got.IsStudent)
	assert.False(t, got.IsTutor)

	err = storage.CreateUser(ctx, &User{Email: "ada@example.edu"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = storage.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, storage.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, storage.DeleteUser(ctx, u.ID), ErrNotFound)
}

func TestCreateClassIsIdempotent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	first := &Class{Subject: "MATH", ClassNumber: "221", Professor: "Noether"}
	require.NoError(t, storage.CreateClass(ctx, first))

	again := &Class{Subject: "MATH", ClassNumber: "221", Professor: "Noether"}
	require.NoError(t, storage.CreateClass(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	got, err := storage.GetClass(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "221", got.ClassNumber)
}

func TestStudentProfile(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	calc := &Class{Subject: "MATH", ClassNumber: "221"}
	require.NoError(t, storage.CreateClass(ctx, calc))

	id := seedStudent(t, storage, types.StudentFeatures{
		Bio:        "first year",
		HelpNeeded: []string{"calculus", "derivatives"},
		Locations:  []string{"library"},
		Classes:    []types.StudentClass{{ClassID: calc.ID, EstimatedGrade: "C"}},
	})

	got, err := storage.GetStudentProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first year", got.Bio)
	assert.Equal(t, []string{"calculus", "derivatives"}, got.HelpNeeded)
	require.Len(t, got.Classes, 1)
	assert.Equal(t, types.DefaultHelpLevel, got.Classes[0].HelpLevel)
	assert.Equal(t, "C", got.Classes[0].EstimatedGrade)

	// Upsert replaces text and class rows
	got.Bio = "second year"
	got.Classes = nil
	require.NoError(t, storage.UpsertStudentProfile(ctx, got))
	again, err := storage.GetStudentProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second year", again.Bio)
	assert.Empty(t, again.Classes)

	_, err = storage.GetStudentProfile(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := storage.ListStudentProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStudentProfileRejectsBadRows(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, storage, true, false)

	err := storage.UpsertStudentProfile(ctx, &types.StudentFeatures{
		UserID:  u.ID,
		Classes: []types.StudentClass{{ClassID: 1, HelpLevel: 11}},
	})
	assert.ErrorIs(t, err, ErrInvalidRow)

	// Unknown class: the whole upsert rolls back
	err = storage.UpsertStudentProfile(ctx, &types.StudentFeatures{
		UserID:  u.ID,
		Bio:     "should not persist",
		Classes: []types.StudentClass{{ClassID: 999}},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetStudentProfile(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Unknown user
	err = storage.UpsertStudentProfile(ctx, &types.StudentFeatures{UserID: 999})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTutorProfiles(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	calc := &Class{Subject: "MATH", ClassNumber: "221"}
	require.NoError(t, storage.CreateClass(ctx, calc))

	a := seedTutor(t, storage, types.TutorFeatures{
		Bio:          "math TA",
		HelpProvided: []string{"calculus"},
		Classes:      []types.TutorClass{{ClassID: calc.ID, GradeReceived: "A", HasTAed: true, Semester: "Fall", YearTaken: 2024}},
	})
	b := seedTutor(t, storage, types.TutorFeatures{Bio: "physics", HourlyRateCents: 2500, SessionMode: "online"})

	all, err := storage.ListTutorProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a, all[0].UserID)
	require.Len(t, all[0].Classes, 1)
	assert.True(t, all[0].Classes[0].HasTAed)
	assert.Equal(t, "A", all[0].Classes[0].GradeReceived)
	assert.Empty(t, all[1].Classes)

	some, err := storage.ListTutorProfilesByIDs(ctx, []int64{b, 999})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, 2500, some[0].HourlyRateCents)
	assert.Equal(t, "online", some[0].SessionMode)

	none, err := storage.ListTutorProfilesByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := storage.GetTutorProfile(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"calculus"}, got.HelpProvided)

	_, err = storage.GetTutorProfile(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailability(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, storage, true, true)

	slots := []types.AvailabilitySlot{
		{DayOfWeek: 2, StartMinute: 600, EndMinute: 660},
		{DayOfWeek: 0, StartMinute: 540, EndMinute: 600},
	}
	require.NoError(t, storage.ReplaceAvailability(ctx, u.ID, slots))

	got, err := storage.ListAvailability(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].DayOfWeek, "ordered by day")

	err = storage.ReplaceAvailability(ctx, u.ID, []types.AvailabilitySlot{{DayOfWeek: 1, StartMinute: 600, EndMinute: 540}})
	assert.ErrorIs(t, err, ErrInvalidRow)

	got, err = storage.ListAvailability(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2, "failed replace leaves slots untouched")

	byUser, err := storage.ListAvailabilityByUsers(ctx, []int64{u.ID, 999})
	require.NoError(t, err)
	assert.Len(t, byUser[u.ID], 2)
	assert.Empty(t, byUser[999])
}

func TestTransactionStaging(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, storage, true, false)

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.UpsertStudentProfile(ctx, &types.StudentFeatures{UserID: u.ID, Bio: "staged"}))
	require.NoError(t, tx.UpsertEmbedding(ctx, &Embedding{
		UserID: u.ID, Role: types.RoleStudent, Field: types.FieldBio, Model: "m", Vector: []float64{1, 0},
	}))

	_, err = tx.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrNestedTx)

	require.NoError(t, tx.Rollback())

	_, err = storage.GetStudentProfile(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetEmbedding(ctx, SlotKey{UserID: u.ID, Role: types.RoleStudent, Field: types.FieldBio, Model: "m"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	student := seedStudent(t, storage, types.StudentFeatures{Bio: "s"})
	tutor := seedTutor(t, storage, types.TutorFeatures{Bio: "t"})
	require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{
		UserID: tutor, Role: types.RoleTutor, Field: types.FieldBio, Model: "m", Vector: []float64{1},
	}))
	_, err := storage.CreateRunWithMatches(ctx, &MatchRun{StudentID: student, ModelName: "m"},
		[]types.RankedMatch{{TutorID: tutor, FinalScore: 0.5}})
	require.NoError(t, err)

	require.NoError(t, storage.DeleteUser(ctx, tutor))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.TutorsCount)
	assert.Equal(t, 0, status.EmbeddingsCount)
	assert.Equal(t, 0, status.MatchesCount)
	assert.Equal(t, 1, status.RunsCount)
}
