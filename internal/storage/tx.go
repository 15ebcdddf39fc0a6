package storage

import (
	"context"
	"database/sql"

	"github.com/dshills/tutormatch/pkg/types"
)

// sqliteTx wraps a SQL transaction. Every method runs on the transaction so
// that a caller can stage several writes and commit them together.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

func (t *sqliteTx) CreateUser(ctx context.Context, user *User) error {
	return t.storage.createUserWithQuerier(ctx, t.querier(), user)
}

func (t *sqliteTx) GetUser(ctx context.Context, userID int64) (*User, error) {
	return t.storage.getUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) DeleteUser(ctx context.Context, userID int64) error {
	return t.storage.deleteUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) CreateClass(ctx context.Context, class *Class) error {
	return t.storage.createClassWithQuerier(ctx, t.querier(), class)
}

func (t *sqliteTx) GetClass(ctx context.Context, classID int64) (*Class, error) {
	return t.storage.getClassWithQuerier(ctx, t.querier(), classID)
}

func (t *sqliteTx) UpsertStudentProfile(ctx context.Context, profile *types.StudentFeatures) error {
	return t.storage.upsertStudentProfileWithQuerier(ctx, t.querier(), profile)
}

func (t *sqliteTx) GetStudentProfile(ctx context.Context, userID int64) (*types.StudentFeatures, error) {
	return t.storage.getStudentProfileWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) ListStudentProfiles(ctx context.Context) ([]*types.StudentFeatures, error) {
	return t.storage.listStudentProfilesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpsertTutorProfile(ctx context.Context, profile *types.TutorFeatures) error {
	return t.storage.upsertTutorProfileWithQuerier(ctx, t.querier(), profile)
}

func (t *sqliteTx) GetTutorProfile(ctx context.Context, userID int64) (*types.TutorFeatures, error) {
	return t.storage.getTutorProfileWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) ListTutorProfiles(ctx context.Context) ([]*types.TutorFeatures, error) {
	return t.storage.listTutorProfilesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ListTutorProfilesByIDs(ctx context.Context, userIDs []int64) ([]*types.TutorFeatures, error) {
	return t.storage.listTutorProfilesByIDsWithQuerier(ctx, t.querier(), userIDs)
}

func (t *sqliteTx) ReplaceAvailability(ctx context.Context, userID int64, slots []types.AvailabilitySlot) error {
	return t.storage.replaceAvailabilityWithQuerier(ctx, t.querier(), userID, slots)
}

func (t *sqliteTx) ListAvailability(ctx context.Context, userID int64) ([]types.AvailabilitySlot, error) {
	byUser, err := t.storage.listAvailabilityByUsersWithQuerier(ctx, t.querier(), []int64{userID})
	if err != nil {
		return nil, err
	}
	return byUser[userID], nil
}

func (t *sqliteTx) ListAvailabilityByUsers(ctx context.Context, userIDs []int64) (map[int64][]types.AvailabilitySlot, error) {
	return t.storage.listAvailabilityByUsersWithQuerier(ctx, t.querier(), userIDs)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, key SlotKey) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), key)
}

func (t *sqliteTx) ListEmbeddings(ctx context.Context, role types.Role, model string, userIDs []int64) ([]*Embedding, error) {
	return t.storage.listEmbeddingsWithQuerier(ctx, t.querier(), role, model, userIDs)
}

func (t *sqliteTx) DeleteEmbeddings(ctx context.Context, userID int64) error {
	return t.storage.deleteEmbeddingsWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) CreateRunWithMatches(ctx context.Context, run *MatchRun, rows []types.RankedMatch) ([]*Match, error) {
	return t.storage.createRunWithMatchesWithQuerier(ctx, t.querier(), run, rows)
}

func (t *sqliteTx) GetLatestRun(ctx context.Context, studentID int64) (*MatchRun, error) {
	return t.storage.getLatestRunWithQuerier(ctx, t.querier(), studentID)
}

func (t *sqliteTx) ListMatchesByRun(ctx context.Context, runID int64) ([]*Match, error) {
	return t.storage.listMatchesByRunWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) AppendMatch(ctx context.Context, req AppendRequest) (*Match, bool, error) {
	return t.storage.appendMatchWithQuerier(ctx, t.querier(), req)
}

func (t *sqliteTx) MarkSelected(ctx context.Context, match *Match) (bool, error) {
	return t.storage.markSelectedWithQuerier(ctx, t.querier(), match)
}

func (t *sqliteTx) GetSelectedMatch(ctx context.Context, studentID, tutorID int64) (*Match, error) {
	return t.storage.getSelectedMatchWithQuerier(ctx, t.querier(), studentID, tutorID)
}

func (t *sqliteTx) HasStudentMatchedTutor(ctx context.Context, studentID, tutorID int64) (bool, error) {
	return t.storage.hasStudentMatchedTutorWithQuerier(ctx, t.querier(), studentID, tutorID)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
