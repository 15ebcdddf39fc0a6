package refresher

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/matching"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// flakyEmbedder fails any batch containing the word "boom"
type flakyEmbedder struct {
	embedder.Embedder
}

func (f *flakyEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	for _, text := range req.Texts {
		if strings.Contains(text, "boom") {
			return nil, embedder.ErrProviderFailed
		}
	}
	return f.Embedder.GenerateBatch(ctx, req)
}

type fixture struct {
	store    *storage.SQLiteStorage
	students []int64
	tutors   []int64
}

func setup(t *testing.T, students, tutors int) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store}
	seq := 0
	newUser := func(student, tutor bool) int64 {
		seq++
		u := &storage.User{Email: fmt.Sprintf("r%d@example.edu", seq), IsStudent: student, IsTutor: tutor}
		require.NoError(t, store.CreateUser(ctx, u))
		return u.ID
	}
	for i := 0; i < students; i++ {
		p := &types.StudentFeatures{
			UserID:     newUser(true, false),
			Bio:        fmt.Sprintf("student %d", i),
			HelpNeeded: []string{"calculus"},
		}
		require.NoError(t, store.UpsertStudentProfile(ctx, p))
		f.students = append(f.students, p.UserID)
	}
	for i := 0; i < tutors; i++ {
		p := &types.TutorFeatures{
			UserID:    newUser(false, true),
			Bio:       fmt.Sprintf("tutor %d", i),
			Locations: []string{"Library"},
		}
		require.NoError(t, store.UpsertTutorProfile(ctx, p))
		f.tutors = append(f.tutors, p.UserID)
	}
	return f
}

func newRefresher(t *testing.T, store storage.Storage, emb embedder.Embedder) *Refresher {
	t.Helper()
	svc, err := matching.NewService(store, emb, matching.DefaultOptions(), logger.NewNop())
	require.NoError(t, err)
	return New(svc, logger.NewNop())
}

func countSlots(t *testing.T, store storage.Storage, role types.Role) int {
	t.Helper()
	rows, err := store.ListEmbeddings(context.Background(), role, embedder.HashModel, nil)
	require.NoError(t, err)
	return len(rows)
}

func TestRefreshAll(t *testing.T) {
	f := setup(t, 5, 7)
	r := newRefresher(t, f.store, embedder.NewHashProvider(nil))

	stats, err := r.RefreshAll(context.Background(), &Config{Workers: 3, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, embedder.HashModel, stats.Model)
	assert.Equal(t, 5, stats.StudentsRefreshed)
	assert.Equal(t, 7, stats.TutorsRefreshed)
	assert.Equal(t, 0, stats.ProfilesFailed)
	assert.Equal(t, 36, stats.SlotsWritten)
	assert.Empty(t, stats.ErrorMessages)

	assert.Equal(t, 15, countSlots(t, f.store, types.RoleStudent))
	assert.Equal(t, 21, countSlots(t, f.store, types.RoleTutor))
	assert.False(t, r.Running())

	// A second full run replaces slots in place
	stats, err = r.RefreshAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 36, stats.SlotsWritten)
	assert.Equal(t, 21, countSlots(t, f.store, types.RoleTutor))
}

func TestRefreshAllOnlyMissing(t *testing.T) {
	f := setup(t, 2, 3)
	r := newRefresher(t, f.store, embedder.NewHashProvider(nil))
	ctx := context.Background()

	stats, err := r.RefreshAll(ctx, &Config{Roles: []types.Role{types.RoleTutor}})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TutorsRefreshed)
	assert.Zero(t, stats.StudentsRefreshed)
	assert.Zero(t, countSlots(t, f.store, types.RoleStudent))

	stats, err = r.RefreshAll(ctx, &Config{OnlyMissing: true})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ProfilesSkipped)
	assert.Equal(t, 2, stats.StudentsRefreshed)
	assert.Zero(t, stats.TutorsRefreshed)
	assert.Equal(t, 6, countSlots(t, f.store, types.RoleStudent))
}

func TestRefreshAllInvalidRole(t *testing.T) {
	f := setup(t, 0, 0)
	r := newRefresher(t, f.store, embedder.NewHashProvider(nil))

	_, err := r.RefreshAll(context.Background(), &Config{Roles: []types.Role{"admin"}})
	assert.ErrorIs(t, err, types.ErrInvalidRole)
	assert.False(t, r.Running(), "lock is released on error")
}

func TestRefreshAllPartialFailure(t *testing.T) {
	f := setup(t, 0, 3)
	ctx := context.Background()

	broken := &types.TutorFeatures{UserID: f.tutors[1], Bio: "boom"}
	require.NoError(t, f.store.UpsertTutorProfile(ctx, broken))

	r := newRefresher(t, f.store, &flakyEmbedder{Embedder: embedder.NewHashProvider(nil)})
	stats, err := r.RefreshAll(ctx, &Config{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TutorsRefreshed)
	assert.Equal(t, 1, stats.ProfilesFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], fmt.Sprintf("tutor %d", f.tutors[1]))
	assert.Equal(t, 6, countSlots(t, f.store, types.RoleTutor))
}

func TestRefreshAllRejectsConcurrentRun(t *testing.T) {
	f := setup(t, 1, 1)
	r := newRefresher(t, f.store, embedder.NewHashProvider(nil))

	require.True(t, r.lock.TryAcquire())
	assert.True(t, r.Running())

	_, err := r.RefreshAll(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	r.lock.Release()
	_, err = r.RefreshAll(context.Background(), nil)
	assert.NoError(t, err)
}

func TestRefreshAllCancelled(t *testing.T) {
	f := setup(t, 2, 2)
	r := newRefresher(t, f.store, embedder.NewHashProvider(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RefreshAll(ctx, nil)
	assert.Error(t, err)
	assert.Zero(t, countSlots(t, f.store, types.RoleTutor))
}

func TestRefreshLock(t *testing.T) {
	var l RefreshLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
