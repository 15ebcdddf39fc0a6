package matching

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// countingEmbedder wraps the hash embedder and counts single-text calls
type countingEmbedder struct {
	embedder.Embedder
	calls atomic.Int64
	fail  error
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{Embedder: embedder.NewHashProvider(nil)}
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	c.calls.Add(1)
	if c.fail != nil {
		return nil, c.fail
	}
	return c.Embedder.GenerateEmbedding(ctx, req)
}

func (c *countingEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	c.calls.Add(int64(len(req.Texts)))
	if c.fail != nil {
		return nil, c.fail
	}
	return c.Embedder.GenerateBatch(ctx, req)
}

// panicStore fails the test on any store access
type panicStore struct {
	storage.Storage
}

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var (
	emailMu  sync.Mutex
	emailSeq int
)

func newUser(t *testing.T, s storage.Storage, student, tutor bool) int64 {
	t.Helper()
	emailMu.Lock()
	emailSeq++
	email := fmt.Sprintf("match%d@example.edu", emailSeq)
	emailMu.Unlock()

	u := &storage.User{Email: email, FirstName: "Test", IsStudent: student, IsTutor: tutor}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u.ID
}

func addStudent(t *testing.T, s storage.Storage, p types.StudentFeatures) int64 {
	t.Helper()
	p.UserID = newUser(t, s, true, false)
	require.NoError(t, s.UpsertStudentProfile(context.Background(), &p))
	return p.UserID
}

func addTutor(t *testing.T, s storage.Storage, p types.TutorFeatures) int64 {
	t.Helper()
	p.UserID = newUser(t, s, false, true)
	require.NoError(t, s.UpsertTutorProfile(context.Background(), &p))
	return p.UserID
}

func addClass(t *testing.T, s storage.Storage, number string) int64 {
	t.Helper()
	c := &storage.Class{Subject: "MATH", ClassNumber: number, Professor: "Noether"}
	require.NoError(t, s.CreateClass(context.Background(), c))
	return c.ID
}

// hashSimilarity scores two text sets with the hash embedder directly
func hashSimilarity(a, b map[types.Field]string, w types.FieldWeights) float64 {
	va := make(slotVectors)
	vb := make(slotVectors)
	for _, f := range types.AllFields {
		va[f] = embedder.HashEmbed(a[f], embedder.HashDimension)
		vb[f] = embedder.HashEmbed(b[f], embedder.HashDimension)
	}
	return fieldSimilarity(va, vb, w)
}

var calculusStudent = types.StudentFeatures{
	Bio:        "second year engineering student struggling with calculus",
	HelpNeeded: []string{"calculus", "derivatives"},
	Locations:  []string{"North", "South"},
}
