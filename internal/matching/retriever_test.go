package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

func TestHelpTagSimilarity(t *testing.T) {
	student := types.JoinList([]string{"calculus", "derivatives"})
	tutor := types.JoinList([]string{"calculus", "integrals"})

	a := embedder.HashEmbed(student, embedder.HashDimension)
	b := embedder.HashEmbed(tutor, embedder.HashDimension)

	sim := storage.CosineSimilarity(a, b)
	assert.Greater(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
	assert.InDelta(t, 1.0, storage.CosineSimilarity(a, a), 1e-9)
}

func TestRetrieveOrdering(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	studentID := addStudent(t, store, calculusStudent)
	blank := addTutor(t, store, types.TutorFeatures{})
	partial := addTutor(t, store, types.TutorFeatures{
		Bio:          "math tutor",
		HelpProvided: []string{"calculus", "integrals"},
		Locations:    []string{"South"},
	})
	twinA := addTutor(t, store, types.TutorFeatures{
		Bio:          calculusStudent.Bio,
		HelpProvided: calculusStudent.HelpNeeded,
		Locations:    calculusStudent.Locations,
	})
	twinB := addTutor(t, store, types.TutorFeatures{
		Bio:          calculusStudent.Bio,
		HelpProvided: calculusStudent.HelpNeeded,
		Locations:    calculusStudent.Locations,
	})

	r := NewRetriever(store, embedder.NewHashProvider(nil), 3, logger.NewNop())
	got, err := r.Retrieve(ctx, RetrieveRequest{
		StudentID: studentID,
		TopK:      10,
		Weights:   types.DefaultFieldWeights(),
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, twinA, got[0].TutorID, "equal scores keep id order")
	assert.Equal(t, twinB, got[1].TutorID)
	assert.InDelta(t, 1.0, got[0].EmbeddingSimilarity, 1e-9)
	assert.Equal(t, partial, got[2].TutorID)
	assert.Equal(t, blank, got[3].TutorID)
	assert.Zero(t, got[3].EmbeddingSimilarity)

	student, err := store.GetStudentProfile(ctx, studentID)
	require.NoError(t, err)
	tutor, err := store.GetTutorProfile(ctx, partial)
	require.NoError(t, err)
	want := hashSimilarity(student.Texts(), tutor.Texts(), types.DefaultFieldWeights())
	assert.InDelta(t, want, got[2].EmbeddingSimilarity, 1e-12)
	assert.Greater(t, got[2].EmbeddingSimilarity, 0.0)
	assert.Less(t, got[2].EmbeddingSimilarity, 1.0)

	top, err := r.Retrieve(ctx, RetrieveRequest{StudentID: studentID, TopK: 2, Weights: types.DefaultFieldWeights()})
	require.NoError(t, err)
	assert.Equal(t, got[:2], top)
}

func TestRetrieveEmpty(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	r := NewRetriever(store, embedder.NewHashProvider(nil), 2, logger.NewNop())

	studentID := addStudent(t, store, calculusStudent)
	got, err := r.Retrieve(ctx, RetrieveRequest{StudentID: studentID, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, got, "no tutors")
	assert.NotNil(t, got)

	addTutor(t, store, types.TutorFeatures{Bio: "tutor"})
	got, err = r.Retrieve(ctx, RetrieveRequest{StudentID: 9999, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, got, "unknown student")
}

func TestRetrieveValidation(t *testing.T) {
	r := NewRetriever(panicStore{}, embedder.NewHashProvider(nil), 1, logger.NewNop())

	_, err := r.Retrieve(context.Background(), RetrieveRequest{StudentID: 1, TopK: 0})
	assert.ErrorIs(t, err, types.ErrInvalidTopK)

	_, err = r.Retrieve(context.Background(), RetrieveRequest{
		StudentID: 1,
		TopK:      5,
		Weights:   types.FieldWeights{Bio: -1},
	})
	assert.ErrorIs(t, err, types.ErrInvalidWeights)
}

func TestRetrieveUsesCachedVectors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	emb := newCountingEmbedder()

	studentID := addStudent(t, store, calculusStudent)
	tutorID := addTutor(t, store, types.TutorFeatures{Bio: "chemistry", HelpProvided: []string{"stoichiometry"}})

	r := NewRetriever(store, emb, 2, logger.NewNop())
	req := RetrieveRequest{StudentID: studentID, TopK: 5, Weights: types.DefaultFieldWeights()}

	// Nothing cached: all six slots are embedded on the fly
	got, err := r.Retrieve(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Less(t, got[0].EmbeddingSimilarity, 1.0)
	assert.Equal(t, int64(6), emb.calls.Load())

	// Cache the student's own vectors under the tutor's slots
	student, err := store.GetStudentProfile(ctx, studentID)
	require.NoError(t, err)
	for f, text := range student.Texts() {
		vec := embedder.HashEmbed(text, embedder.HashDimension)
		for _, row := range []*storage.Embedding{
			{UserID: studentID, Role: types.RoleStudent, Field: f, Model: embedder.HashModel, Vector: vec},
			{UserID: tutorID, Role: types.RoleTutor, Field: f, Model: embedder.HashModel, Vector: vec},
		} {
			require.NoError(t, store.UpsertEmbedding(ctx, row))
		}
	}

	emb.calls.Store(0)
	got, err = r.Retrieve(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].EmbeddingSimilarity, 1e-9)
	assert.Zero(t, emb.calls.Load(), "cached slots are not re-embedded")
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	store := setupStore(t)
	emb := newCountingEmbedder()
	emb.fail = embedder.ErrProviderFailed

	studentID := addStudent(t, store, calculusStudent)
	addTutor(t, store, types.TutorFeatures{Bio: "tutor"})

	r := NewRetriever(store, emb, 2, logger.NewNop())
	_, err := r.Retrieve(context.Background(), RetrieveRequest{StudentID: studentID, TopK: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, embedder.ErrProviderFailed))
}

func TestRetrieveCancelled(t *testing.T) {
	store := setupStore(t)
	studentID := addStudent(t, store, calculusStudent)
	addTutor(t, store, types.TutorFeatures{Bio: "tutor"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetriever(store, embedder.NewHashProvider(nil), 2, logger.NewNop())
	_, err := r.Retrieve(ctx, RetrieveRequest{StudentID: studentID, TopK: 5})
	assert.Error(t, err)
}
