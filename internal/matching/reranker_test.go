package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/pkg/types"
)

func TestRerankEmptyCandidates(t *testing.T) {
	// Any store access would panic on the nil embedded interface
	r := NewReranker(panicStore{}, embedder.NewHashProvider(nil), logger.NewNop())

	got, err := r.Rerank(context.Background(), RerankRequest{
		StudentID: 1,
		TopK:      10,
		Weights:   types.DefaultRerankWeights(),
	})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRerankSignals(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	classID := addClass(t, store, "221")

	student := calculusStudent
	student.Classes = []types.StudentClass{{ClassID: classID, HelpLevel: 10, EstimatedGrade: "C"}}
	studentID := addStudent(t, store, student)

	tutorID := addTutor(t, store, types.TutorFeatures{
		Bio:          "calculus tutor",
		HelpProvided: []string{"calculus", "integrals"},
		Locations:    []string{"South"},
		Classes:      []types.TutorClass{{ClassID: classID, GradeReceived: "A", HasTAed: true}},
	})

	require.NoError(t, store.ReplaceAvailability(ctx, studentID, []types.AvailabilitySlot{{DayOfWeek: 0, StartMinute: 540, EndMinute: 600}}))
	require.NoError(t, store.ReplaceAvailability(ctx, tutorID, []types.AvailabilitySlot{{DayOfWeek: 0, StartMinute: 570, EndMinute: 630}}))

	r := NewReranker(store, embedder.NewHashProvider(nil), logger.NewNop())
	got, err := r.Rerank(ctx, RerankRequest{
		StudentID:    studentID,
		CandidateIDs: []int64{tutorID},
		TopK:         10,
		FieldWeights: types.DefaultFieldWeights(),
		Weights:      types.DefaultRerankWeights(),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	m := got[0]
	assert.Equal(t, tutorID, m.TutorID)
	assert.InDelta(t, 0.7194767441860465, m.ClassStrength, 1e-12)
	assert.InDelta(t, 0.5, m.AvailabilityOverlap, 1e-12)
	assert.InDelta(t, 0.5, m.LocationMatch, 1e-12)

	sp, err := store.GetStudentProfile(ctx, studentID)
	require.NoError(t, err)
	tp, err := store.GetTutorProfile(ctx, tutorID)
	require.NoError(t, err)
	sim := hashSimilarity(sp.Texts(), tp.Texts(), types.DefaultFieldWeights())
	assert.InDelta(t, sim, m.EmbeddingSimilarity, 1e-12)

	want := 0.45*sim + 0.35*m.ClassStrength + 0.10*0.5 + 0.10*0.5
	assert.InDelta(t, want, m.FinalScore, 1e-9)
}

func TestRerankOrderingAndSkips(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	studentID := addStudent(t, store, calculusStudent)
	twin := types.TutorFeatures{Bio: "calculus tutor", Locations: []string{"North"}}
	first := addTutor(t, store, twin)
	second := addTutor(t, store, twin)
	best := addTutor(t, store, types.TutorFeatures{
		Bio:          calculusStudent.Bio,
		HelpProvided: calculusStudent.HelpNeeded,
		Locations:    calculusStudent.Locations,
	})

	r := NewReranker(store, embedder.NewHashProvider(nil), logger.NewNop())
	req := RerankRequest{
		StudentID:    studentID,
		CandidateIDs: []int64{second, 9999, first, best, second},
		TopK:         10,
		FieldWeights: types.DefaultFieldWeights(),
		Weights:      types.DefaultRerankWeights(),
	}
	got, err := r.Rerank(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 3, "unknown and repeated candidates are dropped")

	assert.Equal(t, best, got[0].TutorID)
	assert.Equal(t, first, got[1].TutorID, "ties go to the lower tutor id")
	assert.Equal(t, second, got[2].TutorID)
	assert.Equal(t, got[1].FinalScore, got[2].FinalScore)

	req.TopK = 1
	top, err := r.Rerank(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, got[:1], top)
}

func TestRerankWeightScaling(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	studentID := addStudent(t, store, calculusStudent)
	a := addTutor(t, store, types.TutorFeatures{Bio: "calculus tutor", Locations: []string{"North"}})
	b := addTutor(t, store, types.TutorFeatures{Bio: "history", Locations: []string{"South", "North"}})

	r := NewReranker(store, embedder.NewHashProvider(nil), logger.NewNop())
	base := RerankRequest{
		StudentID:    studentID,
		CandidateIDs: []int64{a, b},
		TopK:         10,
		FieldWeights: types.DefaultFieldWeights(),
		Weights:      types.DefaultRerankWeights(),
	}
	scaled := base
	scaled.FieldWeights = types.FieldWeights{Bio: 3, Help: 3, Locations: 1.5}
	scaled.Weights = types.RerankWeights{Embedding: 4.5, ClassStrength: 3.5, Availability: 1, Location: 1}

	want, err := r.Rerank(ctx, base)
	require.NoError(t, err)
	got, err := r.Rerank(ctx, scaled)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].TutorID, got[i].TutorID)
		assert.InDelta(t, want[i].FinalScore, got[i].FinalScore, 1e-12)
	}
}

func TestRerankZeroWeights(t *testing.T) {
	store := setupStore(t)
	studentID := addStudent(t, store, calculusStudent)
	tutorID := addTutor(t, store, types.TutorFeatures{Locations: []string{"North", "South"}})

	r := NewReranker(store, embedder.NewHashProvider(nil), logger.NewNop())
	got, err := r.Rerank(context.Background(), RerankRequest{
		StudentID:    studentID,
		CandidateIDs: []int64{tutorID},
		TopK:         1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].FinalScore)
	assert.InDelta(t, 1.0, got[0].LocationMatch, 1e-12)
}

func TestRerankValidation(t *testing.T) {
	r := NewReranker(panicStore{}, embedder.NewHashProvider(nil), logger.NewNop())
	ctx := context.Background()

	_, err := r.Rerank(ctx, RerankRequest{StudentID: 1, CandidateIDs: []int64{2}})
	assert.ErrorIs(t, err, types.ErrInvalidTopK)

	_, err = r.Rerank(ctx, RerankRequest{
		StudentID:    1,
		CandidateIDs: []int64{2},
		TopK:         1,
		Weights:      types.RerankWeights{Location: -0.1},
	})
	assert.ErrorIs(t, err, types.ErrInvalidWeights)
}
