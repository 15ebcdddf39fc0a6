package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// RerankRequest contains parameters for stage two
type RerankRequest struct {
	StudentID    int64
	CandidateIDs []int64
	TopK         int
	Model        string // defaults to the embedder's model
	FieldWeights types.FieldWeights
	Weights      types.RerankWeights
}

// Reranker combines embedding similarity with the structured signals
type Reranker struct {
	store   storage.Storage
	vectors *vectorSource
	log     *logger.Logger
}

// NewReranker creates a Reranker
func NewReranker(store storage.Storage, emb embedder.Embedder, log *logger.Logger) *Reranker {
	return &Reranker{
		store:   store,
		vectors: &vectorSource{store: store, embedder: emb},
		log:     log.With("component", "reranker"),
	}
}

func (r *Reranker) validateRequest(req *RerankRequest) error {
	if req.TopK <= 0 {
		return types.ErrInvalidTopK
	}
	if err := req.FieldWeights.Validate(); err != nil {
		return err
	}
	if err := req.Weights.Validate(); err != nil {
		return err
	}
	if req.Model == "" {
		req.Model = r.vectors.embedder.Model()
	}
	return nil
}

// Rerank scores the candidates and returns the best TopK, highest final
// score first with ties broken by lower tutor id. Candidates whose tutor
// profile no longer exists are skipped. No candidates means no store reads.
func (r *Reranker) Rerank(ctx context.Context, req RerankRequest) ([]types.RankedMatch, error) {
	if err := r.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid rerank request: %w", err)
	}
	if len(req.CandidateIDs) == 0 {
		return []types.RankedMatch{}, nil
	}

	student, err := r.store.GetStudentProfile(ctx, req.StudentID)
	if errors.Is(err, storage.ErrNotFound) {
		return []types.RankedMatch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	tutors, err := r.store.ListTutorProfilesByIDs(ctx, req.CandidateIDs)
	if err != nil {
		return nil, fmt.Errorf("load tutors: %w", err)
	}
	byID := make(map[int64]*types.TutorFeatures, len(tutors))
	for _, t := range tutors {
		byID[t.UserID] = t
	}

	userIDs := append([]int64{req.StudentID}, req.CandidateIDs...)
	slots, err := r.store.ListAvailabilityByUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	studentCache, err := r.vectors.cached(ctx, types.RoleStudent, req.Model, []int64{req.StudentID})
	if err != nil {
		return nil, err
	}
	studentVecs, err := r.vectors.complete(ctx, studentCache[req.StudentID], student.Texts())
	if err != nil {
		return nil, fmt.Errorf("student %d: %w", req.StudentID, err)
	}
	tutorCache, err := r.vectors.cached(ctx, types.RoleTutor, req.Model, req.CandidateIDs)
	if err != nil {
		return nil, err
	}

	studentRows := types.StudentClassRows(student.Classes)
	divisor := req.Weights.Divisor()

	ranked := make([]types.RankedMatch, 0, len(req.CandidateIDs))
	seen := make(map[int64]bool, len(req.CandidateIDs))
	for _, id := range req.CandidateIDs {
		tutor, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		tutorVecs, err := r.vectors.complete(ctx, tutorCache[id], tutor.Texts())
		if err != nil {
			return nil, fmt.Errorf("tutor %d: %w", id, err)
		}

		m := types.RankedMatch{
			TutorID:             id,
			EmbeddingSimilarity: fieldSimilarity(studentVecs, tutorVecs, req.FieldWeights),
			ClassStrength:       ClassStrength(types.TutorClassRows(tutor.Classes), studentRows),
			AvailabilityOverlap: AvailabilityOverlap(slots[req.StudentID], slots[id]),
			LocationMatch:       LocationMatch(student.Locations, tutor.Locations),
		}
		m.FinalScore = (req.Weights.Embedding*m.EmbeddingSimilarity +
			req.Weights.ClassStrength*m.ClassStrength +
			req.Weights.Availability*m.AvailabilityOverlap +
			req.Weights.Location*m.LocationMatch) / divisor
		ranked = append(ranked, m)
	}

	sortRanked(ranked)
	if len(ranked) > req.TopK {
		ranked = ranked[:req.TopK]
	}

	r.log.Debug("reranked candidates",
		"student_id", req.StudentID,
		"candidates", len(req.CandidateIDs),
		"scored", len(seen),
		"returned", len(ranked))
	return ranked, nil
}

// sortRanked orders by final score descending, then tutor id ascending
func sortRanked(rows []types.RankedMatch) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FinalScore != rows[j].FinalScore {
			return rows[i].FinalScore > rows[j].FinalScore
		}
		return rows[i].TutorID < rows[j].TutorID
	})
}
