package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// RetrieveRequest contains parameters for stage one
type RetrieveRequest struct {
	StudentID int64
	TopK      int
	Model     string // defaults to the embedder's model
	Weights   types.FieldWeights
}

// Retriever scores every tutor against a student by embedding similarity
type Retriever struct {
	store   storage.Storage
	vectors *vectorSource
	workers int
	log     *logger.Logger
}

// NewRetriever creates a Retriever. Workers bounds how many tutors are
// scored at once; values below 1 mean 1.
func NewRetriever(store storage.Storage, emb embedder.Embedder, workers int, log *logger.Logger) *Retriever {
	if workers < 1 {
		workers = 1
	}
	return &Retriever{
		store:   store,
		vectors: &vectorSource{store: store, embedder: emb},
		workers: workers,
		log:     log.With("component", "retriever"),
	}
}

func (r *Retriever) validateRequest(req *RetrieveRequest) error {
	if req.TopK <= 0 {
		return types.ErrInvalidTopK
	}
	if err := req.Weights.Validate(); err != nil {
		return err
	}
	if req.Model == "" {
		req.Model = r.vectors.embedder.Model()
	}
	return nil
}

// Retrieve returns up to TopK candidates ordered by descending similarity.
// Equal scores keep tutor id order. An unknown student or an empty tutor
// pool yields an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) ([]types.Candidate, error) {
	if err := r.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid retrieve request: %w", err)
	}

	student, err := r.store.GetStudentProfile(ctx, req.StudentID)
	if errors.Is(err, storage.ErrNotFound) {
		return []types.Candidate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	tutors, err := r.store.ListTutorProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tutors: %w", err)
	}
	if len(tutors) == 0 {
		return []types.Candidate{}, nil
	}

	studentCache, err := r.vectors.cached(ctx, types.RoleStudent, req.Model, []int64{req.StudentID})
	if err != nil {
		return nil, err
	}
	studentVecs, err := r.vectors.complete(ctx, studentCache[req.StudentID], student.Texts())
	if err != nil {
		return nil, fmt.Errorf("student %d: %w", req.StudentID, err)
	}

	tutorCache, err := r.vectors.cached(ctx, types.RoleTutor, req.Model, nil)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.Candidate, len(tutors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, tutor := range tutors {
		g.Go(func() error {
			tutorVecs, err := r.vectors.complete(gctx, tutorCache[tutor.UserID], tutor.Texts())
			if err != nil {
				return fmt.Errorf("tutor %d: %w", tutor.UserID, err)
			}
			candidates[i] = types.Candidate{
				TutorID:             tutor.UserID,
				EmbeddingSimilarity: fieldSimilarity(studentVecs, tutorVecs, req.Weights),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Tutors arrive in id order, so a stable sort keeps ties by id
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EmbeddingSimilarity > candidates[j].EmbeddingSimilarity
	})
	if len(candidates) > req.TopK {
		candidates = candidates[:req.TopK]
	}

	r.log.Debug("retrieved candidates",
		"student_id", req.StudentID,
		"tutors", len(tutors),
		"cached_tutors", len(tutorCache),
		"returned", len(candidates))
	return candidates, nil
}
