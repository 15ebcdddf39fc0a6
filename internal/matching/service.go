package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// Default pipeline sizes
const (
	DefaultRetrieveTopK = 50
	DefaultRerankTopK   = 10
	DefaultWorkers      = 4
)

// Options tunes the two-stage pipeline
type Options struct {
	RetrieveTopK  int
	RerankTopK    int
	Workers       int
	FieldWeights  types.FieldWeights
	RerankWeights types.RerankWeights
}

// DefaultOptions returns the standard pipeline configuration
func DefaultOptions() Options {
	return Options{
		RetrieveTopK:  DefaultRetrieveTopK,
		RerankTopK:    DefaultRerankTopK,
		Workers:       DefaultWorkers,
		FieldWeights:  types.DefaultFieldWeights(),
		RerankWeights: types.DefaultRerankWeights(),
	}
}

// Validate checks top-k values and weights
func (o Options) Validate() error {
	if o.RetrieveTopK <= 0 || o.RerankTopK <= 0 {
		return types.ErrInvalidTopK
	}
	if err := o.FieldWeights.Validate(); err != nil {
		return err
	}
	return o.RerankWeights.Validate()
}

// Service orchestrates profile writes, embedding refreshes, ranking and
// match persistence. Each public method owns its transaction.
type Service struct {
	store     storage.Storage
	embedder  embedder.Embedder
	retriever *Retriever
	reranker  *Reranker
	opts      Options
	log       *logger.Logger
}

// NewService wires a Service over store and emb
func NewService(store storage.Storage, emb embedder.Embedder, opts Options, log *logger.Logger) (*Service, error) {
	if store == nil || emb == nil {
		return nil, errors.New("matching: store and embedder are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching options: %w", err)
	}
	return &Service{
		store:     store,
		embedder:  emb,
		retriever: NewRetriever(store, emb, opts.Workers, log),
		reranker:  NewReranker(store, emb, log),
		opts:      opts,
		log:       log.With("component", "matching"),
	}, nil
}

// Model returns the embedding model cached vectors are keyed under
func (s *Service) Model() string {
	return s.embedder.Model()
}

// Options returns the pipeline configuration
func (s *Service) Options() Options {
	return s.opts
}

// Store returns the underlying storage
func (s *Service) Store() storage.Storage {
	return s.store
}

// SlotEmbeddings holds freshly computed vectors for the three slots
type SlotEmbeddings map[types.Field]*embedder.Embedding

// EmbedTexts embeds the text of every slot in one batch
func (s *Service) EmbedTexts(ctx context.Context, texts map[types.Field]string) (SlotEmbeddings, error) {
	batch := make([]string, len(types.AllFields))
	for i, f := range types.AllFields {
		batch[i] = texts[f]
	}
	resp, err := s.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: batch})
	if err != nil {
		return nil, fmt.Errorf("embed profile: %w", err)
	}
	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", embedder.ErrProviderFailed, len(resp.Embeddings), len(batch))
	}
	out := make(SlotEmbeddings, len(batch))
	for i, f := range types.AllFields {
		out[f] = resp.Embeddings[i]
	}
	return out, nil
}

// StageEmbeddings upserts the slot vectors of one profile through st, which
// is usually a transaction owned by the caller
func (s *Service) StageEmbeddings(ctx context.Context, st storage.Storage, userID int64, role types.Role, embs SlotEmbeddings) (int, error) {
	var written int
	for _, f := range types.AllFields {
		emb, ok := embs[f]
		if !ok {
			continue
		}
		row := &storage.Embedding{
			UserID:    userID,
			Role:      role,
			Field:     f,
			Model:     s.Model(),
			Vector:    emb.Vector,
			Dimension: len(emb.Vector),
		}
		if err := st.UpsertEmbedding(ctx, row); err != nil {
			return written, fmt.Errorf("upsert %s %s embedding for %d: %w", role, f, userID, err)
		}
		written++
	}
	return written, nil
}

// withTx runs fn in a transaction on the service store
func (s *Service) withTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RefreshStudentEmbeddings recomputes the three slot vectors of a student
func (s *Service) RefreshStudentEmbeddings(ctx context.Context, studentID int64) error {
	p, err := s.store.GetStudentProfile(ctx, studentID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %d", types.ErrStudentNotFound, studentID)
	}
	if err != nil {
		return err
	}
	return s.refresh(ctx, studentID, types.RoleStudent, p.Texts())
}

// RefreshTutorEmbeddings recomputes the three slot vectors of a tutor
func (s *Service) RefreshTutorEmbeddings(ctx context.Context, tutorID int64) error {
	p, err := s.store.GetTutorProfile(ctx, tutorID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %d", types.ErrTutorNotFound, tutorID)
	}
	if err != nil {
		return err
	}
	return s.refresh(ctx, tutorID, types.RoleTutor, p.Texts())
}

func (s *Service) refresh(ctx context.Context, userID int64, role types.Role, texts map[types.Field]string) error {
	embs, err := s.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx storage.Tx) error {
		_, err := s.StageEmbeddings(ctx, tx, userID, role, embs)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Debug("refreshed embeddings", "user_id", userID, "role", role, "model", s.Model())
	return nil
}

// checkRole loads the user and confirms it holds role
func checkRole(ctx context.Context, st storage.Storage, userID int64, role types.Role) error {
	if userID <= 0 {
		return types.ErrInvalidUserID
	}
	user, err := st.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	switch {
	case role == types.RoleStudent && !user.IsStudent:
		return fmt.Errorf("%w: %d", types.ErrNotStudent, userID)
	case role == types.RoleTutor && !user.IsTutor:
		return fmt.Errorf("%w: %d", types.ErrNotTutor, userID)
	}
	return nil
}

// SaveStudentProfile writes the profile. When bio, help tags or locations
// changed, the three slot vectors are recomputed and written in the same
// transaction. It reports whether vectors were refreshed.
func (s *Service) SaveStudentProfile(ctx context.Context, p *types.StudentFeatures) (bool, error) {
	if err := checkRole(ctx, s.store, p.UserID, types.RoleStudent); err != nil {
		return false, err
	}
	for _, c := range p.Classes {
		if err := c.Validate(); err != nil {
			return false, fmt.Errorf("class %d: %w", c.ClassID, err)
		}
	}

	var embs SlotEmbeddings
	prev, err := s.store.GetStudentProfile(ctx, p.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound) || (err == nil && !types.SameTexts(prev.Texts(), p.Texts())):
		if embs, err = s.EmbedTexts(ctx, p.Texts()); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	}

	err = s.withTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpsertStudentProfile(ctx, p); err != nil {
			return err
		}
		_, err := s.StageEmbeddings(ctx, tx, p.UserID, types.RoleStudent, embs)
		return err
	})
	if err != nil {
		return false, err
	}
	s.log.Info("saved student profile", "user_id", p.UserID, "refreshed", embs != nil)
	return embs != nil, nil
}

// SaveTutorProfile is SaveStudentProfile for tutors
func (s *Service) SaveTutorProfile(ctx context.Context, p *types.TutorFeatures) (bool, error) {
	if err := checkRole(ctx, s.store, p.UserID, types.RoleTutor); err != nil {
		return false, err
	}

	var embs SlotEmbeddings
	prev, err := s.store.GetTutorProfile(ctx, p.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound) || (err == nil && !types.SameTexts(prev.Texts(), p.Texts())):
		if embs, err = s.EmbedTexts(ctx, p.Texts()); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	}

	err = s.withTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpsertTutorProfile(ctx, p); err != nil {
			return err
		}
		_, err := s.StageEmbeddings(ctx, tx, p.UserID, types.RoleTutor, embs)
		return err
	})
	if err != nil {
		return false, err
	}
	s.log.Info("saved tutor profile", "user_id", p.UserID, "refreshed", embs != nil)
	return embs != nil, nil
}

// SetAvailability replaces a user's weekly slots
func (s *Service) SetAvailability(ctx context.Context, userID int64, slots []types.AvailabilitySlot) error {
	if userID <= 0 {
		return types.ErrInvalidUserID
	}
	for _, slot := range slots {
		if err := slot.Validate(); err != nil {
			return fmt.Errorf("slot %s-%s on day %d: %w",
				types.FormatClock(slot.StartMinute), types.FormatClock(slot.EndMinute), slot.DayOfWeek, err)
		}
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	return s.store.ReplaceAvailability(ctx, userID, slots)
}

// ComputeRankedMatches runs retrieval then rerank for a student without
// persisting anything. An unknown student yields no matches.
func (s *Service) ComputeRankedMatches(ctx context.Context, studentID int64) ([]types.RankedMatch, error) {
	if studentID <= 0 {
		return nil, types.ErrInvalidUserID
	}
	candidates, err := s.retriever.Retrieve(ctx, RetrieveRequest{
		StudentID: studentID,
		TopK:      s.opts.RetrieveTopK,
		Model:     s.Model(),
		Weights:   s.opts.FieldWeights,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.TutorID
	}
	ranked, err := s.reranker.Rerank(ctx, RerankRequest{
		StudentID:    studentID,
		CandidateIDs: ids,
		TopK:         s.opts.RerankTopK,
		Model:        s.Model(),
		FieldWeights: s.opts.FieldWeights,
		Weights:      s.opts.RerankWeights,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return ranked, nil
}

// RunResult is a persisted run together with its rows in rank order
type RunResult struct {
	Run     *storage.MatchRun
	Matches []*storage.Match
}

// SaveRun persists rows as a new run for the student
func (s *Service) SaveRun(ctx context.Context, studentID int64, rows []types.RankedMatch) (*RunResult, error) {
	run := &storage.MatchRun{
		StudentID: studentID,
		ModelName: s.Model(),
		Weights:   s.opts.RerankWeights,
	}
	matches, err := s.store.CreateRunWithMatches(ctx, run, rows)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return &RunResult{Run: run, Matches: matches}, nil
}

// RefreshMatches computes a fresh ranking and stores it as the latest run
func (s *Service) RefreshMatches(ctx context.Context, studentID int64) (*RunResult, error) {
	if err := checkRole(ctx, s.store, studentID, types.RoleStudent); err != nil {
		return nil, err
	}
	if _, err := s.store.GetStudentProfile(ctx, studentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", types.ErrStudentNotFound, studentID)
		}
		return nil, err
	}

	ranked, err := s.ComputeRankedMatches(ctx, studentID)
	if err != nil {
		return nil, err
	}
	res, err := s.SaveRun(ctx, studentID, ranked)
	if err != nil {
		return nil, err
	}
	s.log.Info("stored match run",
		"student_id", studentID,
		"run_id", res.Run.ID,
		"matches", len(res.Matches))
	return res, nil
}

// GetLatestMatches returns the student's most recent run. A student with
// no runs yields a nil run and no matches.
func (s *Service) GetLatestMatches(ctx context.Context, studentID int64) (*RunResult, error) {
	if studentID <= 0 {
		return nil, types.ErrInvalidUserID
	}
	run, err := s.store.GetLatestRun(ctx, studentID)
	if errors.Is(err, storage.ErrNotFound) {
		return &RunResult{Matches: []*storage.Match{}}, nil
	}
	if err != nil {
		return nil, err
	}
	matches, err := s.store.ListMatchesByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &RunResult{Run: run, Matches: matches}, nil
}

// SelectResult reports the outcome of a selection
type SelectResult struct {
	Match *storage.Match
	// Created is true when this call recorded the selection
	Created bool
	// PreviouslyMatched is true when the student had already selected the
	// tutor; Match is then that earlier selection
	PreviouslyMatched bool
}

// SelectMatch records that the student picked tutorID. A tutor the student
// already selected returns that selection unchanged. Otherwise the tutor must
// be among the student's current ranked matches; a row the latest run
// already holds from a ranking is marked selected, and a missing one is
// appended without renumbering.
func (s *Service) SelectMatch(ctx context.Context, studentID, tutorID int64) (*SelectResult, error) {
	if studentID <= 0 || tutorID <= 0 {
		return nil, types.ErrInvalidUserID
	}
	if _, err := s.store.GetStudentProfile(ctx, studentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", types.ErrStudentNotFound, studentID)
		}
		return nil, err
	}
	if _, err := s.store.GetTutorProfile(ctx, tutorID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", types.ErrTutorNotFound, tutorID)
		}
		return nil, err
	}

	prev, err := s.store.GetSelectedMatch(ctx, studentID, tutorID)
	switch {
	case err == nil:
		return &SelectResult{Match: prev, PreviouslyMatched: true}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	ranked, err := s.ComputeRankedMatches(ctx, studentID)
	if err != nil {
		return nil, err
	}
	var row *types.RankedMatch
	for i := range ranked {
		if ranked[i].TutorID == tutorID {
			row = &ranked[i]
			break
		}
	}
	if row == nil {
		return nil, fmt.Errorf("%w: tutor %d for student %d", types.ErrTutorNotInCandidates, tutorID, studentID)
	}

	var (
		m        *storage.Match
		appended bool
		marked   bool
	)
	err = s.withTx(ctx, func(tx storage.Tx) error {
		var err error
		m, appended, err = tx.AppendMatch(ctx, storage.AppendRequest{
			StudentID: studentID,
			Row:       *row,
			ModelName: s.Model(),
			Weights:   s.opts.RerankWeights,
		})
		if err != nil {
			return fmt.Errorf("append match: %w", err)
		}
		if m.Selected() {
			// a concurrent call selected the tutor first
			return nil
		}
		marked, err = tx.MarkSelected(ctx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("selected match",
		"student_id", studentID,
		"tutor_id", tutorID,
		"run_id", m.RunID,
		"rank", m.Rank,
		"appended", appended,
		"created", marked)
	return &SelectResult{Match: m, Created: marked, PreviouslyMatched: !marked}, nil
}
