package storage

import (
	"context"
	"time"

	"github.com/dshills/tutormatch/pkg/types"
)

// Storage defines the interface for persisting profiles, cached embeddings
// and match history
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID int64) (*User, error)
	DeleteUser(ctx context.Context, userID int64) error

	// Class operations
	CreateClass(ctx context.Context, class *Class) error
	GetClass(ctx context.Context, classID int64) (*Class, error)

	// Profile operations
	UpsertStudentProfile(ctx context.Context, profile *types.StudentFeatures) error
	GetStudentProfile(ctx context.Context, userID int64) (*types.StudentFeatures, error)
	ListStudentProfiles(ctx context.Context) ([]*types.StudentFeatures, error)
	UpsertTutorProfile(ctx context.Context, profile *types.TutorFeatures) error
	GetTutorProfile(ctx context.Context, userID int64) (*types.TutorFeatures, error)
	ListTutorProfiles(ctx context.Context) ([]*types.TutorFeatures, error)
	ListTutorProfilesByIDs(ctx context.Context, userIDs []int64) ([]*types.TutorFeatures, error)

	// Availability operations
	ReplaceAvailability(ctx context.Context, userID int64, slots []types.AvailabilitySlot) error
	ListAvailability(ctx context.Context, userID int64) ([]types.AvailabilitySlot, error)
	ListAvailabilityByUsers(ctx context.Context, userIDs []int64) (map[int64][]types.AvailabilitySlot, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, key SlotKey) (*Embedding, error)
	ListEmbeddings(ctx context.Context, role types.Role, model string, userIDs []int64) ([]*Embedding, error)
	DeleteEmbeddings(ctx context.Context, userID int64) error

	// Match operations
	CreateRunWithMatches(ctx context.Context, run *MatchRun, rows []types.RankedMatch) ([]*Match, error)
	GetLatestRun(ctx context.Context, studentID int64) (*MatchRun, error)
	ListMatchesByRun(ctx context.Context, runID int64) ([]*Match, error)
	AppendMatch(ctx context.Context, req AppendRequest) (match *Match, created bool, err error)
	MarkSelected(ctx context.Context, match *Match) (bool, error)
	GetSelectedMatch(ctx context.Context, studentID, tutorID int64) (*Match, error)
	HasStudentMatchedTutor(ctx context.Context, studentID, tutorID int64) (bool, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// User is an account that may hold a student profile, a tutor profile or both
type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	IsStudent bool
	IsTutor   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Class is a course offering that students and tutors link to
type Class struct {
	ID          int64
	Subject     string
	ClassNumber string
	Professor   string
	CreatedAt   time.Time
}

// SlotKey identifies one cached embedding
type SlotKey struct {
	UserID int64
	Role   types.Role
	Field  types.Field
	Model  string
}

// Embedding is a cached vector for one (user, role, field, model) slot
type Embedding struct {
	ID        int64
	UserID    int64
	Role      types.Role
	Field     types.Field
	Model     string
	Vector    []float64
	Dimension int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the slot this embedding occupies
func (e *Embedding) Key() SlotKey {
	return SlotKey{UserID: e.UserID, Role: e.Role, Field: e.Field, Model: e.Model}
}

// MatchRun is one persisted matching computation for a student
type MatchRun struct {
	ID        int64
	StudentID int64
	ModelName string
	TopK      int
	Weights   types.RerankWeights
	CreatedAt time.Time
}

// Match is one ranked tutor within a run
type Match struct {
	ID                  int64
	RunID               int64
	StudentID           int64
	TutorID             int64
	Rank                int
	SimilarityScore     float64 // final score
	EmbeddingSimilarity float64
	ClassStrength       float64
	AvailabilityOverlap float64
	LocationMatch       float64
	CreatedAt           time.Time
	SelectedAt          *time.Time // nil for rows written by a ranking
}

// Selected reports whether the student picked this tutor
func (m *Match) Selected() bool {
	return m.SelectedAt != nil
}

// Ranked returns the scores of the match as a ranked row
func (m *Match) Ranked() types.RankedMatch {
	return types.RankedMatch{
		TutorID:             m.TutorID,
		FinalScore:          m.SimilarityScore,
		EmbeddingSimilarity: m.EmbeddingSimilarity,
		ClassStrength:       m.ClassStrength,
		AvailabilityOverlap: m.AvailabilityOverlap,
		LocationMatch:       m.LocationMatch,
	}
}

// AppendRequest adds one scored tutor to a student's latest run. The model
// and weights are recorded only when no run exists yet.
type AppendRequest struct {
	StudentID int64
	Row       types.RankedMatch
	ModelName string
	Weights   types.RerankWeights
}

// Status contains row counts and database details
type Status struct {
	UsersCount      int
	StudentsCount   int
	TutorsCount     int
	ClassesCount    int
	EmbeddingsCount int
	RunsCount       int
	MatchesCount    int
	SchemaVersion   string
	DriverName      string
	BuildMode       string
	DatabaseSizeMB  float64
}
