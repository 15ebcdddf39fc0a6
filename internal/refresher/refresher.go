package refresher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/matching"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// ErrRefreshInProgress is returned when a backfill is already running
var ErrRefreshInProgress = errors.New("embedding refresh already in progress")

// DefaultBatchSize is the number of profiles written per transaction
const DefaultBatchSize = 20

// Refresher coordinates bulk embedding refreshes
type Refresher struct {
	service *matching.Service
	store   storage.Storage
	lock    RefreshLock
	log     *logger.Logger
}

// Config contains configuration for a backfill
type Config struct {
	Workers     int          // Concurrent embedder calls (default: runtime.NumCPU())
	BatchSize   int          // Profiles per transaction (default: 20)
	Roles       []types.Role // Roles to refresh (default: both)
	OnlyMissing bool         // Skip profiles that already have every slot for the model
}

// Statistics contains statistics about a backfill
type Statistics struct {
	Model             string
	StudentsRefreshed int
	TutorsRefreshed   int
	ProfilesSkipped   int
	ProfilesFailed    int
	SlotsWritten      int
	Duration          time.Duration
	ErrorMessages     []string
}

// job is one profile to refresh
type job struct {
	userID int64
	role   types.Role
	texts  map[types.Field]string
}

// New creates a Refresher that writes through the service's store
func New(service *matching.Service, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Refresher{
		service: service,
		store:   service.Store(),
		log:     log.With("component", "refresher"),
	}
}

// Running reports whether a backfill holds the lock
func (r *Refresher) Running() bool {
	return r.lock.Held()
}

// RefreshAll recomputes the slot vectors of every selected profile
func (r *Refresher) RefreshAll(ctx context.Context, config *Config) (*Statistics, error) {
	if !r.lock.TryAcquire() {
		return nil, ErrRefreshInProgress
	}
	defer r.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	roles := config.Roles
	if len(roles) == 0 {
		roles = []types.Role{types.RoleStudent, types.RoleTutor}
	}

	start := time.Now()
	stats := &Statistics{Model: r.service.Model(), ErrorMessages: make([]string, 0)}

	var jobs []job
	for _, role := range roles {
		found, skipped, err := r.collect(ctx, role, config.OnlyMissing)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, found...)
		stats.ProfilesSkipped += skipped
	}

	r.log.Info("starting embedding refresh",
		"model", stats.Model,
		"profiles", len(jobs),
		"skipped", stats.ProfilesSkipped,
		"workers", workers,
		"batch_size", batchSize)

	if err := r.refreshJobs(ctx, jobs, workers, batchSize, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	r.log.Info("embedding refresh complete",
		"students", stats.StudentsRefreshed,
		"tutors", stats.TutorsRefreshed,
		"failed", stats.ProfilesFailed,
		"slots", stats.SlotsWritten,
		"duration", stats.Duration)
	return stats, nil
}

// collect lists the profiles of role, dropping fully cached ones when
// onlyMissing is set
func (r *Refresher) collect(ctx context.Context, role types.Role, onlyMissing bool) ([]job, int, error) {
	var jobs []job
	switch role {
	case types.RoleStudent:
		profiles, err := r.store.ListStudentProfiles(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list students: %w", err)
		}
		for _, p := range profiles {
			jobs = append(jobs, job{userID: p.UserID, role: role, texts: p.Texts()})
		}
	case types.RoleTutor:
		profiles, err := r.store.ListTutorProfiles(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list tutors: %w", err)
		}
		for _, p := range profiles {
			jobs = append(jobs, job{userID: p.UserID, role: role, texts: p.Texts()})
		}
	default:
		return nil, 0, fmt.Errorf("%w: %q", types.ErrInvalidRole, role)
	}

	if !onlyMissing || len(jobs) == 0 {
		return jobs, 0, nil
	}

	cached, err := r.store.ListEmbeddings(ctx, role, r.service.Model(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s embeddings: %w", role, err)
	}
	slots := make(map[int64]int, len(jobs))
	for _, e := range cached {
		slots[e.UserID]++
	}

	missing := jobs[:0]
	for _, j := range jobs {
		if slots[j.userID] < len(types.AllFields) {
			missing = append(missing, j)
		}
	}
	return missing, len(jobs) - len(missing), nil
}

// refreshJobs processes jobs in batches concurrently
func (r *Refresher) refreshJobs(ctx context.Context, jobs []job, workers, batchSize int, stats *Statistics) error {
	// Bounds embedder calls across all batches
	semaphore := make(chan struct{}, workers)

	var (
		students int32
		tutors   int32
		failed   int32
		slots    int32
	)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex // Protect stats.ErrorMessages

	for i := 0; i < len(jobs); i += batchSize {
		batch := jobs[i:min(i+batchSize, len(jobs))]

		g.Go(func() error {
			embedded := make([]matching.SlotEmbeddings, len(batch))
			for k, j := range batch {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case semaphore <- struct{}{}:
				}

				embs, err := r.service.EmbedTexts(gctx, j.texts)
				<-semaphore

				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					atomic.AddInt32(&failed, 1)
					mu.Lock()
					stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s %d: %v", j.role, j.userID, err))
					mu.Unlock()
					continue
				}
				embedded[k] = embs
			}

			written, err := r.writeBatch(gctx, batch, embedded)
			if err != nil {
				return err
			}
			for k, j := range batch {
				if embedded[k] == nil {
					continue
				}
				if j.role == types.RoleStudent {
					atomic.AddInt32(&students, 1)
				} else {
					atomic.AddInt32(&tutors, 1)
				}
			}
			atomic.AddInt32(&slots, int32(written))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.StudentsRefreshed = int(students)
	stats.TutorsRefreshed = int(tutors)
	stats.ProfilesFailed = int(failed)
	stats.SlotsWritten = int(slots)
	return nil
}

// writeBatch stages the embedded profiles of one batch in one transaction
func (r *Refresher) writeBatch(ctx context.Context, batch []job, embedded []matching.SlotEmbeddings) (int, error) {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var written int
	for k, j := range batch {
		if embedded[k] == nil {
			continue
		}
		n, err := r.service.StageEmbeddings(ctx, tx, j.userID, j.role, embedded[k])
		if err != nil {
			return 0, err
		}
		written += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, nil
}
