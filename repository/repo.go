package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"video-relay/constant"
	"video-relay/entities"
)

var (
	ErrNotFound          = errors.New("generation not found")
	ErrAlreadyExists     = errors.New("generation already exists")
	ErrCapacityExceeded  = errors.New("generation store is full")
	ErrTerminalState     = errors.New("generation already in a terminal state")
	ErrInvalidTransition = errors.New("invalid generation status transition")
)

type GenerationRepository interface {
	Create(ctx context.Context, id uuid.UUID, prompt string) error
	Update(ctx context.Context, id uuid.UUID, update entities.GenerationUpdate) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	Get(ctx context.Context, id uuid.UUID) (entities.Generation, error)
	Reap(ctx context.Context, maxAge time.Duration) (int, error)
	Count(ctx context.Context) (total int, active int, err error)
}

// Clock returns the current time. Tests substitute a fixed or stepping clock.
type Clock func() time.Time

type Options struct {
	Clock Clock
	// MaxRecords caps the number of stored generations. Zero means unlimited.
	MaxRecords int
}

type repo struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]*entities.Generation
	now         Clock
	maxRecords  int
}

func NewRepo(opts Options) GenerationRepository {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &repo{
		generations: make(map[uuid.UUID]*entities.Generation),
		now:         now,
		maxRecords:  opts.MaxRecords,
	}
}

func (r *repo) Create(ctx context.Context, id uuid.UUID, prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generations[id]; ok {
		return ErrAlreadyExists
	}
	if r.maxRecords > 0 && len(r.generations) >= r.maxRecords {
		return ErrCapacityExceeded
	}

	now := r.now()
	r.generations[id] = &entities.Generation{
		ID:        id,
		Prompt:    prompt,
		Status:    constant.GenerationStatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, update entities.GenerationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	generation, ok := r.generations[id]
	if !ok {
		return ErrNotFound
	}
	if generation.Status.IsTerminal() {
		return ErrTerminalState
	}

	next := *generation
	if update.Status != nil {
		if !generation.Status.CanTransitionTo(*update.Status) {
			return ErrInvalidTransition
		}
		next.Status = *update.Status
	}
	if update.Progress != nil {
		next.Progress = mergeProgress(generation.Progress, *update.Progress, next.Status)
	}
	if update.VideoURL != nil {
		next.VideoURL = *update.VideoURL
	}
	if update.Provider != nil {
		next.Provider = *update.Provider
	}
	if update.Error != nil {
		next.Error = *update.Error
	}
	if update.CompletedAt != nil {
		completedAt := *update.CompletedAt
		next.CompletedAt = &completedAt
	}
	next.UpdatedAt = r.now()

	*generation = next
	zerolog.Ctx(ctx).Debug().
		Str("generation_id", id.String()).
		Str("status", next.Status.String()).
		Int("progress", next.Progress).
		Msg("generation updated")
	return nil
}

func (r *repo) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	err := r.Update(ctx, id, entities.GenerationUpdate{Progress: &progress})
	if errors.Is(err, ErrTerminalState) {
		return nil
	}
	return err
}

func (r *repo) Get(ctx context.Context, id uuid.UUID) (entities.Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	generation, ok := r.generations[id]
	if !ok {
		return entities.Generation{}, ErrNotFound
	}
	result := *generation
	if generation.CompletedAt != nil {
		completedAt := *generation.CompletedAt
		result.CompletedAt = &completedAt
	}
	return result, nil
}

func (r *repo) Reap(ctx context.Context, maxAge time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	cleaned := 0
	for id, generation := range r.generations {
		if generation.CreatedAt.Before(cutoff) {
			delete(r.generations, id)
			cleaned++
		}
	}
	return cleaned, nil
}

func (r *repo) Count(ctx context.Context) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := 0
	for _, generation := range r.generations {
		if !generation.Status.IsTerminal() {
			active++
		}
	}
	return len(r.generations), active, nil
}

// mergeProgress keeps progress within 0..100 and non-decreasing, except that a
// move to failed takes the requested value as is.
func mergeProgress(current, requested int, status constant.GenerationStatus) int {
	if requested < 0 {
		requested = 0
	}
	if requested > 100 {
		requested = 100
	}
	if status == constant.GenerationStatusFailed {
		return requested
	}
	if requested < current {
		return current
	}
	return requested
}
