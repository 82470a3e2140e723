package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"video-relay/constant"
	"video-relay/entities"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRepo(t *testing.T) (GenerationRepository, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRepo(Options{Clock: clock.Now}), clock
}

func statusPtr(s constant.GenerationStatus) *constant.GenerationStatus { return &s }
func intPtr(v int) *int                                                 { return &v }
func strPtr(v string) *string                                           { return &v }

func TestRepo_CreateAndGet(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, r.Create(ctx, id, "a cat on a sofa"))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "a cat on a sofa", got.Prompt)
	assert.Equal(t, constant.GenerationStatusQueued, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, clock.Now(), got.CreatedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.VideoURL)
	assert.Empty(t, got.Error)
}

func TestRepo_CreateDuplicate(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, r.Create(ctx, id, "first"))
	assert.ErrorIs(t, r.Create(ctx, id, "second"), ErrAlreadyExists)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Prompt)
}

func TestRepo_Capacity(t *testing.T) {
	r := NewRepo(Options{MaxRecords: 1})
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, uuid.New(), "one"))
	assert.ErrorIs(t, r.Create(ctx, uuid.New(), "two"), ErrCapacityExceeded)
}

func TestRepo_NotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := r.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Update(ctx, id, entities.GenerationUpdate{Progress: intPtr(10)}), ErrNotFound)
	assert.ErrorIs(t, r.UpdateProgress(ctx, id, 10), ErrNotFound)
}

func TestRepo_UpdateMergesFields(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "ocean waves"))

	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:   statusPtr(constant.GenerationStatusProcessing),
		Progress: intPtr(10),
	}))

	clock.Advance(time.Minute)
	completedAt := clock.Now()
	provider := constant.ProviderMock
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:      statusPtr(constant.GenerationStatusCompleted),
		Progress:    intPtr(100),
		VideoURL:    strPtr("https://example.com/ocean.mp4"),
		Provider:    &provider,
		CompletedAt: &completedAt,
	}))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constant.GenerationStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "https://example.com/ocean.mp4", got.VideoURL)
	assert.Equal(t, constant.ProviderMock, got.Provider)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completedAt, *got.CompletedAt)
	assert.Equal(t, "ocean waves", got.Prompt)
}

func TestRepo_ProgressNeverDecreases(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "forest"))
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:   statusPtr(constant.GenerationStatusProcessing),
		Progress: intPtr(90),
	}))

	require.NoError(t, r.UpdateProgress(ctx, id, 35))
	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 90, got.Progress)

	require.NoError(t, r.UpdateProgress(ctx, id, 150))
	got, err = r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}

func TestRepo_FailedResetsProgress(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "city"))
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:   statusPtr(constant.GenerationStatusProcessing),
		Progress: intPtr(75),
	}))

	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:   statusPtr(constant.GenerationStatusFailed),
		Progress: intPtr(0),
		Error:    strPtr("boom"),
	}))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constant.GenerationStatusFailed, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, "boom", got.Error)
}

func TestRepo_TerminalIsFinal(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "city"))
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusProcessing)}))
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:   statusPtr(constant.GenerationStatusCompleted),
		Progress: intPtr(100),
		VideoURL: strPtr("https://example.com/city.mp4"),
	}))

	err := r.Update(ctx, id, entities.GenerationUpdate{
		Status: statusPtr(constant.GenerationStatusFailed),
		Error:  strPtr("late failure"),
	})
	assert.ErrorIs(t, err, ErrTerminalState)
	assert.NoError(t, r.UpdateProgress(ctx, id, 10))

	for i := 0; i < 3; i++ {
		got, err := r.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, constant.GenerationStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
		assert.Equal(t, "https://example.com/city.mp4", got.VideoURL)
		assert.Empty(t, got.Error)
	}
}

func TestRepo_InvalidTransition(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "cat"))

	err := r.Update(ctx, id, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusCompleted)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusProcessing)}))
	err = r.Update(ctx, id, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusQueued)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRepo_GetReturnsCopy(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "cat"))
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusProcessing)}))
	completedAt := clock.Now()
	require.NoError(t, r.Update(ctx, id, entities.GenerationUpdate{
		Status:      statusPtr(constant.GenerationStatusCompleted),
		CompletedAt: &completedAt,
	}))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	got.Prompt = "changed"
	*got.CompletedAt = completedAt.Add(time.Hour)

	again, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cat", again.Prompt)
	assert.Equal(t, completedAt, *again.CompletedAt)
}

func TestRepo_Reap(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()

	old := uuid.New()
	require.NoError(t, r.Create(ctx, old, "old"))
	clock.Advance(2 * time.Hour)
	fresh := uuid.New()
	require.NoError(t, r.Create(ctx, fresh, "fresh"))
	clock.Advance(23 * time.Hour)

	cleaned, err := r.Reap(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	_, err = r.Get(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(ctx, fresh)
	assert.NoError(t, err)

	cleaned, err = r.Reap(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)

	total, _, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRepo_ReapKeepsRecordAtExactCutoff(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, "edge"))
	clock.Advance(24 * time.Hour)

	cleaned, err := r.Reap(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)
}

func TestRepo_Count(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	queued := uuid.New()
	done := uuid.New()
	require.NoError(t, r.Create(ctx, queued, "a"))
	require.NoError(t, r.Create(ctx, done, "b"))
	require.NoError(t, r.Update(ctx, done, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusProcessing)}))
	require.NoError(t, r.Update(ctx, done, entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusFailed), Error: strPtr("x")}))

	total, active, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)
}

func TestRepo_ConcurrentUpdatesStayIsolated(t *testing.T) {
	r := NewRepo(Options{})
	ctx := context.Background()

	ids := make([]uuid.UUID, 16)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, r.Create(ctx, ids[i], fmt.Sprintf("prompt-%d", i)))
		require.NoError(t, r.Update(ctx, ids[i], entities.GenerationUpdate{Status: statusPtr(constant.GenerationStatusProcessing)}))
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			for p := 0; p <= 90; p += 10 {
				_ = r.UpdateProgress(ctx, id, p)
				_, _ = r.Get(ctx, id)
			}
			url := fmt.Sprintf("https://example.com/%d.mp4", i)
			_ = r.Update(ctx, id, entities.GenerationUpdate{
				Status:   statusPtr(constant.GenerationStatusCompleted),
				Progress: intPtr(100),
				VideoURL: &url,
			})
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		got, err := r.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("prompt-%d", i), got.Prompt)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d.mp4", i), got.VideoURL)
		assert.Equal(t, constant.GenerationStatusCompleted, got.Status)
	}
}
