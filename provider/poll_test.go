package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPoll = PollPolicy{Interval: time.Millisecond, MaxAttempts: 5}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type recordingTracker struct {
	mu    sync.Mutex
	calls []int
}

func (r *recordingTracker) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, progress)
	return nil
}

func (r *recordingTracker) Calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

func TestPoll_SucceedsAfterPending(t *testing.T) {
	checks := 0
	url, err := Poll(context.Background(), fastPoll, func(ctx context.Context) (PollResult, error) {
		checks++
		if checks < 3 {
			return PollResult{State: JobPending}, nil
		}
		return PollResult{State: JobSucceeded, VideoURL: "https://example.com/v.mp4"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v.mp4", url)
	assert.Equal(t, 3, checks)
}

func TestPoll_JobFailedStopsImmediately(t *testing.T) {
	checks := 0
	_, err := Poll(context.Background(), fastPoll, func(ctx context.Context) (PollResult, error) {
		checks++
		return PollResult{State: JobFailed, Detail: "nsfw"}, nil
	})

	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "nsfw")
	assert.Equal(t, 1, checks)
}

func TestPoll_SucceededWithoutURLIsMalformed(t *testing.T) {
	_, err := Poll(context.Background(), fastPoll, func(ctx context.Context) (PollResult, error) {
		return PollResult{State: JobSucceeded}, nil
	})

	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestPoll_BudgetExhausted(t *testing.T) {
	checks := 0
	_, err := Poll(context.Background(), fastPoll, func(ctx context.Context) (PollResult, error) {
		checks++
		return PollResult{State: JobPending}, nil
	})

	assert.ErrorIs(t, err, ErrPollBudgetExhausted)
	assert.Equal(t, 5, checks)
}

func TestPoll_TransientErrorsAreRetried(t *testing.T) {
	checks := 0
	url, err := Poll(context.Background(), fastPoll, func(ctx context.Context) (PollResult, error) {
		checks++
		if checks == 1 {
			return PollResult{}, errors.New("connection reset")
		}
		return PollResult{State: JobSucceeded, VideoURL: "https://example.com/v.mp4"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v.mp4", url)
	assert.Equal(t, 2, checks)
}

func TestPoll_TransientErrorsExhaustBudget(t *testing.T) {
	_, err := Poll(context.Background(), fastPoll, func(ctx context.Context) (PollResult, error) {
		return PollResult{}, errors.New("connection refused")
	})

	assert.ErrorIs(t, err, ErrPollBudgetExhausted)
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := PollPolicy{Interval: time.Hour, MaxAttempts: 10}

	done := make(chan error, 1)
	go func() {
		_, err := Poll(ctx, policy, func(ctx context.Context) (PollResult, error) {
			return PollResult{State: JobPending}, nil
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
}

func TestPoll_WaitFirstHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	checked := false
	_, err := Poll(ctx, PollPolicy{Interval: time.Hour, MaxAttempts: 1, WaitFirst: true}, func(ctx context.Context) (PollResult, error) {
		checked = true
		return PollResult{State: JobSucceeded, VideoURL: "x"}, nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, checked)
}

func TestDoJSON_FakeTransport(t *testing.T) {
	var seen *http.Request
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = req
		return jsonResponse(http.StatusCreated, `{"id":"abc"}`), nil
	})}

	header := http.Header{}
	header.Set("Authorization", "Bearer k")
	status, body, err := doJSON(context.Background(), client, http.MethodPost, "https://provider.test/jobs", header, map[string]string{"prompt": "p"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"id":"abc"}`, string(body))
	require.NotNil(t, seen)
	assert.Equal(t, "Bearer k", seen.Header.Get("Authorization"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
}

func TestDoJSON_TransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: no route to host")
	})}

	_, _, err := doJSON(context.Background(), client, http.MethodGet, "https://provider.test/jobs/1", nil, nil)
	assert.Error(t, err)
}
