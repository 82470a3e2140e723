package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"video-relay/dto"
)

func newTestLuma(t *testing.T, handler http.HandlerFunc, tracker ProgressTracker) *Luma {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultLumaConfig()
	cfg.APIKey = "luma-key"
	cfg.BaseURL = srv.URL
	cfg.Poll = PollPolicy{Interval: time.Millisecond, MaxAttempts: 5, WaitFirst: true}
	return NewLuma(cfg, srv.Client(), tracker, nil)
}

func TestLuma_Success(t *testing.T) {
	var polls int32
	tracker := &recordingTracker{}
	luma := newTestLuma(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer luma-key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/dream-machine/v1/generations":
			var body lumaRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a cat surfing", body.Prompt)
			assert.Equal(t, "16:9", body.AspectRatio)
			assert.False(t, body.Loop)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"gen-1","state":"queued"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/dream-machine/v1/generations/gen-1":
			if atomic.AddInt32(&polls, 1) < 2 {
				_, _ = w.Write([]byte(`{"id":"gen-1","state":"dreaming"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"gen-1","state":"completed","assets":{"video":"https://cdn.luma.test/gen-1.mp4"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}, tracker)

	url, ok := luma.Attempt(context.Background(), uuid.New(), dto.VideoRequest{Prompt: "a cat surfing"})

	require.True(t, ok)
	assert.Equal(t, "https://cdn.luma.test/gen-1.mp4", url)
	assert.Equal(t, []int{25, 50, 75, 90}, tracker.Calls())
}

func TestLuma_JobFailed(t *testing.T) {
	luma := newTestLuma(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"gen-2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"gen-2","state":"failed","failure_reason":"moderation"}`))
	}, nil)

	url, ok := luma.Attempt(context.Background(), uuid.New(), dto.VideoRequest{Prompt: "x"})

	assert.False(t, ok)
	assert.Empty(t, url)
}

func TestLuma_SubmitRejected(t *testing.T) {
	luma := newTestLuma(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}, nil)

	_, ok := luma.Attempt(context.Background(), uuid.New(), dto.VideoRequest{Prompt: "x"})
	assert.False(t, ok)
}

func TestLuma_PollBudgetExhausted(t *testing.T) {
	var polls int32
	luma := newTestLuma(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"gen-3"}`))
			return
		}
		atomic.AddInt32(&polls, 1)
		_, _ = w.Write([]byte(`{"id":"gen-3","state":"dreaming"}`))
	}, nil)

	_, ok := luma.Attempt(context.Background(), uuid.New(), dto.VideoRequest{Prompt: "x"})

	assert.False(t, ok)
	assert.Equal(t, int32(5), atomic.LoadInt32(&polls))
}

func TestLuma_NotConfigured(t *testing.T) {
	luma := NewLuma(DefaultLumaConfig(), nil, nil, nil)

	assert.False(t, luma.Configured())
	_, ok := luma.Attempt(context.Background(), uuid.New(), dto.VideoRequest{Prompt: "x"})
	assert.False(t, ok)
}
