package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"video-relay/constant"
	"video-relay/dto"
	"video-relay/pkg/metrics"
)

// PlaceholderHuggingFaceURL is reported when video bytes were received but no
// object storage is configured to host them.
const PlaceholderHuggingFaceURL = "https://huggingface.co/generated-video-placeholder.mp4"

// minVideoBytes is the smallest response body accepted as a video file.
const minVideoBytes = 1000

// VideoStore hosts raw video bytes and returns a URL clients can fetch.
type VideoStore interface {
	PutVideo(ctx context.Context, key string, data []byte) (string, error)
}

type HuggingFaceConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	NumFrames      int
	GuidanceScale  float64
	RequestTimeout time.Duration
	// Poll governs retries while the inference endpoint answers 503 (model loading).
	Poll PollPolicy
}

func DefaultHuggingFaceConfig() HuggingFaceConfig {
	return HuggingFaceConfig{
		BaseURL:        "https://api-inference.huggingface.co",
		Model:          "damo-vilab/text-to-video-ms-1.7b",
		NumFrames:      16,
		GuidanceScale:  9.0,
		RequestTimeout: 60 * time.Second,
		Poll:           PollPolicy{Interval: 10 * time.Second, MaxAttempts: 6},
	}
}

// HuggingFace calls the synchronous inference API, which answers with the
// video bytes themselves.
type HuggingFace struct {
	base
	cfg    HuggingFaceConfig
	client *http.Client
	store  VideoStore
}

func NewHuggingFace(cfg HuggingFaceConfig, client *http.Client, store VideoStore, tracker ProgressTracker, m *metrics.Collector) *HuggingFace {
	return &HuggingFace{
		base:   base{name: constant.ProviderHuggingFace, tracker: tracker, metrics: m},
		cfg:    cfg,
		client: newHTTPClient(client, cfg.RequestTimeout),
		store:  store,
	}
}

type huggingFaceParameters struct {
	NumFrames     int     `json:"num_frames"`
	GuidanceScale float64 `json:"guidance_scale"`
}

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

func (h *HuggingFace) Name() constant.ProviderName { return h.name }

func (h *HuggingFace) Configured() bool { return h.cfg.APIKey != "" }

func (h *HuggingFace) Attempt(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, bool) {
	return h.run(ctx, generationID, h.Configured(), func(ctx context.Context) (string, error) {
		return h.generate(ctx, generationID, req)
	})
}

func (h *HuggingFace) generate(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, error) {
	h.progress(ctx, generationID, 40)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	endpoint := fmt.Sprintf("%s/models/%s", h.cfg.BaseURL, h.cfg.Model)
	payload := huggingFaceRequest{
		Inputs: req.Prompt,
		Parameters: huggingFaceParameters{
			NumFrames:     h.cfg.NumFrames,
			GuidanceScale: h.cfg.GuidanceScale,
		},
	}

	h.progress(ctx, generationID, 65)
	url, err := Poll(ctx, h.cfg.Poll, func(ctx context.Context) (PollResult, error) {
		status, body, err := doJSON(ctx, h.client, http.MethodPost, endpoint, header, payload)
		if err != nil {
			return PollResult{}, err
		}
		switch {
		case status == http.StatusServiceUnavailable:
			return PollResult{State: JobPending, Detail: "model loading"}, nil
		case status != http.StatusOK:
			return PollResult{State: JobFailed, Detail: rejected(status, body).Error()}, nil
		case len(body) <= minVideoBytes:
			return PollResult{State: JobFailed, Detail: fmt.Sprintf("response too small for a video: %d bytes", len(body))}, nil
		}

		h.progress(ctx, generationID, 85)
		videoURL, err := h.host(ctx, generationID, body)
		if err != nil {
			return PollResult{State: JobFailed, Detail: err.Error()}, nil
		}
		return PollResult{State: JobSucceeded, VideoURL: videoURL}, nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

func (h *HuggingFace) host(ctx context.Context, generationID uuid.UUID, video []byte) (string, error) {
	if h.store == nil {
		return PlaceholderHuggingFaceURL, nil
	}
	url, err := h.store.PutVideo(ctx, fmt.Sprintf("huggingface/%s.mp4", generationID), video)
	if err != nil {
		return "", fmt.Errorf("failed to store video: %w", err)
	}
	return url, nil
}
