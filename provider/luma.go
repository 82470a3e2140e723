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

type LumaConfig struct {
	APIKey         string
	BaseURL        string
	AspectRatio    string
	RequestTimeout time.Duration
	Poll           PollPolicy
}

func DefaultLumaConfig() LumaConfig {
	return LumaConfig{
		BaseURL:        "https://api.lumalabs.ai",
		AspectRatio:    "16:9",
		RequestTimeout: 30 * time.Second,
		Poll:           PollPolicy{Interval: 10 * time.Second, MaxAttempts: 30, WaitFirst: true},
	}
}

// Luma generates videos with Luma Dream Machine.
// Free tier: 30 generations per month.
type Luma struct {
	base
	cfg    LumaConfig
	client *http.Client
}

func NewLuma(cfg LumaConfig, client *http.Client, tracker ProgressTracker, m *metrics.Collector) *Luma {
	return &Luma{
		base:   base{name: constant.ProviderLuma, tracker: tracker, metrics: m},
		cfg:    cfg,
		client: newHTTPClient(client, cfg.RequestTimeout),
	}
}

type lumaRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Loop        bool   `json:"loop"`
}

type lumaGeneration struct {
	ID            string `json:"id"`
	State         string `json:"state"` // queued, dreaming, completed, failed
	FailureReason string `json:"failure_reason,omitempty"`
	Assets        struct {
		Video string `json:"video"`
	} `json:"assets"`
}

func (l *Luma) Name() constant.ProviderName { return l.name }

func (l *Luma) Configured() bool { return l.cfg.APIKey != "" }

func (l *Luma) Attempt(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, bool) {
	return l.run(ctx, generationID, l.Configured(), func(ctx context.Context) (string, error) {
		return l.generate(ctx, generationID, req)
	})
}

func (l *Luma) generate(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, error) {
	l.progress(ctx, generationID, 25)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	endpoint := l.cfg.BaseURL + "/dream-machine/v1/generations"

	l.progress(ctx, generationID, 50)
	status, body, err := doJSON(ctx, l.client, http.MethodPost, endpoint, header, lumaRequest{
		Prompt:      req.Prompt,
		AspectRatio: l.cfg.AspectRatio,
		Loop:        false,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", rejected(status, body)
	}

	var created lumaGeneration
	if err := decode(body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: missing generation id", ErrMalformedResponse)
	}

	l.progress(ctx, generationID, 75)
	url, err := Poll(ctx, l.cfg.Poll, func(ctx context.Context) (PollResult, error) {
		status, body, err := doJSON(ctx, l.client, http.MethodGet, endpoint+"/"+created.ID, header, nil)
		if err != nil {
			return PollResult{}, err
		}
		if status != http.StatusOK {
			return PollResult{}, fmt.Errorf("status check returned %d", status)
		}
		var generation lumaGeneration
		if err := decode(body, &generation); err != nil {
			return PollResult{}, err
		}
		switch generation.State {
		case "completed":
			return PollResult{State: JobSucceeded, VideoURL: generation.Assets.Video}, nil
		case "failed":
			return PollResult{State: JobFailed, Detail: generation.FailureReason}, nil
		default:
			return PollResult{State: JobPending, Detail: generation.State}, nil
		}
	})
	if err != nil {
		return "", err
	}

	l.progress(ctx, generationID, 90)
	return url, nil
}
