package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"video-relay/constant"
	"video-relay/dto"
	"video-relay/pkg/metrics"
)

type ReplicateConfig struct {
	APIToken          string
	BaseURL           string
	ModelVersion      string
	NumFrames         int
	GuidanceScale     float64
	NumInferenceSteps int
	RequestTimeout    time.Duration
	Poll              PollPolicy
}

// DefaultReplicateConfig targets the AnimateDiff model.
func DefaultReplicateConfig() ReplicateConfig {
	return ReplicateConfig{
		BaseURL:           "https://api.replicate.com",
		ModelVersion:      "1531004ee4c98894ab11f0e46d69cb9d3a4b65c9",
		NumFrames:         16,
		GuidanceScale:     7.5,
		NumInferenceSteps: 25,
		RequestTimeout:    30 * time.Second,
		Poll:              PollPolicy{Interval: 10 * time.Second, MaxAttempts: 20, WaitFirst: true},
	}
}

type Replicate struct {
	base
	cfg    ReplicateConfig
	client *http.Client
}

func NewReplicate(cfg ReplicateConfig, client *http.Client, tracker ProgressTracker, m *metrics.Collector) *Replicate {
	return &Replicate{
		base:   base{name: constant.ProviderReplicate, tracker: tracker, metrics: m},
		cfg:    cfg,
		client: newHTTPClient(client, cfg.RequestTimeout),
	}
}

type replicateInput struct {
	Prompt            string  `json:"prompt"`
	NumFrames         int     `json:"num_frames"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

type replicateRequest struct {
	Version string         `json:"version"`
	Input   replicateInput `json:"input"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // starting, processing, succeeded, failed, canceled
	Output json.RawMessage `json:"output,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// videoURL extracts the first output URL. Models return either a string or a list.
func (p replicatePrediction) videoURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	return ""
}

func (r *Replicate) Name() constant.ProviderName { return r.name }

func (r *Replicate) Configured() bool { return r.cfg.APIToken != "" }

func (r *Replicate) Attempt(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, bool) {
	return r.run(ctx, generationID, r.Configured(), func(ctx context.Context) (string, error) {
		return r.generate(ctx, generationID, req)
	})
}

func (r *Replicate) generate(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, error) {
	r.progress(ctx, generationID, 35)

	header := http.Header{}
	header.Set("Authorization", "Token "+r.cfg.APIToken)
	endpoint := r.cfg.BaseURL + "/v1/predictions"

	r.progress(ctx, generationID, 55)
	status, body, err := doJSON(ctx, r.client, http.MethodPost, endpoint, header, replicateRequest{
		Version: r.cfg.ModelVersion,
		Input: replicateInput{
			Prompt:            req.Prompt,
			NumFrames:         r.cfg.NumFrames,
			GuidanceScale:     r.cfg.GuidanceScale,
			NumInferenceSteps: r.cfg.NumInferenceSteps,
		},
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", rejected(status, body)
	}

	var created replicatePrediction
	if err := decode(body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: missing prediction id", ErrMalformedResponse)
	}

	r.progress(ctx, generationID, 75)
	url, err := Poll(ctx, r.cfg.Poll, func(ctx context.Context) (PollResult, error) {
		status, body, err := doJSON(ctx, r.client, http.MethodGet, endpoint+"/"+created.ID, header, nil)
		if err != nil {
			return PollResult{}, err
		}
		if status != http.StatusOK {
			return PollResult{}, fmt.Errorf("status check returned %d", status)
		}
		var prediction replicatePrediction
		if err := decode(body, &prediction); err != nil {
			return PollResult{}, err
		}
		switch prediction.Status {
		case "succeeded":
			return PollResult{State: JobSucceeded, VideoURL: prediction.videoURL()}, nil
		case "failed", "canceled":
			return PollResult{State: JobFailed, Detail: string(prediction.Error)}, nil
		default:
			return PollResult{State: JobPending, Detail: prediction.Status}, nil
		}
	})
	if err != nil {
		return "", err
	}

	r.progress(ctx, generationID, 90)
	return url, nil
}
