package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"video-relay/constant"
	"video-relay/dto"
	"video-relay/entities"
	"video-relay/pkg/metrics"
	"video-relay/provider"
	"video-relay/repository"
)

const (
	DefaultDuration = 7
	MinDuration     = 5
	MaxDuration     = 10
	DefaultStyle    = "cinematic"

	queuedMessage = "Video generation started using free AI APIs. Check status for progress."
)

// ErrDispatchFailed is returned by Submit when the job could not be handed to
// a background worker. The generation record is marked failed.
var ErrDispatchFailed = errors.New("generation could not be scheduled")

type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

type Dispatcher interface {
	Dispatch(ctx context.Context, message dto.GenerationMessage) error
}

type Service interface {
	Submit(ctx context.Context, request dto.GenerateVideoRequest) (dto.GenerateVideoResponse, error)
	Status(ctx context.Context, id uuid.UUID) (dto.StatusResponse, error)
	Health(ctx context.Context) (dto.HealthResponse, error)
	APIInfo() dto.APIInfoResponse
	Cleanup(ctx context.Context) (dto.CleanupResponse, error)
	Process(ctx context.Context, message dto.GenerationMessage) error
}

type Options struct {
	MaxPromptLength int
	// VideoTimeout bounds the whole provider chain. Zero disables it.
	VideoTimeout time.Duration
	Retention    time.Duration
	// Clock stamps health reports and completion times. Defaults to time.Now.
	Clock repository.Clock
}

type service struct {
	repo       repository.GenerationRepository
	providers  []provider.Provider
	fallback   provider.Provider
	dispatcher Dispatcher
	metrics    *metrics.Collector
	opts       Options
}

// NewService builds the orchestrator. providers are tried in the given order
// and fallback runs when none of them returns a video.
func NewService(
	repo repository.GenerationRepository,
	providers []provider.Provider,
	fallback provider.Provider,
	dispatcher Dispatcher,
	m *metrics.Collector,
	opts Options,
) Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &service{
		repo:       repo,
		providers:  providers,
		fallback:   fallback,
		dispatcher: dispatcher,
		metrics:    m,
		opts:       opts,
	}
}

func (s service) Submit(ctx context.Context, request dto.GenerateVideoRequest) (dto.GenerateVideoResponse, error) {
	videoRequest, err := s.validate(request)
	if err != nil {
		return dto.GenerateVideoResponse{}, err
	}

	id := uuid.New()
	if err := s.repo.Create(ctx, id, videoRequest.Prompt); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create generation")
		return dto.GenerateVideoResponse{}, err
	}

	err = s.dispatcher.Dispatch(ctx, dto.GenerationMessage{GenerationId: id, Request: videoRequest})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("generation_id", id.String()).Msg("failed to dispatch generation")
		s.fail(ctx, id, err)
		return dto.GenerateVideoResponse{}, errors.Join(ErrDispatchFailed, err)
	}

	zerolog.Ctx(ctx).Info().Str("generation_id", id.String()).Msg("generation queued")
	return dto.GenerateVideoResponse{
		Status:       constant.GenerationStatusQueued.String(),
		GenerationId: id.String(),
		Message:      queuedMessage,
	}, nil
}

func (s service) validate(request dto.GenerateVideoRequest) (dto.VideoRequest, error) {
	if request.Prompt == "" {
		return dto.VideoRequest{}, &ValidationError{Detail: "Prompt is required"}
	}
	if strings.TrimSpace(request.Prompt) == "" {
		return dto.VideoRequest{}, &ValidationError{Detail: "Prompt cannot be empty"}
	}
	if s.opts.MaxPromptLength > 0 && utf8.RuneCountInString(request.Prompt) > s.opts.MaxPromptLength {
		return dto.VideoRequest{}, &ValidationError{
			Detail: fmt.Sprintf("Prompt must be at most %d characters", s.opts.MaxPromptLength),
		}
	}

	videoRequest := dto.VideoRequest{
		Prompt:   request.Prompt,
		Duration: DefaultDuration,
		Style:    DefaultStyle,
	}
	if request.Duration != nil {
		if *request.Duration < MinDuration || *request.Duration > MaxDuration {
			return dto.VideoRequest{}, &ValidationError{
				Detail: fmt.Sprintf("Duration must be between %d and %d seconds", MinDuration, MaxDuration),
			}
		}
		videoRequest.Duration = *request.Duration
	}
	if request.Style != nil {
		videoRequest.Style = *request.Style
	}
	return videoRequest, nil
}

func (s service) Status(ctx context.Context, id uuid.UUID) (dto.StatusResponse, error) {
	generation, err := s.repo.Get(ctx, id)
	if err != nil {
		return dto.StatusResponse{}, err
	}
	return dto.StatusResponse{
		Status:   generation.Status.String(),
		Progress: generation.Progress,
		VideoURL: generation.VideoURL,
		Error:    generation.Error,
	}, nil
}

func (s service) Health(ctx context.Context) (dto.HealthResponse, error) {
	_, active, err := s.repo.Count(ctx)
	if err != nil {
		return dto.HealthResponse{}, err
	}

	available := make(map[string]bool, len(s.providers)+1)
	for _, p := range s.providers {
		available[p.Name().String()] = p.Configured()
	}
	if s.fallback != nil {
		available[s.fallback.Name().String()] = true
	}

	return dto.HealthResponse{
		Status:            "healthy",
		Timestamp:         float64(s.opts.Clock().UnixNano()) / float64(time.Second),
		APIsAvailable:     available,
		ActiveGenerations: active,
	}, nil
}

func (s service) APIInfo() dto.APIInfoResponse {
	apis := make(map[string]dto.ProviderInfo, len(s.providers))
	for _, p := range s.providers {
		info, ok := providerCatalog[p.Name()]
		if !ok {
			continue
		}
		info.Available = p.Configured()
		apis[p.Name().String()] = info
	}
	return dto.APIInfoResponse{FreeAPIs: apis}
}

func (s service) Cleanup(ctx context.Context) (dto.CleanupResponse, error) {
	cleaned, err := s.repo.Reap(ctx, s.opts.Retention)
	if err != nil {
		return dto.CleanupResponse{}, err
	}
	total, _, err := s.repo.Count(ctx)
	if err != nil {
		return dto.CleanupResponse{}, err
	}

	zerolog.Ctx(ctx).Info().Int("cleaned", cleaned).Int("remaining", total).Msg("cleaned up old generations")
	return dto.CleanupResponse{Cleaned: cleaned, Remaining: total}, nil
}

func (s service) Process(ctx context.Context, message dto.GenerationMessage) (err error) {
	started := time.Now()
	id := message.GenerationId
	zerolog.Ctx(ctx).Info().Str("generation_id", id.String()).Msg("processing generation")

	processing := constant.GenerationStatusProcessing
	progress := 10
	err = s.repo.Update(ctx, id, entities.GenerationUpdate{Status: &processing, Progress: &progress})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrTerminalState) {
			zerolog.Ctx(ctx).Info().Err(err).Str("generation_id", id.String()).Msg("generation is not runnable, skipping")
			return nil
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mark generation processing")
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("generation_id", id.String()).Msg("generation failed")
			s.fail(ctx, id, err)
			s.metrics.RecordGeneration(constant.GenerationStatusFailed.String(), "", time.Since(started))
		}
	}()

	videoURL, providerName, err := s.generate(ctx, id, message.Request)
	if err != nil {
		return err
	}

	completed := constant.GenerationStatusCompleted
	done := 100
	completedAt := s.opts.Clock()
	err = s.repo.Update(ctx, id, entities.GenerationUpdate{
		Status:      &completed,
		Progress:    &done,
		VideoURL:    &videoURL,
		Provider:    &providerName,
		CompletedAt: &completedAt,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mark generation completed")
		return err
	}

	s.metrics.RecordGeneration(completed.String(), providerName.String(), time.Since(started))
	zerolog.Ctx(ctx).Info().
		Str("generation_id", id.String()).
		Str("provider", providerName.String()).
		Str("video_url", videoURL).
		Msg("generation completed")
	return nil
}

// generate walks the provider chain under the video timeout and falls back to
// the mock on the caller's context once the chain is exhausted.
func (s service) generate(ctx context.Context, id uuid.UUID, request dto.VideoRequest) (string, constant.ProviderName, error) {
	chainCtx := ctx
	if s.opts.VideoTimeout > 0 {
		var cancel context.CancelFunc
		chainCtx, cancel = context.WithTimeout(ctx, s.opts.VideoTimeout)
		defer cancel()
	}

	for _, p := range s.providers {
		if chainCtx.Err() != nil {
			zerolog.Ctx(ctx).Warn().
				Err(chainCtx.Err()).
				Str("provider", p.Name().String()).
				Msg("video timeout reached, skipping remaining providers")
			break
		}
		if videoURL, ok := p.Attempt(chainCtx, id, request); ok {
			return videoURL, p.Name(), nil
		}
	}

	if s.fallback == nil {
		return "", "", errors.New("no provider produced a video")
	}
	zerolog.Ctx(ctx).Info().Str("generation_id", id.String()).Msg("all providers failed, using mock fallback")
	if videoURL, ok := s.fallback.Attempt(ctx, id, request); ok {
		return videoURL, s.fallback.Name(), nil
	}
	if ctx.Err() != nil {
		return "", "", fmt.Errorf("generation cancelled: %w", ctx.Err())
	}
	return "", "", errors.New("mock fallback produced no video")
}

func (s service) fail(ctx context.Context, id uuid.UUID, cause error) {
	failed := constant.GenerationStatusFailed
	progress := 0
	detail := cause.Error()
	completedAt := s.opts.Clock()
	err := s.repo.Update(context.WithoutCancel(ctx), id, entities.GenerationUpdate{
		Status:      &failed,
		Progress:    &progress,
		Error:       &detail,
		CompletedAt: &completedAt,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("generation_id", id.String()).Msg("failed to mark generation failed")
	}
}

var providerCatalog = map[constant.ProviderName]dto.ProviderInfo{
	constant.ProviderLuma: {
		Description: "High-quality text-to-video generation",
		FreeTier:    "30 generations per month",
		Signup:      "https://lumalabs.ai",
	},
	constant.ProviderReplicate: {
		Description: "Open-source models including AnimateDiff",
		FreeTier:    "Free credits for new users",
		Signup:      "https://replicate.com",
	},
	constant.ProviderHuggingFace: {
		Description: "ModelScope and other text-to-video models",
		FreeTier:    "Rate-limited free inference",
		Signup:      "https://huggingface.co",
	},
}
