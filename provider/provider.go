// Package provider wraps the external text-to-video APIs behind one contract.
//
// Every adapter follows the same shape: submit a prompt, poll the provider's
// job until it reaches a terminal state or the poll budget runs out, and
// report the resulting video URL. Failures never cross the adapter boundary;
// they are logged and reported as "no result" so the caller can fall through
// to the next provider.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"video-relay/constant"
	"video-relay/dto"
	"video-relay/pkg/metrics"
)

var (
	ErrSubmitRejected      = errors.New("provider rejected submission")
	ErrJobFailed           = errors.New("provider job failed")
	ErrPollBudgetExhausted = errors.New("provider poll budget exhausted")
	ErrMalformedResponse   = errors.New("malformed provider response")
)

type Provider interface {
	Name() constant.ProviderName
	Configured() bool
	// Attempt returns the generated video URL, or ok=false when the provider
	// produced nothing for any reason.
	Attempt(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (videoURL string, ok bool)
}

// ProgressTracker receives advisory progress milestones.
type ProgressTracker interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
}

type base struct {
	name    constant.ProviderName
	tracker ProgressTracker
	metrics *metrics.Collector
}

func (b base) progress(ctx context.Context, id uuid.UUID, progress int) {
	if b.tracker == nil {
		return
	}
	if err := b.tracker.UpdateProgress(ctx, id, progress); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("provider", b.name.String()).Msg("failed to update progress")
	}
}

// run executes fn inside the adapter boundary: panics and errors are logged,
// counted and turned into ok=false.
func (b base) run(ctx context.Context, id uuid.UUID, configured bool, fn func(ctx context.Context) (string, error)) (videoURL string, ok bool) {
	logger := zerolog.Ctx(ctx).With().
		Str("provider", b.name.String()).
		Str("generation_id", id.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	if !configured {
		logger.Info().Msg("provider credentials not found, skipping")
		b.metrics.RecordProviderAttempt(b.name.String(), metrics.OutcomeSkipped, 0)
		return "", false
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("provider attempt panicked")
			b.metrics.RecordProviderAttempt(b.name.String(), metrics.OutcomeSubmitFailed, time.Since(start))
			videoURL, ok = "", false
		}
	}()

	logger.Info().Msg("calling provider")
	url, err := fn(ctx)
	if err != nil {
		outcome := outcomeOf(err)
		logger.Warn().Err(err).Str("outcome", outcome).Dur("elapsed", time.Since(start)).Msg("provider attempt produced no video")
		b.metrics.RecordProviderAttempt(b.name.String(), outcome, time.Since(start))
		return "", false
	}

	logger.Info().Str("video_url", url).Dur("elapsed", time.Since(start)).Msg("provider generation completed")
	b.metrics.RecordProviderAttempt(b.name.String(), metrics.OutcomeSuccess, time.Since(start))
	return url, true
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrJobFailed), errors.Is(err, ErrMalformedResponse):
		return metrics.OutcomeJobFailed
	case errors.Is(err, ErrPollBudgetExhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeSubmitFailed
	}
}

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: timeout}
}

func rejected(status int, body []byte) error {
	const maxDetail = 512
	if len(body) > maxDetail {
		body = body[:maxDetail]
	}
	return fmt.Errorf("%w: status=%d body=%s", ErrSubmitRejected, status, string(body))
}
