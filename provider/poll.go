package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// maxResponseBytes bounds how much of a provider response is read into memory.
const maxResponseBytes = 64 << 20

type JobState int

const (
	JobPending JobState = iota
	JobSucceeded
	JobFailed
)

// PollResult is what a single status check extracted from the provider.
type PollResult struct {
	State    JobState
	VideoURL string
	Detail   string
}

type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts uint
	// WaitFirst delays the first check by Interval. Providers that accept a job
	// asynchronously never finish instantly.
	WaitFirst bool
}

// CheckFunc performs one status check. A returned error is treated as
// transient and the check is retried on the next tick.
type CheckFunc func(ctx context.Context) (PollResult, error)

var errStillRunning = errors.New("job still running")

// Poll repeats check on a fixed interval until it reports a terminal state,
// MaxAttempts checks have been made, or ctx is done.
func Poll(ctx context.Context, policy PollPolicy, check CheckFunc) (string, error) {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	if policy.WaitFirst {
		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	attempt := 0
	operation := func() (string, error) {
		attempt++
		result, err := check(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("status check failed")
			return "", err
		}

		switch result.State {
		case JobSucceeded:
			if result.VideoURL == "" {
				return "", backoff.Permanent(fmt.Errorf("%w: job succeeded without a video url", ErrMalformedResponse))
			}
			return result.VideoURL, nil
		case JobFailed:
			return "", backoff.Permanent(fmt.Errorf("%w: %s", ErrJobFailed, result.Detail))
		default:
			zerolog.Ctx(ctx).Debug().Int("attempt", attempt).Str("detail", result.Detail).Msg("job still running")
			return "", errStillRunning
		}
	}

	url, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxTries(policy.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return url, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, ErrJobFailed) || errors.Is(err, ErrMalformedResponse) {
		return "", err
	}
	return "", fmt.Errorf("%w after %d checks: %v", ErrPollBudgetExhausted, attempt, err)
}

// doJSON sends payload (if any) as JSON and returns the status code and body.
func doJSON(ctx context.Context, client *http.Client, method, url string, header http.Header, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
