package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunReaper calls Cleanup every interval until ctx is done.
func RunReaper(ctx context.Context, svc Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Cleanup(ctx); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("failed to reap generations")
			}
		}
	}
}
