package handler

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"video-relay/dto"
	"video-relay/pkg/rabbitmq"
	"video-relay/service"
)

type ServiceDependencies struct {
	GenerationService service.Service
}

func JobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	job, err := rabbitmq.DecodeMessage(msg.Body)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("message_id", msg.MessageId).Msg("failed to unmarshal generation message")
		return err
	}

	return GenerationHandler(ctx, job, deps)
}

// GenerationHandler runs one generation job. It is the in-process pool handler
// and the body of JobHandler.
func GenerationHandler(ctx context.Context, job dto.GenerationMessage, deps ServiceDependencies) error {
	zerolog.Ctx(ctx).Info().
		Str("generation_id", job.GenerationId.String()).
		Msg("received generation job")

	err := deps.GenerationService.Process(ctx, job)
	if err != nil {
		return err
	}

	return nil
}
