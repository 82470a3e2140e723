package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"video-relay/config"
	"video-relay/dto"
)

// ErrMalformedMessage marks a delivery whose body is not a generation message.
var ErrMalformedMessage = errors.New("malformed generation message")

// Publisher dispatches generation jobs onto the generation exchange.
type Publisher struct {
	cfg *config.RabbitMQ

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{cfg: cfg, ch: ch}, nil
}

func (p *Publisher) Dispatch(ctx context.Context, msg dto.GenerationMessage) error {
	body, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.cfg.ExchangeName, p.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.GenerationId.String(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish generation %s: %w", msg.GenerationId, err)
	}

	zerolog.Ctx(ctx).Debug().Str("generation_id", msg.GenerationId.String()).Msg("published generation job")
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

func EncodeMessage(msg dto.GenerationMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation message: %w", err)
	}
	return body, nil
}

func DecodeMessage(body []byte) (dto.GenerationMessage, error) {
	var msg dto.GenerationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return dto.GenerationMessage{}, errors.Join(ErrMalformedMessage, err)
	}
	if msg.GenerationId == uuid.Nil {
		return dto.GenerationMessage{}, fmt.Errorf("%w: missing generation id", ErrMalformedMessage)
	}
	return msg, nil
}
