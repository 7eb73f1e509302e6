package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/contracts"
)

type EventMeta struct {
	CorrelationID string
	CausationID   string
}

// CartEvents is what the HTTP layer announces after a cart is persisted.
type CartEvents interface {
	PublishCartUpdated(ctx context.Context, meta EventMeta, c *cart.Cart) error
	PublishCartDeleted(ctx context.Context, meta EventMeta, c *cart.Cart) error
}

type amqpChannel interface {
	exchangeDeclarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitCartEventsPublisher struct {
	ch       amqpChannel
	seqRepo  SequenceRepository
	producer string
	now      func() time.Time
}

func NewRabbitCartEventsPublisher(conn *amqp.Connection, seqRepo SequenceRepository) (*RabbitCartEventsPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return newPublisher(ch, seqRepo)
}

func newPublisher(ch amqpChannel, seqRepo SequenceRepository) (*RabbitCartEventsPublisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &RabbitCartEventsPublisher{
		ch:       ch,
		seqRepo:  seqRepo,
		producer: contracts.StorefrontProducer,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *RabbitCartEventsPublisher) Close() error {
	return p.ch.Close()
}

func (p *RabbitCartEventsPublisher) PublishCartUpdated(ctx context.Context, meta EventMeta, c *cart.Cart) error {
	opts, err := p.envelopeOptions(ctx, meta, c)
	if err != nil {
		return err
	}
	return p.publish(ctx, CartUpdatedRoutingKey, contracts.BuildCartUpdatedEvent(c, opts))
}

func (p *RabbitCartEventsPublisher) PublishCartDeleted(ctx context.Context, meta EventMeta, c *cart.Cart) error {
	opts, err := p.envelopeOptions(ctx, meta, c)
	if err != nil {
		return err
	}
	return p.publish(ctx, CartDeletedRoutingKey, contracts.BuildCartDeletedEvent(c, opts))
}

func (p *RabbitCartEventsPublisher) envelopeOptions(ctx context.Context, meta EventMeta, c *cart.Cart) (contracts.EnvelopeOptions, error) {
	seq, err := p.seqRepo.NextSequence(ctx, c.ID)
	if err != nil {
		return contracts.EnvelopeOptions{}, fmt.Errorf("reserve sequence: %w", err)
	}
	return contracts.EnvelopeOptions{
		Sequence:      seq,
		Producer:      p.producer,
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		OccurredAt:    p.now(),
	}, nil
}

func (p *RabbitCartEventsPublisher) publish(ctx context.Context, routingKey string, env contracts.EventEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.EventName, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.EventID,
			CorrelationId: env.CorrelationID,
			Timestamp:     env.OccurredAt,
			Type:          env.EventName,
			Body:          body,
		},
	)
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishCartUpdated(context.Context, EventMeta, *cart.Cart) error { return nil }
func (Nop) PublishCartDeleted(context.Context, EventMeta, *cart.Cart) error { return nil }
