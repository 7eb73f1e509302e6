package contracts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/cart"
)

const (
	CartUpdatedEventName = "CartUpdated"
	CartDeletedEventName = "CartDeleted"
	CartEventVersion     = 1

	CartUpdatedSchemaPath = "contracts/events/cart/CartUpdated.v1.enveloped.schema.json"
	CartDeletedSchemaPath = "contracts/events/cart/CartDeleted.v1.enveloped.schema.json"

	StorefrontProducer = "storefront-service"
)

type EventEnvelope struct {
	EventName     string       `json:"eventName"`
	EventVersion  int          `json:"eventVersion"`
	EventID       string       `json:"eventId"`
	CorrelationID string       `json:"correlationId,omitempty"`
	CausationID   string       `json:"causationId,omitempty"`
	Producer      string       `json:"producer"`
	PartitionKey  string       `json:"partitionKey"`
	Sequence      int64        `json:"sequence"`
	OccurredAt    time.Time    `json:"occurredAt"`
	Schema        string       `json:"schema"`
	Payload       CartSnapshot `json:"payload"`
}

// CartSnapshot is the cart state after the change. For CartDeleted it is the
// state that was removed.
type CartSnapshot struct {
	CartID     string          `json:"cartId"`
	UserID     string          `json:"userId"`
	Items      []CartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Version    int64           `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
}

type CartLine struct {
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	SubTotalPrice decimal.Decimal `json:"subTotalPrice"`
}

type EnvelopeOptions struct {
	Sequence      int64
	Producer      string
	CorrelationID string
	CausationID   string
	EventID       string
	OccurredAt    time.Time
}

func BuildCartUpdatedEvent(c *cart.Cart, opts EnvelopeOptions) EventEnvelope {
	return buildCartEvent(CartUpdatedEventName, CartUpdatedSchemaPath, c, opts)
}

func BuildCartDeletedEvent(c *cart.Cart, opts EnvelopeOptions) EventEnvelope {
	return buildCartEvent(CartDeletedEventName, CartDeletedSchemaPath, c, opts)
}

func buildCartEvent(name, schema string, c *cart.Cart, opts EnvelopeOptions) EventEnvelope {
	eventID := opts.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	occurredAt := opts.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	producer := opts.Producer
	if producer == "" {
		producer = StorefrontProducer
	}

	payload := CartSnapshot{
		CartID:     c.ID,
		UserID:     c.UserID,
		Items:      make([]CartLine, 0, len(c.Items)),
		TotalPrice: c.TotalPrice,
		Version:    c.Version,
		Timestamp:  occurredAt,
	}
	for _, it := range c.Items {
		payload.Items = append(payload.Items, CartLine{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			Price:         it.Price,
			SubTotalPrice: it.SubTotalPrice,
		})
	}

	return EventEnvelope{
		EventName:     name,
		EventVersion:  CartEventVersion,
		EventID:       eventID,
		CorrelationID: opts.CorrelationID,
		CausationID:   opts.CausationID,
		Producer:      producer,
		PartitionKey:  c.ID,
		Sequence:      opts.Sequence,
		OccurredAt:    occurredAt,
		Schema:        schema,
		Payload:       payload,
	}
}
