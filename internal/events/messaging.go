package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange        = "ecommerce.events"
	CartUpdatedRoutingKey = "cart.updated.v1"
	CartDeletedRoutingKey = "cart.deleted.v1"
)

type exchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

func declareEventsExchange(ch exchangeDeclarer) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
