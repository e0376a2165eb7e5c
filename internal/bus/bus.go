// Package bus defines the Event Bus Adapter: the publish/subscribe boundary
// between the coordinator and whichever message broker backs it.
package bus

import (
	"context"
)

// Message is a single delivery received from a subscription. Ack and Nack
// are optional acknowledgement hooks: MemoryAdapter sets them to no-ops,
// DaprAdapter leaves them nil, and neither adapter calls them;
// acknowledgement follows the Handler's returned error.
type Message struct {
	ID       string
	Topic    string
	Raw      []byte
	Metadata map[string]string

	Ack  func()
	Nack func()
}

// Handler processes one delivered message. Returning a non-nil error nacks
// the message; returning nil acks it. Handlers must not call Ack/Nack
// themselves — the adapter acknowledges or requests redelivery based on the
// returned error.
type Handler func(ctx context.Context, msg *Message) error

// Adapter is C1, the Event Bus Adapter: produce/consume typed messages on
// named topics with at-least-once delivery, manual acknowledgement, and
// shared (load-balanced) subscriptions.
type Adapter interface {
	// Publish sends payload, already JSON-encoded, to topic. Fails with a
	// dependency-classified error on broker unavailability; the caller
	// decides whether to retry or degrade.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic under subscriptionName. The
	// subscription is shared across every process using the same
	// subscriptionName, so horizontal replicas do not duplicate work.
	// Subscribe may be called multiple times before Start.
	Subscribe(topic, subscriptionName string, handler Handler) error

	// Start begins consuming every subscription registered so far and
	// blocks until ctx is cancelled or an unrecoverable error occurs.
	Start(ctx context.Context) error

	// Close stops producers and consumers and releases the broker
	// connection. Close is idempotent.
	Close() error

	// Healthy reports whether the adapter can currently reach the broker.
	Healthy(ctx context.Context) bool
}
