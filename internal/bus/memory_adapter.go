package bus

import (
	"context"
	"sync"
)

// MemoryAdapter is an in-process Adapter used by tests in place of a real
// broker. Publish immediately fans the payload out to every handler
// subscribed to the topic, synchronously, so tests can assert on side
// effects without a real broker round trip.
type MemoryAdapter struct {
	mu   sync.Mutex
	subs map[string][]Handler

	Published []PublishedMessage
}

// PublishedMessage records one call to Publish, for test assertions.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{subs: make(map[string][]Handler)}
}

func (a *MemoryAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	a.mu.Lock()
	a.Published = append(a.Published, PublishedMessage{Topic: topic, Payload: append([]byte(nil), payload...)})
	handlers := append([]Handler(nil), a.subs[topic]...)
	a.mu.Unlock()

	for _, h := range handlers {
		msg := &Message{Topic: topic, Raw: payload, Ack: func() {}, Nack: func() {}}
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (a *MemoryAdapter) Subscribe(topic, subscriptionName string, handler Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs[topic] = append(a.subs[topic], handler)
	return nil
}

func (a *MemoryAdapter) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (a *MemoryAdapter) Close() error { return nil }

func (a *MemoryAdapter) Healthy(ctx context.Context) bool { return true }

// Deliver invokes topic's subscribed handlers directly, bypassing Publish's
// bookkeeping. Tests use this to simulate an inbound message from a
// participant service without also asserting a Publish call happened.
func (a *MemoryAdapter) Deliver(ctx context.Context, topic string, payload []byte) error {
	a.mu.Lock()
	handlers := append([]Handler(nil), a.subs[topic]...)
	a.mu.Unlock()

	for _, h := range handlers {
		msg := &Message{Topic: topic, Raw: payload, Ack: func() {}, Nack: func() {}}
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
