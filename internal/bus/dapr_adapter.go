package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	daprclient "github.com/dapr/go-sdk/client"
	"github.com/dapr/go-sdk/service/common"
	daprd "github.com/dapr/go-sdk/service/http"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
	"github.com/alpespartners/saga-choreography/internal/shared/resilience"
)

// DaprAdapter implements Adapter over a Dapr sidecar: PublishEvent on the
// client side, and a Dapr app-callback HTTP service (service/http) on the
// consume side so the broker's ack/nack semantics map onto Dapr's
// retry/no-retry response.
type DaprAdapter struct {
	client     daprclient.Client
	pubsubName string
	appID      string
	listenAddr string

	logger  *slog.Logger
	breaker *resilience.CircuitBreaker

	mu   sync.Mutex
	subs []subscription
	svc  common.Service
}

type subscription struct {
	topic             string
	subscriptionName  string
	handler           Handler
}

// NewDaprAdapter wires a Dapr client for publishing and a Dapr callback
// service listening on listenAddr for subscriptions. pubsubName is the
// Dapr component name (the "broker"); appID identifies this process for
// Dapr routing. breakerConfig tunes the publish-side circuit breaker.
func NewDaprAdapter(client daprclient.Client, pubsubName, appID, listenAddr string, breakerConfig resilience.Config, logger *slog.Logger) *DaprAdapter {
	return &DaprAdapter{
		client:     client,
		pubsubName: pubsubName,
		appID:      appID,
		listenAddr: listenAddr,
		logger:     logger,
		breaker:    resilience.New(breakerConfig, logger),
	}
}

func (a *DaprAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return a.client.PublishEvent(ctx, a.pubsubName, topic, payload)
	})
	if err != nil {
		return domain.NewDependencyError("event-bus", domain.WrapError(err, fmt.Sprintf("failed to publish to topic %s", topic)))
	}
	return nil
}

// Subscribe records handler for topic. subscriptionName is stored with the
// subscription but is not passed to Dapr when Start registers the topic.
func (a *DaprAdapter) Subscribe(topic, subscriptionName string, handler Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, subscription{topic: topic, subscriptionName: subscriptionName, handler: handler})
	return nil
}

// Start builds the Dapr callback service from every Subscribe call made so
// far and blocks serving it until ctx is cancelled.
func (a *DaprAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	svc := daprd.NewService(a.listenAddr)
	for _, sub := range a.subs {
		sub := sub
		route := "/events/" + sub.topic
		topicSub := &common.Subscription{
			PubsubName: a.pubsubName,
			Topic:      sub.topic,
			Route:      route,
		}
		err := svc.AddTopicEventHandler(topicSub, func(ctx context.Context, e *common.TopicEvent) (retry bool, err error) {
			msg := &Message{
				ID:       e.ID,
				Topic:    sub.topic,
				Raw:      rawDataBytes(e),
				Metadata: map[string]string{"pubsub": e.PubsubName, "source": e.Source},
			}
			handlerErr := sub.handler(ctx, msg)
			if handlerErr != nil {
				a.logger.Warn("handler nacked message", "topic", sub.topic, "error", handlerErr)
				return true, handlerErr
			}
			return false, nil
		})
		if err != nil {
			a.mu.Unlock()
			return domain.WrapError(err, fmt.Sprintf("failed to register handler for topic %s", sub.topic))
		}
	}
	a.svc = svc
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start() }()

	select {
	case <-ctx.Done():
		_ = svc.Stop()
		return nil
	case err := <-errCh:
		if err != nil {
			return domain.NewDependencyError("event-bus", err)
		}
		return nil
	}
}

func (a *DaprAdapter) Close() error {
	a.mu.Lock()
	svc := a.svc
	a.mu.Unlock()
	if svc != nil {
		if err := svc.Stop(); err != nil {
			return err
		}
	}
	return a.client.Close()
}

func (a *DaprAdapter) Healthy(ctx context.Context) bool {
	_, err := a.client.GetConfigurationItem(ctx, "healthcheck", "test")
	return err == nil
}

// rawDataBytes prefers the raw data bytes Dapr already parsed off the
// envelope so Decode can apply its own JSON-then-fallback rules
// rather than double-decoding what Dapr decoded.
func rawDataBytes(e *common.TopicEvent) []byte {
	if len(e.RawData) > 0 {
		return e.RawData
	}
	if b, ok := e.Data.([]byte); ok {
		return b
	}
	return []byte(fmt.Sprintf("%v", e.Data))
}
