// Package coordinator implements C5, the saga coordinator: the only
// component that mutates saga state. It observes every event on the bus,
// maintains one in-memory Saga per partner id backed by the durable saga
// log, and drives the finite state machine and its side effects.
package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alpespartners/saga-choreography/internal/bus"
	"github.com/alpespartners/saga-choreography/internal/compliance"
	"github.com/alpespartners/saga-choreography/internal/events"
	"github.com/alpespartners/saga-choreography/internal/saga"
	"github.com/alpespartners/saga-choreography/internal/sagalog"
	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

const defaultStripeCount = 256

// Config tunes the coordinator's retry and recovery behavior.
type Config struct {
	MaxAttempts       int           // default 3
	ReprocessInterval time.Duration // default 30s
	ReprocessRate     float64       // entries/sec the reprocessor redrives at; default 10
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ReprocessInterval <= 0 {
		c.ReprocessInterval = 30 * time.Second
	}
	if c.ReprocessRate <= 0 {
		c.ReprocessRate = 10
	}
	return c
}

// Coordinator wires C1 (bus), C2 (log) and C4 (the FSM) together; of C3 it
// uses only the free-text cause-to-rule mapping, and it holds no C6
// participant.
type Coordinator struct {
	busAdapter       bus.Adapter
	store            sagalog.Store
	logger           *slog.Logger
	slogHandler      slog.Handler
	config           Config
	locks            *StripeLock
	reprocessLimiter *rate.Limiter

	sagasMu sync.RWMutex
	sagas   map[string]*saga.Saga // keyed by partner_id, in-memory projection of the log
}

// New constructs a Coordinator. handler backs every Saga's internal FSM
// logger; pass a quiet handler in tests.
func New(busAdapter bus.Adapter, store sagalog.Store, logger *slog.Logger, handler slog.Handler, config Config) *Coordinator {
	config = config.withDefaults()
	return &Coordinator{
		busAdapter:       busAdapter,
		store:            store,
		logger:           logger,
		slogHandler:      handler,
		config:           config,
		locks:            NewStripeLock(defaultStripeCount),
		reprocessLimiter: rate.NewLimiter(rate.Limit(config.ReprocessRate), 1),
		sagas:            make(map[string]*saga.Saga),
	}
}

// Start recovers in-flight sagas from the durable log, registers a handler
// for every inbound topic, and begins consuming; it blocks until ctx is
// cancelled. The background reprocessor runs alongside it.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Recover(ctx); err != nil {
		return err
	}

	if err := c.registerSubscriptions(); err != nil {
		return err
	}

	go c.runReprocessor(ctx)

	return c.busAdapter.Start(ctx)
}

// Recover rebuilds the in-memory saga map from the durable log so a restart
// resumes every non-orphaned saga instead of leaving it stuck: without this,
// the next event for an in-flight partner id would hit processEntry's
// no-saga branch and log with no effect instead of resuming.
func (c *Coordinator) Recover(ctx context.Context) error {
	partnerIDs, err := c.store.ListPartnerIDs(ctx)
	if err != nil {
		return domain.WrapError(err, "failed to list partner ids for recovery")
	}

	for _, partnerID := range partnerIDs {
		entries, err := c.store.FindByPartner(ctx, partnerID, 0)
		if err != nil {
			return domain.WrapError(err, "failed to load log entries for partner "+partnerID)
		}

		var sagaID string
		var eventTypes []string
		for _, e := range entries {
			if e.Status != sagalog.StatusProcessed {
				continue
			}
			eventTypes = append(eventTypes, e.EventType)
			if e.EventType == events.EventContractRejected {
				// runSideEffects applies ContractRevisionRequested in memory
				// right after a ContractRejected transition, with no log entry
				// of its own.
				eventTypes = append(eventTypes, events.EventContractRevisionRequested)
			}
			if e.SagaID != "" {
				sagaID = e.SagaID
			}
		}
		if len(eventTypes) == 0 {
			continue
		}

		replayed, err := saga.Replay(partnerID, c.slogHandler, eventTypes)
		if err != nil {
			return domain.WrapError(err, "failed to replay saga for partner "+partnerID)
		}
		if replayed.State() == saga.StateStarted {
			continue
		}
		if sagaID != "" {
			replayed.SagaID = sagaID
		}

		c.storeSaga(partnerID, replayed)
		c.logger.Info("recovered in-flight saga", "partner_id", partnerID, "state", replayed.State())
	}

	return nil
}

// registerSubscriptions wires every inbound topic to Handle without
// starting consumption, so tests can drive the coordinator through an
// in-memory adapter without spinning up Start's blocking loop.
func (c *Coordinator) registerSubscriptions() error {
	for _, sub := range events.InboundTopics {
		topic := sub.Topic
		if err := c.busAdapter.Subscribe(topic, sub.SubscriptionName, func(ctx context.Context, msg *bus.Message) error {
			return c.Handle(ctx, topic, msg.Raw)
		}); err != nil {
			return domain.WrapError(err, "failed to subscribe to "+topic)
		}
	}
	return nil
}

// Handle runs the full handling pipeline for one freshly delivered message:
// deserialize, extract partner_id, create the saga when a PartnerCreated
// arrives for a partner without one, append a Received entry, then hand off
// to processEntry for the load-saga/transition/side-effect/ack steps.
func (c *Coordinator) Handle(ctx context.Context, topic string, raw []byte) error {
	decoded, err := bus.Decode(raw)
	if err != nil {
		c.logger.Warn("failed to decode inbound message", "topic", topic, "error", err)
		return err
	}

	correlationID := stringField(decoded, "correlation_id")
	eventType := eventTypeForTopic(topic, decoded)

	partnerID, err := extractPartnerID(eventType, decoded)
	if err != nil {
		c.logger.Warn("failed to extract partner id", "topic", topic, "event_type", eventType, "correlation_id", correlationID, "error", err)
		return err
	}
	if correlationID == "" {
		correlationID = partnerID
	}

	unlock := c.locks.Lock(partnerID)
	defer unlock()

	payload, err := json.Marshal(decoded)
	if err != nil {
		return domain.WrapError(err, "failed to re-encode decoded payload")
	}

	existing := c.lookupSaga(partnerID)
	if existing == nil && eventType == events.EventPartnerCreated {
		// The saga is born here, before the append, so its first entry
		// already carries the saga id.
		created, err := saga.NewSaga(partnerID, c.slogHandler)
		if err != nil {
			return err
		}
		c.storeSaga(partnerID, created)
		existing = created
	}
	sagaID := ""
	if existing != nil {
		sagaID = existing.SagaID
	}

	entry, err := sagalog.NewEntry(sagaID, partnerID, correlationID, eventType, payload)
	if err != nil {
		return err
	}
	entryID, err := c.store.Append(ctx, entry)
	if err != nil {
		return domain.WrapError(err, "failed to append saga log entry")
	}

	return c.processEntry(ctx, entryID, partnerID, correlationID, eventType, decoded)
}

// processEntry executes the load-transition-effects-mark steps against an entry already sitting
// in Received or Error status. The caller must hold partnerID's stripe
// lock; this lets the background reprocessor redrive a stuck entry through
// the exact same code path a fresh delivery uses.
func (c *Coordinator) processEntry(ctx context.Context, entryID, partnerID, correlationID, eventType string, decoded map[string]interface{}) error {
	if err := c.store.Mark(ctx, entryID, sagalog.StatusProcessing, nil); err != nil {
		return domain.WrapError(err, "failed to mark entry processing")
	}

	s := c.lookupSaga(partnerID)
	if s == nil {
		if eventType != events.EventPartnerCreated {
			// No saga exists yet and this event doesn't start one (e.g. a
			// stray CreatePartnerCommand, or an out-of-order delivery): the
			// entry stays on the record for audit but triggers nothing.
			if err := c.store.Mark(ctx, entryID, sagalog.StatusProcessed, nil); err != nil {
				return domain.WrapError(err, "failed to mark entry processed")
			}
			c.logger.Warn("no saga exists for partner id; event logged without effect",
				"event_type", eventType, "partner_id", partnerID, "correlation_id", correlationID)
			return nil
		}

		created, err := saga.NewSaga(partnerID, c.slogHandler)
		if err != nil {
			_ = c.markError(ctx, entryID, correlationID, err)
			return err
		}
		c.storeSaga(partnerID, created)
		s = created
	}

	transitioned, err := s.Apply(eventType, entryID)
	if err != nil {
		_ = c.markError(ctx, entryID, correlationID, err)
		return err
	}

	if !transitioned {
		illegal := domain.NewTransitionError(s.State(), eventType)
		c.logger.Warn("event did not advance saga state",
			"event_type", eventType, "partner_id", partnerID, "correlation_id", correlationID, "state", s.State(), "error", illegal)
	} else if err := c.runSideEffects(ctx, eventType, decoded, s, entryID, correlationID); err != nil {
		_ = c.markError(ctx, entryID, correlationID, err)
		return err
	}

	if err := c.store.Mark(ctx, entryID, sagalog.StatusProcessed, nil); err != nil {
		return domain.WrapError(err, "failed to mark entry processed")
	}
	return nil
}

// runSideEffects is the side-effect step of the pipeline. The only side effect the coordinator
// itself emits is ContractRevisionRequested, published in reaction to a
// ContractRejected transition; every other terminal state is reached purely
// by the FSM transition already applied.
func (c *Coordinator) runSideEffects(ctx context.Context, eventType string, decoded map[string]interface{}, s *saga.Saga, entryID, correlationID string) error {
	if eventType != events.EventContractRejected {
		return nil
	}

	revision := buildRevisionRequest(decoded)
	rejection := domain.NewComplianceError(revision.FailedRule, revision.OriginalCause)
	c.logger.Warn("contract rejected by compliance", "partner_id", revision.PartnerID, "correlation_id", correlationID, "error", rejection)
	payload, err := json.Marshal(revision)
	if err != nil {
		return domain.WrapError(err, "failed to encode contract revision request")
	}
	if err := c.busAdapter.Publish(ctx, events.TopicContractRevision, payload); err != nil {
		return domain.WrapError(err, "failed to publish contract revision request")
	}

	if _, err := s.Apply(events.EventContractRevisionRequested, entryID); err != nil {
		return err
	}
	return nil
}

func buildRevisionRequest(decoded map[string]interface{}) events.ContractRevisionRequestedMessage {
	cause := stringField(decoded, "cause")
	failedRule := stringField(decoded, "failed_rule")
	if failedRule == "" {
		failedRule = string(compliance.FailedRuleFromCause(cause))
	}

	return events.ContractRevisionRequestedMessage{
		PartnerID:                  stringField(decoded, "partner_id"),
		ContractID:                 stringField(decoded, "contract_id"),
		Amount:                     floatField(decoded, "amount"),
		Currency:                   stringField(decoded, "currency"),
		State:                      "REVISION_PENDING",
		Type:                       stringField(decoded, "type"),
		RequestedAt:                time.Now().UTC(),
		OriginalCause:              cause,
		FailedRule:                 failedRule,
		RequiresManualIntervention: true,
	}
}

func (c *Coordinator) markError(ctx context.Context, entryID, correlationID string, cause error) error {
	msg := cause.Error()
	c.logger.Error("saga log entry failed", "entry_id", entryID, "correlation_id", correlationID, "error", cause)
	return c.store.Mark(ctx, entryID, sagalog.StatusError, &msg)
}

func (c *Coordinator) lookupSaga(partnerID string) *saga.Saga {
	c.sagasMu.RLock()
	defer c.sagasMu.RUnlock()
	return c.sagas[partnerID]
}

func (c *Coordinator) storeSaga(partnerID string, s *saga.Saga) {
	c.sagasMu.Lock()
	defer c.sagasMu.Unlock()
	c.sagas[partnerID] = s
}

// eventTypeForTopic resolves the event type tag carried by a delivery.
// contract-created is the one topic carrying two possible tags; which one
// applies is disambiguated by the presence of error_message in the payload,
// not by the topic name.
func eventTypeForTopic(topic string, decoded map[string]interface{}) string {
	switch topic {
	case events.TopicCreatePartnerCommand:
		return events.EventCreatePartnerCommand
	case events.TopicPartnerCreated:
		return events.EventPartnerCreated
	case events.TopicContractCreated:
		if _, hasError := decoded["error_message"]; hasError {
			return events.EventContractCreationFailed
		}
		return events.EventContractCreated
	case events.TopicContractApproved:
		return events.EventContractApproved
	case events.TopicContractRejected:
		return events.EventContractRejected
	default:
		return "Unknown"
	}
}

// extractPartnerID pulls the partner id out of a decoded payload. CreatePartnerCommand carries no
// partner id yet, so it mints a temporary one; every other event must carry
// partner_id as a string, normalized for legacy producers.
func extractPartnerID(eventType string, decoded map[string]interface{}) (string, error) {
	if eventType == events.EventCreatePartnerCommand {
		id, err := NewTempPartnerID()
		if err != nil {
			return "", domain.WrapError(err, "failed to mint temporary partner id")
		}
		return id, nil
	}

	raw, ok := decoded["partner_id"].(string)
	if !ok {
		return "", domain.NewValidationError("partner_id is absent or malformed")
	}
	if err := domain.ValidateRequiredString("partner_id", raw); err != nil {
		return "", err
	}
	return NormalizePartnerID(raw), nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// runReprocessor supplements at-least-once bus delivery with a belt-and-
// braces sweep over entries stuck in Received or Error. A crash between
// Append and the first Mark(Processing), or a handler panic mid-pipeline,
// otherwise leaves an entry unrecoverable until the next matching delivery
// arrives - which may never happen.
func (c *Coordinator) runReprocessor(ctx context.Context) {
	ticker := time.NewTicker(c.config.ReprocessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reprocessPending(ctx)
		}
	}
}

func (c *Coordinator) reprocessPending(ctx context.Context) {
	pending, err := c.store.FindPending(ctx, c.config.MaxAttempts)
	if err != nil {
		c.logger.Error("failed to list pending saga log entries", "error", err)
		return
	}

	for _, entry := range pending {
		if err := c.reprocessLimiter.Wait(ctx); err != nil {
			return // ctx cancelled mid-sweep
		}

		decoded, decodeErr := bus.Decode(entry.Payload)
		if decodeErr != nil {
			c.logger.Error("failed to decode stored entry during reprocessing", "entry_id", entry.EntryID, "correlation_id", entry.CorrelationID, "error", decodeErr)
			continue
		}

		unlock := c.locks.Lock(entry.PartnerID)
		if err := c.processEntry(ctx, entry.EntryID, entry.PartnerID, entry.CorrelationID, entry.EventType, decoded); err != nil {
			c.logger.Warn("reprocessing entry failed", "entry_id", entry.EntryID, "partner_id", entry.PartnerID, "correlation_id", entry.CorrelationID, "error", err)
		}
		unlock()
	}
}
