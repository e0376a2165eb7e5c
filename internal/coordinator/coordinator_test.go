package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpespartners/saga-choreography/internal/bus"
	"github.com/alpespartners/saga-choreography/internal/compliance"
	"github.com/alpespartners/saga-choreography/internal/events"
	"github.com/alpespartners/saga-choreography/internal/participants"
	"github.com/alpespartners/saga-choreography/internal/sagalog"
	"github.com/alpespartners/saga-choreography/internal/saga"
)

type harness struct {
	adapter *bus.MemoryAdapter
	store   *sagalog.MemoryStore
	coord   *Coordinator
	compl   *participants.FakeCompliance
	alli    *participants.FakeAlliances
	integ   *participants.FakeIntegrations
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	adapter := bus.NewMemoryAdapter()
	store := sagalog.NewMemoryStore()
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(logHandler)

	coord := New(adapter, store, logger, logHandler, Config{})
	require.NoError(t, coord.registerSubscriptions())

	integ := participants.NewFakeIntegrations(adapter)
	alli := participants.NewFakeAlliances(adapter)
	compl := participants.NewFakeCompliance(adapter)

	require.NoError(t, adapter.Subscribe(events.TopicCreatePartnerCommand, "integrations", func(ctx context.Context, msg *bus.Message) error {
		decoded, err := bus.Decode(msg.Raw)
		if err != nil {
			return err
		}
		return integ.HandleCreatePartnerCommand(ctx, decoded)
	}))
	require.NoError(t, adapter.Subscribe(events.TopicPartnerCreated, "alliances", func(ctx context.Context, msg *bus.Message) error {
		var m events.PartnerCreatedMessage
		if err := json.Unmarshal(msg.Raw, &m); err != nil {
			return err
		}
		return alli.HandlePartnerCreated(ctx, m)
	}))
	require.NoError(t, adapter.Subscribe(events.TopicContractRevision, "alliances-revision", func(ctx context.Context, msg *bus.Message) error {
		var m events.ContractRevisionRequestedMessage
		if err := json.Unmarshal(msg.Raw, &m); err != nil {
			return err
		}
		return alli.HandleContractRevisionRequested(ctx, m)
	}))
	require.NoError(t, adapter.Subscribe(events.TopicContractCreated, "compliance", func(ctx context.Context, msg *bus.Message) error {
		var m events.ContractCreatedMessage
		if err := json.Unmarshal(msg.Raw, &m); err != nil {
			return err
		}
		if _, hasError := mustDecode(t, msg.Raw)["error_message"]; hasError {
			return nil // ContractCreationFailed carries no contract to validate
		}
		return compl.HandleContractCreated(ctx, m)
	}))

	return &harness{adapter: adapter, store: store, coord: coord, compl: compl, alli: alli, integ: integ}
}

func mustDecode(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	decoded, err := bus.Decode(raw)
	require.NoError(t, err)
	return decoded
}

func deliver(t *testing.T, h *harness, topic string, v interface{}) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, h.adapter.Deliver(context.Background(), topic, payload))
}

func sagaState(t *testing.T, h *harness, partnerID string) string {
	t.Helper()
	h.coord.sagasMu.RLock()
	defer h.coord.sagasMu.RUnlock()
	s, ok := h.coord.sagas[partnerID]
	require.True(t, ok, "expected a saga to exist for %s", partnerID)
	return s.State()
}

func TestCoordinator_HappyPath(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000001"

	h.alli.ContractFor[partnerID] = compliance.ContractFact{
		ContractID: "C1", Amount: 2500, Currency: "USD", State: "ACTIVE", Type: "BASICO",
	}

	deliver(t, h, events.TopicPartnerCreated, events.PartnerCreatedMessage{PartnerID: partnerID})

	assert.Equal(t, saga.StateCompletedOk, sagaState(t, h, partnerID))
	for _, p := range h.adapter.Published {
		assert.NotEqual(t, events.TopicContractRevision, p.Topic)
	}
}

func TestCoordinator_OverLimitAmountReachesPendingRevision(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000002"

	h.alli.ContractFor[partnerID] = compliance.ContractFact{
		ContractID: "C2", Amount: 75000, Currency: "USD", State: "ACTIVE",
	}

	deliver(t, h, events.TopicPartnerCreated, events.PartnerCreatedMessage{PartnerID: partnerID})

	assert.Equal(t, saga.StatePendingRevision, sagaState(t, h, partnerID))
	require.Len(t, h.alli.RevisionsReceived, 1)
	rev := h.alli.RevisionsReceived[0]
	assert.Equal(t, partnerID, rev.PartnerID)
	assert.Equal(t, "C2", rev.ContractID)
	assert.Equal(t, float64(75000), rev.Amount)
	assert.Equal(t, "USD", rev.Currency)
	assert.Equal(t, string(compliance.RuleAmountLimits), rev.FailedRule)
	assert.True(t, rev.RequiresManualIntervention)
	assert.Contains(t, rev.OriginalCause, "exceeds maximum")
}

func TestCoordinator_BadCurrencyReachesPendingRevision(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000003AB"

	h.alli.ContractFor[partnerID] = compliance.ContractFact{
		ContractID: "C3", Amount: 2500, Currency: "BRL", State: "ACTIVE",
	}

	deliver(t, h, events.TopicPartnerCreated, events.PartnerCreatedMessage{PartnerID: partnerID})

	assert.Equal(t, saga.StatePendingRevision, sagaState(t, h, partnerID))
	require.Len(t, h.alli.RevisionsReceived, 1)
	assert.Equal(t, string(compliance.RuleCurrencyJurisdiction), h.alli.RevisionsReceived[0].FailedRule)
}

func TestCoordinator_ContractCreationFailureReachesCompletedFailed(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000004"
	// No ContractFor entry for this partner id: FakeAlliances publishes
	// ContractCreationFailed instead of ContractCreated.

	deliver(t, h, events.TopicPartnerCreated, events.PartnerCreatedMessage{PartnerID: partnerID})

	assert.Equal(t, saga.StateCompletedFailed, sagaState(t, h, partnerID))
	assert.Empty(t, h.alli.RevisionsReceived)
}

func TestCoordinator_OutOfOrderEventLeavesNoSaga(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000005"

	deliver(t, h, events.TopicContractApproved, events.ContractApprovedMessage{
		PartnerID: partnerID, ContractID: "C5", Amount: 2500, Currency: "USD", State: "APPROVED",
	})

	h.coord.sagasMu.RLock()
	_, exists := h.coord.sagas[partnerID]
	h.coord.sagasMu.RUnlock()
	assert.False(t, exists)

	entries, err := h.store.FindBySaga(context.Background(), "", 0)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.PartnerID == partnerID {
			found = true
			assert.Equal(t, sagalog.StatusProcessed, e.Status)
		}
	}
	assert.True(t, found)
}

func TestCoordinator_DuplicateDeliveryTransitionsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000006"

	msg := events.PartnerCreatedMessage{PartnerID: partnerID}
	deliver(t, h, events.TopicPartnerCreated, msg)
	deliver(t, h, events.TopicPartnerCreated, msg)

	assert.Equal(t, saga.StatePartnerCreated, sagaState(t, h, partnerID))

	sagaID := func() string {
		h.coord.sagasMu.RLock()
		defer h.coord.sagasMu.RUnlock()
		return h.coord.sagas[partnerID].SagaID
	}()
	entries, err := h.store.FindBySaga(context.Background(), sagaID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCoordinator_RecoverRepopulatesInFlightSaga(t *testing.T) {
	adapter := bus.NewMemoryAdapter()
	store := sagalog.NewMemoryStore()
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(logHandler)

	coord := New(adapter, store, logger, logHandler, Config{})
	require.NoError(t, coord.registerSubscriptions())

	partnerID := "P0000000008"
	payload, err := json.Marshal(events.PartnerCreatedMessage{PartnerID: partnerID})
	require.NoError(t, err)
	require.NoError(t, adapter.Deliver(context.Background(), events.TopicPartnerCreated, payload))

	coord.sagasMu.RLock()
	original, ok := coord.sagas[partnerID]
	coord.sagasMu.RUnlock()
	require.True(t, ok)
	assert.Equal(t, saga.StatePartnerCreated, original.State())

	// A restart loses the in-memory map but not the durable log.
	restarted := New(bus.NewMemoryAdapter(), store, logger, logHandler, Config{})
	require.NoError(t, restarted.Recover(context.Background()))

	restarted.sagasMu.RLock()
	recovered, ok := restarted.sagas[partnerID]
	restarted.sagasMu.RUnlock()
	require.True(t, ok, "expected the in-flight saga to be recovered from the log")
	assert.Equal(t, saga.StatePartnerCreated, recovered.State())
	assert.Equal(t, original.SagaID, recovered.SagaID)
}

func TestCoordinator_RecoverSkipsSagasWithNoProcessedTransition(t *testing.T) {
	store := sagalog.NewMemoryStore()
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(logHandler)

	entry, err := sagalog.NewEntry("", "P0000000009", "", events.EventCreatePartnerCommand, []byte(`{}`))
	require.NoError(t, err)
	_, err = store.Append(context.Background(), entry)
	require.NoError(t, err)
	require.NoError(t, store.Mark(context.Background(), entry.EntryID, sagalog.StatusProcessing, nil))
	require.NoError(t, store.Mark(context.Background(), entry.EntryID, sagalog.StatusProcessed, nil))

	coord := New(bus.NewMemoryAdapter(), store, logger, logHandler, Config{})
	require.NoError(t, coord.Recover(context.Background()))

	coord.sagasMu.RLock()
	_, exists := coord.sagas["P0000000009"]
	coord.sagasMu.RUnlock()
	assert.False(t, exists, "a CreatePartnerCommand alone should never resurrect a saga")
}

func TestCoordinator_MonotoneHistoryNeverDecreasesOrDeletes(t *testing.T) {
	h := newHarness(t)
	partnerID := "P0000000007"

	h.alli.ContractFor[partnerID] = compliance.ContractFact{
		ContractID: "C7", Amount: 2500, Currency: "USD", State: "ACTIVE",
	}
	deliver(t, h, events.TopicPartnerCreated, events.PartnerCreatedMessage{PartnerID: partnerID})

	id := func() string {
		h.coord.sagasMu.RLock()
		defer h.coord.sagasMu.RUnlock()
		return h.coord.sagas[partnerID].SagaID
	}()

	entries, err := h.store.FindBySaga(context.Background(), id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].ReceivedAt.Before(entries[i-1].ReceivedAt))
	}
}
