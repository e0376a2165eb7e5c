package participants

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/alpespartners/saga-choreography/internal/bus"
	"github.com/alpespartners/saga-choreography/internal/compliance"
	"github.com/alpespartners/saga-choreography/internal/events"
)

// FakeIntegrations exercises the Integrations contract: it treats every
// consumed CreatePartnerCommand as successful partner creation and
// publishes PartnerCreated with a freshly minted id.
type FakeIntegrations struct {
	Publisher bus.Adapter
	NextID    func() string // overridable in tests; defaults to a random id
}

func NewFakeIntegrations(publisher bus.Adapter) *FakeIntegrations {
	return &FakeIntegrations{Publisher: publisher, NextID: randomPartnerID}
}

func (f *FakeIntegrations) HandleCreatePartnerCommand(ctx context.Context, rawPayload map[string]interface{}) error {
	id := f.NextID()
	payload, err := json.Marshal(events.PartnerCreatedMessage{PartnerID: id})
	if err != nil {
		return err
	}
	return f.Publisher.Publish(ctx, events.TopicPartnerCreated, payload)
}

func randomPartnerID() string {
	return fmt.Sprintf("P%010d", rand.Int63n(1_000_000_0000))
}

// FakeAlliances exercises the Alliances contract. ContractFor, when set,
// lets a test script exactly which contract fact to materialize for a
// given partner id; a partner id absent from ContractFor causes a
// ContractCreationFailed publish, exercising the failure branch.
type FakeAlliances struct {
	Publisher   bus.Adapter
	ContractFor map[string]compliance.ContractFact
	RevisionsReceived []events.ContractRevisionRequestedMessage
}

func NewFakeAlliances(publisher bus.Adapter) *FakeAlliances {
	return &FakeAlliances{Publisher: publisher, ContractFor: make(map[string]compliance.ContractFact)}
}

func (f *FakeAlliances) HandlePartnerCreated(ctx context.Context, msg events.PartnerCreatedMessage) error {
	fact, ok := f.ContractFor[msg.PartnerID]
	if !ok {
		payload, err := json.Marshal(events.ContractCreationFailedMessage{
			PartnerID:    msg.PartnerID,
			ErrorMessage: "no contract template configured for partner",
		})
		if err != nil {
			return err
		}
		return f.Publisher.Publish(ctx, events.TopicContractCreated, payload)
	}

	payload, err := json.Marshal(events.ContractCreatedMessage{
		PartnerID:  msg.PartnerID,
		ContractID: fact.ContractID,
		Amount:     fact.Amount,
		Currency:   fact.Currency,
		State:      fact.State,
		Type:       fact.Type,
	})
	if err != nil {
		return err
	}
	return f.Publisher.Publish(ctx, events.TopicContractCreated, payload)
}

func (f *FakeAlliances) HandleContractRevisionRequested(ctx context.Context, msg events.ContractRevisionRequestedMessage) error {
	f.RevisionsReceived = append(f.RevisionsReceived, msg)
	return nil
}

// FakeCompliance exercises the Compliance contract by running the real
// validator (internal/compliance) against the contract fact it receives.
type FakeCompliance struct {
	Publisher bus.Adapter
}

func NewFakeCompliance(publisher bus.Adapter) *FakeCompliance {
	return &FakeCompliance{Publisher: publisher}
}

func (f *FakeCompliance) HandleContractCreated(ctx context.Context, msg events.ContractCreatedMessage) error {
	outcome := compliance.Validate(compliance.ContractFact{
		PartnerID:  msg.PartnerID,
		ContractID: msg.ContractID,
		Amount:     msg.Amount,
		Currency:   msg.Currency,
		State:      msg.State,
		Type:       msg.Type,
	})

	if outcome.Approved {
		rules := make([]string, len(outcome.ValidatedRules))
		for i, r := range outcome.ValidatedRules {
			rules[i] = string(r)
		}
		payload, err := json.Marshal(events.ContractApprovedMessage{
			PartnerID:      msg.PartnerID,
			ContractID:     msg.ContractID,
			Amount:         msg.Amount,
			Currency:       msg.Currency,
			State:          "APPROVED",
			Type:           msg.Type,
			ApprovedAt:     time.Now().UTC(),
			ValidatedRules: rules,
		})
		if err != nil {
			return err
		}
		return f.Publisher.Publish(ctx, events.TopicContractApproved, payload)
	}

	payload, err := json.Marshal(events.ContractRejectedMessage{
		PartnerID:  msg.PartnerID,
		ContractID: msg.ContractID,
		Amount:     msg.Amount,
		Currency:   msg.Currency,
		State:      "REJECTED",
		Type:       msg.Type,
		RejectedAt: time.Now().UTC(),
		Cause:      outcome.Cause,
		FailedRule: string(outcome.FailedRule),
	})
	if err != nil {
		return err
	}
	return f.Publisher.Publish(ctx, events.TopicContractRejected, payload)
}
