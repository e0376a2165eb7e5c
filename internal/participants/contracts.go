// Package participants declares C6: the externally-visible obligations of
// the three bounded-context services the coordinator orchestrates by
// choreography, plus in-process fakes that honor those obligations well
// enough to drive this repository's end-to-end tests.
//
// None of the three interfaces below embed saga state — the
// coordinator is the sole authority on saga state; participants only ever
// react to one event and publish at most one follow-up event or command.
package participants

import (
	"context"

	"github.com/alpespartners/saga-choreography/internal/events"
)

// Integrations is the contract the integrations service (partner master
// data and KYC) must honor: consume CreatePartnerCommand, publish
// PartnerCreated.
type Integrations interface {
	HandleCreatePartnerCommand(ctx context.Context, rawPayload map[string]interface{}) error
}

// Alliances is the contract the alliances service (contract creation) must
// honor: consume PartnerCreated and materialize a contract, publishing
// either ContractCreated or ContractCreationFailed; separately consume
// ContractRevisionRequested and annotate its contract as rejected.
type Alliances interface {
	HandlePartnerCreated(ctx context.Context, msg events.PartnerCreatedMessage) error
	HandleContractRevisionRequested(ctx context.Context, msg events.ContractRevisionRequestedMessage) error
}

// Compliance is the contract the compliance service must honor: consume
// ContractCreated, run the validator, publish ContractApproved or
// ContractRejected.
type Compliance interface {
	HandleContractCreated(ctx context.Context, msg events.ContractCreatedMessage) error
}
