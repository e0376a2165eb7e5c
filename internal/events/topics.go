// Package events defines the closed set of message schemas and topics that
// bind the coordinator to its participants.
package events

// Topic names shared across the three bounded contexts.
const (
	TopicCreatePartnerCommand = "create-partner-command"
	TopicPartnerCreated       = "partner-created"
	TopicContractCreated      = "contract-created"
	TopicContractApproved     = "contract-approved"
	TopicContractRejected     = "contract-rejected"
	TopicContractRevision     = "contract-revision"
)

// Subscription names, shared across every coordinator replica so horizontal
// scaling load-balances rather than duplicates work.
const (
	SubscriptionCreatePartnerCommand = "saga-choreography-create-partner"
	SubscriptionPartnerCreated       = "saga-choreography-partner-created"
	SubscriptionContractCreated      = "saga-choreography-contract-created"
	SubscriptionContractApproved     = "saga-choreography-contract-approved"
	SubscriptionContractRejected     = "saga-choreography-contract-rejected"
)

// Event type tags, the closed set SagaLogEntry.event_type draws from.
const (
	EventCreatePartnerCommand      = "CreatePartnerCommand"
	EventPartnerCreated            = "PartnerCreated"
	EventContractCreated           = "ContractCreated"
	EventContractCreationFailed    = "ContractCreationFailed"
	EventContractApproved          = "ContractApproved"
	EventContractRejected          = "ContractRejected"
	EventContractRevisionRequested = "ContractRevisionRequested"
)

// InboundTopics lists every topic the coordinator consumes, paired with its
// subscription name, matching the table one row at a time. The event type
// tag is not stored here; the coordinator derives it from the topic
// (contract-created carries two possible event tags — ContractCreated or
// ContractCreationFailed — disambiguated by the decoded payload, not the
// topic).
var InboundTopics = []struct {
	Topic            string
	SubscriptionName string
}{
	{TopicCreatePartnerCommand, SubscriptionCreatePartnerCommand},
	{TopicPartnerCreated, SubscriptionPartnerCreated},
	{TopicContractCreated, SubscriptionContractCreated},
	{TopicContractApproved, SubscriptionContractApproved},
	{TopicContractRejected, SubscriptionContractRejected},
}
