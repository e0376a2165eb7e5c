package events

import (
	"encoding/json"
	"time"
)

// PartnerCreatedMessage is published by the integrations service on
// TopicPartnerCreated.
type PartnerCreatedMessage struct {
	PartnerID string `json:"partner_id"`
}

// ContractCreatedMessage is published by the alliances service on
// TopicContractCreated. The contract id arrives under either "id" or
// "contract_id" depending on producer version; ContractID is always
// populated after unmarshaling via UnmarshalJSON.
type ContractCreatedMessage struct {
	PartnerID  string  `json:"partner_id"`
	ContractID string  `json:"contract_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	State      string  `json:"state"`
	Type       string  `json:"type,omitempty"`
}

func (m *ContractCreatedMessage) UnmarshalJSON(data []byte) error {
	type alias ContractCreatedMessage
	aux := struct {
		ID *string `json:"id"`
		*alias
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.ContractID == "" && aux.ID != nil {
		m.ContractID = *aux.ID
	}
	return nil
}

// ContractCreationFailedMessage is published by the alliances service on
// TopicContractCreated when contract materialization fails.
type ContractCreationFailedMessage struct {
	PartnerID    string `json:"partner_id"`
	ContractID   string `json:"contract_id,omitempty"`
	ErrorMessage string `json:"error_message"`
}

// ContractApprovedMessage is published by the compliance service on
// TopicContractApproved.
type ContractApprovedMessage struct {
	PartnerID      string    `json:"partner_id"`
	ContractID     string    `json:"contract_id"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	State          string    `json:"state"`
	Type           string    `json:"type,omitempty"`
	ApprovedAt     time.Time `json:"approved_at"`
	ValidatedRules []string  `json:"validated_rules"`
}

// ContractRejectedMessage is published by the compliance service on
// TopicContractRejected.
type ContractRejectedMessage struct {
	PartnerID  string    `json:"partner_id"`
	ContractID string    `json:"contract_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	State      string    `json:"state"`
	Type       string    `json:"type,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
	Cause      string    `json:"cause"`
	FailedRule string    `json:"failed_rule"`
}

// ContractRevisionRequestedMessage is published by the coordinator on
// TopicContractRevision (consumed by the alliances service).
type ContractRevisionRequestedMessage struct {
	PartnerID                  string    `json:"partner_id"`
	ContractID                 string    `json:"contract_id"`
	Amount                     float64   `json:"amount"`
	Currency                   string    `json:"currency"`
	State                      string    `json:"state"`
	Type                       string    `json:"type,omitempty"`
	RequestedAt                time.Time `json:"requested_at"`
	OriginalCause              string    `json:"original_cause"`
	FailedRule                 string    `json:"failed_rule"`
	RequiresManualIntervention bool      `json:"requires_manual_intervention"`
}
