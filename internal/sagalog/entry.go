// Package sagalog implements C2, the append-only per-saga event log: the
// system's source of truth for auditability and for recovering in-flight
// sagas after a restart.
package sagalog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

// Status is the lifecycle of a SagaLogEntry.
type Status string

const (
	StatusReceived   Status = "Received"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusError      Status = "Error"
)

// legalMarks enumerates the only allowed status transitions; any other
// request is rejected rather than silently applied.
var legalMarks = map[Status][]Status{
	StatusReceived:   {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusError},
	StatusError:      {StatusProcessing},
}

// CanMark reports whether from -> to is one of the legal status transitions.
func CanMark(from, to Status) bool {
	for _, allowed := range legalMarks[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Entry is a single row of the saga_log table.
// Entries are never mutated after reaching Processed; a retry appends a new
// entry rather than overwriting one.
type Entry struct {
	EntryID       string
	SagaID        string // empty until a saga exists for this partner (e.g. CreatePartnerCommand)
	PartnerID     string
	CorrelationID string
	EventType     string
	Payload       []byte
	ContentHash   string
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
	Status        Status
	ErrorMessage  *string
	Attempts      int
}

// NewEntry builds a Received entry ready to append. correlationID defaults
// to partnerID when the inbound message carried none.
func NewEntry(sagaID, partnerID, correlationID, eventType string, payload []byte) (*Entry, error) {
	if err := domain.ValidateRequiredString("event_type", eventType); err != nil {
		return nil, err
	}
	if correlationID == "" {
		correlationID = partnerID
	}
	return &Entry{
		EntryID:       uuid.New().String(),
		SagaID:        sagaID,
		PartnerID:     partnerID,
		CorrelationID: correlationID,
		EventType:     eventType,
		Payload:       payload,
		ContentHash:   ContentHash(payload),
		ReceivedAt:    time.Now().UTC(),
		Status:        StatusReceived,
		Attempts:      1,
	}, nil
}

// ContentHash is the dedup key's content component: a (saga_id, event_type,
// content_hash) tuple identifies a duplicate delivery of the same event
// for idempotent reprocessing.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
