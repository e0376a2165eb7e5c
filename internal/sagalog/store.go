package sagalog

import "context"

// Store is C2's operational surface over the saga_log table.
type Store interface {
	// Append always succeeds or fails loudly; it never silently drops an
	// entry. Returns the stored entry's id.
	Append(ctx context.Context, entry *Entry) (string, error)

	// FindBySaga returns entries for sagaID ordered by received_at
	// ascending, capped at limit (0 means no cap).
	FindBySaga(ctx context.Context, sagaID string, limit int) ([]*Entry, error)

	// FindByPartner returns entries for partnerID ordered by received_at
	// ascending, capped at limit (0 means no cap). Unlike FindBySaga, this
	// also surfaces a partner's entries logged while no saga existed for it
	// (empty saga_id).
	FindByPartner(ctx context.Context, partnerID string, limit int) ([]*Entry, error)

	// ListPartnerIDs returns every distinct partner_id with at least one
	// log entry, for reconstructing in-memory saga state at startup.
	ListPartnerIDs(ctx context.Context) ([]string, error)

	// FindPending returns entries in {Received, Error} with
	// attempts <= maxAttempts, for the background reprocessor.
	FindPending(ctx context.Context, maxAttempts int) ([]*Entry, error)

	// Mark transitions entryID to newStatus, recording errMessage when
	// newStatus is StatusError. Only the transitions in CanMark are
	// accepted; anything else is rejected without side effects.
	Mark(ctx context.Context, entryID string, newStatus Status, errMessage *string) error

	// Seen reports whether an entry with this (sagaID, eventType,
	// contentHash) tuple has already reached StatusProcessed, the
	// idempotency check.
	Seen(ctx context.Context, sagaID, eventType, contentHash string) (bool, error)
}
