package sagalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

// PostgresStore is the durable Store backing the saga_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Bootstrap creates the saga_log table and its indices if they do not
// already exist. No further schema migrations are part of this system.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS saga_log (
	entry_id       UUID PRIMARY KEY,
	saga_id        TEXT NOT NULL DEFAULT '',
	partner_id     TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	content_hash   TEXT NOT NULL,
	received_at    TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ,
	status         TEXT NOT NULL,
	error_message  TEXT,
	attempts       INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_saga_log_saga_received ON saga_log (saga_id, received_at);
CREATE INDEX IF NOT EXISTS idx_saga_log_status ON saga_log (status);
CREATE INDEX IF NOT EXISTS idx_saga_log_event_type ON saga_log (event_type);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return domain.WrapError(err, "failed to bootstrap saga_log schema")
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) (string, error) {
	const q = `
INSERT INTO saga_log (entry_id, saga_id, partner_id, correlation_id, event_type, payload, content_hash, received_at, status, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, q,
		entry.EntryID, entry.SagaID, entry.PartnerID, entry.CorrelationID,
		entry.EventType, entry.Payload, entry.ContentHash, entry.ReceivedAt,
		string(entry.Status), entry.Attempts,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return "", domain.NewConflictError(fmt.Sprintf("entry %s already exists", entry.EntryID))
		}
		return "", domain.NewDependencyError("saga_log", domain.WrapError(err, fmt.Sprintf("failed to append entry for event %s", entry.EventType)))
	}
	return entry.EntryID, nil
}

func (s *PostgresStore) FindBySaga(ctx context.Context, sagaID string, limit int) ([]*Entry, error) {
	q := `
SELECT entry_id, saga_id, partner_id, correlation_id, event_type, payload, content_hash, received_at, processed_at, status, error_message, attempts
FROM saga_log WHERE saga_id = $1 ORDER BY received_at ASC`
	args := []interface{}{sagaID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to query entries by saga"))
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) FindByPartner(ctx context.Context, partnerID string, limit int) ([]*Entry, error) {
	q := `
SELECT entry_id, saga_id, partner_id, correlation_id, event_type, payload, content_hash, received_at, processed_at, status, error_message, attempts
FROM saga_log WHERE partner_id = $1 ORDER BY received_at ASC`
	args := []interface{}{partnerID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to query entries by partner"))
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListPartnerIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT partner_id FROM saga_log WHERE partner_id != ''`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to list partner ids"))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.WrapError(err, "failed to scan partner id")
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(err, "error iterating partner ids")
	}
	return out, nil
}

func (s *PostgresStore) FindPending(ctx context.Context, maxAttempts int) ([]*Entry, error) {
	const q = `
SELECT entry_id, saga_id, partner_id, correlation_id, event_type, payload, content_hash, received_at, processed_at, status, error_message, attempts
FROM saga_log WHERE status IN ('Received', 'Error') AND attempts <= $1 ORDER BY received_at ASC`

	rows, err := s.db.QueryContext(ctx, q, maxAttempts)
	if err != nil {
		return nil, domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to query pending entries"))
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) Mark(ctx context.Context, entryID string, newStatus Status, errMessage *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to begin mark transaction"))
	}
	defer tx.Rollback()

	var current Status
	if err := tx.QueryRowContext(ctx, `SELECT status FROM saga_log WHERE entry_id = $1 FOR UPDATE`, entryID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError("saga_log_entry", entryID)
		}
		return domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to load entry for mark"))
	}

	if !CanMark(current, newStatus) {
		return domain.NewConflictError(fmt.Sprintf("cannot mark entry %s from %s to %s", entryID, current, newStatus))
	}

	attemptsIncrement := 0
	if newStatus == StatusProcessing && current == StatusError {
		attemptsIncrement = 1
	}

	_, err = tx.ExecContext(ctx, `
UPDATE saga_log
SET status = $1,
    error_message = $2,
    attempts = attempts + $3,
    processed_at = CASE WHEN $1 = 'Processed' THEN NOW() ELSE processed_at END
WHERE entry_id = $4`,
		string(newStatus), errMessage, attemptsIncrement, entryID)
	if err != nil {
		return domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to mark entry"))
	}

	if err := tx.Commit(); err != nil {
		return domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to commit mark transaction"))
	}
	return nil
}

func (s *PostgresStore) Seen(ctx context.Context, sagaID, eventType, contentHash string) (bool, error) {
	const q = `
SELECT 1 FROM saga_log
WHERE saga_id = $1 AND event_type = $2 AND content_hash = $3 AND status = 'Processed'
LIMIT 1`

	var exists int
	err := s.db.QueryRowContext(ctx, q, sagaID, eventType, contentHash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewDependencyError("saga_log", domain.WrapError(err, "failed to check idempotency"))
	}
	return true, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var status string
		if err := rows.Scan(&e.EntryID, &e.SagaID, &e.PartnerID, &e.CorrelationID, &e.EventType, &e.Payload, &e.ContentHash, &e.ReceivedAt, &e.ProcessedAt, &status, &e.ErrorMessage, &e.Attempts); err != nil {
			return nil, domain.WrapError(err, "failed to scan saga_log row")
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(err, "error iterating saga_log rows")
	}
	return entries, nil
}

// isDuplicateKey reports whether err is a Postgres unique-violation, using
// lib/pq's error code classification.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
