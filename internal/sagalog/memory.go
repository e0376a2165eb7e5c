package sagalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

// MemoryStore is a Store test double backed by a map and a mutex; it
// enforces the same Mark transition and append-only rules as PostgresStore
// so coordinator tests exercise the real invariants.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Append(ctx context.Context, entry *Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.EntryID]; exists {
		return "", domain.NewConflictError(fmt.Sprintf("entry %s already exists", entry.EntryID))
	}
	cp := *entry
	s.entries[entry.EntryID] = &cp
	return entry.EntryID, nil
}

func (s *MemoryStore) FindBySaga(ctx context.Context, sagaID string, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Entry
	for _, e := range s.entries {
		if e.SagaID == sagaID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindByPartner(ctx context.Context, partnerID string, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Entry
	for _, e := range s.entries {
		if e.PartnerID == partnerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListPartnerIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range s.entries {
		if e.PartnerID == "" || seen[e.PartnerID] {
			continue
		}
		seen[e.PartnerID] = true
		out = append(out, e.PartnerID)
	}
	return out, nil
}

func (s *MemoryStore) FindPending(ctx context.Context, maxAttempts int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Entry
	for _, e := range s.entries {
		if (e.Status == StatusReceived || e.Status == StatusError) && e.Attempts <= maxAttempts {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (s *MemoryStore) Mark(ctx context.Context, entryID string, newStatus Status, errMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return domain.NewNotFoundError("saga_log_entry", entryID)
	}
	if !CanMark(e.Status, newStatus) {
		return domain.NewConflictError(fmt.Sprintf("cannot mark entry %s from %s to %s", entryID, e.Status, newStatus))
	}
	if newStatus == StatusProcessing && e.Status == StatusError {
		e.Attempts++
	}
	e.Status = newStatus
	e.ErrorMessage = errMessage
	if newStatus == StatusProcessed {
		now := time.Now().UTC()
		e.ProcessedAt = &now
	}
	return nil
}

func (s *MemoryStore) Seen(ctx context.Context, sagaID, eventType, contentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.SagaID == sagaID && e.EventType == eventType && e.ContentHash == contentHash && e.Status == StatusProcessed {
			return true, nil
		}
	}
	return false, nil
}
