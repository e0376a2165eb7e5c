package saga

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Saga is the aggregate root: one per partner onboarding attempt.
// PartnerID is immutable after construction; State only ever advances
// along Transitions.
type Saga struct {
	SagaID       string
	PartnerID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	EventHistory []string // SagaLogEntry ids, in application order

	machine *Machine
}

// NewSaga constructs a saga in StateStarted for partnerID. A saga is only
// ever constructed by the coordinator in response to a first PartnerCreated
// event; the caller is responsible for enforcing that rule.
func NewSaga(partnerID string, handler slog.Handler) (*Saga, error) {
	machine, err := New(handler)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Saga{
		SagaID:    uuid.New().String(),
		PartnerID: partnerID,
		CreatedAt: now,
		UpdatedAt: now,
		machine:   machine,
	}, nil
}

// State returns the saga's current state.
func (s *Saga) State() string {
	return s.machine.GetState()
}

// Apply attempts to drive the saga from eventType, recording entryID in
// EventHistory on success. transitioned is false, with no error, when the
// saga is already terminal or eventType does not name a legal transition
// from the current state — both cases are logged by the caller and
// otherwise ignored, never treated as a failure.
func (s *Saga) Apply(eventType, entryID string) (transitioned bool, err error) {
	if IsTerminal(s.machine.GetState()) {
		return false, nil
	}

	target, known := TargetStateForEvent(eventType)
	if !known {
		return false, nil
	}

	if !s.machine.TransitionBool(target) {
		return false, nil
	}

	s.EventHistory = append(s.EventHistory, entryID)
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Replay rebuilds a saga's state by applying its full event_history from an
// empty state, the idempotency law: replaying history must yield
// the same terminal state reached originally.
func Replay(partnerID string, handler slog.Handler, eventTypesInOrder []string) (*Saga, error) {
	s, err := NewSaga(partnerID, handler)
	if err != nil {
		return nil, err
	}
	for i, eventType := range eventTypesInOrder {
		if _, err := s.Apply(eventType, eventTypeReplayID(i)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func eventTypeReplayID(i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i)}).String()
}
