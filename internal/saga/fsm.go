// Package saga implements C4, the saga state machine: the canonical
// reduction of a partner's event stream into one of the states below, with
// illegal transitions rejected rather than applied.
package saga

import (
	"context"
	"log/slog"
	"time"

	fsm "github.com/robbyt/go-fsm/v2"
)

// States a saga can be in.
const (
	StateStarted           = "Started"
	StatePartnerCreated     = "PartnerCreated"
	StateContractCreated    = "ContractCreated"
	StateContractRejected   = "ContractRejected"
	StatePendingRevision    = "PendingRevision"
	StateCompletedOk        = "CompletedOk"
	StateCompletedFailed    = "CompletedFailed"
)

// Transitions is the legal transition graph. go-fsm rejects any Transition call to a
// state not listed for the current one.
var Transitions = map[string][]string{
	StateStarted:         {StatePartnerCreated},
	StatePartnerCreated:   {StateContractCreated, StateCompletedFailed},
	StateContractCreated:  {StateCompletedOk, StateContractRejected},
	StateContractRejected: {StatePendingRevision},
	StatePendingRevision:  {},
	StateCompletedOk:      {},
	StateCompletedFailed:  {},
}

// TerminalStates are sticky: once reached, no
// subsequent event changes them.
var TerminalStates = map[string]bool{
	StatePendingRevision: true,
	StateCompletedOk:     true,
	StateCompletedFailed: true,
}

// eventTargetState maps an incoming event's tag to the state it drives the
// saga toward. Events absent from this map (CreatePartnerCommand, any
// unknown tag) never advance state.
var eventTargetState = map[string]string{
	"PartnerCreated":            StatePartnerCreated,
	"ContractCreated":           StateContractCreated,
	"ContractCreationFailed":    StateCompletedFailed,
	"ContractApproved":          StateCompletedOk,
	"ContractRejected":          StateContractRejected,
	"ContractRevisionRequested": StatePendingRevision,
}

// TargetStateForEvent returns the state eventType would drive a saga
// toward, and whether the tag is one the machine recognizes at all.
func TargetStateForEvent(eventType string) (string, bool) {
	target, ok := eventTargetState[eventType]
	return target, ok
}

// IsTerminal reports whether state is one of TerminalStates.
func IsTerminal(state string) bool {
	return TerminalStates[state]
}

// Machine wraps fsm.Machine with the saga-specific sync-broadcast timeout
// used for GetStateChan, mirroring the embedding pattern used for
// per-subsystem FSMs elsewhere in this corpus.
type Machine struct {
	*fsm.Machine
}

// New builds a Machine starting at StateStarted.
func New(handler slog.Handler) (*Machine, error) {
	m, err := fsm.New(handler, StateStarted, Transitions)
	if err != nil {
		return nil, err
	}
	return &Machine{Machine: m}, nil
}

// GetStateChan returns a channel that emits state changes with a bounded
// synchronous-broadcast timeout so a slow subscriber cannot stall the saga.
func (m *Machine) GetStateChan(ctx context.Context) <-chan string {
	return m.GetStateChanWithOptions(ctx, fsm.WithSyncTimeout(5*time.Second))
}
