package saga

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler() slog.Handler {
	return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
}

func TestSaga_HappyPathReachesCompletedOk(t *testing.T) {
	s, err := NewSaga("P0000000001", testHandler())
	require.NoError(t, err)
	assert.Equal(t, StateStarted, s.State())

	transitioned, err := s.Apply("PartnerCreated", "e1")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, StatePartnerCreated, s.State())

	transitioned, err = s.Apply("ContractCreated", "e2")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, StateContractCreated, s.State())

	transitioned, err = s.Apply("ContractApproved", "e3")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, StateCompletedOk, s.State())
	assert.Equal(t, []string{"e1", "e2", "e3"}, s.EventHistory)
}

func TestSaga_RejectionPathReachesPendingRevision(t *testing.T) {
	s, err := NewSaga("P0000000002", testHandler())
	require.NoError(t, err)

	mustApply(t, s, "PartnerCreated", "e1")
	mustApply(t, s, "ContractCreated", "e2")
	mustApply(t, s, "ContractRejected", "e3")
	mustApply(t, s, "ContractRevisionRequested", "e4")

	assert.Equal(t, StatePendingRevision, s.State())
}

func TestSaga_ContractCreationFailureReachesCompletedFailed(t *testing.T) {
	s, err := NewSaga("P0000000003", testHandler())
	require.NoError(t, err)

	mustApply(t, s, "PartnerCreated", "e1")
	mustApply(t, s, "ContractCreationFailed", "e2")

	assert.Equal(t, StateCompletedFailed, s.State())
}

func TestSaga_TerminalStateIsSticky(t *testing.T) {
	s, err := NewSaga("P0000000004", testHandler())
	require.NoError(t, err)

	mustApply(t, s, "PartnerCreated", "e1")
	mustApply(t, s, "ContractCreated", "e2")
	mustApply(t, s, "ContractApproved", "e3")
	require.Equal(t, StateCompletedOk, s.State())

	transitioned, err := s.Apply("ContractRejected", "e4")
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, StateCompletedOk, s.State())
}

func TestSaga_IllegalTransitionIsIgnoredNotErrored(t *testing.T) {
	s, err := NewSaga("P0000000005", testHandler())
	require.NoError(t, err)

	transitioned, err := s.Apply("ContractApproved", "e1")
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, StateStarted, s.State())
}

func TestSaga_UnknownEventDoesNotAdvanceState(t *testing.T) {
	s, err := NewSaga("P0000000006", testHandler())
	require.NoError(t, err)

	transitioned, err := s.Apply("CreatePartnerCommand", "e1")
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, StateStarted, s.State())
}

func TestReplay_ReachesSameTerminalStateAsOriginal(t *testing.T) {
	events := []string{"PartnerCreated", "ContractCreated", "ContractRejected", "ContractRevisionRequested"}

	replayed, err := Replay("P0000000007", testHandler(), events)
	require.NoError(t, err)
	assert.Equal(t, StatePendingRevision, replayed.State())
}

func mustApply(t *testing.T, s *Saga, eventType, entryID string) {
	t.Helper()
	transitioned, err := s.Apply(eventType, entryID)
	require.NoError(t, err)
	require.True(t, transitioned)
}
