package matchmaking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectClosesPlayingLobby(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.SetIdentity(t.Context(), "A", Identity{DisplayName: "alice"})
	id := h.playing(t, "A", "B")

	h.svc.Disconnect("A")

	closed := h.notes.last("B", EventLobbyClosed)
	require.NotNil(t, closed)
	assert.Equal(t, id, closed["lobby_id"])
	assert.Equal(t, ReasonOpponentDisconnected, closed["reason"])

	_, ok := h.svc.Lobby(id)
	assert.False(t, ok)
	assert.Nil(t, h.notes.last("B", EventSearching), "the remaining player is not requeued")
	_, known := h.reg.Get("A")
	assert.False(t, known)
}

func TestDisconnectDropsQueueEntries(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.svc.QuickMatch("A", PlayerRequest{}))

	h.svc.Disconnect("A")

	assert.Equal(t, 0, h.svc.queue.Len())
	assert.Equal(t, 0, h.svc.lobbies.Len())
}

func TestDisconnectDuringPendingRequeuesOpponent(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")
	h.notes.clear()

	h.svc.Disconnect("A")

	assert.NotContains(t, h.svc.pending, matchID)
	assert.Empty(t, h.notes.types("A"), "nothing is sent to the dropped connection")
	assert.NotNil(t, h.notes.last("B", EventSearching))
	_, ok := h.svc.Lobby(lobbyID)
	assert.False(t, ok)
	assert.Equal(t, 1, h.svc.queue.Len())
}

func TestDisconnectRebindsToOtherDevice(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.SetIdentity(t.Context(), "A1", Identity{AccountID: "42"})
	h.reg.SetIdentity(t.Context(), "A2", Identity{AccountID: "42"})
	matchID, lobbyID := h.pair(t, "A1", "B")
	h.notes.clear()
	h.clock.Advance(10 * time.Second)

	h.svc.Disconnect("A1")

	require.Contains(t, h.svc.pending, matchID)
	assert.Equal(t, ConnID("A2"), h.svc.pending[matchID].Players[0].ConnID)
	assert.Equal(t, ConnID("A2"), h.lobby(t, lobbyID).Players[0].ConnID)

	// the new device learns about the match with what is left of the window
	found := h.notes.last("A2", EventMatchFound)
	require.NotNil(t, found)
	assert.Equal(t, matchID, found["match_id"])
	assert.Equal(t, lobbyID, found["lobby_id"])
	assert.Equal(t, 20, found["expires_in"])
	opponent := found["opponent"].(Message)
	assert.Equal(t, h.svc.pending[matchID].Players[1].DisplayName, opponent["display_name"])
	assert.Empty(t, h.notes.types("B"), "the opponent is not disturbed")

	require.NoError(t, h.svc.AcceptMatch("A2", matchID))
	require.NoError(t, h.svc.AcceptMatch("B", matchID))
	assert.NotNil(t, h.notes.last("A2", EventSessionStarting))
	assert.Equal(t, StatusPlaying, h.lobby(t, lobbyID).Status)
}

func TestDisconnectedQueueEntryIsNotPairedWithRequeuedOpponent(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, _ := h.pair(t, "A", "B")
	// A searches again, leaving a queued lobby behind
	require.NoError(t, h.svc.QuickMatch("A", PlayerRequest{}))

	h.svc.Disconnect("A")

	assert.NotContains(t, h.svc.pending, matchID)
	assert.Empty(t, h.svc.pending, "B must not be paired with A's abandoned entry")
	assert.NotNil(t, h.notes.last("B", EventSearching))
}
