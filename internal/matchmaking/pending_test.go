package matchmaking

import (
	"testing"
	"time"

	"github.com/jason-s-yu/tictactoe/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptFlowStartsSession(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")

	require.NoError(t, h.svc.AcceptMatch("A", matchID))
	ack := h.notes.last("B", EventMatchAck)
	require.NotNil(t, ack, "the other side sees the acknowledgement")
	assert.Equal(t, 1, ack["confirmed"])
	assert.Equal(t, StatusWaiting, h.lobby(t, lobbyID).Status)
	assert.Nil(t, h.notes.last("A", EventSessionStarting))

	require.NoError(t, h.svc.AcceptMatch("B", matchID))
	for _, conn := range []ConnID{"A", "B"} {
		start := h.notes.last(conn, EventSessionStarting)
		require.NotNil(t, start, "%s should receive session_starting", conn)
		assert.Equal(t, matchID, start["match_id"])
		assert.NotNil(t, h.notes.last(conn, EventLobbyUpdated))
	}
	assert.Equal(t, game.X, h.notes.last("A", EventSessionStarting)["symbol"])
	assert.Equal(t, game.O, h.notes.last("B", EventSessionStarting)["symbol"])

	snap := h.lobby(t, lobbyID)
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, game.X, snap.Turn)
	assert.Equal(t, game.Board{}, snap.Board)
	assert.Empty(t, h.svc.pending)
	assert.True(t, h.sched.get(0).stopped, "timer is cancelled on dual confirmation")

	// the match is gone once resolved
	assert.ErrorIs(t, h.svc.AcceptMatch("A", matchID), ErrMatchNotFound)
}

func TestRepeatedAcceptNeverExceedsTwoConfirmations(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")

	for i := 0; i < 5; i++ {
		require.NoError(t, h.svc.AcceptMatch("A", matchID))
	}
	pm := h.svc.pending[matchID]
	require.NotNil(t, pm)
	assert.Len(t, pm.Confirmed, 1)
	assert.Equal(t, StatusWaiting, h.lobby(t, lobbyID).Status)

	require.NoError(t, h.svc.AcceptMatch("B", matchID))
	assert.Len(t, pm.Confirmed, 2)
	assert.Equal(t, StatusPlaying, h.lobby(t, lobbyID).Status)
}

func TestAcceptByStrangerIsRejected(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, _ := h.pair(t, "A", "B")

	assert.ErrorIs(t, h.svc.AcceptMatch("C", matchID), ErrMatchNotFound)
	assert.ErrorIs(t, h.svc.AcceptMatch("A", "no-such-match"), ErrMatchNotFound)
	assert.ErrorIs(t, h.svc.DeclineMatch("C", matchID), ErrMatchNotFound)
	assert.Empty(t, h.svc.pending[matchID].Confirmed)
}

// TestAcceptTimeoutRequeuesConfirmedPlayer: A accepts, B never answers.
func TestAcceptTimeoutRequeuesConfirmedPlayer(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")
	require.NoError(t, h.svc.AcceptMatch("A", matchID))
	h.notes.clear()

	h.sched.fireAll()

	searching := h.notes.last("A", EventSearching)
	require.NotNil(t, searching, "A is requeued")
	newLobby := searching["lobby_id"].(string)
	assert.NotEqual(t, lobbyID, newLobby)
	assert.Nil(t, h.notes.last("A", EventMatchCancelled))

	cancelled := h.notes.last("B", EventMatchCancelled)
	require.NotNil(t, cancelled)
	assert.Equal(t, ReasonTimeout, cancelled["reason"])
	assert.Nil(t, h.notes.last("B", EventSearching), "unconfirmed players are not requeued")

	_, ok := h.svc.Lobby(lobbyID)
	assert.False(t, ok, "paired lobby is discarded")
	snap := h.lobby(t, newLobby)
	assert.True(t, snap.Hidden)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.True(t, h.queued(newLobby))
	assert.Empty(t, h.svc.pending)
}

func TestTimeoutWithoutConfirmationsCancelsBoth(t *testing.T) {
	h := newHarness(t, Config{})
	_, _ = h.pair(t, "A", "B")

	h.sched.fireAll()

	for _, conn := range []ConnID{"A", "B"} {
		assert.NotNil(t, h.notes.last(conn, EventMatchCancelled))
	}
	assert.Equal(t, 0, h.svc.lobbies.Len())
	assert.Equal(t, 0, h.svc.queue.Len())
}

// TestTimeoutAfterDualConfirmationIsNoop runs the timer callback even though
// it was stopped, as if it fired in the same instant as the last accept.
func TestTimeoutAfterDualConfirmationIsNoop(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")
	require.NoError(t, h.svc.AcceptMatch("A", matchID))
	require.NoError(t, h.svc.AcceptMatch("B", matchID))
	h.notes.clear()

	h.sched.get(0).f()

	for _, conn := range []ConnID{"A", "B"} {
		assert.Empty(t, h.notes.types(conn), "%s got unexpected messages", conn)
	}
	assert.Equal(t, StatusPlaying, h.lobby(t, lobbyID).Status)
	assert.Equal(t, 0, h.svc.queue.Len())
}

func TestDeclineRequeuesOtherPlayer(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")
	require.NoError(t, h.svc.AcceptMatch("A", matchID))
	h.notes.clear()

	require.NoError(t, h.svc.DeclineMatch("B", matchID))

	cancelled := h.notes.last("B", EventMatchCancelled)
	require.NotNil(t, cancelled)
	assert.Equal(t, ReasonDeclined, cancelled["reason"])
	assert.Nil(t, h.notes.last("B", EventSearching))

	searching := h.notes.last("A", EventSearching)
	require.NotNil(t, searching)
	assert.True(t, h.queued(searching["lobby_id"].(string)))

	_, ok := h.svc.Lobby(lobbyID)
	assert.False(t, ok)
	assert.True(t, h.sched.get(0).stopped)
	assert.ErrorIs(t, h.svc.DeclineMatch("B", matchID), ErrMatchNotFound)

	// a late timer does nothing to the requeued player
	h.notes.clear()
	h.sched.get(0).f()
	assert.Empty(t, h.notes.types("A"))
}

func TestRequeuedPlayerPairsImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, _ := h.pair(t, "A", "B")
	require.NoError(t, h.svc.QuickMatch("C", PlayerRequest{}))

	require.NoError(t, h.svc.DeclineMatch("B", matchID))

	found := h.notes.last("C", EventMatchFound)
	require.NotNil(t, found, "A's fresh entry pairs with the waiting C")
	assert.Equal(t, found["match_id"], h.notes.last("A", EventMatchFound)["match_id"])
	assert.Equal(t, 0, h.svc.queue.Len())
}

func TestRequeueRespectsCapacityAfterDiscard(t *testing.T) {
	h := newHarness(t, Config{MaxLobbies: 2})
	matchID, _ := h.pair(t, "A", "B")
	_, err := h.svc.CreateLobby("C", CreateLobbyRequest{})
	require.NoError(t, err)

	require.NoError(t, h.svc.DeclineMatch("A", matchID))

	assert.NotNil(t, h.notes.last("B", EventSearching))
	assert.Equal(t, 2, h.svc.lobbies.Len())
}

func TestAcceptFromAnotherDeviceRebinds(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.SetIdentity(t.Context(), "A1", Identity{AccountID: "42", DisplayName: "alice"})
	matchID, lobbyID := h.pair(t, "A1", "B")

	h.reg.SetIdentity(t.Context(), "A2", Identity{AccountID: "42", DisplayName: "alice"})
	require.NoError(t, h.svc.AcceptMatch("A2", matchID))
	require.NoError(t, h.svc.AcceptMatch("B", matchID))

	assert.NotNil(t, h.notes.last("A2", EventSessionStarting))
	assert.Nil(t, h.notes.last("A1", EventSessionStarting))

	snap := h.lobby(t, lobbyID)
	assert.Equal(t, ConnID("A2"), snap.Players[0].ConnID)
	require.NoError(t, h.svc.MakeMove("A2", lobbyID, 4))
}

func TestAnonymousCallerCannotTakeOverSeat(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, _ := h.pair(t, "A", "B")

	assert.ErrorIs(t, h.svc.AcceptMatch("A-other-tab", matchID), ErrMatchNotFound)
}

func TestAcceptClearsStaleConfirmationOnOtherMatch(t *testing.T) {
	h := newHarness(t, Config{})
	first, _ := h.pair(t, "A", "B")
	require.NoError(t, h.svc.AcceptMatch("A", first))

	// A searches again while the first match is still pending
	require.NoError(t, h.svc.QuickMatch("A", PlayerRequest{}))
	require.NoError(t, h.svc.QuickMatch("C", PlayerRequest{}))
	second := h.notes.last("C", EventMatchFound)["match_id"].(string)
	require.NotEqual(t, first, second)

	require.NoError(t, h.svc.AcceptMatch("A", second))

	assert.Empty(t, h.svc.pending[first].Confirmed)
	assert.Len(t, h.svc.pending[second].Confirmed, 1)
}

func TestAcceptExpiresOverdueMatches(t *testing.T) {
	h := newHarness(t, Config{ConfirmTimeout: 10 * time.Second})
	matchID, _ := h.pair(t, "A", "B")

	h.clock.Advance(11 * time.Second)

	assert.ErrorIs(t, h.svc.AcceptMatch("B", matchID), ErrMatchNotFound)
	for _, conn := range []ConnID{"A", "B"} {
		cancelled := h.notes.last(conn, EventMatchCancelled)
		require.NotNil(t, cancelled)
		assert.Equal(t, ReasonTimeout, cancelled["reason"])
	}
	assert.Empty(t, h.svc.pending)
}

func TestSessionStartPurgesOtherQueuedLobbies(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.SetIdentity(t.Context(), "A1", Identity{AccountID: "42"})
	h.reg.SetIdentity(t.Context(), "A2", Identity{AccountID: "42"})

	matchID, _ := h.pair(t, "A1", "B")
	require.NoError(t, h.svc.QuickMatch("A2", PlayerRequest{}))
	require.Equal(t, 1, h.svc.queue.Len())

	require.NoError(t, h.svc.AcceptMatch("A1", matchID))
	require.NoError(t, h.svc.AcceptMatch("B", matchID))

	assert.Equal(t, 0, h.svc.queue.Len())
	cancelled := h.notes.last("A2", EventSearchCancelled)
	require.NotNil(t, cancelled)
	assert.Equal(t, ReasonMatchStarted, cancelled["reason"])
	assert.Equal(t, 1, h.svc.lobbies.Len())
}

func TestConfirmedMatchWithVanishedLobby(t *testing.T) {
	h := newHarness(t, Config{})
	matchID, lobbyID := h.pair(t, "A", "B")
	require.NoError(t, h.svc.AcceptMatch("A", matchID))

	h.svc.lobbies.Delete(lobbyID)
	require.NoError(t, h.svc.AcceptMatch("B", matchID))

	for _, conn := range []ConnID{"A", "B"} {
		cancelled := h.notes.last(conn, EventMatchCancelled)
		require.NotNil(t, cancelled)
		assert.Equal(t, ReasonLobbyGone, cancelled["reason"])
	}
	assert.Empty(t, h.svc.pending)
}

func TestCloseStopsTimers(t *testing.T) {
	h := newHarness(t, Config{})
	_, _ = h.pair(t, "A", "B")

	h.svc.Close()

	assert.True(t, h.sched.get(0).stopped)
	assert.Empty(t, h.svc.pending)
}

func TestDeclineFromAnotherDeviceNotifiesRecordedDevice(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.SetIdentity(t.Context(), "A1", Identity{AccountID: "42"})
	matchID, _ := h.pair(t, "A1", "B")
	h.reg.SetIdentity(t.Context(), "A2", Identity{AccountID: "42"})
	h.notes.clear()

	require.NoError(t, h.svc.DeclineMatch("A2", matchID))

	for _, conn := range []ConnID{"A1", "A2"} {
		cancelled := h.notes.last(conn, EventMatchCancelled)
		require.NotNil(t, cancelled, "conn %s", conn)
		assert.Equal(t, matchID, cancelled["match_id"])
		assert.Equal(t, ReasonDeclined, cancelled["reason"])
	}
	assert.Nil(t, h.notes.last("B", EventMatchCancelled))
	assert.NotNil(t, h.notes.last("B", EventSearching))
}
