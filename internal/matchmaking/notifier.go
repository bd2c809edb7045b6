// internal/matchmaking/notifier.go
package matchmaking

import (
	"time"

	"github.com/jason-s-yu/tictactoe/internal/game"
)

// Message is a single outbound JSON object. The "type" key names the event.
type Message map[string]interface{}

// Outbound event types.
const (
	EventProfile         = "profile"
	EventLobbyCreated    = "lobby_created"
	EventLobbyUpdated    = "lobby_updated"
	EventLobbiesList     = "lobbies_list"
	EventSearching       = "searching"
	EventSearchCancelled = "search_cancelled"
	EventMatchFound      = "match_found"
	EventMatchAck        = "match_ack"
	EventSessionStarting = "session_starting"
	EventMatchCancelled  = "match_cancelled"
	EventPlayerForfeited = "player_forfeited"
	EventLobbyClosed     = "lobby_closed"
	EventForceLogout     = "force_logout"
)

// Reasons attached to match_cancelled, search_cancelled and lobby_closed.
const (
	ReasonDeclined             = "declined"
	ReasonTimeout              = "timeout"
	ReasonLobbyGone            = "lobby_gone"
	ReasonMatchStarted         = "match_started"
	ReasonCancelled            = "cancelled"
	ReasonOpponentDisconnected = "opponent_disconnected"
	ReasonDisconnect           = "disconnect"
)

// Notifier delivers messages to live connections. Implementations must not
// block: delivery is fire-and-forget and a failed send never rolls back state.
type Notifier interface {
	Send(conn ConnID, msg Message)
	Broadcast(msg Message)
}

type envelope struct {
	conn      ConnID
	broadcast bool
	msg       Message
}

// outbox collects messages while the service lock is held. It is flushed to
// the notifier after unlocking.
type outbox struct {
	items []envelope
}

func (o *outbox) send(conn ConnID, msg Message) {
	o.items = append(o.items, envelope{conn: conn, msg: msg})
}

func (o *outbox) sendAll(conns []ConnID, msg Message) {
	for _, c := range conns {
		o.send(c, msg)
	}
}

func (o *outbox) broadcast(msg Message) {
	o.items = append(o.items, envelope{broadcast: true, msg: msg})
}

func (o *outbox) flush(n Notifier) {
	if n == nil {
		return
	}
	for _, e := range o.items {
		if e.broadcast {
			n.Broadcast(e.msg)
		} else {
			n.Send(e.conn, e.msg)
		}
	}
	o.items = nil
}

// message builders

func profileMsg(id Identity) Message {
	return Message{"type": EventProfile, "profile": id}
}

func lobbyCreatedMsg(snap LobbySnapshot) Message {
	return Message{"type": EventLobbyCreated, "lobby": snap}
}

func lobbyUpdatedMsg(snap LobbySnapshot) Message {
	return Message{"type": EventLobbyUpdated, "lobby": snap}
}

func lobbiesListMsg(lobbies []LobbySnapshot) Message {
	return Message{"type": EventLobbiesList, "lobbies": lobbies}
}

func searchingMsg(lobbyID string) Message {
	return Message{"type": EventSearching, "lobby_id": lobbyID}
}

// searchCancelledMsg reports a removed queue entry. An empty lobbyID is sent as null.
func searchCancelledMsg(lobbyID, reason string) Message {
	var id interface{}
	if lobbyID != "" {
		id = lobbyID
	}
	return Message{"type": EventSearchCancelled, "lobby_id": id, "reason": reason}
}

func matchFoundMsg(pm *PendingMatch, opponent pendingPlayer, window time.Duration) Message {
	return Message{
		"type":       EventMatchFound,
		"match_id":   pm.ID,
		"lobby_id":   pm.LobbyID,
		"expires_in": int(window / time.Second),
		"opponent": Message{
			"display_name": opponent.DisplayName,
			"avatar_url":   opponent.AvatarURL,
		},
	}
}

func matchAckMsg(pm *PendingMatch) Message {
	return Message{
		"type":      EventMatchAck,
		"match_id":  pm.ID,
		"confirmed": len(pm.Confirmed),
		"required":  maxPlayers,
	}
}

func sessionStartingMsg(matchID string, snap LobbySnapshot, symbol game.Symbol) Message {
	return Message{
		"type":     EventSessionStarting,
		"match_id": matchID,
		"lobby":    snap,
		"symbol":   symbol,
	}
}

func matchCancelledMsg(matchID, reason string) Message {
	return Message{"type": EventMatchCancelled, "match_id": matchID, "reason": reason}
}

func playerForfeitedMsg(lobbyID string, loser game.Symbol, winner game.Result) Message {
	return Message{
		"type":     EventPlayerForfeited,
		"lobby_id": lobbyID,
		"symbol":   loser,
		"winner":   winner,
	}
}

func lobbyClosedMsg(lobbyID, reason string) Message {
	return Message{"type": EventLobbyClosed, "lobby_id": lobbyID, "reason": reason}
}

// ForceLogoutMsg tells every client to drop its cached identity.
func ForceLogoutMsg() Message {
	return Message{"type": EventForceLogout}
}
