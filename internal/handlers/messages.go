// internal/handlers/messages.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound message types.
const (
	TypeIdentify         = "identify"
	TypeCreateLobby      = "create_lobby"
	TypeJoinLobby        = "join_lobby"
	TypeQuickMatch       = "quick_match"
	TypeCancelQuickMatch = "cancel_quick_match"
	TypeMatchAccept      = "match_accept"
	TypeMatchDecline     = "match_decline"
	TypeMakeMove         = "make_move"
	TypeLeaveLobby       = "leave_lobby"
	TypeListLobbies      = "list_lobbies"
	TypeGetLobbies       = "get_lobbies" // legacy alias of list_lobbies
	TypePing             = "ping"
)

// forfeitPosition is the legacy way of conceding through make_move.
const forfeitPosition = -1

// AccountID accepts the account id as a JSON string or number; Telegram user
// ids arrive as numbers from some clients.
type AccountID string

func (a *AccountID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AccountID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("account_id must be a string or number: %w", err)
	}
	*a = AccountID(n.String())
	return nil
}

// ClientMessage is the union of every inbound payload. Fields a type does not
// use are ignored.
type ClientMessage struct {
	Type string `json:"type"`

	// identity / profile
	AccountID   AccountID `json:"account_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Token       string    `json:"token"`

	// lobbies
	Name    string `json:"name"`
	Hidden  bool   `json:"hidden"`
	LobbyID string `json:"lobby_id"`

	// matches and moves
	MatchID  string `json:"match_id"`
	Position *int   `json:"position"`
	Forfeit  bool   `json:"forfeit"`
}

// isForfeit reports whether a make_move concedes the game.
func (m *ClientMessage) isForfeit() bool {
	return m.Forfeit || (m.Position != nil && *m.Position == forfeitPosition)
}
