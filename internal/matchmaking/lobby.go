// internal/matchmaking/lobby.go
package matchmaking

import (
	"time"

	"github.com/jason-s-yu/tictactoe/internal/game"
)

// Status is the lifecycle state of a lobby.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// maxPlayers is the seat count of a tic-tac-toe lobby.
const maxPlayers = 2

// Player is a lobby participant. A player belongs to exactly one lobby.
type Player struct {
	ConnID      ConnID      `json:"connection_id"`
	Key         UserKey     `json:"-"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url"`
	Symbol      game.Symbol `json:"symbol"`
}

// Lobby is a game session container with up to two players and the board.
// All fields are guarded by the Service mutex.
type Lobby struct {
	ID        string
	Name      string
	Hidden    bool
	Status    Status
	Players   []*Player
	CreatedAt time.Time

	game.Round

	seq uint64 // creation order, assigned by the store
}

// newLobby returns a waiting lobby with an empty board. The id is assigned by the store.
func newLobby(name string, hidden bool, now time.Time) *Lobby {
	return &Lobby{
		Name:      name,
		Hidden:    hidden,
		Status:    StatusWaiting,
		CreatedAt: now,
		Round:     game.NewRound(),
	}
}

// PlayerByConnUnsafe returns the player seated on conn.
func (l *Lobby) PlayerByConnUnsafe(conn ConnID) *Player {
	for _, p := range l.Players {
		if p.ConnID == conn {
			return p
		}
	}
	return nil
}

// PlayerByKeyUnsafe returns the player with the given user key.
func (l *Lobby) PlayerByKeyUnsafe(key UserKey) *Player {
	for _, p := range l.Players {
		if p.Key == key {
			return p
		}
	}
	return nil
}

// OpponentOfUnsafe returns the other seated player, if any.
func (l *Lobby) OpponentOfUnsafe(p *Player) *Player {
	for _, other := range l.Players {
		if other != p {
			return other
		}
	}
	return nil
}

// freeSymbolUnsafe returns the first unclaimed symbol, X before O.
func (l *Lobby) freeSymbolUnsafe() game.Symbol {
	taken := map[game.Symbol]bool{}
	for _, p := range l.Players {
		taken[p.Symbol] = true
	}
	if !taken[game.X] {
		return game.X
	}
	if !taken[game.O] {
		return game.O
	}
	return game.Empty
}

// seatUnsafe adds p with the free symbol. The caller checks capacity first.
func (l *Lobby) seatUnsafe(p *Player) {
	p.Symbol = l.freeSymbolUnsafe()
	l.Players = append(l.Players, p)
}

// removePlayerUnsafe drops p from the lobby and reports whether it was seated.
func (l *Lobby) removePlayerUnsafe(p *Player) bool {
	for i, other := range l.Players {
		if other == p {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			return true
		}
	}
	return false
}

// startRoundUnsafe resets the board and marks the lobby as playing.
func (l *Lobby) startRoundUnsafe() {
	l.Round = game.NewRound()
	l.Status = StatusPlaying
}

// connsUnsafe lists the connections seated in the lobby.
func (l *Lobby) connsUnsafe() []ConnID {
	conns := make([]ConnID, 0, len(l.Players))
	for _, p := range l.Players {
		conns = append(conns, p.ConnID)
	}
	return conns
}

// LobbySnapshot is the full wire form of a lobby. Clients always receive the
// complete state, never a diff.
type LobbySnapshot struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Hidden  bool        `json:"hidden"`
	Status  Status      `json:"status"`
	Players []Player    `json:"players"`
	Board   game.Board  `json:"board"`
	Turn    game.Symbol `json:"turn"`
	Winner  game.Result `json:"winner,omitempty"`
}

// SnapshotUnsafe copies the lobby state for serialization outside the lock.
func (l *Lobby) SnapshotUnsafe() LobbySnapshot {
	players := make([]Player, 0, len(l.Players))
	for _, p := range l.Players {
		players = append(players, *p)
	}
	return LobbySnapshot{
		ID:      l.ID,
		Name:    l.Name,
		Hidden:  l.Hidden,
		Status:  l.Status,
		Players: players,
		Board:   l.Board,
		Turn:    l.Turn,
		Winner:  l.Result,
	}
}
