// internal/matchmaking/errors.go
package matchmaking

// Error is a recoverable failure reported to the requesting connection only.
// Code is stable and meant for clients; Message is human readable.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrCapacityExceeded = &Error{Code: "capacity_exceeded", Message: "lobby limit reached, try again later"}
	ErrLobbyNotFound    = &Error{Code: "lobby_not_found", Message: "lobby not found"}
	ErrAlreadyInLobby   = &Error{Code: "already_in_lobby", Message: "you are already in this lobby"}
	ErrLobbyFull        = &Error{Code: "lobby_full", Message: "lobby is full"}
	ErrNotPlaying       = &Error{Code: "not_playing", Message: "game is not active"}
	ErrInvalidPosition  = &Error{Code: "invalid_position", Message: "invalid position"}
	ErrNotYourTurn      = &Error{Code: "not_your_turn", Message: "not your turn"}
	ErrCellOccupied     = &Error{Code: "cell_occupied", Message: "cell is occupied"}
	ErrMatchNotFound    = &Error{Code: "match_not_found", Message: "match not found or already resolved"}
	ErrNotInLobby       = &Error{Code: "not_in_lobby", Message: "you are not a player in this lobby"}
)
