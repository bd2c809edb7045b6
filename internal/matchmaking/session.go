// internal/matchmaking/session.go
package matchmaking

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/tictactoe/internal/game"
	"github.com/jason-s-yu/tictactoe/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ReasonForfeit is sent in lobby_closed when a lone player forfeits.
const ReasonForfeit = "forfeit"

// MakeMove places the caller's symbol at position.
func (s *Service) MakeMove(conn ConnID, lobbyID string, position int) error {
	return s.transact(func(out *outbox) error {
		l, ok := s.lobbies.Get(lobbyID)
		if !ok {
			return ErrLobbyNotFound
		}
		if l.Status != StatusPlaying {
			return ErrNotPlaying
		}
		if position < 0 || position >= game.Cells {
			return ErrInvalidPosition
		}
		p := l.PlayerByConnUnsafe(conn)
		if p == nil {
			return ErrNotYourTurn
		}
		if err := l.Play(p.Symbol, position); err != nil {
			return translateMoveErr(err)
		}
		metrics.MovePlayed()

		log := s.logger.WithFields(logrus.Fields{"conn": conn, "lobby": l.ID, "position": position})
		if l.Finished() {
			l.Status = StatusFinished
			metrics.GameFinished(string(l.Result))
			log.WithField("winner", l.Result).Info("game finished")
		} else {
			log.Debug("move played")
		}

		out.sendAll(l.connsUnsafe(), lobbyUpdatedMsg(l.SnapshotUnsafe()))
		if !l.Hidden {
			s.broadcastLobbiesUnsafe(out)
		}
		return nil
	})
}

func translateMoveErr(err error) error {
	switch {
	case errors.Is(err, game.ErrInvalidPosition):
		return ErrInvalidPosition
	case errors.Is(err, game.ErrNotYourTurn):
		return ErrNotYourTurn
	case errors.Is(err, game.ErrCellOccupied):
		return ErrCellOccupied
	case errors.Is(err, game.ErrRoundOver):
		return ErrNotPlaying
	}
	return fmt.Errorf("apply move: %w", err)
}

// Forfeit concedes the game in lobbyID. It is accepted in any status: a
// pending match is declined, a lone player's lobby is deleted, otherwise the
// opponent wins unless the game already ended.
func (s *Service) Forfeit(conn ConnID, lobbyID string) error {
	return s.transact(func(out *outbox) error {
		l, ok := s.lobbies.Get(lobbyID)
		if !ok {
			return ErrLobbyNotFound
		}
		p := l.PlayerByConnUnsafe(conn)
		if p == nil {
			return ErrNotInLobby
		}
		if s.declinePendingOnLobbyUnsafe(l, conn, out) {
			return nil
		}

		log := s.logger.WithFields(logrus.Fields{"conn": conn, "lobby": l.ID})
		opponent := l.OpponentOfUnsafe(p)
		if opponent == nil {
			s.deleteLobbyUnsafe(l, out)
			out.send(conn, lobbyClosedMsg(l.ID, ReasonForfeit))
			log.Info("lone player forfeited, lobby deleted")
			return nil
		}

		snap := l.SnapshotUnsafe()
		if l.Status != StatusFinished {
			l.Round.Forfeit(p.Symbol)
			l.Status = StatusFinished
			metrics.GameFinished(ReasonForfeit)
			snap = l.SnapshotUnsafe()
			out.sendAll(l.connsUnsafe(), lobbyUpdatedMsg(snap))
			out.sendAll(l.connsUnsafe(), playerForfeitedMsg(l.ID, p.Symbol, l.Result))
			if !l.Hidden {
				s.broadcastLobbiesUnsafe(out)
			}
			log.WithField("winner", l.Result).Info("player forfeited")
			return nil
		}
		out.send(conn, lobbyUpdatedMsg(snap))
		return nil
	})
}

// LeaveLobby removes the caller from lobbyID. Unknown lobbies and non-members
// are ignored.
func (s *Service) LeaveLobby(conn ConnID, lobbyID string) {
	_ = s.transact(func(out *outbox) error {
		l, ok := s.lobbies.Get(lobbyID)
		if !ok {
			return nil
		}
		p := l.PlayerByConnUnsafe(conn)
		if p == nil {
			return nil
		}
		if s.declinePendingOnLobbyUnsafe(l, conn, out) {
			return nil
		}

		l.removePlayerUnsafe(p)
		log := s.logger.WithFields(logrus.Fields{"conn": conn, "lobby": l.ID})
		if len(l.Players) == 0 {
			s.deleteLobbyUnsafe(l, out)
			log.Info("last player left, lobby deleted")
			return nil
		}

		l.Status = StatusWaiting
		l.Round = game.NewRound()
		out.sendAll(l.connsUnsafe(), lobbyUpdatedMsg(l.SnapshotUnsafe()))
		if !l.Hidden {
			s.broadcastLobbiesUnsafe(out)
		}
		log.Info("player left lobby")
		return nil
	})
}

// declinePendingOnLobbyUnsafe declines the pending match of l on conn's
// behalf, if there is one.
func (s *Service) declinePendingOnLobbyUnsafe(l *Lobby, conn ConnID, out *outbox) bool {
	pm := s.pendingForLobbyUnsafe(l.ID)
	if pm == nil {
		return false
	}
	idx := pm.indexOfConn(conn)
	if idx < 0 {
		return false
	}
	s.declineUnsafe(pm, idx, ReasonDeclined, out, conn)
	return true
}
