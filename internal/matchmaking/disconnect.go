// internal/matchmaking/disconnect.go
package matchmaking

import (
	"github.com/sirupsen/logrus"
)

// Disconnect cleans up after a dropped connection. Pending matches move to
// another live device of the same account when one exists and are declined
// otherwise. Every lobby the connection sat in is closed; a dropped player
// is never requeued.
func (s *Service) Disconnect(conn ConnID) {
	// the identity must still be registered while pending matches are rebound
	key := s.registry.KeyOf(conn)
	_ = s.transact(func(out *outbox) error {
		log := s.logger.WithFields(logrus.Fields{"conn": conn, "user_key": key.String()})

		// queue entries go first so a requeued opponent cannot pair with them
		for _, e := range s.queue.OwnedBy(conn, UserKey{}) {
			s.queue.Remove(e.LobbyID)
			if l, ok := s.lobbies.Get(e.LobbyID); ok {
				s.deleteLobbyUnsafe(l, out)
			}
		}

		for _, pm := range s.pendingOfConnUnsafe(conn) {
			idx := pm.indexOfConn(conn)
			if idx < 0 {
				continue
			}
			if next, ok := s.otherDeviceUnsafe(pm.Players[idx].Key, conn); ok {
				s.rebindUnsafe(pm, idx, next)
				// the new device has not seen this match yet
				out.send(next, matchFoundMsg(pm, pm.Players[1-idx], s.remainingUnsafe(pm)))
				continue
			}
			s.declineUnsafe(pm, idx, ReasonDisconnect, out)
		}

		for _, l := range s.lobbies.All() {
			p := l.PlayerByConnUnsafe(conn)
			if p == nil {
				continue
			}
			if opponent := l.OpponentOfUnsafe(p); opponent != nil {
				out.send(opponent.ConnID, lobbyClosedMsg(l.ID, ReasonOpponentDisconnected))
			}
			s.deleteLobbyUnsafe(l, out)
			log.WithField("lobby", l.ID).Info("lobby closed after disconnect")
		}
		return nil
	})
	s.registry.Clear(conn)
}

func (s *Service) pendingOfConnUnsafe(conn ConnID) []*PendingMatch {
	var out []*PendingMatch
	for _, pm := range s.pending {
		if pm.indexOfConn(conn) >= 0 {
			out = append(out, pm)
		}
	}
	return out
}

// otherDeviceUnsafe finds another live connection registered under the same account.
func (s *Service) otherDeviceUnsafe(key UserKey, dropped ConnID) (ConnID, bool) {
	if !key.IsAccount() {
		return "", false
	}
	for _, c := range s.registry.ConnectionsFor(key.AccountID()) {
		if c != dropped {
			return c, true
		}
	}
	return "", false
}
