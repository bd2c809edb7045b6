// internal/matchmaking/quickmatch.go
package matchmaking

import (
	"github.com/sirupsen/logrus"
)

// QuickMatch puts the caller into the matching queue and pairs it with the
// first compatible waiting player. A connection that is already queued gets
// its searching notice again.
func (s *Service) QuickMatch(conn ConnID, req PlayerRequest) error {
	return s.transact(func(out *outbox) error {
		if s.resendSearchingUnsafe(conn, out) {
			return nil
		}
		if s.lobbies.Len() >= s.cfg.MaxLobbies {
			return ErrCapacityExceeded
		}
		s.enqueueUnsafe(s.resolvePlayer(conn, req), out)
		return nil
	})
}

// CancelQuickMatch removes every queue entry owned by the caller's connection
// or user key. It never fails.
func (s *Service) CancelQuickMatch(conn ConnID) {
	_ = s.transact(func(out *outbox) error {
		key := s.registry.KeyOf(conn)
		entries := s.queue.OwnedBy(conn, key)
		if len(entries) == 0 {
			out.send(conn, searchCancelledMsg("", ReasonCancelled))
			return nil
		}
		// other devices of the same account learn about the cancellation too
		targets := map[ConnID]bool{conn: true}
		for _, c := range s.registry.ConnectionsFor(key.AccountID()) {
			targets[c] = true
		}
		for _, e := range entries {
			s.queue.Remove(e.LobbyID)
			if l, ok := s.lobbies.Get(e.LobbyID); ok {
				s.deleteLobbyUnsafe(l, out)
			}
			notified := map[ConnID]bool{e.Owner: true}
			out.send(e.Owner, searchCancelledMsg(e.LobbyID, ReasonCancelled))
			for c := range targets {
				if !notified[c] {
					notified[c] = true
					out.send(c, searchCancelledMsg(e.LobbyID, ReasonCancelled))
				}
			}
			s.logger.WithFields(logrus.Fields{"conn": conn, "lobby": e.LobbyID}).Info("quick match cancelled")
		}
		return nil
	})
}

// resendSearchingUnsafe re-sends searching when conn already owns a live queue
// entry. Entries pointing at vanished lobbies are dropped on the way.
func (s *Service) resendSearchingUnsafe(conn ConnID, out *outbox) bool {
	for _, e := range s.queue.OwnedBy(conn, UserKey{}) {
		if _, ok := s.lobbies.Get(e.LobbyID); ok {
			out.send(conn, searchingMsg(e.LobbyID))
			return true
		}
		s.queue.Remove(e.LobbyID)
	}
	return false
}

// enqueueUnsafe creates a hidden waiting lobby for p, queues it, reports
// searching and immediately tries to pair it.
func (s *Service) enqueueUnsafe(p *Player, out *outbox) {
	l := newLobby(quickMatchLobbyName, true, s.now())
	l.seatUnsafe(p)
	s.lobbies.Add(l)
	s.queue.Push(QueueEntry{LobbyID: l.ID, Owner: p.ConnID, Key: p.Key})

	log := s.logger.WithFields(logrus.Fields{"conn": p.ConnID, "user_key": p.Key.String(), "lobby": l.ID})
	if s.pairUnsafe(l, out) {
		return
	}
	log.Info("waiting for quick-match opponent")
	out.send(p.ConnID, searchingMsg(l.ID))
}

// pairUnsafe scans the queue for the first lobby that can take own's player
// as its second seat. On a hit own is discarded and a pending match opens on
// the other lobby.
func (s *Service) pairUnsafe(own *Lobby, out *outbox) bool {
	me := own.Players[0]
	for _, e := range s.queue.Entries() {
		if e.LobbyID == own.ID {
			continue
		}
		other, ok := s.lobbies.Get(e.LobbyID)
		if !ok || !other.Hidden || other.Status != StatusWaiting || len(other.Players) != 1 {
			s.logger.WithField("lobby", e.LobbyID).Warn("dropping stale quick-match queue entry")
			s.queue.Remove(e.LobbyID)
			continue
		}
		// never pair a player with itself, whichever device it queued from
		if other.PlayerByKeyUnsafe(me.Key) != nil || other.PlayerByConnUnsafe(me.ConnID) != nil {
			continue
		}

		s.queue.Remove(own.ID)
		s.queue.Remove(other.ID)
		s.lobbies.Delete(own.ID)
		own.removePlayerUnsafe(me)
		other.seatUnsafe(me)

		s.openMatchUnsafe(other, out)
		return true
	}
	return false
}

// requeueUnsafe puts a player from an abandoned pending match back into the
// queue with its best-known identity.
func (s *Service) requeueUnsafe(pp pendingPlayer, out *outbox) {
	if s.resendSearchingUnsafe(pp.ConnID, out) {
		return
	}
	p := s.resolvePlayer(pp.ConnID, PlayerRequest{
		DisplayName: pp.DisplayName,
		AvatarURL:   pp.AvatarURL,
		AccountID:   pp.Key.AccountID(),
	})
	s.logger.WithFields(logrus.Fields{"conn": pp.ConnID, "user_key": p.Key.String()}).Info("requeueing player")
	s.enqueueUnsafe(p, out)
}

// purgeQueuedUnsafe drops every queued lobby of conn or key once its owner
// has entered a session.
func (s *Service) purgeQueuedUnsafe(conn ConnID, key UserKey, out *outbox) {
	for _, e := range s.queue.OwnedBy(conn, key) {
		s.queue.Remove(e.LobbyID)
		if l, ok := s.lobbies.Get(e.LobbyID); ok {
			s.deleteLobbyUnsafe(l, out)
		}
		out.send(e.Owner, searchCancelledMsg(e.LobbyID, ReasonMatchStarted))
	}
}
