// internal/matchmaking/pending.go
package matchmaking

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tictactoe/internal/metrics"
	"github.com/sirupsen/logrus"
)

// pendingPlayer is one side of a tentative pairing.
type pendingPlayer struct {
	ConnID      ConnID
	Key         UserKey
	DisplayName string
	AvatarURL   string
}

// PendingMatch is a pairing that both players must accept before the lobby
// starts. Guarded by the Service mutex.
type PendingMatch struct {
	ID        string
	LobbyID   string
	Players   [maxPlayers]pendingPlayer
	Confirmed map[UserKey]bool
	ExpiresAt time.Time

	stop     func() bool
	resolved bool // set once by whichever path ends the match first
}

func (pm *PendingMatch) indexOfConn(conn ConnID) int {
	for i, pp := range pm.Players {
		if pp.ConnID == conn {
			return i
		}
	}
	return -1
}

func (pm *PendingMatch) indexOfKey(key UserKey) int {
	for i, pp := range pm.Players {
		if pp.Key == key {
			return i
		}
	}
	return -1
}

func (pm *PendingMatch) conns() []ConnID {
	return []ConnID{pm.Players[0].ConnID, pm.Players[1].ConnID}
}

// openMatchUnsafe starts the confirmation window for a lobby that just got
// its second player.
func (s *Service) openMatchUnsafe(l *Lobby, out *outbox) {
	pm := &PendingMatch{
		ID:        uuid.NewString(),
		LobbyID:   l.ID,
		Confirmed: make(map[UserKey]bool, maxPlayers),
		ExpiresAt: s.now().Add(s.cfg.ConfirmTimeout),
	}
	for i, p := range l.Players[:maxPlayers] {
		pm.Players[i] = pendingPlayer{ConnID: p.ConnID, Key: p.Key, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
	}
	s.pending[pm.ID] = pm
	pm.stop = s.schedule(s.cfg.ConfirmTimeout, func() { s.onMatchTimeout(pm) })

	metrics.MatchFound()
	s.logger.WithFields(logrus.Fields{
		"match": pm.ID,
		"lobby": l.ID,
		"x":     pm.Players[0].Key.String(),
		"o":     pm.Players[1].Key.String(),
	}).Info("match found, awaiting confirmation")

	for i, pp := range pm.Players {
		out.send(pp.ConnID, matchFoundMsg(pm, pm.Players[1-i], s.cfg.ConfirmTimeout))
	}
}

// resolveUnsafe marks pm as finished and unregisters it. It reports false when
// another path already resolved it.
func (s *Service) resolveUnsafe(pm *PendingMatch) bool {
	if pm.resolved || s.pending[pm.ID] != pm {
		return false
	}
	pm.resolved = true
	if pm.stop != nil {
		pm.stop()
	}
	delete(s.pending, pm.ID)
	return true
}

// remainingUnsafe is what is left of pm's confirmation window.
func (s *Service) remainingUnsafe(pm *PendingMatch) time.Duration {
	if d := pm.ExpiresAt.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

func (s *Service) pendingForLobbyUnsafe(lobbyID string) *PendingMatch {
	for _, pm := range s.pending {
		if pm.LobbyID == lobbyID {
			return pm
		}
	}
	return nil
}

// AcceptMatch records the caller's confirmation. A caller whose connection is
// unknown to the match but whose account matches one of its players takes
// over that seat. Once both players confirmed the session starts.
func (s *Service) AcceptMatch(conn ConnID, matchID string) error {
	return s.transact(func(out *outbox) error {
		s.expireOverdueUnsafe(out)

		pm, ok := s.pending[matchID]
		if !ok {
			return ErrMatchNotFound
		}
		idx := pm.indexOfConn(conn)
		if idx < 0 {
			key := s.registry.KeyOf(conn)
			if !key.IsAccount() {
				return ErrMatchNotFound
			}
			if idx = pm.indexOfKey(key); idx < 0 {
				return ErrMatchNotFound
			}
			s.rebindUnsafe(pm, idx, conn)
		}

		// a connection is never confirmed on two matches at once
		for _, other := range s.pending {
			if other == pm {
				continue
			}
			if j := other.indexOfConn(conn); j >= 0 && other.Confirmed[other.Players[j].Key] {
				delete(other.Confirmed, other.Players[j].Key)
				s.logger.WithFields(logrus.Fields{"conn": conn, "match": other.ID}).Info("cleared stale confirmation")
			}
		}

		pm.Confirmed[pm.Players[idx].Key] = true
		out.sendAll(pm.conns(), matchAckMsg(pm))
		s.logger.WithFields(logrus.Fields{"conn": conn, "match": pm.ID, "confirmed": len(pm.Confirmed)}).Info("match accepted")

		if len(pm.Confirmed) == maxPlayers {
			s.startSessionUnsafe(pm, out)
		}
		return nil
	})
}

// DeclineMatch cancels the match on the caller's behalf and requeues the other player.
func (s *Service) DeclineMatch(conn ConnID, matchID string) error {
	return s.transact(func(out *outbox) error {
		pm, ok := s.pending[matchID]
		if !ok {
			return ErrMatchNotFound
		}
		idx := pm.indexOfConn(conn)
		if idx < 0 {
			if key := s.registry.KeyOf(conn); key.IsAccount() {
				idx = pm.indexOfKey(key)
			}
		}
		if idx < 0 {
			return ErrMatchNotFound
		}
		// the seat may still be recorded on another device of the account
		notify := []ConnID{conn}
		if seat := pm.Players[idx].ConnID; seat != conn {
			notify = append(notify, seat)
		}
		s.declineUnsafe(pm, idx, ReasonDeclined, out, notify...)
		return nil
	})
}

// rebindUnsafe moves seat idx of pm, and the matching lobby player, to conn.
func (s *Service) rebindUnsafe(pm *PendingMatch, idx int, conn ConnID) {
	old := pm.Players[idx].ConnID
	pm.Players[idx].ConnID = conn
	if l, ok := s.lobbies.Get(pm.LobbyID); ok {
		if p := l.PlayerByConnUnsafe(old); p != nil {
			p.ConnID = conn
		}
	}
	s.logger.WithFields(logrus.Fields{
		"match":    pm.ID,
		"user_key": pm.Players[idx].Key.String(),
		"from":     old,
		"to":       conn,
	}).Info("rebound pending match player to new connection")
}

// declineUnsafe ends pm because seat idx declined. Every conn in notify
// receives the cancellation notice.
func (s *Service) declineUnsafe(pm *PendingMatch, idx int, reason string, out *outbox, notify ...ConnID) {
	if !s.resolveUnsafe(pm) {
		return
	}
	if l, ok := s.lobbies.Get(pm.LobbyID); ok {
		s.deleteLobbyUnsafe(l, out)
	}
	metrics.MatchCancelled(reason)
	s.logger.WithFields(logrus.Fields{"match": pm.ID, "user_key": pm.Players[idx].Key.String(), "reason": reason}).Info("match declined")

	out.sendAll(notify, matchCancelledMsg(pm.ID, reason))
	s.requeueUnsafe(pm.Players[1-idx], out)
}

// startSessionUnsafe promotes the paired lobby to playing once both players confirmed.
func (s *Service) startSessionUnsafe(pm *PendingMatch, out *outbox) {
	if !s.resolveUnsafe(pm) {
		return
	}
	l, ok := s.lobbies.Get(pm.LobbyID)
	if !ok || len(l.Players) != maxPlayers {
		if ok {
			s.deleteLobbyUnsafe(l, out)
		}
		metrics.MatchCancelled(ReasonLobbyGone)
		s.logger.WithFields(logrus.Fields{"match": pm.ID, "lobby": pm.LobbyID}).Warn("confirmed match lost its lobby")
		out.sendAll(pm.conns(), matchCancelledMsg(pm.ID, ReasonLobbyGone))
		return
	}

	l.startRoundUnsafe()
	s.queue.Remove(l.ID)
	for _, pp := range pm.Players {
		s.purgeQueuedUnsafe(pp.ConnID, pp.Key, out)
	}

	metrics.SessionStarted()
	s.logger.WithFields(logrus.Fields{"match": pm.ID, "lobby": l.ID}).Info("session starting")

	snap := l.SnapshotUnsafe()
	for _, p := range l.Players {
		out.send(p.ConnID, sessionStartingMsg(pm.ID, snap, p.Symbol))
	}
	out.sendAll(l.connsUnsafe(), lobbyUpdatedMsg(snap))
}

// onMatchTimeout is the scheduler callback of a pending match.
func (s *Service) onMatchTimeout(pm *PendingMatch) {
	_ = s.transact(func(out *outbox) error {
		s.expireUnsafe(pm, out)
		return nil
	})
}

// expireOverdueUnsafe handles matches whose deadline passed without the timer
// running yet.
func (s *Service) expireOverdueUnsafe(out *outbox) {
	now := s.now()
	for _, pm := range s.pending {
		if !pm.resolved && !now.Before(pm.ExpiresAt) {
			s.expireUnsafe(pm, out)
		}
	}
}

// expireUnsafe closes an unconfirmed match: confirmed players are requeued,
// the others are told it was cancelled.
func (s *Service) expireUnsafe(pm *PendingMatch, out *outbox) {
	if !s.resolveUnsafe(pm) {
		return
	}
	if len(pm.Confirmed) == maxPlayers {
		// raced with the final accept; the session owns the lobby now
		return
	}
	if l, ok := s.lobbies.Get(pm.LobbyID); ok {
		s.deleteLobbyUnsafe(l, out)
	}
	metrics.MatchCancelled(ReasonTimeout)
	s.logger.WithFields(logrus.Fields{"match": pm.ID, "confirmed": len(pm.Confirmed)}).Info("match confirmation timed out")

	for _, pp := range pm.Players {
		if pm.Confirmed[pp.Key] {
			s.requeueUnsafe(pp, out)
		} else {
			out.send(pp.ConnID, matchCancelledMsg(pm.ID, ReasonTimeout))
		}
	}
}
