// internal/matchmaking/service.go
package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/tictactoe/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxLobbies     = 10
	DefaultConfirmTimeout = 30 * time.Second

	quickMatchLobbyName = "Quick Match"
	defaultLobbyName    = "Lobby"
)

// Config holds the tunables of the matchmaking engine.
type Config struct {
	MaxLobbies     int           // global ceiling on concurrent lobbies
	ConfirmTimeout time.Duration // accept/decline window of a pending match
}

// Scheduler runs f once after d. The returned stop function cancels the call
// and reports whether it did so before f started.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option customizes a Service.
type Option func(*Service)

// WithScheduler replaces time.AfterFunc for pending-match timeouts.
func WithScheduler(sched Scheduler) Option {
	return func(s *Service) { s.schedule = sched }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used by the service and its stores.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// PlayerRequest carries the optional profile fields a client may attach to a
// lobby or quick-match request. Registered identity values take precedence.
type PlayerRequest struct {
	DisplayName string
	AvatarURL   string
	AccountID   string
}

type CreateLobbyRequest struct {
	Name   string
	Hidden bool
	PlayerRequest
}

type JoinLobbyRequest struct {
	LobbyID string
	PlayerRequest
}

// Service owns every lobby, the matching queue and all pending matches.
// A single mutex serializes compound transitions; outbound messages are
// collected while it is held and delivered after it is released.
type Service struct {
	mu sync.Mutex

	cfg      Config
	registry *Registry
	lobbies  *LobbyStore
	queue    *Queue
	pending  map[string]*PendingMatch
	notifier Notifier

	schedule Scheduler
	now      func() time.Time
	logger   *logrus.Logger
}

// New builds a Service. Zero config values fall back to the defaults.
func New(cfg Config, registry *Registry, notifier Notifier, opts ...Option) *Service {
	if cfg.MaxLobbies <= 0 {
		cfg.MaxLobbies = DefaultMaxLobbies
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	s := &Service{
		cfg:      cfg,
		registry: registry,
		queue:    NewQueue(),
		pending:  make(map[string]*PendingMatch),
		notifier: notifier,
		schedule: afterFunc,
		now:      time.Now,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(nil, s.logger)
	}
	s.lobbies = NewLobbyStore(s.logger)
	return s
}

// SetNotifier attaches the delivery side after construction. The websocket hub
// and the service reference each other, so one of them is wired late.
func (s *Service) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Registry exposes the identity registry the service resolves players with.
func (s *Service) Registry() *Registry {
	return s.registry
}

// transact runs fn under the service lock and delivers its outbox afterwards.
func (s *Service) transact(fn func(out *outbox) error) error {
	var out outbox
	s.mu.Lock()
	err := fn(&out)
	metrics.SetState(s.lobbies.Len(), s.queue.Len(), len(s.pending))
	n := s.notifier
	s.mu.Unlock()
	out.flush(n)
	return err
}

// Close stops every pending timer. Pending matches are left unresolved.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pm := range s.pending {
		pm.resolved = true
		if pm.stop != nil {
			pm.stop()
		}
	}
	s.pending = make(map[string]*PendingMatch)
}

func defaultDisplayName(conn ConnID) string {
	suffix := string(conn)
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return "Player_" + suffix
}

// resolvePlayer builds a lobby participant for conn. Registry values override
// the client-supplied ones; a missing name falls back to a generated one.
func (s *Service) resolvePlayer(conn ConnID, req PlayerRequest) *Player {
	name, avatar, account := req.DisplayName, req.AvatarURL, req.AccountID
	if id, ok := s.registry.Get(conn); ok {
		if id.DisplayName != "" {
			name = id.DisplayName
		}
		if id.AvatarURL != "" {
			avatar = id.AvatarURL
		}
		if id.AccountID != "" {
			account = id.AccountID
		}
	}
	if name == "" {
		name = defaultDisplayName(conn)
	}
	return &Player{
		ConnID:      conn,
		Key:         KeyFor(conn, account),
		DisplayName: name,
		AvatarURL:   avatar,
	}
}

// Identify stores the identity announced by conn and replies with a profile
// message. The avatar backfill runs before the service lock is taken.
func (s *Service) Identify(ctx context.Context, conn ConnID, id Identity) Identity {
	stored := s.registry.SetIdentity(ctx, conn, id)
	s.logger.WithFields(logrus.Fields{
		"conn":     conn,
		"user_key": KeyFor(conn, stored.AccountID).String(),
	}).Info("connection identified")
	_ = s.transact(func(out *outbox) error {
		out.send(conn, profileMsg(stored))
		return nil
	})
	return stored
}

// CreateLobby opens a new lobby with the caller seated as X.
func (s *Service) CreateLobby(conn ConnID, req CreateLobbyRequest) (LobbySnapshot, error) {
	var snap LobbySnapshot
	err := s.transact(func(out *outbox) error {
		if s.lobbies.Len() >= s.cfg.MaxLobbies {
			return ErrCapacityExceeded
		}
		name := req.Name
		if name == "" {
			name = defaultLobbyName
		}
		l := newLobby(name, req.Hidden, s.now())
		l.seatUnsafe(s.resolvePlayer(conn, req.PlayerRequest))
		s.lobbies.Add(l)
		snap = l.SnapshotUnsafe()
		out.send(conn, lobbyCreatedMsg(snap))
		if !l.Hidden {
			s.broadcastLobbiesUnsafe(out)
		}
		s.logger.WithFields(logrus.Fields{"conn": conn, "lobby": l.ID, "hidden": l.Hidden}).Info("lobby created")
		return nil
	})
	return snap, err
}

// JoinLobby seats the caller in an existing lobby. When the lobby reaches two
// players a fresh round starts.
func (s *Service) JoinLobby(conn ConnID, req JoinLobbyRequest) (LobbySnapshot, error) {
	var snap LobbySnapshot
	err := s.transact(func(out *outbox) error {
		l, ok := s.lobbies.Get(req.LobbyID)
		if !ok {
			return ErrLobbyNotFound
		}
		p := s.resolvePlayer(conn, req.PlayerRequest)
		if l.PlayerByConnUnsafe(conn) != nil || l.PlayerByKeyUnsafe(p.Key) != nil {
			return ErrAlreadyInLobby
		}
		if len(l.Players) >= maxPlayers {
			return ErrLobbyFull
		}
		l.seatUnsafe(p)
		if len(l.Players) == maxPlayers {
			l.startRoundUnsafe()
		}
		if s.queue.Remove(l.ID) {
			s.logger.WithField("lobby", l.ID).Debug("joined lobby removed from quick-match queue")
		}
		snap = l.SnapshotUnsafe()
		out.sendAll(l.connsUnsafe(), lobbyUpdatedMsg(snap))
		if !l.Hidden {
			s.broadcastLobbiesUnsafe(out)
		}
		s.logger.WithFields(logrus.Fields{"conn": conn, "lobby": l.ID}).Info("player joined lobby")
		return nil
	})
	return snap, err
}

// ListLobbies sends the visible lobbies to the caller.
func (s *Service) ListLobbies(conn ConnID) {
	_ = s.transact(func(out *outbox) error {
		out.send(conn, lobbiesListMsg(s.visibleLobbiesUnsafe()))
		return nil
	})
}

// VisibleLobbies returns snapshots of every non-hidden lobby in creation order.
func (s *Service) VisibleLobbies() []LobbySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLobbiesUnsafe()
}

// Lobby returns a snapshot of a single lobby.
func (s *Service) Lobby(id string) (LobbySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies.Get(id)
	if !ok {
		return LobbySnapshot{}, false
	}
	return l.SnapshotUnsafe(), true
}

func (s *Service) visibleLobbiesUnsafe() []LobbySnapshot {
	out := []LobbySnapshot{}
	for _, l := range s.lobbies.All() {
		if !l.Hidden {
			out = append(out, l.SnapshotUnsafe())
		}
	}
	return out
}

func (s *Service) broadcastLobbiesUnsafe(out *outbox) {
	out.broadcast(lobbiesListMsg(s.visibleLobbiesUnsafe()))
}

// deleteLobbyUnsafe removes a lobby and any queue entry pointing at it.
func (s *Service) deleteLobbyUnsafe(l *Lobby, out *outbox) {
	s.queue.Remove(l.ID)
	if s.lobbies.Delete(l.ID) && !l.Hidden {
		s.broadcastLobbiesUnsafe(out)
	}
}

// PendingSnapshot is the admin view of a pending match.
type PendingSnapshot struct {
	ID        string    `json:"match_id"`
	LobbyID   string    `json:"lobby_id"`
	Players   []string  `json:"players"`
	Confirmed []string  `json:"confirmed"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DebugSnapshot is the admin view of the engine state.
type DebugSnapshot struct {
	PendingMatches []PendingSnapshot `json:"pending_matches"`
	Queue          []QueueEntry      `json:"queue"`
	Lobbies        int               `json:"lobbies"`
	Identities     int               `json:"identities"`
}

// Debug collects a consistent view of pending matches and the queue.
func (s *Service) Debug() DebugSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := DebugSnapshot{
		PendingMatches: []PendingSnapshot{},
		Queue:          s.queue.Entries(),
		Lobbies:        s.lobbies.Len(),
		Identities:     s.registry.Len(),
	}
	for _, pm := range s.pending {
		ps := PendingSnapshot{ID: pm.ID, LobbyID: pm.LobbyID, ExpiresAt: pm.ExpiresAt, Players: []string{}, Confirmed: []string{}}
		for _, pp := range pm.Players {
			ps.Players = append(ps.Players, pp.Key.String())
			if pm.Confirmed[pp.Key] {
				ps.Confirmed = append(ps.Confirmed, pp.Key.String())
			}
		}
		snap.PendingMatches = append(snap.PendingMatches, ps)
	}
	return snap
}
