// internal/matchmaking/lobby_store.go
package matchmaking

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// lobbyIDLength is the number of hex characters in a lobby id.
const lobbyIDLength = 8

// LobbyStore manages active lobbies in memory.
// Its mutex only protects the map itself; lobby fields are guarded by the Service.
type LobbyStore struct {
	mu      sync.Mutex        // Protects access to the lobbies map.
	lobbies map[string]*Lobby // Map of lobby ID to Lobby object pointer.
	nextSeq uint64

	logger *logrus.Logger
}

// NewLobbyStore initializes and returns an empty LobbyStore.
func NewLobbyStore(logger *logrus.Logger) *LobbyStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LobbyStore{
		lobbies: make(map[string]*Lobby),
		logger:  logger,
	}
}

func newLobbyID() string {
	// the first group of a v4 uuid is 8 random hex digits
	return uuid.NewString()[:lobbyIDLength]
}

// Add stores the lobby, assigning it a fresh unique id.
func (s *LobbyStore) Add(l *Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := newLobbyID()
	for s.lobbies[id] != nil {
		id = newLobbyID()
	}
	l.ID = id
	s.nextSeq++
	l.seq = s.nextSeq
	s.lobbies[id] = l
	s.logger.WithFields(logrus.Fields{"lobby": id, "hidden": l.Hidden}).Debug("lobby added")
}

// Delete removes a lobby by id and reports whether it existed.
func (s *LobbyStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lobbies[id]; !exists {
		return false
	}
	delete(s.lobbies, id)
	s.logger.WithField("lobby", id).Debug("lobby deleted")
	return true
}

// Get retrieves a lobby by its id.
func (s *LobbyStore) Get(id string) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	return l, ok
}

// Len returns the number of stored lobbies.
func (s *LobbyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}

// All returns every lobby in creation order.
func (s *LobbyStore) All() []*Lobby {
	s.mu.Lock()
	all := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		all = append(all, l)
	}
	s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	return all
}

