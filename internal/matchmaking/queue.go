// internal/matchmaking/queue.go
package matchmaking

import "sync"

// QueueEntry references a hidden waiting lobby whose single player is looking
// for an opponent.
type QueueEntry struct {
	LobbyID string  `json:"lobby_id"`
	Owner   ConnID  `json:"connection_id"`
	Key     UserKey `json:"user_key"`
}

// Queue is the ordered quick-match waiting list. Pairing scans it front to back.
type Queue struct {
	mu      sync.Mutex
	entries []QueueEntry
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends an entry to the back of the queue.
func (q *Queue) Push(e QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// Remove drops the entry for lobbyID and reports whether one was present.
func (q *Queue) Remove(lobbyID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.LobbyID == lobbyID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns a copy of the queue in order.
func (q *Queue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// OwnedBy returns the entries whose owner is conn or whose key is key.
func (q *Queue) OwnedBy(conn ConnID, key UserKey) []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueueEntry
	for _, e := range q.entries {
		if e.Owner == conn || (!key.IsZero() && e.Key == key) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of queued lobbies.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
