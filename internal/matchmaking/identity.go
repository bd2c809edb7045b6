// internal/matchmaking/identity.go
package matchmaking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// avatarLookupTimeout bounds a single best-effort avatar backfill.
const avatarLookupTimeout = 5 * time.Second

// Identity is the optional external profile a client supplies at connect time.
type Identity struct {
	AccountID   string `json:"account_id,omitempty"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// AvatarResolver looks up a profile picture for an external account.
// Implementations perform network I/O and may fail; callers treat failure as "no avatar".
type AvatarResolver interface {
	ResolveAvatar(ctx context.Context, accountID string) (string, error)
}

// Registry maps live connections to the identity they announced.
// Absence is a valid state: the connection is an anonymous player.
type Registry struct {
	mu         sync.RWMutex
	identities map[ConnID]Identity

	avatars AvatarResolver
	logger  *logrus.Logger
}

// NewRegistry returns an empty registry. avatars may be nil to disable backfill.
func NewRegistry(avatars AvatarResolver, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		identities: make(map[ConnID]Identity),
		avatars:    avatars,
		logger:     logger,
	}
}

// SetIdentity stores id for conn, replacing any previous value, then tries to fill
// a missing avatar. The lookup runs without holding the registry lock.
// It returns the identity as stored after the backfill attempt.
func (r *Registry) SetIdentity(ctx context.Context, conn ConnID, id Identity) Identity {
	r.mu.Lock()
	r.identities[conn] = id
	r.mu.Unlock()

	if id.AvatarURL != "" || id.AccountID == "" || r.avatars == nil {
		return id
	}

	lookupCtx, cancel := context.WithTimeout(ctx, avatarLookupTimeout)
	avatar, err := r.avatars.ResolveAvatar(lookupCtx, id.AccountID)
	cancel()
	if err != nil || avatar == "" {
		r.logger.WithFields(logrus.Fields{
			"conn":    conn,
			"account": id.AccountID,
		}).WithError(err).Debug("avatar backfill skipped")
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.identities[conn]
	// the connection may have re-identified or dropped while we were looking up
	if !ok || current.AccountID != id.AccountID || current.AvatarURL != "" {
		return current
	}
	current.AvatarURL = avatar
	r.identities[conn] = current
	return current
}

// Get returns the identity announced by conn, if any.
func (r *Registry) Get(conn ConnID) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[conn]
	return id, ok
}

// Clear forgets conn. Called on disconnect.
func (r *Registry) Clear(conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.identities, conn)
}

// ConnectionsFor lists every connection currently identified as accountID, sorted.
func (r *Registry) ConnectionsFor(accountID string) []ConnID {
	if accountID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var conns []ConnID
	for conn, id := range r.identities {
		if id.AccountID == accountID {
			conns = append(conns, conn)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i] < conns[j] })
	return conns
}

// KeyOf derives the UserKey for conn from its registered identity.
func (r *Registry) KeyOf(conn ConnID) UserKey {
	id, _ := r.Get(conn)
	return KeyFor(conn, id.AccountID)
}

// Reset drops every identity and returns how many were cleared.
func (r *Registry) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.identities)
	r.identities = make(map[ConnID]Identity)
	return n
}

// Len returns the number of identified connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}
