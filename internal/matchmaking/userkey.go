// internal/matchmaking/userkey.go
package matchmaking

import "encoding/json"

// ConnID identifies a live websocket connection. It is only valid for the
// lifetime of that connection.
type ConnID string

type keyKind uint8

const (
	kindAnonymous keyKind = iota + 1
	kindAccount
)

// UserKey is the stable identity used to recognise the same player across
// connections: Account(id) when the client carries an external account id,
// otherwise Anonymous(connection id). Keys are comparable with ==; an account key
// never equals an anonymous key even when the underlying strings coincide.
type UserKey struct {
	kind  keyKind
	value string
}

// AccountKey builds the key for an account-backed player.
func AccountKey(accountID string) UserKey {
	return UserKey{kind: kindAccount, value: accountID}
}

// AnonymousKey builds the key for a player known only by its connection.
func AnonymousKey(conn ConnID) UserKey {
	return UserKey{kind: kindAnonymous, value: string(conn)}
}

// KeyFor derives the key for a connection, preferring the account id when present.
func KeyFor(conn ConnID, accountID string) UserKey {
	if accountID != "" {
		return AccountKey(accountID)
	}
	return AnonymousKey(conn)
}

// IsAccount reports whether the key is backed by an external account.
func (k UserKey) IsAccount() bool {
	return k.kind == kindAccount
}

// AccountID returns the account id, or "" for anonymous keys.
func (k UserKey) AccountID() string {
	if k.kind != kindAccount {
		return ""
	}
	return k.value
}

// IsZero reports whether the key was never set.
func (k UserKey) IsZero() bool {
	return k.kind == 0
}

func (k UserKey) String() string {
	switch k.kind {
	case kindAccount:
		return "account:" + k.value
	case kindAnonymous:
		return "anon:" + k.value
	}
	return ""
}

func (k UserKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}
