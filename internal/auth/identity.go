// internal/auth/identity.go
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the profile carried by an identity token. It is minted by the chat
// bot after it authenticated the user, and presented by the web client in identify.
type Claims struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Signer mints and verifies HMAC-signed identity tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration // 0 => no exp claim
	now    func() time.Time
}

// NewSigner returns a Signer for secret. A ttl of 0 mints tokens that never expire.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint creates a signed token with "sub" = account id.
func (s *Signer) Mint(c Claims) (string, error) {
	if c.AccountID == "" {
		return "", fmt.Errorf("missing account id")
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":    c.AccountID,
		"name":   c.DisplayName,
		"avatar": c.AvatarURL,
		"iat":    now.Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = now.Add(s.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the signature and expiry of tokenString and returns its claims.
func (s *Signer) Verify(tokenString string) (Claims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuedAt())
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}

	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := mc["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, fmt.Errorf("missing sub in jwt")
	}
	name, _ := mc["name"].(string)
	avatar, _ := mc["avatar"].(string)
	return Claims{AccountID: sub, DisplayName: name, AvatarURL: avatar}, nil
}
