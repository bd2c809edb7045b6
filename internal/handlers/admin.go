// internal/handlers/admin.go
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/tictactoe/internal/auth"
	"github.com/jason-s-yu/tictactoe/internal/matchmaking"
)

// requireAdmin rejects requests that do not present the configured admin key.
// With no key configured every request is rejected.
func (srv *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := requestAdminKey(r)
		if srv.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(srv.AdminKey)) != 1 {
			srv.Logger.WithField("remote", r.RemoteAddr).Warn("admin request rejected")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// DebugMatchesHandler serves GET /admin/debug_matches.
func DebugMatchesHandler(srv *Server) http.HandlerFunc {
	return srv.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, srv.Service.Debug())
	})
}

// ResetAuthHandler serves POST /admin/reset_auth. Every identity is dropped and
// connected clients are told to log in again.
func ResetAuthHandler(srv *Server) http.HandlerFunc {
	return srv.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n := srv.Service.Registry().Reset()
		srv.Hub.Broadcast(matchmaking.ForceLogoutMsg())
		srv.Logger.WithField("cleared", n).Info("identity registry reset")
		writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
	})
}

// IdentityTokenHandler serves POST /admin/identity_token.
func IdentityTokenHandler(srv *Server) http.HandlerFunc {
	return srv.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if srv.Signer == nil {
			http.Error(w, "identity tokens are not configured", http.StatusServiceUnavailable)
			return
		}
		var req auth.Claims
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.AccountID == "" {
			http.Error(w, "account_id is required", http.StatusBadRequest)
			return
		}
		token, err := srv.Signer.Mint(req)
		if err != nil {
			srv.Logger.WithError(err).Error("failed to mint identity token")
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	})
}
