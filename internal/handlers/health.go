// internal/handlers/health.go
package handlers

import "net/http"

// HealthHandler reports liveness and the number of open connections.
func HealthHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"connections": srv.Hub.Len(),
		})
	}
}

// LobbiesHandler lists the visible lobbies.
func LobbiesHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"lobbies": srv.Service.VisibleLobbies()})
	}
}

// Routes registers every HTTP and websocket endpoint on mux. /metrics is left
// to the caller.
func Routes(mux *http.ServeMux, srv *Server) {
	mux.HandleFunc("/ws", WSHandler(srv))
	mux.HandleFunc("/healthz", HealthHandler(srv))
	mux.HandleFunc("/lobbies", LobbiesHandler(srv))
	mux.HandleFunc("/admin/debug_matches", DebugMatchesHandler(srv))
	mux.HandleFunc("/admin/reset_auth", ResetAuthHandler(srv))
	mux.HandleFunc("/admin/identity_token", IdentityTokenHandler(srv))
}
