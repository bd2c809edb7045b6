package handlers

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestAdminKey extracts the admin key from the X-Admin-Key header, or the
// "key" query parameter if the header is absent.
func requestAdminKey(r *http.Request) string {
	if k := r.Header.Get("X-Admin-Key"); k != "" {
		return k
	}
	return r.URL.Query().Get("key")
}
