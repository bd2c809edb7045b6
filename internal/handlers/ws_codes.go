// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the /ws handler.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // client offered subprotocols but not ours
)
