// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/jason-s-yu/tictactoe/internal/matchmaking"
	"github.com/sirupsen/logrus"
)

// outChanSize is the per-connection send buffer. A client that falls this far
// behind starts losing messages.
const outChanSize = 32

// Client is a single live websocket connection.
type Client struct {
	ID      matchmaking.ConnID
	Remote  string
	OutChan chan matchmaking.Message
	Cancel  func()

	logger *logrus.Logger
}

func newClient(id matchmaking.ConnID, remote string, cancel func(), logger *logrus.Logger) *Client {
	return &Client{
		ID:      id,
		Remote:  remote,
		OutChan: make(chan matchmaking.Message, outChanSize),
		Cancel:  cancel,
		logger:  logger,
	}
}

// Write pushes a message onto the client's OutChan non-blockingly. Logs if dropped.
func (c *Client) Write(msg matchmaking.Message) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		c.logger.WithFields(logrus.Fields{"conn": c.ID, "remote": c.Remote, "type": msgType}).Warn("OutChan full, dropped message")
	}
}

// WriteError sends an error object to this client only.
func (c *Client) WriteError(code, message string) {
	c.Write(matchmaking.Message{
		"type":    "error",
		"code":    code,
		"message": message,
	})
}

// Hub tracks every live client and implements matchmaking.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[matchmaking.ConnID]*Client
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[matchmaking.ConnID]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

func (h *Hub) Unregister(id matchmaking.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Send delivers msg to one connection. Unknown connections are ignored.
func (h *Hub) Send(conn matchmaking.ConnID, msg matchmaking.Message) {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		h.logger.WithFields(logrus.Fields{"conn": conn, "type": msg["type"]}).Debug("send to unknown connection skipped")
		return
	}
	c.Write(msg)
}

// Broadcast delivers msg to every connection.
func (h *Hub) Broadcast(msg matchmaking.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Write(msg)
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll cancels every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Cancel != nil {
			c.Cancel()
		}
	}
}
