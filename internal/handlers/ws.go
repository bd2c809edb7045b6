// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/tictactoe/internal/auth"
	"github.com/jason-s-yu/tictactoe/internal/matchmaking"
	"github.com/jason-s-yu/tictactoe/internal/metrics"
	"github.com/jason-s-yu/tictactoe/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the optional websocket subprotocol spoken on /ws.
const Subprotocol = "tictactoe"

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// Server bundles what the HTTP and websocket handlers need.
type Server struct {
	Service *matchmaking.Service
	Hub     *Hub
	Logger  *logrus.Logger

	// Signer verifies identity tokens presented in identify; nil disables them.
	Signer *auth.Signer
	// RequireVerifiedIdentity drops account ids that are not backed by a valid token.
	RequireVerifiedIdentity bool
	OriginPatterns          []string
	AdminKey                string
}

// WSHandler upgrades the request and runs the read and write pumps of one connection.
func WSHandler(srv *Server) http.HandlerFunc {
	logger := srv.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		origins := srv.OriginPatterns
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: origins,
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		// a client that asked for subprotocols must speak ours
		if r.Header.Get("Sec-WebSocket-Protocol") != "" && c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the "+Subprotocol+" subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		client := newClient(matchmaking.ConnID(uuid.NewString()), r.RemoteAddr, cancel, logger)

		srv.Hub.Register(client)
		metrics.ConnectionOpened()
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path, string(client.ID))

		client.Write(matchmaking.Message{"type": "connected", "connection_id": client.ID})

		go writePump(ctx, c, client, logger)
		err = readPump(ctx, c, srv, client)

		// ---- Cleanup after readPump exits ----
		srv.Service.Disconnect(client.ID)
		srv.Hub.Unregister(client.ID)
		metrics.ConnectionClosed()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, string(client.ID), err)
	}
}

// readPump handles incoming messages until the connection closes. It returns
// the read error for abnormal closures and nil otherwise.
func readPump(ctx context.Context, c *websocket.Conn, srv *Server, client *Client) error {
	log := srv.Logger.WithFields(logrus.Fields{"conn": client.ID, "remote": client.Remote})
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.WithField("frame", typ).Warn("ignoring non-text message")
			continue
		}
		srv.handleMessage(ctx, client, data)
	}
}

// writePump drains the client's OutChan onto the socket and keeps it alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer client.Cancel()
	log := logger.WithFields(logrus.Fields{"conn": client.ID, "remote": client.Remote})

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				log.WithError(err).Warn("failed to marshal outgoing msg")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.WithError(err).Warn("failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Info("ping failed, closing connection")
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame. A panic is contained to this
// message: it is logged, reported as an error and the connection keeps reading.
func (srv *Server) handleMessage(ctx context.Context, client *Client, data []byte) {
	log := srv.Logger.WithField("conn", client.ID)
	defer func() {
		if v := recover(); v != nil {
			log.WithFields(logrus.Fields{"panic": v, "stack": string(debug.Stack())}).Error("message handler panic")
			client.WriteError("internal_error", "internal error")
		}
	}()

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Warn("invalid json")
		client.WriteError("invalid_json", "Invalid JSON format")
		return
	}

	var err error
	switch msg.Type {
	case TypeIdentify:
		srv.identify(ctx, client, msg)
	case TypeCreateLobby:
		_, err = srv.Service.CreateLobby(client.ID, matchmaking.CreateLobbyRequest{
			Name:          msg.Name,
			Hidden:        msg.Hidden,
			PlayerRequest: srv.playerRequest(msg),
		})
	case TypeJoinLobby:
		if msg.LobbyID == "" {
			client.WriteError("missing_field", "lobby_id is required")
			return
		}
		_, err = srv.Service.JoinLobby(client.ID, matchmaking.JoinLobbyRequest{
			LobbyID:       msg.LobbyID,
			PlayerRequest: srv.playerRequest(msg),
		})
	case TypeQuickMatch:
		err = srv.Service.QuickMatch(client.ID, srv.playerRequest(msg))
	case TypeCancelQuickMatch:
		srv.Service.CancelQuickMatch(client.ID)
	case TypeMatchAccept:
		err = srv.Service.AcceptMatch(client.ID, msg.MatchID)
	case TypeMatchDecline:
		err = srv.Service.DeclineMatch(client.ID, msg.MatchID)
	case TypeMakeMove:
		switch {
		case msg.isForfeit():
			err = srv.Service.Forfeit(client.ID, msg.LobbyID)
		case msg.Position == nil:
			err = matchmaking.ErrInvalidPosition
		default:
			err = srv.Service.MakeMove(client.ID, msg.LobbyID, *msg.Position)
		}
	case TypeLeaveLobby:
		srv.Service.LeaveLobby(client.ID, msg.LobbyID)
	case TypeListLobbies, TypeGetLobbies:
		srv.Service.ListLobbies(client.ID)
	case TypePing:
		client.Write(matchmaking.Message{"type": "pong"})
	default:
		client.WriteError("unknown_type", fmt.Sprintf("unknown message type %q", msg.Type))
		return
	}

	if err != nil {
		srv.writeServiceError(client, msg.Type, err)
	}
}

func (srv *Server) writeServiceError(client *Client, msgType string, err error) {
	var me *matchmaking.Error
	if errors.As(err, &me) {
		srv.Logger.WithFields(logrus.Fields{"conn": client.ID, "type": msgType, "code": me.Code}).Debug("request rejected")
		client.WriteError(me.Code, me.Message)
		return
	}
	srv.Logger.WithError(err).WithFields(logrus.Fields{"conn": client.ID, "type": msgType}).Error("request failed")
	client.WriteError("internal_error", "internal error")
}

// playerRequest extracts the profile fields attached to lobby and quick-match requests.
func (srv *Server) playerRequest(msg ClientMessage) matchmaking.PlayerRequest {
	req := matchmaking.PlayerRequest{
		DisplayName: msg.DisplayName,
		AvatarURL:   msg.AvatarURL,
		AccountID:   string(msg.AccountID),
	}
	if srv.RequireVerifiedIdentity {
		req.AccountID = ""
	}
	return req
}

// identify registers the caller's identity. A valid token replaces the
// client-supplied fields; an invalid one is reported and ignored.
func (srv *Server) identify(ctx context.Context, client *Client, msg ClientMessage) {
	id := matchmaking.Identity{
		AccountID:   string(msg.AccountID),
		DisplayName: msg.DisplayName,
		AvatarURL:   msg.AvatarURL,
	}
	verified := false
	if msg.Token != "" && srv.Signer != nil {
		claims, err := srv.Signer.Verify(msg.Token)
		if err != nil {
			srv.Logger.WithError(err).WithField("conn", client.ID).Warn("identity token rejected")
			client.WriteError("invalid_token", "identity token rejected")
		} else {
			verified = true
			id.AccountID = claims.AccountID
			if claims.DisplayName != "" {
				id.DisplayName = claims.DisplayName
			}
			if claims.AvatarURL != "" {
				id.AvatarURL = claims.AvatarURL
			}
		}
	}
	if srv.RequireVerifiedIdentity && !verified {
		id.AccountID = ""
	}
	srv.Service.Identify(ctx, client.ID, id)
}
