package handlers

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/jason-s-yu/tictactoe/internal/matchmaking"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func bufferLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	return l, buf
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := quietLogger()
	hub := NewHub(log)
	svc := matchmaking.New(matchmaking.Config{}, matchmaking.NewRegistry(nil, log), hub, matchmaking.WithLogger(log))
	t.Cleanup(svc.Close)
	return &Server{Service: svc, Hub: hub, Logger: log, AdminKey: "s3cret"}
}

// attach registers an in-memory client that is never backed by a socket.
func attach(srv *Server, id string) *Client {
	c := newClient(matchmaking.ConnID(id), "test", func() {}, srv.Logger)
	srv.Hub.Register(c)
	return c
}

// next pops the next queued message or fails.
func next(t *testing.T, c *Client) matchmaking.Message {
	t.Helper()
	select {
	case msg := <-c.OutChan:
		return msg
	case <-time.After(time.Second):
		require.FailNow(t, "no message queued", "conn %s", c.ID)
		return nil
	}
}

// nextOf skips messages until one of type typ arrives.
func nextOf(t *testing.T, c *Client, typ string) matchmaking.Message {
	t.Helper()
	for {
		msg := next(t, c)
		if msg["type"] == typ {
			return msg
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.OutChan:
		default:
			return
		}
	}
}
