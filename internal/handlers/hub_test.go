package handlers

import (
	"testing"

	"github.com/jason-s-yu/tictactoe/internal/matchmaking"
	"github.com/stretchr/testify/assert"
)

func TestHubSendAndBroadcast(t *testing.T) {
	hub := NewHub(quietLogger())
	a := newClient("a", "", nil, quietLogger())
	b := newClient("b", "", nil, quietLogger())
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Len())

	hub.Send("a", matchmaking.Message{"type": "x"})
	hub.Send("ghost", matchmaking.Message{"type": "x"})
	assert.Len(t, a.OutChan, 1)
	assert.Len(t, b.OutChan, 0)

	hub.Broadcast(matchmaking.Message{"type": "y"})
	assert.Len(t, a.OutChan, 2)
	assert.Len(t, b.OutChan, 1)

	hub.Unregister("a")
	assert.Equal(t, 1, hub.Len())
}

func TestClientWriteDropsWhenFull(t *testing.T) {
	c := newClient("a", "", nil, quietLogger())
	for i := 0; i < outChanSize; i++ {
		c.Write(matchmaking.Message{"type": "fill"})
	}
	assert.NotPanics(t, func() { c.WriteError("late", "dropped") })
	assert.Len(t, c.OutChan, outChanSize)
}

func TestHubCloseAllCancels(t *testing.T) {
	hub := NewHub(quietLogger())
	cancelled := 0
	hub.Register(newClient("a", "", func() { cancelled++ }, quietLogger()))
	hub.Register(newClient("b", "", nil, quietLogger()))
	hub.CloseAll()
	assert.Equal(t, 1, cancelled)
}

func TestClientDropLogNamesRemote(t *testing.T) {
	logger, buf := bufferLogger()
	c := newClient("a", "10.0.0.7:5555", nil, logger)
	for i := 0; i <= outChanSize; i++ {
		c.Write(matchmaking.Message{"type": "fill"})
	}
	assert.Contains(t, buf.String(), `"remote":"10.0.0.7:5555"`)
	assert.Contains(t, buf.String(), "dropped message")
}
