package matchmaking

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockNotifier collects messages instead of sending them over WS.
type mockNotifier struct {
	mu        sync.Mutex
	perConn   map[ConnID][]Message
	broadcast []Message
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{perConn: make(map[ConnID][]Message)}
}

func (m *mockNotifier) Send(conn ConnID, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perConn[conn] = append(m.perConn[conn], msg)
}

func (m *mockNotifier) Broadcast(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, msg)
}

func (m *mockNotifier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perConn = make(map[ConnID][]Message)
	m.broadcast = nil
}

// types lists the event types delivered to conn, in order.
func (m *mockNotifier) types(conn ConnID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.perConn[conn] {
		out = append(out, msg["type"].(string))
	}
	return out
}

// last returns the most recent message of type typ delivered to conn.
func (m *mockNotifier) last(conn ConnID, typ string) Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.perConn[conn]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i]
		}
	}
	return nil
}

func (m *mockNotifier) count(conn ConnID, typ string) int {
	n := 0
	for _, t := range m.types(conn) {
		if t == typ {
			n++
		}
	}
	return n
}

// fakeTimer is a scheduled callback that only runs when the test fires it.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (fs *fakeScheduler) schedule(d time.Duration, f func()) func() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	fs.timers = append(fs.timers, t)
	return func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// fireAll runs every timer that is neither stopped nor fired.
func (fs *fakeScheduler) fireAll() {
	fs.mu.Lock()
	var due []*fakeTimer
	for _, t := range fs.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	fs.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (fs *fakeScheduler) get(i int) *fakeTimer {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.timers[i]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc   *Service
	reg   *Registry
	notes *mockNotifier
	sched *fakeScheduler
	clock *fakeClock
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		notes: newMockNotifier(),
		sched: &fakeScheduler{},
		clock: &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	log := quietLogger()
	h.reg = NewRegistry(nil, log)
	h.svc = New(cfg, h.reg, h.notes,
		WithScheduler(h.sched.schedule),
		WithClock(h.clock.Now),
		WithLogger(log),
	)
	t.Cleanup(h.svc.Close)
	return h
}

// pair runs quick-match for a then b and returns the match and lobby ids.
func (h *harness) pair(t *testing.T, a, b ConnID) (matchID, lobbyID string) {
	t.Helper()
	require.NoError(t, h.svc.QuickMatch(a, PlayerRequest{}))
	require.NoError(t, h.svc.QuickMatch(b, PlayerRequest{}))
	found := h.notes.last(b, EventMatchFound)
	require.NotNil(t, found, "expected match_found for %s", b)
	return found["match_id"].(string), found["lobby_id"].(string)
}

// playing creates a visible lobby for x, lets o join and returns its id.
func (h *harness) playing(t *testing.T, x, o ConnID) string {
	t.Helper()
	snap, err := h.svc.CreateLobby(x, CreateLobbyRequest{Name: "room"})
	require.NoError(t, err)
	_, err = h.svc.JoinLobby(o, JoinLobbyRequest{LobbyID: snap.ID})
	require.NoError(t, err)
	return snap.ID
}

func (h *harness) lobby(t *testing.T, id string) LobbySnapshot {
	t.Helper()
	snap, ok := h.svc.Lobby(id)
	require.True(t, ok, "lobby %s should exist", id)
	return snap
}

func (h *harness) queued(lobbyID string) bool {
	for _, e := range h.svc.queue.Entries() {
		if e.LobbyID == lobbyID {
			return true
		}
	}
	return false
}
