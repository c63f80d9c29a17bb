package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/stats"
	"github.com/npezzotti/go-whiteboard/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	id      string
	mu      sync.Mutex
	msgs    []*ServerMessage
	full    bool
	closed  bool
	onClose func()
}

func newFakeEndpoint(id string) *fakeEndpoint {
	return &fakeEndpoint{id: id}
}

func (e *fakeEndpoint) Id() string {
	return e.id
}

func (e *fakeEndpoint) Send(msg *ServerMessage) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.full {
		return false
	}
	e.msgs = append(e.msgs, msg)
	return true
}

func (e *fakeEndpoint) Close() {
	e.mu.Lock()
	e.closed = true
	onClose := e.onClose
	e.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (e *fakeEndpoint) messages() []*ServerMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ServerMessage, len(e.msgs))
	copy(out, e.msgs)
	return out
}

func (e *fakeEndpoint) events(event string) []*ServerMessage {
	var out []*ServerMessage
	for _, m := range e.messages() {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

func (e *fakeEndpoint) lastEvent(event string) *ServerMessage {
	evs := e.events(event)
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

func (e *fakeEndpoint) ack(t *testing.T, id int) *ServerMessage {
	t.Helper()
	for _, m := range e.events(EventAck) {
		if m.Id == id {
			return m
		}
	}
	require.Failf(t, "missing ack", "no ack with id %d for %s", id, e.id)
	return nil
}

func (e *fakeEndpoint) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	rooms    []database.Room
	messages []database.Message
}

func (r *fakeRecorder) RecordRoom(room database.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
}

func (r *fakeRecorder) RecordMessage(msg database.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *fakeRecorder) recordedMessages() []database.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]database.Message(nil), r.messages...)
}

func newMockStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(len(metrics))
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

type testServer struct {
	*BoardServer
	rec *fakeRecorder
	su  *stats.MockStatsUpdater
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 5 * time.Millisecond
	}

	rec := &fakeRecorder{}
	su := newMockStats()
	s := NewBoardServer(testutil.TestLogger(t), rec, su, opts)
	t.Cleanup(s.registry.Close)

	return &testServer{BoardServer: s, rec: rec, su: su}
}

// connect registers a fake endpoint and discards the greeting push.
func (s *testServer) connect(id string) *fakeEndpoint {
	e := newFakeEndpoint(id)
	s.Register(e)
	e.reset()
	return e
}

func request(t *testing.T, id int, event string, data any) *ClientMessage {
	t.Helper()
	msg := &ClientMessage{Id: id, Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		msg.Data = raw
	}
	return msg
}

func intPtr(v int) *int {
	return &v
}
