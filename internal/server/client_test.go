package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawFrame struct {
	Id    int             `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id int, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(request(t, id, event, data)))
}

// readUntil reads frames until one matches event (and id, for acks).
func readUntil(t *testing.T, conn *websocket.Conn, event string, id int) rawFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f rawFrame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event && (event != EventAck || f.Id == id) {
			return f
		}
	}
}

func newWsServer(t *testing.T, s *testServer) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.Serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_EndToEnd(t *testing.T) {
	s := newTestServer(t, Options{EvictionGrace: time.Hour})
	srv := newWsServer(t, s)

	ava := dial(t, srv)
	readUntil(t, ava, EventServerStats, 0)

	send(t, ava, 1, EventCreateRoom, CreateRoomRequest{
		Id:           "team-standup",
		DisplayName:  "Team Standup",
		AdminName:    "Ava",
		MaxOccupancy: intPtr(2),
	})
	var created RoomAck
	require.NoError(t, json.Unmarshal(readUntil(t, ava, EventAck, 1).Data, &created))
	require.True(t, created.Success)
	assert.Equal(t, "team-standup", created.RoomData.Id)
	assert.NotNil(t, created.DrawingHistory)

	ben := dial(t, srv)
	send(t, ben, 1, EventJoinRoom, JoinRoomRequest{RoomId: "team-standup", UserName: "Ben"})
	var joined RoomAck
	require.NoError(t, json.Unmarshal(readUntil(t, ben, EventAck, 1).Data, &joined))
	require.True(t, joined.Success)

	var count UserCount
	require.NoError(t, json.Unmarshal(readUntil(t, ava, EventUserCount, 0).Data, &count))
	if count.Count != 2 {
		require.NoError(t, json.Unmarshal(readUntil(t, ava, EventUserCount, 0).Data, &count))
	}
	assert.Equal(t, 2, count.Count)

	send(t, ava, 0, EventDrawing, types.DrawCommand{
		RoomId:  "team-standup",
		From:    &types.Point{X: 0, Y: 0},
		To:      &types.Point{X: 10, Y: 10},
		Color:   "#ff0000",
		PenSize: 3,
	})
	var entry types.Entry
	require.NoError(t, json.Unmarshal(readUntil(t, ben, EventDrawing, 0).Data, &entry))
	assert.NotEmpty(t, entry.Id)
	assert.Equal(t, "#ff0000", entry.Color)
	assert.Equal(t, &types.Point{X: 10, Y: 10}, entry.To)

	send(t, ava, 9, EventPing, nil)
	var pong string
	require.NoError(t, json.Unmarshal(readUntil(t, ava, EventAck, 9).Data, &pong))
	assert.Equal(t, "pong", pong)

	// garbage frames are dropped without closing the connection
	require.NoError(t, ben.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, ben, 2, EventPing, nil)
	readUntil(t, ben, EventAck, 2)

	ben.Close()
	assert.Eventually(t, func() bool {
		return len(s.registry.MemberIds("team-standup")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	for count.Count != 1 {
		require.NoError(t, json.Unmarshal(readUntil(t, ava, EventUserCount, 0).Data, &count))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	ava.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := ava.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			break
		}
	}
}
