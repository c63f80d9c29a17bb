package database

import (
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Writes(t *testing.T) {
	logger, hook := testutil.TestLoggerWithHook(t)
	repo := &MockWhiteboardRepository{}
	defer repo.AssertExpectations(t)

	room := Room{RoomId: "team-standup", Name: "Team Standup", Access: "private", AdminName: "Ava"}
	msg := Message{RoomId: "team-standup", UserName: "Ben", Text: "hi", Timestamp: time.Now()}
	repo.On("CreateRoom", room).Return(nil).Once()
	repo.On("CreateMessage", msg).Return(errors.New("connection refused")).Once()

	r := NewRecorder(repo, logger, 0)
	r.Run()
	r.RecordRoom(room)
	r.RecordMessage(msg)
	r.Stop()

	require.NotNil(t, hook.LastEntry(), "expected the failed write to be logged")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "message", hook.LastEntry().Data["write"])
	assert.Equal(t, "team-standup", hook.LastEntry().Data["room_id"])
}

func TestRecorder_QueueFullDrops(t *testing.T) {
	logger, hook := testutil.TestLoggerWithHook(t)
	repo := &MockWhiteboardRepository{}

	// not running, so the single slot stays occupied
	r := NewRecorder(repo, logger, 1)
	r.RecordMessage(Message{RoomId: "team-standup", Text: "first"})
	r.RecordMessage(Message{RoomId: "team-standup", Text: "second"})

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "recorder queue full, dropping write", hook.LastEntry().Message)

	repo.On("CreateMessage", mock.MatchedBy(func(m Message) bool { return m.Text == "first" })).Return(nil).Once()
	r.Run()
	r.Stop()
	repo.AssertExpectations(t)
}

func TestRecorder_StoppedDrops(t *testing.T) {
	logger, hook := testutil.TestLoggerWithHook(t)
	repo := &MockWhiteboardRepository{}

	r := NewRecorder(repo, logger, 0)
	r.Run()
	r.Stop()
	r.Stop()

	r.RecordRoom(Room{RoomId: "team-standup"})
	repo.AssertNotCalled(t, "CreateRoom", mock.Anything)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "recorder stopped, dropping write", hook.LastEntry().Message)
}

func TestRecorder_PreservesOrder(t *testing.T) {
	logger, _ := testutil.TestLoggerWithHook(t)
	repo := &MockWhiteboardRepository{}

	var texts []string
	repo.On("CreateMessage", mock.Anything).Run(func(args mock.Arguments) {
		texts = append(texts, args.Get(0).(Message).Text)
	}).Return(nil)

	r := NewRecorder(repo, logger, 0)
	r.Run()
	for _, text := range []string{"a", "b", "c", "d"} {
		r.RecordMessage(Message{RoomId: "team-standup", Text: text})
	}
	r.Stop()

	assert.Equal(t, []string{"a", "b", "c", "d"}, texts)
}

func TestNopWhiteboardRepository(t *testing.T) {
	var repo WhiteboardRepository = NopWhiteboardRepository{}

	assert.NoError(t, repo.Ping())
	assert.NoError(t, repo.CreateRoom(Room{RoomId: "team-standup"}))
	assert.NoError(t, repo.CreateMessage(Message{RoomId: "team-standup"}))

	msgs, err := repo.GetMessages("team-standup", 50, 0)
	assert.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	assert.NoError(t, repo.Close())
}
