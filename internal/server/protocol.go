package server

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/sirupsen/logrus"
)

const maxChatLength = 500

// Handle interprets one client request. Ack-style requests receive exactly
// one acknowledgement; fire-and-forget events are dropped with a log line
// when they cannot be applied.
func (s *BoardServer) Handle(e Endpoint, msg *ClientMessage) {
	switch msg.Event {
	case EventCreateRoom:
		s.handleCreateRoom(e, msg)
	case EventJoinRoom:
		s.handleJoin(e, msg, false)
	case EventRejoinRoom:
		s.handleJoin(e, msg, true)
	case EventLeaveRoom:
		s.handleLeave(e, msg)
	case EventDrawing:
		s.handleDraw(e, msg, types.KindDrawing)
	case EventShape:
		s.handleDraw(e, msg, types.KindShape)
	case EventClear:
		s.handleClear(e, msg)
	case EventChatMessage:
		s.handleChat(e, msg)
	case EventPing:
		e.Send(NoErrOK(msg.Id, "pong"))
	default:
		s.log.WithFields(logrus.Fields{"conn_id": e.Id(), "event": msg.Event}).Warn("unknown event")
	}
}

func (s *BoardServer) handleCreateRoom(e Endpoint, msg *ClientMessage) {
	var req CreateRoomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		e.Send(ErrInvalidMessage(msg.Id))
		return
	}

	prev, _ := s.registry.RoomOf(e.Id())
	data, err := s.registry.CreateRoomFunc(RoomConfig{
		Id:           req.Id,
		DisplayName:  req.DisplayName,
		Access:       req.Access,
		AdminName:    req.AdminName,
		MaxOccupancy: req.MaxOccupancy,
		Permissions:  req.Permissions,
	}, e.Id(), func(room types.RoomData, history []types.Entry) {
		e.Send(RoomOK(msg.Id, room, history))
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"conn_id": e.Id(), "room_id": req.Id}).Info("create room rejected")
		e.Send(ErrFailed(msg.Id, err))
		return
	}

	s.stats.Incr(MetricLiveRooms)
	s.recorder.RecordRoom(database.Room{
		RoomId:      data.Id,
		Name:        data.DisplayName,
		Access:      data.Access,
		AdminName:   data.AdminName,
		MaxUsers:    data.MaxOccupancy,
		AllowEdit:   data.Permissions.AllowEdit,
		AllowChat:   data.Permissions.AllowChat,
		AllowExport: data.Permissions.AllowExport,
		CreatedAt:   time.Now(),
	})

	if prev != "" && prev != data.Id {
		s.router.BroadcastPresence(prev)
	}
	s.router.BroadcastPresence(data.Id)
}

func (s *BoardServer) handleJoin(e Endpoint, msg *ClientMessage, rejoin bool) {
	var req JoinRoomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		e.Send(ErrInvalidMessage(msg.Id))
		return
	}

	logCtx := s.log.WithFields(logrus.Fields{"conn_id": e.Id(), "room_id": req.RoomId, "rejoin": rejoin})
	if req.RoomId == "" {
		e.Send(ErrFailed(msg.Id, validationError("room id and user name are required")))
		return
	}

	prev, _ := s.registry.RoomOf(e.Id())

	// the ack is queued under the admission lock so no live entry can
	// overtake the history it carries
	data, _, err := s.registry.JoinRoomFunc(req.RoomId, e.Id(), req.UserName, func(room types.RoomData, history []types.Entry) {
		e.Send(RoomOK(msg.Id, room, history))
	})
	if err != nil {
		logCtx.WithError(err).Info("join rejected")
		e.Send(ErrFailed(msg.Id, err))
		return
	}

	logCtx.WithField("user", req.UserName).Info("joined room")
	if prev != "" && prev != data.Id {
		s.router.BroadcastPresence(prev)
	}
	s.router.BroadcastPresence(data.Id)
}

func (s *BoardServer) handleLeave(e Endpoint, msg *ClientMessage) {
	var roomId string
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &roomId); err != nil {
			s.log.WithField("conn_id", e.Id()).Debug("dropping malformed leave")
			return
		}
	}

	current, ok := s.registry.RoomOf(e.Id())
	if !ok || (roomId != "" && roomId != current) {
		return
	}

	if left, ok := s.registry.LeaveRoom(e.Id()); ok {
		s.log.WithFields(logrus.Fields{"conn_id": e.Id(), "room_id": left}).Info("left room")
		s.router.BroadcastPresence(left)
	}
}

// disconnect treats a dropped connection as leaving its room. Presence is
// broadcast after settleDelay.
func (s *BoardServer) disconnect(connId string) {
	roomId, ok := s.registry.LeaveRoom(connId)
	if !ok {
		return
	}

	s.log.WithFields(logrus.Fields{"conn_id": connId, "room_id": roomId}).Info("disconnected from room")
	time.AfterFunc(s.settleDelay, func() {
		s.router.BroadcastPresence(roomId)
	})
}

func (s *BoardServer) handleDraw(e Endpoint, msg *ClientMessage, kind types.EntryKind) {
	logCtx := s.log.WithFields(logrus.Fields{"conn_id": e.Id(), "event": msg.Event})

	var cmd types.DrawCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		logCtx.WithError(err).Debug("dropping malformed draw event")
		return
	}
	if err := validateDrawCommand(kind, &cmd); err != nil {
		logCtx.WithError(err).Debug("dropping invalid draw event")
		return
	}

	_, err := s.registry.Append(e.Id(), cmd.RoomId, kind, cmd, func(entry types.Entry, recipients []string) {
		s.router.Deliver(recipients, Push(string(kind), entry), e.Id())
	})
	if err != nil {
		logDrop(logCtx.WithField("room_id", cmd.RoomId), err)
		return
	}

	s.stats.Incr(MetricOperationsAppended)
}

func (s *BoardServer) handleClear(e Endpoint, msg *ClientMessage) {
	logCtx := s.log.WithFields(logrus.Fields{"conn_id": e.Id(), "event": msg.Event})

	var roomId string
	if err := json.Unmarshal(msg.Data, &roomId); err != nil || roomId == "" {
		logCtx.Debug("dropping malformed clear")
		return
	}

	err := s.registry.Clear(e.Id(), roomId, func(_ types.Entry, recipients []string) {
		s.router.Deliver(recipients, Push(EventClear, nil), "")
	})
	if err != nil {
		logDrop(logCtx.WithField("room_id", roomId), err)
		return
	}

	logCtx.WithField("room_id", roomId).Info("canvas cleared")
}

func (s *BoardServer) handleChat(e Endpoint, msg *ClientMessage) {
	logCtx := s.log.WithFields(logrus.Fields{"conn_id": e.Id(), "event": msg.Event})

	var req ChatRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logCtx.Debug("dropping malformed chat message")
		return
	}

	text := strings.TrimSpace(req.Text)
	if req.RoomId == "" || text == "" || utf8.RuneCountInString(req.Text) > maxChatLength {
		logCtx.Debug("dropping invalid chat message")
		return
	}

	sender, err := s.registry.Authorize(e.Id(), req.RoomId)
	if err != nil {
		logDrop(logCtx.WithField("room_id", req.RoomId), err)
		return
	}

	chat := types.ChatMessage{
		UserId:    e.Id(),
		RoomId:    req.RoomId,
		UserName:  sender.Name,
		Text:      text,
		Timestamp: Now(),
	}

	s.recorder.RecordMessage(database.Message{
		RoomId:    chat.RoomId,
		UserName:  chat.UserName,
		Text:      chat.Text,
		Timestamp: chat.Timestamp,
	})
	s.stats.Incr(MetricChatMessages)
	s.router.ToRoom(req.RoomId, EventChatMessage, chat, "")
}

func validateDrawCommand(kind types.EntryKind, cmd *types.DrawCommand) error {
	if cmd.RoomId == "" {
		return validationError("room id is required")
	}

	var a, b *types.Point
	switch kind {
	case types.KindDrawing:
		a, b = cmd.From, cmd.To
	case types.KindShape:
		a, b = cmd.Start, cmd.End
		if cmd.Tool == "" {
			return validationError("shape tool is required")
		}
	}
	if a == nil || b == nil {
		return validationError("%s requires both endpoints", kind)
	}

	for _, v := range []float64{a.X, a.Y, b.X, b.Y, cmd.PenSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return validationError("coordinates and pen size must be finite")
		}
	}
	if cmd.PenSize < 0 {
		return validationError("pen size must not be negative")
	}

	return nil
}

func logDrop(logCtx *logrus.Entry, err error) {
	if errors.Is(err, ErrAuthorization) {
		logCtx.WithError(err).Warn("dropping event from non-member")
		return
	}
	logCtx.WithError(err).Debug("dropping event")
}
