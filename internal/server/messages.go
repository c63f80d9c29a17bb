package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/types"
)

const (
	EventAck         = "ack"
	EventCreateRoom  = "createRoom"
	EventJoinRoom    = "joinRoom"
	EventRejoinRoom  = "rejoinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventDrawing     = "drawing"
	EventShape       = "shape"
	EventClear       = "clear"
	EventChatMessage = "chatMessage"
	EventPing        = "ping"
	EventUserCount   = "userCount"
	EventUserList    = "userList"
	EventServerStats = "serverStats"
)

// ClientMessage is a single frame received from a connection. Id is set by
// clients that expect an acknowledgement.
type ClientMessage struct {
	Id    int             `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Id        int       `json:"id,omitempty"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CreateRoomRequest struct {
	Id           string            `json:"id"`
	DisplayName  string            `json:"displayName"`
	Access       string            `json:"access"`
	AdminName    string            `json:"adminName"`
	MaxOccupancy *int              `json:"maxOccupancy,omitempty"`
	Permissions  types.Permissions `json:"permissions"`
}

type JoinRoomRequest struct {
	RoomId   string `json:"roomId"`
	UserName string `json:"userName"`
}

type ChatRequest struct {
	RoomId string `json:"roomId"`
	Text   string `json:"text"`
}

type RoomAck struct {
	Success        bool           `json:"success"`
	RoomData       types.RoomData `json:"roomData"`
	DrawingHistory []types.Entry  `json:"drawingHistory"`
}

type ErrorAck struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Code    ErrorKind `json:"code,omitempty"`
}

type UserCount struct {
	Count int `json:"count"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Event:     EventAck,
		Data:      data,
		Timestamp: Now(),
	}
}

func RoomOK(id int, room types.RoomData, history []types.Entry) *ServerMessage {
	if history == nil {
		history = []types.Entry{}
	}
	return NoErrOK(id, RoomAck{Success: true, RoomData: room, DrawingHistory: history})
}

// ErrFailed builds the failure acknowledgement for err. Errors that are not a
// *RoomError are reported without a code.
func ErrFailed(id int, err error) *ServerMessage {
	ack := ErrorAck{Message: err.Error()}

	var roomErr *RoomError
	if errors.As(err, &roomErr) {
		ack.Code = roomErr.Kind
		ack.Message = roomErr.Message
	}

	return NoErrOK(id, ack)
}

func ErrInvalidMessage(id int) *ServerMessage {
	return NoErrOK(id, ErrorAck{Message: "invalid message format", Code: KindValidation})
}

func Push(event string, data any) *ServerMessage {
	return &ServerMessage{
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
