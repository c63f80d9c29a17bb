package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-whiteboard/internal/server"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

type StatusResponse struct {
	Status string `json:"status"`
	types.ServerStats
	Timestamp time.Time `json:"timestamp"`
}

type RoomInfoResponse struct {
	RoomId         string    `json:"roomId"`
	DisplayName    string    `json:"displayName"`
	Access         string    `json:"access"`
	AdminName      string    `json:"adminName"`
	UserCount      int       `json:"userCount"`
	MaxOccupancy   *int      `json:"maxOccupancy"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func (s *WhiteboardApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("json encode")
	}
}

func (s *WhiteboardApp) writeRoomError(w http.ResponseWriter, err error) {
	var errResp *ApiError
	if errors.Is(err, server.ErrNotFound) {
		errResp = NewNotFoundError()
	} else {
		errResp = NewInternalServerError(err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *WhiteboardApp) index(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, StatusResponse{
		Status:      "ok",
		ServerStats: s.board.Stats(),
		Timestamp:   time.Now().UTC(),
	})
}

func (s *WhiteboardApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.WithError(err).Error("health check failed")
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *WhiteboardApp) serverStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, s.board.Stats())
}

func (s *WhiteboardApp) roomInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.board.RoomInfo(r.PathValue("roomId"))
	if err != nil {
		s.writeRoomError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, RoomInfoResponse{
		RoomId:         info.Id,
		DisplayName:    info.DisplayName,
		Access:         info.Access,
		AdminName:      info.AdminName,
		UserCount:      info.UserCount,
		MaxOccupancy:   info.MaxOccupancy,
		CreatedAt:      info.CreatedAt,
		LastActivityAt: info.LastActivityAt,
	})
}

func (s *WhiteboardApp) roomHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.board.History(r.PathValue("roomId"))
	if err != nil {
		s.writeRoomError(w, err)
		return
	}

	if history == nil {
		history = []types.Entry{}
	}
	s.writeJson(w, http.StatusOK, history)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *WhiteboardApp) getMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	limit, err := queryInt(r, "limit", defaultMessageLimit)
	if err != nil || limit <= 0 || limit > maxMessageLimit {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.db.GetMessages(roomId, limit, offset)
	if err != nil {
		s.log.WithError(err).WithField("room_id", roomId).Error("failed to fetch messages")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chat := make([]types.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		chat = append(chat, types.ChatMessage{
			RoomId:    msg.RoomId,
			UserName:  msg.UserName,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		})
	}

	s.writeJson(w, http.StatusOK, chat)
}

func (s *WhiteboardApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.allowedOrigins) == 0 {
				return true
			}

			return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("error upgrading connection")
		return
	}

	s.board.Serve(conn)
}
