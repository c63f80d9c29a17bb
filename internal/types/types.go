package types

import (
	"time"
)

type EntryKind string

const (
	KindDrawing EntryKind = "drawing"
	KindShape   EntryKind = "shape"
	KindClear   EntryKind = "clear"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawCommand is the payload of a drawing or shape event. Strokes use From/To,
// shapes use Start/End and Tool.
type DrawCommand struct {
	RoomId   string  `json:"roomId"`
	From     *Point  `json:"from,omitempty"`
	To       *Point  `json:"to,omitempty"`
	Start    *Point  `json:"start,omitempty"`
	End      *Point  `json:"end,omitempty"`
	Color    string  `json:"color"`
	PenSize  float64 `json:"penSize"`
	IsEraser bool    `json:"isEraser,omitempty"`
	Tool     string  `json:"tool,omitempty"`
}

// Entry is one record of a room's operation log.
type Entry struct {
	Kind      EntryKind `json:"type"`
	Id        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	DrawCommand
}

type Permissions struct {
	AllowEdit   bool `json:"allowEdit"`
	AllowChat   bool `json:"allowChat"`
	AllowExport bool `json:"allowExport"`
}

type RoomData struct {
	Id           string      `json:"id"`
	DisplayName  string      `json:"displayName"`
	Access       string      `json:"access"`
	AdminName    string      `json:"adminName"`
	MaxOccupancy *int        `json:"maxOccupancy,omitempty"`
	Permissions  Permissions `json:"permissions"`
}

type RoomInfo struct {
	RoomData
	UserCount      int       `json:"userCount"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type UserInfo struct {
	Id       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type ServerStats struct {
	RoomCount        int `json:"roomCount"`
	TotalMemberCount int `json:"totalMemberCount"`
	ActiveRoomCount  int `json:"activeRoomCount"`
}

type ChatMessage struct {
	UserId    string    `json:"userId,omitempty"`
	RoomId    string    `json:"roomId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
