package database

import "time"

type Room struct {
	RoomId      string
	Name        string
	Access      string
	AdminName   string
	MaxUsers    *int
	AllowEdit   bool
	AllowChat   bool
	AllowExport bool
	CreatedAt   time.Time
}

type Message struct {
	Id        int64
	RoomId    string
	UserName  string
	Text      string
	Timestamp time.Time
}
