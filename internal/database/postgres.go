package database

import (
	"database/sql"
	"fmt"
	"slices"
	"time"
)

type PgWhiteboardRepository struct {
	conn *sql.DB
}

func NewPgWhiteboardRepository(dsn string) (*PgWhiteboardRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PgWhiteboardRepository{conn: db}, nil
}

func (db *PgWhiteboardRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgWhiteboardRepository) CreateRoom(room Room) error {
	var maxUsers sql.NullInt64
	if room.MaxUsers != nil {
		maxUsers = sql.NullInt64{Int64: int64(*room.MaxUsers), Valid: true}
	}

	// room ids are reused once an evicted room is created again
	_, err := db.conn.Exec(
		"INSERT INTO rooms (room_id, name, access, admin_name, max_users, allow_edit, allow_chat, allow_export, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"ON CONFLICT (room_id) DO UPDATE SET name = EXCLUDED.name, access = EXCLUDED.access, "+
			"admin_name = EXCLUDED.admin_name, max_users = EXCLUDED.max_users, allow_edit = EXCLUDED.allow_edit, "+
			"allow_chat = EXCLUDED.allow_chat, allow_export = EXCLUDED.allow_export, created_at = EXCLUDED.created_at",
		room.RoomId,
		room.Name,
		room.Access,
		room.AdminName,
		maxUsers,
		room.AllowEdit,
		room.AllowChat,
		room.AllowExport,
		room.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	return nil
}

func (db *PgWhiteboardRepository) CreateMessage(msg Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := db.conn.Exec(
		"INSERT INTO messages (room_id, user_name, text, created_at) VALUES ($1, $2, $3, $4)",
		msg.RoomId,
		msg.UserName,
		msg.Text,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (db *PgWhiteboardRepository) GetMessages(roomId string, limit, offset int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, user_name, text, created_at FROM messages "+
			"WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.RoomId, &m.UserName, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func (db *PgWhiteboardRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
