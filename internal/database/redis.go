package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisOpTimeout  = 3 * time.Second
	redisMessageTTL = 24 * time.Hour
)

// RedisWhiteboardRepository keeps room metadata in a hash per room and chat
// history in a list per room.
type RedisWhiteboardRepository struct {
	client *redis.Client
}

func NewRedisWhiteboardRepository(addr, password string) (*RedisWhiteboardRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  redisOpTimeout,
		WriteTimeout: redisOpTimeout,
		PoolSize:     10,
	})

	repo := &RedisWhiteboardRepository{client: client}
	if err := repo.Ping(); err != nil {
		client.Close()
		return nil, err
	}

	return repo, nil
}

func roomKey(roomId string) string {
	return "room:" + roomId
}

func messagesKey(roomId string) string {
	return "room:" + roomId + ":messages"
}

func (r *RedisWhiteboardRepository) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisWhiteboardRepository) CreateRoom(room Room) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	fields := map[string]any{
		"name":         room.Name,
		"access":       room.Access,
		"admin_name":   room.AdminName,
		"allow_edit":   room.AllowEdit,
		"allow_chat":   room.AllowChat,
		"allow_export": room.AllowExport,
		"created_at":   room.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if room.MaxUsers != nil {
		fields["max_users"] = *room.MaxUsers
	}

	if err := r.client.HSet(ctx, roomKey(room.RoomId), fields).Err(); err != nil {
		return fmt.Errorf("hset room: %w", err)
	}

	return nil
}

type redisMessage struct {
	RoomId    string    `json:"roomId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *RedisWhiteboardRepository) CreateMessage(msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(redisMessage{
		RoomId:    msg.RoomId,
		UserName:  msg.UserName,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UTC(),
	})
	if err != nil {
		return err
	}

	key := messagesKey(msg.RoomId)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, redisMessageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rpush message: %w", err)
	}

	return nil
}

func (r *RedisWhiteboardRepository) GetMessages(roomId string, limit, offset int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	messages := []Message{}
	if limit <= 0 {
		return messages, nil
	}

	// the list is oldest first, so the newest page sits at the tail
	start := -int64(offset + limit)
	stop := -int64(offset + 1)
	results, err := r.client.LRange(ctx, messagesKey(roomId), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange messages: %w", err)
	}

	for _, raw := range results {
		var m redisMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		messages = append(messages, Message{
			RoomId:    m.RoomId,
			UserName:  m.UserName,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}

	return messages, nil
}

func (r *RedisWhiteboardRepository) Close() error {
	return r.client.Close()
}
