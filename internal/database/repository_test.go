package database

import (
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backends run only when TEST_DATABASE_DSN or TEST_REDIS_ADDR point at a
// disposable instance.
func testRepositories(t *testing.T) map[string]WhiteboardRepository {
	t.Helper()
	repos := make(map[string]WhiteboardRepository)

	if dsn := os.Getenv("TEST_DATABASE_DSN"); dsn != "" {
		repo, err := NewPgWhiteboardRepository(dsn)
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		repos["postgres"] = repo
	}
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		repo, err := NewRedisWhiteboardRepository(addr, os.Getenv("TEST_REDIS_PASSWORD"))
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		repos["redis"] = repo
	}

	if len(repos) == 0 {
		t.Skip("no database configured")
	}
	return repos
}

func TestRepository_Messages(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			roomId := fmt.Sprintf("test-%d", time.Now().UnixNano())
			capacity := 4

			require.NoError(t, repo.Ping())
			require.NoError(t, repo.CreateRoom(Room{
				RoomId:    roomId,
				Name:      "Test Room",
				Access:    "private",
				AdminName: "Ava",
				MaxUsers:  &capacity,
				CreatedAt: time.Now(),
			}))
			require.NoError(t, repo.CreateRoom(Room{RoomId: roomId, Name: "Renamed", Access: "private", AdminName: "Ava"}),
				"expected re-recording a room to succeed")

			base := time.Now().UTC().Truncate(time.Millisecond)
			for i := 1; i <= 5; i++ {
				require.NoError(t, repo.CreateMessage(Message{
					RoomId:    roomId,
					UserName:  "Ben",
					Text:      fmt.Sprintf("message %d", i),
					Timestamp: base.Add(time.Duration(i) * time.Second),
				}))
			}

			page, err := repo.GetMessages(roomId, 2, 0)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "message 4", page[0].Text, "expected newest page oldest first")
			assert.Equal(t, "message 5", page[1].Text)

			page, err = repo.GetMessages(roomId, 2, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "message 2", page[0].Text)
			assert.Equal(t, "message 3", page[1].Text)

			page, err = repo.GetMessages(roomId, 10, 10)
			require.NoError(t, err)
			assert.Empty(t, page)
		})
	}
}

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "room:team-standup", roomKey("team-standup"))
	assert.Equal(t, "room:team-standup:messages", messagesKey("team-standup"))
}
