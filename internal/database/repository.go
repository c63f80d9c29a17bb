package database

// WhiteboardRepository is the durable sink for rooms and chat messages. The
// coordinator never reads room state back from it.
type WhiteboardRepository interface {
	Ping() error
	CreateRoom(room Room) error
	CreateMessage(msg Message) error
	// GetMessages returns a page of a room's chat history. offset counts back
	// from the newest message; the page is returned oldest first.
	GetMessages(roomId string, limit, offset int) ([]Message, error)
	Close() error
}
