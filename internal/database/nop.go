package database

// NopWhiteboardRepository discards every write. It is used when no durable
// store is configured.
type NopWhiteboardRepository struct{}

func (NopWhiteboardRepository) Ping() error { return nil }
func (NopWhiteboardRepository) CreateRoom(Room) error { return nil }
func (NopWhiteboardRepository) CreateMessage(Message) error { return nil }
func (NopWhiteboardRepository) Close() error { return nil }

func (NopWhiteboardRepository) GetMessages(string, int, int) ([]Message, error) {
	return []Message{}, nil
}
