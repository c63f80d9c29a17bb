package database

import (
	"github.com/stretchr/testify/mock"
)

type MockWhiteboardRepository struct {
	mock.Mock
}

func (m *MockWhiteboardRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockWhiteboardRepository) CreateRoom(room Room) error {
	args := m.Called(room)
	return args.Error(0)
}
func (m *MockWhiteboardRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockWhiteboardRepository) GetMessages(roomId string, limit, offset int) ([]Message, error) {
	args := m.Called(roomId, limit, offset)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockWhiteboardRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
