package server

import "fmt"

type ErrorKind string

const (
	KindValidation    ErrorKind = "ValidationError"
	KindNotFound      ErrorKind = "NotFoundError"
	KindCapacity      ErrorKind = "CapacityError"
	KindAuthorization ErrorKind = "AuthorizationError"
	KindConflict      ErrorKind = "DuplicateRoom"
)

// RoomError is returned by every registry operation that rejects a request.
// Two RoomErrors match under errors.Is when their kinds are equal.
type RoomError struct {
	Kind    ErrorKind
	Message string
}

func (e *RoomError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RoomError) Is(target error) bool {
	t, ok := target.(*RoomError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation    = &RoomError{Kind: KindValidation}
	ErrNotFound      = &RoomError{Kind: KindNotFound}
	ErrCapacity      = &RoomError{Kind: KindCapacity}
	ErrAuthorization = &RoomError{Kind: KindAuthorization}
	ErrDuplicateRoom = &RoomError{Kind: KindConflict}
)

func validationError(format string, args ...any) *RoomError {
	return &RoomError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(roomId string) *RoomError {
	return &RoomError{Kind: KindNotFound, Message: fmt.Sprintf("room %q not found or expired", roomId)}
}

func capacityError(roomId string) *RoomError {
	return &RoomError{Kind: KindCapacity, Message: fmt.Sprintf("room %q is full", roomId)}
}

func authorizationError(connId, roomId string) *RoomError {
	return &RoomError{Kind: KindAuthorization, Message: fmt.Sprintf("connection %s is not a member of room %q", connId, roomId)}
}

func duplicateRoomError(roomId string) *RoomError {
	return &RoomError{Kind: KindConflict, Message: fmt.Sprintf("room %q already exists", roomId)}
}
