package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrItemNotFound is returned when a cancel targets an item the
	// conversation no longer holds.
	ErrItemNotFound = errors.New("realtime: item not found")
)

// Error is a protocol error reported by the remote agent.
type Error struct {
	Type    string
	Code    string
	Message string
	Param   string
	EventID string

	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("realtime: %s", e.Message)
}

// EventError is the error object carried by an "error" server event.
type EventError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *EventError) toError() *Error {
	return &Error{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Param:   e.Param,
		EventID: e.EventID,
	}
}
