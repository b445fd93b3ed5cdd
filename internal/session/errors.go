package session

import "errors"

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownType   = errors.New("unknown message type")
	ErrUnknownAction = errors.New("unknown sticky action")
)
