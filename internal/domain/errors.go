package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrDuplicateRoom  = errors.New("room already exists")
	ErrInvalidRoomID  = errors.New("invalid room id")
	ErrNotInRoom      = errors.New("user not in a room")
	ErrEmptyMessage   = errors.New("empty message")
	ErrTargetNotFound = errors.New("target user not connected")
)
