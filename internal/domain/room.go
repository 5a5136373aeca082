package domain

import "errors"

const MaxRoomIDLen = 64

var ErrRoomIDInvalid = errors.New("invalid room id")

type RoomID string

func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" || len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDInvalid
	}
	return RoomID(raw), nil
}
