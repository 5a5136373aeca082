package domain

import (
	"errors"
	"time"
)

var ErrInvalidStatus = errors.New("invalid status")

// Status is the displayed presence of a user. Ordinals are part of the wire
// protocol and the stored format; 5 is reserved.
type Status int

const (
	StatusOnline       Status = 0
	StatusBusy         Status = 1
	StatusAway         Status = 2
	StatusInCall       Status = 3
	StatusDoNotDisturb Status = 4
	StatusOffline      Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusBusy:
		return "Busy"
	case StatusAway:
		return "Away"
	case StatusInCall:
		return "In Call"
	case StatusDoNotDisturb:
		return "Do Not Disturb"
	case StatusOffline:
		return "Offline"
	}
	return "Unknown"
}

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusBusy, StatusAway, StatusInCall, StatusDoNotDisturb, StatusOffline:
		return true
	}
	return false
}

// ParseStatus accepts a wire ordinal.
func ParseStatus(v int) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return 0, ErrInvalidStatus
	}
	return s, nil
}

// PresenceRecord is the cached displayed status of a user.
type PresenceRecord struct {
	UserID    UserID    `json:"user_id"`
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}
