package domain

import "time"

// CallState is the state of a direct call session. Idle means no session.
type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallNegotiating
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallRinging:
		return "ringing"
	case CallNegotiating:
		return "negotiating"
	case CallActive:
		return "active"
	}
	return "unknown"
}

// CallDirection tells which side of a ringing session a user is on.
type CallDirection int

const (
	CallOutgoing CallDirection = iota
	CallIncoming
)

func (d CallDirection) String() string {
	if d == CallIncoming {
		return "incoming"
	}
	return "outgoing"
}

// CallView is one user's view of a session.
type CallView struct {
	Peer      UserID        `json:"peer"`
	State     CallState     `json:"-"`
	StateName string        `json:"state"`
	Direction CallDirection `json:"-"`
	DirName   string        `json:"direction"`
	CreatedAt time.Time     `json:"created_at"`
}
