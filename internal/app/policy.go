package app

import (
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a room member whose queue rejected a frame.
type Policy interface {
	OnBackPressure(room domain.RoomID, cid core.ConnID) BackpressureAction
}

// SimplePolicy lets slow consumers miss frames.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, core.ConnID) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects members that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomID, core.ConnID) BackpressureAction {
	return KickMember
}

// PolicyByName maps the frame_backpressure config value to a Policy.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return SimplePolicy{}
}
