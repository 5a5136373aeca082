package app

import (
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

// Notifier is what the components need from the connection registry.
type Notifier interface {
	SendToUser(uid domain.UserID, ev core.Event) int
	SendToConn(cid core.ConnID, ev core.Event) bool
	BroadcastAll(ev core.Event) int
}

var _ Notifier = (*Registry)(nil)
