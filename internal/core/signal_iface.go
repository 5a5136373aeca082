package core

import "errors"

// Frame is a raw encoded payload ready for the wire.
type Frame []byte

// ConnID identifies one live transport connection.
type ConnID string

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full queue returns ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
