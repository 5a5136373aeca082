package domain

import (
	"errors"
	"time"
)

var ErrInvalidPayload = errors.New("invalid payload")

type TransferID string

// PayloadKind selects how the client renders a transfer; the handshake is the same for all kinds.
type PayloadKind string

const (
	PayloadImage PayloadKind = "image"
	PayloadVideo PayloadKind = "video"
	PayloadAudio PayloadKind = "audio"
	PayloadFile  PayloadKind = "file"
)

func (k PayloadKind) Valid() bool {
	switch k {
	case PayloadImage, PayloadVideo, PayloadAudio, PayloadFile:
		return true
	}
	return false
}

type TransferStatus int

const (
	TransferPending  TransferStatus = 0
	TransferAccepted TransferStatus = 1
	TransferDeclined TransferStatus = 2
)

func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferAccepted:
		return "accepted"
	case TransferDeclined:
		return "declined"
	}
	return "unknown"
}

// Payload references content stored elsewhere; the relay never carries the bytes.
type Payload struct {
	Kind PayloadKind `json:"kind"`
	Name string      `json:"name"`
	URL  string      `json:"url"`
	Size int64       `json:"size"`
	MIME string      `json:"mime,omitempty"`
}

func (p Payload) Validate() error {
	if !p.Kind.Valid() || p.Name == "" || p.URL == "" || p.Size < 0 {
		return ErrInvalidPayload
	}
	return nil
}

type TransferRequest struct {
	ID         TransferID     `json:"id"`
	SenderID   UserID         `json:"sender_id"`
	ReceiverID UserID         `json:"receiver_id"`
	Payload    Payload        `json:"payload"`
	Status     TransferStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt time.Time      `json:"resolved_at,omitzero"`
}

// Involves reports whether uid is the sender or the receiver.
func (t TransferRequest) Involves(uid UserID) bool {
	return t.SenderID == uid || t.ReceiverID == uid
}
