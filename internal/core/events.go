package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/relay/internal/domain"
	"github.com/pion/webrtc/v4"
)

// EventType is the wire name of an outbound event.
type EventType string

const (
	EventWelcome          EventType = "welcome"
	EventPong             EventType = "pong"
	EventWhoAmI           EventType = "whoami"
	EventError            EventType = "error"
	EventPresenceSnapshot EventType = "presence_snapshot"
	EventStatusChanged    EventType = "status_changed"

	EventCallRequested  EventType = "call_requested"
	EventCallAccepted   EventType = "call_accepted"
	EventCallDeclined   EventType = "call_declined"
	EventOfferReady     EventType = "offer_ready"
	EventAnswerReady    EventType = "answer_ready"
	EventCandidateReady EventType = "candidate_ready"
	EventCallEnded      EventType = "call_ended"

	EventRoomActiveCameras EventType = "room_active_cameras"
	EventRoomCameraStarted EventType = "room_camera_started"
	EventRoomCameraStopped EventType = "room_camera_stopped"
	EventRoomMemberJoined  EventType = "room_member_joined"
	EventRoomMemberLeft    EventType = "room_member_left"
	EventRoomPeerOffer     EventType = "room_peer_offer"
	EventRoomPeerAnswer    EventType = "room_peer_answer"
	EventRoomPeerCandidate EventType = "room_peer_candidate"
	EventRoomFrame         EventType = "room_frame"

	EventTransferOffered  EventType = "transfer_offered"
	EventTransferResolved EventType = "transfer_resolved"
)

// Event is the closed set of messages the relay sends to clients.
// Only types in this package implement it.
type Event interface {
	Type() EventType
	event()
}

type envelope struct {
	Type    EventType `json:"type"`
	Payload Event     `json:"payload"`
}

// Encode wraps ev in the {"type", "payload"} envelope.
func Encode(ev Event) (Frame, error) {
	b, err := json.Marshal(envelope{Type: ev.Type(), Payload: ev})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return b, nil
}

// RawEnvelope is the decoded form of an encoded event.
type RawEnvelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func Decode(f Frame) (RawEnvelope, error) {
	var env RawEnvelope
	if err := json.Unmarshal(f, &env); err != nil {
		return RawEnvelope{}, fmt.Errorf("decode frame: %w", err)
	}
	return env, nil
}

// ---- connection / presence ----

type Welcome struct {
	UserID     domain.UserID      `json:"user_id"`
	ConnID     ConnID             `json:"conn_id"`
	ICEServers []webrtc.ICEServer `json:"ice_servers,omitempty"`
}

type Pong struct{}

type WhoAmI struct {
	User domain.User   `json:"user"`
	Room domain.RoomID `json:"room,omitempty"`
}

// Error is deliberately generic: it never says whether the target resource exists.
type Error struct {
	Code    string `json:"code"`
	Request string `json:"request,omitempty"`
}

type PresenceEntry struct {
	UserID     domain.UserID `json:"user_id"`
	Status     domain.Status `json:"status"`
	StatusText string        `json:"status_text"`
}

type PresenceSnapshot struct {
	Users []PresenceEntry `json:"users"`
}

type StatusChanged struct {
	UserID     domain.UserID `json:"user_id"`
	Status     domain.Status `json:"status"`
	StatusText string        `json:"status_text"`
}

func (Welcome) Type() EventType          { return EventWelcome }
func (Pong) Type() EventType             { return EventPong }
func (WhoAmI) Type() EventType           { return EventWhoAmI }
func (Error) Type() EventType            { return EventError }
func (PresenceSnapshot) Type() EventType { return EventPresenceSnapshot }
func (StatusChanged) Type() EventType    { return EventStatusChanged }

func (Welcome) event()          {}
func (Pong) event()             {}
func (WhoAmI) event()           {}
func (Error) event()            {}
func (PresenceSnapshot) event() {}
func (StatusChanged) event()    {}

// ---- direct call channel ----

type CallRequested struct {
	CallerID   domain.UserID `json:"caller_id"`
	CallerName string        `json:"caller_name,omitempty"`
}

type CallAccepted struct {
	OtherID domain.UserID `json:"other_id"`
}

type CallDeclined struct {
	OtherID domain.UserID `json:"other_id"`
	Reason  string        `json:"reason,omitempty"`
}

type OfferReady struct {
	FromID      domain.UserID             `json:"from_id"`
	Description webrtc.SessionDescription `json:"description"`
}

type AnswerReady struct {
	FromID      domain.UserID             `json:"from_id"`
	Description webrtc.SessionDescription `json:"description"`
}

type CandidateReady struct {
	FromID    domain.UserID           `json:"from_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type CallEnded struct {
	FromID domain.UserID `json:"from_id"`
}

func (CallRequested) Type() EventType  { return EventCallRequested }
func (CallAccepted) Type() EventType   { return EventCallAccepted }
func (CallDeclined) Type() EventType   { return EventCallDeclined }
func (OfferReady) Type() EventType     { return EventOfferReady }
func (AnswerReady) Type() EventType    { return EventAnswerReady }
func (CandidateReady) Type() EventType { return EventCandidateReady }
func (CallEnded) Type() EventType      { return EventCallEnded }

func (CallRequested) event()  {}
func (CallAccepted) event()   {}
func (CallDeclined) event()   {}
func (OfferReady) event()     {}
func (AnswerReady) event()    {}
func (CandidateReady) event() {}
func (CallEnded) event()      {}

// ---- room channel ----

type RoomActiveCameras struct {
	RoomID  domain.RoomID   `json:"room_id"`
	Cameras []domain.Camera `json:"cameras"`
}

type RoomCameraStarted struct {
	RoomID   domain.RoomID `json:"room_id"`
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
}

type RoomCameraStopped struct {
	RoomID domain.RoomID `json:"room_id"`
	UserID domain.UserID `json:"user_id"`
}

type RoomMemberJoined struct {
	RoomID domain.RoomID `json:"room_id"`
	User   domain.User   `json:"user"`
}

type RoomMemberLeft struct {
	RoomID domain.RoomID `json:"room_id"`
	User   domain.User   `json:"user"`
}

type RoomPeerOffer struct {
	RoomID      domain.RoomID             `json:"room_id"`
	FromUserID  domain.UserID             `json:"from_user_id"`
	Description webrtc.SessionDescription `json:"description"`
}

type RoomPeerAnswer struct {
	RoomID      domain.RoomID             `json:"room_id"`
	FromUserID  domain.UserID             `json:"from_user_id"`
	Description webrtc.SessionDescription `json:"description"`
}

type RoomPeerCandidate struct {
	RoomID     domain.RoomID           `json:"room_id"`
	FromUserID domain.UserID           `json:"from_user_id"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
}

// RoomFrame carries a fallback media frame; Data is base64 on the wire.
type RoomFrame struct {
	RoomID     domain.RoomID `json:"room_id"`
	FromUserID domain.UserID `json:"from_user_id"`
	Data       []byte        `json:"data"`
}

func (RoomActiveCameras) Type() EventType { return EventRoomActiveCameras }
func (RoomCameraStarted) Type() EventType { return EventRoomCameraStarted }
func (RoomCameraStopped) Type() EventType { return EventRoomCameraStopped }
func (RoomMemberJoined) Type() EventType  { return EventRoomMemberJoined }
func (RoomMemberLeft) Type() EventType    { return EventRoomMemberLeft }
func (RoomPeerOffer) Type() EventType     { return EventRoomPeerOffer }
func (RoomPeerAnswer) Type() EventType    { return EventRoomPeerAnswer }
func (RoomPeerCandidate) Type() EventType { return EventRoomPeerCandidate }
func (RoomFrame) Type() EventType         { return EventRoomFrame }

func (RoomActiveCameras) event() {}
func (RoomCameraStarted) event() {}
func (RoomCameraStopped) event() {}
func (RoomMemberJoined) event()  {}
func (RoomMemberLeft) event()    {}
func (RoomPeerOffer) event()     {}
func (RoomPeerAnswer) event()    {}
func (RoomPeerCandidate) event() {}
func (RoomFrame) event()         {}

// ---- transfer channel ----

type TransferOffered struct {
	RequestID  domain.TransferID `json:"request_id"`
	SenderID   domain.UserID     `json:"sender_id"`
	ReceiverID domain.UserID     `json:"receiver_id"`
	Payload    domain.Payload    `json:"payload"`
}

type TransferResolved struct {
	RequestID domain.TransferID `json:"request_id"`
	Accepted  bool              `json:"accepted"`
	URL       string            `json:"url"`
	Payload   domain.Payload    `json:"payload"`
}

func (TransferOffered) Type() EventType  { return EventTransferOffered }
func (TransferResolved) Type() EventType { return EventTransferResolved }

func (TransferOffered) event()  {}
func (TransferResolved) event() {}
