// Package rtc validates the negotiation payloads the relay forwards.
// The relay never terminates media; it only checks that what it relays
// parses as a session description or a candidate.
package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const MaxSDPLen = 64 << 10

var (
	ErrEmptyDescriptor = errors.New("empty session description")
	ErrDescriptorSize  = errors.New("session description too large")
	ErrDescriptorType  = errors.New("unexpected session description type")
	ErrBadCandidate    = errors.New("malformed candidate")
)

// ParseDescriptor builds a SessionDescription of the wanted type from raw SDP
// and checks that it parses.
func ParseDescriptor(want webrtc.SDPType, sdp string) (webrtc.SessionDescription, error) {
	if strings.TrimSpace(sdp) == "" {
		return webrtc.SessionDescription{}, ErrEmptyDescriptor
	}
	if len(sdp) > MaxSDPLen {
		return webrtc.SessionDescription{}, ErrDescriptorSize
	}
	desc := webrtc.SessionDescription{Type: want, SDP: sdp}
	if _, err := desc.Unmarshal(); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("parse sdp: %w", err)
	}
	return desc, nil
}

// ParseTypedDescriptor is ParseDescriptor for payloads that carry their own
// type string ("offer", "answer").
func ParseTypedDescriptor(typ, sdp string) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(typ)
	if t != webrtc.SDPTypeOffer && t != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, ErrDescriptorType
	}
	return ParseDescriptor(t, sdp)
}

// Candidate maps the wire fields onto an ICECandidateInit. An empty candidate
// string is the end-of-candidates marker and is allowed.
func Candidate(candidate, sdpMid string, sdpMLineIndex *uint16) (webrtc.ICECandidateInit, error) {
	if candidate != "" && !strings.HasPrefix(strings.TrimPrefix(candidate, "a="), "candidate:") {
		return webrtc.ICECandidateInit{}, ErrBadCandidate
	}
	ci := webrtc.ICECandidateInit{Candidate: candidate}
	if sdpMid != "" {
		ci.SDPMid = &sdpMid
	}
	if sdpMLineIndex != nil {
		idx := *sdpMLineIndex
		ci.SDPMLineIndex = &idx
	}
	if ci.SDPMid == nil && ci.SDPMLineIndex == nil && candidate != "" {
		return webrtc.ICECandidateInit{}, ErrBadCandidate
	}
	return ci, nil
}

// DefaultICEServers is handed to clients so both peers use the same STUN setup.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}
