package rtc

import (
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

const minimalSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptor(webrtc.SDPTypeOffer, minimalSDP)
	if err != nil {
		t.Fatal(err)
	}
	if desc.Type != webrtc.SDPTypeOffer || desc.SDP != minimalSDP {
		t.Fatalf("unexpected descriptor %+v", desc)
	}

	if _, err := ParseDescriptor(webrtc.SDPTypeOffer, "  "); !errors.Is(err, ErrEmptyDescriptor) {
		t.Fatalf("empty = %v", err)
	}
	if _, err := ParseDescriptor(webrtc.SDPTypeOffer, strings.Repeat("a", MaxSDPLen+1)); !errors.Is(err, ErrDescriptorSize) {
		t.Fatalf("oversized = %v", err)
	}
	if _, err := ParseDescriptor(webrtc.SDPTypeAnswer, "hello"); err == nil {
		t.Fatal("garbage SDP should not parse")
	}
}

func TestParseTypedDescriptor(t *testing.T) {
	desc, err := ParseTypedDescriptor("answer", minimalSDP)
	if err != nil || desc.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("ParseTypedDescriptor = %+v, %v", desc, err)
	}
	if _, err := ParseTypedDescriptor("rollback", minimalSDP); !errors.Is(err, ErrDescriptorType) {
		t.Fatalf("rollback = %v, want ErrDescriptorType", err)
	}
}

func TestCandidate(t *testing.T) {
	idx := uint16(0)
	tests := []struct {
		name    string
		cand    string
		mid     string
		index   *uint16
		wantErr bool
	}{
		{"with mid", "candidate:1 1 udp 2122252543 192.168.1.2 54321 typ host", "0", nil, false},
		{"with index", "candidate:1 1 udp 2122252543 192.168.1.2 54321 typ host", "", &idx, false},
		{"attribute form", "a=candidate:1 1 udp 1 10.0.0.1 9 typ host", "audio", nil, false},
		{"end of candidates", "", "", nil, false},
		{"no prefix", "1 1 udp 1 10.0.0.1 9 typ host", "0", nil, true},
		{"no mid or index", "candidate:1 1 udp 1 10.0.0.1 9 typ host", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ci, err := Candidate(tt.cand, tt.mid, tt.index)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Candidate err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && ci.Candidate != tt.cand {
				t.Fatalf("candidate = %q", ci.Candidate)
			}
		})
	}
}
