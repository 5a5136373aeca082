package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" {
		t.Fatalf("username fallback = %q", u.Username)
	}

	tests := []struct {
		name     string
		id, user string
		want     error
	}{
		{"empty id", "", "x", ErrUserIDEmpty},
		{"long id", strings.Repeat("a", MaxUserIDLen+1), "x", ErrUserIDTooLong},
		{"long name", "bob", strings.Repeat("b", MaxUsernameLen+1), ErrUsernameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewUser(tt.id, tt.user); !errors.Is(err, tt.want) {
				t.Fatalf("NewUser = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, v := range []int{0, 1, 2, 3, 4, 6} {
		if _, err := ParseStatus(v); err != nil {
			t.Fatalf("ParseStatus(%d) = %v", v, err)
		}
	}
	for _, v := range []int{-1, 5, 7} {
		if _, err := ParseStatus(v); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("ParseStatus(%d) = %v, want ErrInvalidStatus", v, err)
		}
	}
	if StatusDoNotDisturb.String() != "Do Not Disturb" || StatusInCall.String() != "In Call" {
		t.Fatal("status text changed")
	}
}

func TestPayloadValidate(t *testing.T) {
	ok := Payload{Kind: PayloadAudio, Name: "memo.ogg", URL: "https://files.example/memo.ogg"}
	if err := ok.Validate(); err != nil {
		t.Fatal(err)
	}
	bad := ok
	bad.Size = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("negative size = %v", err)
	}
}

func TestUserIDLess(t *testing.T) {
	if !UserID("alice").Less("bob") || UserID("bob").Less("alice") || UserID("a").Less("a") {
		t.Fatal("Less is not a strict bytewise order")
	}
}
