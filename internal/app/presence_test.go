package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

func TestPresenceConnectAndDisconnect(t *testing.T) {
	h := newHarness(t)
	watcher := h.connect("w", "watcher")
	watcher.reset()

	h.connect("a1", "alice")
	if got := h.presence.Get("alice").Status; got != domain.StatusOnline {
		t.Fatalf("status after connect = %v, want Online", got)
	}
	ev := last[core.StatusChanged](t, watcher, core.EventStatusChanged)
	if ev.UserID != "alice" || ev.Status != domain.StatusOnline || ev.StatusText != "Online" {
		t.Fatalf("unexpected status change %+v", ev)
	}

	h.disconnect("a1")
	if got := h.presence.Get("alice").Status; got != domain.StatusOffline {
		t.Fatalf("status after disconnect = %v, want Offline", got)
	}
	for _, rec := range h.presence.Snapshot() {
		if rec.UserID == "alice" {
			t.Fatal("offline users must not appear in the snapshot")
		}
	}
	if h.pstore.saves != 0 {
		t.Fatalf("implicit transitions must not be persisted, got %d saves", h.pstore.saves)
	}
}

func TestPresenceSecondConnectionKeepsStatus(t *testing.T) {
	h := newHarness(t)
	h.connect("a1", "alice")
	if err := h.presence.SetStatus(context.Background(), "alice", domain.StatusAway); err != nil {
		t.Fatal(err)
	}
	h.connect("a2", "alice")
	h.disconnect("a1")
	if got := h.presence.Get("alice").Status; got != domain.StatusAway {
		t.Fatalf("status = %v, want Away while a connection remains", got)
	}
}

func TestPresenceSetStatus(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a1", "alice")
	a.reset()
	ctx := context.Background()

	if err := h.presence.SetStatus(ctx, "alice", domain.StatusDoNotDisturb); err != nil {
		t.Fatal(err)
	}
	if got := last[core.StatusChanged](t, a, core.EventStatusChanged); got.Status != domain.StatusDoNotDisturb {
		t.Fatalf("own connection should see the change, got %+v", got)
	}
	if h.pstore.statuses["alice"] != domain.StatusDoNotDisturb {
		t.Fatal("explicit status should be persisted")
	}

	if err := h.presence.SetStatus(ctx, "alice", domain.StatusInCall); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("InCall must not be user-settable, got %v", err)
	}
	if err := h.presence.SetStatus(ctx, "alice", domain.Status(5)); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("reserved ordinal accepted, got %v", err)
	}

	a.reset()
	if err := h.presence.SetStatus(ctx, "alice", domain.StatusDoNotDisturb); err != nil {
		t.Fatal(err)
	}
	if n := a.count(t, core.EventStatusChanged); n != 0 {
		t.Fatalf("setting the same status broadcast %d changes", n)
	}
}

func TestPresenceSetStatusPersistFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	h.connect("a1", "alice")
	h.pstore.failSave = errors.New("disk full")

	if err := h.presence.SetStatus(context.Background(), "alice", domain.StatusBusy); err == nil {
		t.Fatal("persist failure should be reported")
	}
	if got := h.presence.Get("alice").Status; got != domain.StatusBusy {
		t.Fatalf("cached status = %v, want Busy", got)
	}
}

func TestPresenceReconnectRestoresStoredStatus(t *testing.T) {
	tests := []struct {
		name   string
		stored *domain.Status
		want   domain.Status
	}{
		{"nothing stored", nil, domain.StatusOnline},
		{"away", ptr(domain.StatusAway), domain.StatusAway},
		{"do not disturb", ptr(domain.StatusDoNotDisturb), domain.StatusDoNotDisturb},
		{"offline", ptr(domain.StatusOffline), domain.StatusOnline},
		{"in call", ptr(domain.StatusInCall), domain.StatusOnline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.stored != nil {
				h.pstore.statuses["alice"] = *tt.stored
			}
			h.connect("a1", "alice")
			if got := h.presence.Get("alice").Status; got != tt.want {
				t.Fatalf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresenceCallTransitions(t *testing.T) {
	h := newHarness(t)
	h.connect("a1", "alice")

	h.presence.MarkInCall("alice")
	if got := h.presence.Get("alice").Status; got != domain.StatusInCall {
		t.Fatalf("status = %v, want InCall", got)
	}
	h.presence.ResetFromCall("alice")
	if got := h.presence.Get("alice").Status; got != domain.StatusOnline {
		t.Fatalf("status = %v, want Online", got)
	}

	if err := h.presence.SetStatus(context.Background(), "alice", domain.StatusBusy); err != nil {
		t.Fatal(err)
	}
	h.presence.ResetFromCall("alice")
	if got := h.presence.Get("alice").Status; got != domain.StatusBusy {
		t.Fatalf("ResetFromCall overwrote %v", got)
	}
}

func TestPresenceUnknownUserIsOffline(t *testing.T) {
	p := NewPresence(nil, nil)
	if got := p.Get("ghost").Status; got != domain.StatusOffline {
		t.Fatalf("unknown user status = %v, want Offline", got)
	}
	p.Disconnected("ghost")
	if len(p.Snapshot()) != 0 {
		t.Fatal("disconnecting an unknown user should not create a record")
	}
}

func ptr[T any](v T) *T { return &v }
