package core

import (
	"sync"
	"testing"

	"github.com/dkeye/relay/internal/domain"
)

type countConn struct {
	mu   sync.Mutex
	n    int
	full bool
}

func (c *countConn) TrySend(Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return ErrBackpressure
	}
	c.n++
	return nil
}

func (c *countConn) Close() {}

func TestRoomGroupMembership(t *testing.T) {
	g := NewRoomGroup("r")
	alice := domain.User{ID: "alice", Username: "Alice"}
	bob := domain.User{ID: "bob", Username: "Bob"}

	g.AddMember("a1", alice, &countConn{})
	g.AddMember("a2", alice, &countConn{})
	g.AddMember("b1", bob, &countConn{})

	if g.MemberCount() != 2 {
		t.Fatalf("MemberCount = %d, want 2 distinct users", g.MemberCount())
	}
	if got := len(g.ConnsOf("alice")); got != 2 {
		t.Fatalf("ConnsOf(alice) = %d, want 2", got)
	}
	members := g.MembersSnapshot()
	if len(members) != 2 || members[0].ID != "alice" || members[1].ID != "bob" {
		t.Fatalf("MembersSnapshot = %+v", members)
	}

	u, stillIn, ok := g.RemoveMember("a1")
	if !ok || !stillIn || u.ID != "alice" {
		t.Fatalf("RemoveMember(a1) = %v, %v, %v", u, stillIn, ok)
	}
	if _, stillIn, _ := g.RemoveMember("a2"); stillIn {
		t.Fatal("alice has no connections left")
	}
	if _, _, ok := g.RemoveMember("a2"); ok {
		t.Fatal("second removal should report false")
	}
	if g.Has("a2") || !g.Has("b1") {
		t.Fatal("Has disagrees with membership")
	}
}

func TestRoomGroupBroadcast(t *testing.T) {
	g := NewRoomGroup("r")
	sender, fast, slow := &countConn{}, &countConn{}, &countConn{full: true}
	g.AddMember("s", domain.User{ID: "s"}, sender)
	g.AddMember("f", domain.User{ID: "f"}, fast)
	g.AddMember("w", domain.User{ID: "w"}, slow)

	res := g.Broadcast("s", Frame("x"))
	if res.SendTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != "w" {
		t.Fatalf("Broadcast = %+v", res)
	}
	if sender.n != 0 || fast.n != 1 {
		t.Fatalf("sender=%d fast=%d", sender.n, fast.n)
	}

	res = g.Broadcast("", Frame("y"))
	if res.SendTo != 2 || sender.n != 1 {
		t.Fatalf("broadcast without sender = %+v", res)
	}
}
