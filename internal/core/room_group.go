package core

import (
	"sort"
	"sync"

	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

type groupMember struct {
	user domain.User
	sig  SignalConnection
}

// RoomGroup is the broadcast group of one room.
// It indexes members both by connection and by user so targeted relays
// resolve without scanning. It never closes adapter-owned resources.
type RoomGroup struct {
	id     domain.RoomID
	mu     sync.RWMutex
	byConn map[ConnID]groupMember
	byUser map[domain.UserID]map[ConnID]SignalConnection
}

func NewRoomGroup(id domain.RoomID) *RoomGroup {
	return &RoomGroup{
		id:     id,
		byConn: make(map[ConnID]groupMember),
		byUser: make(map[domain.UserID]map[ConnID]SignalConnection),
	}
}

func (g *RoomGroup) ID() domain.RoomID { return g.id }

func (g *RoomGroup) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byUser)
}

func (g *RoomGroup) Has(cid ConnID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byConn[cid]
	return ok
}

func (g *RoomGroup) AddMember(cid ConnID, user domain.User, sig SignalConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byConn[cid] = groupMember{user: user, sig: sig}
	conns, ok := g.byUser[user.ID]
	if !ok {
		conns = make(map[ConnID]SignalConnection)
		g.byUser[user.ID] = conns
	}
	conns[cid] = sig
	log.Info().Str("module", "core.room").Str("room", string(g.id)).Str("cid", string(cid)).Str("user", string(user.ID)).Msg("member added")
}

// RemoveMember drops cid and reports whether the user still has other
// connections in the group.
func (g *RoomGroup) RemoveMember(cid ConnID) (user domain.User, stillIn bool, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.byConn[cid]
	if !ok {
		return domain.User{}, false, false
	}
	delete(g.byConn, cid)
	conns := g.byUser[m.user.ID]
	delete(conns, cid)
	if len(conns) == 0 {
		delete(g.byUser, m.user.ID)
	}
	log.Info().Str("module", "core.room").Str("room", string(g.id)).Str("cid", string(cid)).Msg("member removed")
	return m.user, len(conns) > 0, true
}

// ConnsOf returns the connections a user holds in this room.
func (g *RoomGroup) ConnsOf(uid domain.UserID) []SignalConnection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conns := g.byUser[uid]
	out := make([]SignalConnection, 0, len(conns))
	for _, sig := range conns {
		out = append(out, sig)
	}
	return out
}

// Broadcast sends f to every member connection except from.
// An empty from reaches everyone.
func (g *RoomGroup) Broadcast(from ConnID, f Frame) PublishResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := PublishResult{}
	for cid, m := range g.byConn {
		if cid == from {
			continue
		}
		if err := m.sig.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(g.id)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// MembersSnapshot lists distinct users sorted by id.
func (g *RoomGroup) MembersSnapshot() []domain.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[domain.UserID]struct{}, len(g.byUser))
	out := make([]domain.User, 0, len(g.byUser))
	for _, m := range g.byConn {
		if _, ok := seen[m.user.ID]; ok {
			continue
		}
		seen[m.user.ID] = struct{}{}
		out = append(out, m.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}
