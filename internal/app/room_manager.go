package app

import (
	"sort"
	"sync"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// RoomManager owns the per-room broadcast groups.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.RoomGroup
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomID]*core.RoomGroup)}
}

func (f *RoomManager) GetOrCreate(id domain.RoomID) *core.RoomGroup {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomGroup(id)
	f.rooms[id] = room
	return room
}

func (f *RoomManager) Get(id domain.RoomID) (*core.RoomGroup, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManager) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *RoomManager) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
