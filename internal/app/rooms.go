package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected   = errors.New("connection not registered")
	ErrNotInRoom      = errors.New("connection not in room")
	ErrWrongInitiator = errors.New("peer offer from non-initiating side")
	ErrInvalidPeer    = errors.New("invalid room peer message")
)

// ConnResolver is what Rooms needs from the connection registry.
type ConnResolver interface {
	UserOf(cid core.ConnID) (domain.User, bool)
	Signal(cid core.ConnID) (core.SignalConnection, bool)
	Cancel(cid core.ConnID) bool
}

var _ ConnResolver = (*Registry)(nil)

type PeerMessageKind int

const (
	PeerOffer PeerMessageKind = iota
	PeerAnswer
	PeerCandidate
)

// RoomPeerMessage is a negotiation message between two members of one room.
type RoomPeerMessage struct {
	Kind        PeerMessageKind
	Description webrtc.SessionDescription
	Candidate   webrtc.ICECandidateInit
}

type cameraEntry struct {
	username string
	owner    core.ConnID
}

// Rooms tracks room membership per connection and the camera set per room,
// and routes pairwise negotiation inside a room.
// Membership and camera changes share one lock so a joiner's snapshot and the
// start/stop broadcasts never disagree.
type Rooms struct {
	mu       sync.RWMutex
	groups   *RoomManager
	bindings map[core.ConnID]domain.Member
	cameras  map[domain.RoomID]map[domain.UserID]cameraEntry

	conns            ConnResolver
	policy           Policy
	enforceInitiator bool
}

func NewRooms(conns ConnResolver, policy Policy, enforceInitiator bool) *Rooms {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Rooms{
		groups:           NewRoomManager(),
		bindings:         make(map[core.ConnID]domain.Member),
		cameras:          make(map[domain.RoomID]map[domain.UserID]cameraEntry),
		conns:            conns,
		policy:           policy,
		enforceInitiator: enforceInitiator,
	}
}

// Join binds cid to room and replies with the room's active cameras.
// A connection in another room leaves it first; rejoining the same room only
// resends the snapshot.
func (r *Rooms) Join(cid core.ConnID, room domain.RoomID) error {
	user, ok := r.conns.UserOf(cid)
	if !ok {
		return ErrNotConnected
	}
	sig, ok := r.conns.Signal(cid)
	if !ok {
		return ErrNotConnected
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[cid]; ok {
		if b.RoomID == room {
			send(cid, sig, r.snapshotLocked(room))
			return nil
		}
		r.leaveLocked(cid, b)
	}

	group := r.groups.GetOrCreate(room)
	firstConn := len(group.ConnsOf(user.ID)) == 0
	group.AddMember(cid, user, sig)
	r.bindings[cid] = domain.Member{User: user, RoomID: room}

	send(cid, sig, r.snapshotLocked(room))
	if firstConn {
		broadcast(group, cid, core.RoomMemberJoined{RoomID: room, User: user})
	}
	log.Info().Str("module", "app.rooms").Str("cid", string(cid)).Str("user", string(user.ID)).Str("room", string(room)).Msg("joined")
	return nil
}

// Leave removes cid from room. It reports false when cid was not in room.
func (r *Rooms) Leave(cid core.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[cid]
	if !ok || b.RoomID != room {
		return false
	}
	r.leaveLocked(cid, b)
	return true
}

// Disconnect runs Leave for whatever room cid was bound to.
func (r *Rooms) Disconnect(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[cid]; ok {
		r.leaveLocked(cid, b)
	}
}

func (r *Rooms) leaveLocked(cid core.ConnID, b domain.Member) {
	delete(r.bindings, cid)
	group, ok := r.groups.Get(b.RoomID)
	if !ok {
		return
	}
	user, stillIn, ok := group.RemoveMember(cid)
	if !ok {
		return
	}
	if cams, ok := r.cameras[b.RoomID]; ok {
		if e, ok := cams[user.ID]; ok && e.owner == cid {
			delete(cams, user.ID)
			if len(cams) == 0 {
				delete(r.cameras, b.RoomID)
			}
			broadcast(group, "", core.RoomCameraStopped{RoomID: b.RoomID, UserID: user.ID})
		}
	}
	if !stillIn {
		broadcast(group, "", core.RoomMemberLeft{RoomID: b.RoomID, User: user})
	}
	if group.MemberCount() == 0 {
		r.groups.StopRoom(b.RoomID)
	}
	log.Info().Str("module", "app.rooms").Str("cid", string(cid)).Str("user", string(user.ID)).Str("room", string(b.RoomID)).Msg("left")
}

// StartCamera adds the connection's user to the room's camera set and tells
// every member, the sender included. Starting twice is a no-op.
func (r *Rooms) StartCamera(cid core.ConnID, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[cid]
	if !ok || b.RoomID != room {
		return ErrNotInRoom
	}
	cams, ok := r.cameras[room]
	if !ok {
		cams = make(map[domain.UserID]cameraEntry)
		r.cameras[room] = cams
	}
	if _, ok := cams[b.User.ID]; ok {
		cams[b.User.ID] = cameraEntry{username: b.User.Username, owner: cid}
		return nil
	}
	cams[b.User.ID] = cameraEntry{username: b.User.Username, owner: cid}
	if group, ok := r.groups.Get(room); ok {
		broadcast(group, "", core.RoomCameraStarted{RoomID: room, UserID: b.User.ID, Username: b.User.Username})
	}
	log.Info().Str("module", "app.rooms").Str("user", string(b.User.ID)).Str("room", string(room)).Msg("camera started")
	return nil
}

// StopCamera removes the user's camera entry. Stopping twice is a no-op.
func (r *Rooms) StopCamera(cid core.ConnID, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[cid]
	if !ok || b.RoomID != room {
		return ErrNotInRoom
	}
	cams := r.cameras[room]
	if _, ok := cams[b.User.ID]; !ok {
		return nil
	}
	delete(cams, b.User.ID)
	if len(cams) == 0 {
		delete(r.cameras, room)
	}
	if group, ok := r.groups.Get(room); ok {
		broadcast(group, "", core.RoomCameraStopped{RoomID: room, UserID: b.User.ID})
	}
	log.Info().Str("module", "app.rooms").Str("user", string(b.User.ID)).Str("room", string(room)).Msg("camera stopped")
	return nil
}

// Relay delivers msg to target's connections in room and returns how many
// accepted it. A target that already left is not an error.
func (r *Rooms) Relay(cid core.ConnID, room domain.RoomID, target domain.UserID, msg RoomPeerMessage) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[cid]
	if !ok || b.RoomID != room {
		return 0, ErrNotInRoom
	}
	if target == "" || target == b.User.ID {
		return 0, ErrInvalidPeer
	}

	var ev core.Event
	switch msg.Kind {
	case PeerOffer:
		if r.enforceInitiator && !b.User.ID.Less(target) {
			log.Debug().Str("module", "app.rooms").Str("from", string(b.User.ID)).Str("to", string(target)).Msg("offer from non-initiator dropped")
			return 0, ErrWrongInitiator
		}
		ev = core.RoomPeerOffer{RoomID: room, FromUserID: b.User.ID, Description: msg.Description}
	case PeerAnswer:
		ev = core.RoomPeerAnswer{RoomID: room, FromUserID: b.User.ID, Description: msg.Description}
	case PeerCandidate:
		ev = core.RoomPeerCandidate{RoomID: room, FromUserID: b.User.ID, Candidate: msg.Candidate}
	default:
		return 0, ErrInvalidPeer
	}

	group, ok := r.groups.Get(room)
	if !ok {
		return 0, nil
	}
	f, err := core.Encode(ev)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, sig := range group.ConnsOf(target) {
		if err := sig.TrySend(f); err != nil {
			metrics.EventsDropped.Inc()
			continue
		}
		sent++
	}
	return sent, nil
}

// BroadcastFrame fans data out to every other connection in room without
// waiting on anyone. Members whose queue is full miss the frame and are then
// handed to the backpressure policy.
func (r *Rooms) BroadcastFrame(cid core.ConnID, room domain.RoomID, data []byte) (core.PublishResult, error) {
	r.mu.RLock()
	b, ok := r.bindings[cid]
	if !ok || b.RoomID != room {
		r.mu.RUnlock()
		return core.PublishResult{}, ErrNotInRoom
	}
	group, ok := r.groups.Get(room)
	if !ok {
		r.mu.RUnlock()
		return core.PublishResult{}, nil
	}
	f, err := core.Encode(core.RoomFrame{RoomID: room, FromUserID: b.User.ID, Data: data})
	if err != nil {
		r.mu.RUnlock()
		return core.PublishResult{}, err
	}
	res := group.Broadcast(cid, f)
	r.mu.RUnlock()

	metrics.RoomFrames.Inc()
	for _, slow := range res.Dropped {
		switch r.policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.rooms").Str("cid", string(slow)).Str("room", string(room)).Msg("kicking slow member")
			r.conns.Cancel(slow)
		case MarkSlow, DropFrame, NoAction:
		}
	}
	return res, nil
}

// RoomOf returns the room cid is bound to.
func (r *Rooms) RoomOf(cid core.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[cid]
	return b.RoomID, ok
}

func (r *Rooms) Cameras(room domain.RoomID) []domain.Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.camerasLocked(room)
}

func (r *Rooms) Members(room domain.RoomID) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group, ok := r.groups.Get(room)
	if !ok {
		return []domain.User{}
	}
	return group.MembersSnapshot()
}

func (r *Rooms) List() []RoomInfo { return r.groups.List() }

func (r *Rooms) snapshotLocked(room domain.RoomID) core.RoomActiveCameras {
	return core.RoomActiveCameras{RoomID: room, Cameras: r.camerasLocked(room)}
}

func (r *Rooms) camerasLocked(room domain.RoomID) []domain.Camera {
	cams := r.cameras[room]
	out := make([]domain.Camera, 0, len(cams))
	for uid, e := range cams {
		out = append(out, domain.Camera{UserID: uid, Username: e.username})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.Less(out[j].UserID) })
	return out
}

func send(cid core.ConnID, sig core.SignalConnection, ev core.Event) {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Msg("encode event")
		return
	}
	deliver(cid, sig, f)
}

func broadcast(group *core.RoomGroup, except core.ConnID, ev core.Event) {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Msg("encode event")
		return
	}
	res := group.Broadcast(except, f)
	if n := len(res.Dropped); n > 0 {
		metrics.EventsDropped.Add(float64(n))
	}
}
