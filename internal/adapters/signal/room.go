package signal

import (
	"context"
	"errors"
	"strings"

	"github.com/dkeye/relay/internal/adapters/rtc"
	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomReq struct {
	Room string `json:"room"`
}

type roomDescriptorReq struct {
	Room string        `json:"room"`
	To   domain.UserID `json:"to"`
	SDP  string        `json:"sdp"`
}

type roomCandidateReq struct {
	Room string `json:"room"`
	candidateReq
}

type roomFrameReq struct {
	Room string `json:"room"`
	Data []byte `json:"data"`
}

func (ctl *SignalWSController) roomID(cl *client, raw, request string) (domain.RoomID, bool) {
	room, err := domain.ParseRoomID(raw)
	if err != nil {
		ctl.sendError(cl, "invalid_room", request)
		return "", false
	}
	return room, true
}

func (ctl *SignalWSController) handleRoomJoin(cl *client, data []byte) {
	var req roomReq
	if !ctl.decode(cl, data, &req, "room_join") {
		return
	}
	room, ok := ctl.roomID(cl, req.Room, "room_join")
	if !ok {
		return
	}
	if err := ctl.Orch.Rooms.Join(cl.cid, room); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cl.cid)).Msg("join")
		ctl.sendError(cl, "room_failed", "room_join")
	}
}

func (ctl *SignalWSController) handleRoomLeave(cl *client, data []byte) {
	var req roomReq
	if !ctl.decode(cl, data, &req, "room_leave") {
		return
	}
	room, ok := ctl.roomID(cl, req.Room, "room_leave")
	if !ok {
		return
	}
	ctl.Orch.Rooms.Leave(cl.cid, room)
}

func (ctl *SignalWSController) handleCamera(cl *client, data []byte, start bool) {
	name := "camera_stop"
	if start {
		name = "camera_start"
	}
	var req roomReq
	if !ctl.decode(cl, data, &req, name) {
		return
	}
	room, ok := ctl.roomID(cl, req.Room, name)
	if !ok {
		return
	}
	var err error
	if start {
		err = ctl.Orch.Rooms.StartCamera(cl.cid, room)
	} else {
		err = ctl.Orch.Rooms.StopCamera(cl.cid, room)
	}
	if err != nil {
		ctl.sendError(cl, "room_failed", name)
	}
}

func (ctl *SignalWSController) handleRoomDescriptor(cl *client, name string, data []byte) {
	var req roomDescriptorReq
	if !ctl.decode(cl, data, &req, name) {
		return
	}
	room, ok := ctl.roomID(cl, req.Room, name)
	if !ok {
		return
	}
	msg := app.RoomPeerMessage{Kind: app.PeerAnswer}
	if name == "room_offer" {
		msg.Kind = app.PeerOffer
	}
	desc, err := rtc.ParseTypedDescriptor(strings.TrimPrefix(name, "room_"), req.SDP)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cl.cid)).Msg("malformed room descriptor dropped")
		return
	}
	msg.Description = desc
	ctl.relayInRoom(cl, room, req.To, msg, name)
}

func (ctl *SignalWSController) handleRoomCandidate(cl *client, data []byte) {
	var req roomCandidateReq
	if !ctl.decode(cl, data, &req, "room_candidate") {
		return
	}
	room, ok := ctl.roomID(cl, req.Room, "room_candidate")
	if !ok {
		return
	}
	cand, err := rtc.Candidate(req.Candidate, req.SDPMid, req.SDPMLineIndex)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cl.cid)).Msg("malformed room candidate dropped")
		return
	}
	ctl.relayInRoom(cl, room, req.To, app.RoomPeerMessage{Kind: app.PeerCandidate, Candidate: cand}, "room_candidate")
}

func (ctl *SignalWSController) relayInRoom(cl *client, room domain.RoomID, to domain.UserID, msg app.RoomPeerMessage, name string) {
	_, err := ctl.Orch.Rooms.Relay(cl.cid, room, to, msg)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrWrongInitiator):
		log.Debug().Str("module", "signal").Str("cid", string(cl.cid)).Msg("offer from non-initiator dropped")
	case errors.Is(err, app.ErrNotInRoom), errors.Is(err, app.ErrInvalidPeer):
		ctl.sendError(cl, "room_failed", name)
	default:
		log.Error().Err(err).Str("module", "signal").Str("type", name).Msg("room relay")
	}
}

func (ctl *SignalWSController) handleRoomFrame(cl *client, data []byte) {
	var req roomFrameReq
	if !ctl.decode(cl, data, &req, "room_frame") {
		return
	}
	room, ok := ctl.roomID(cl, req.Room, "room_frame")
	if !ok {
		return
	}
	ctl.broadcastFrame(cl, room, req.Data)
}

// handleBinaryFrame forwards a raw binary message to the connection's current room.
func (ctl *SignalWSController) handleBinaryFrame(_ context.Context, cl *client, data []byte) {
	room, ok := ctl.Orch.Rooms.RoomOf(cl.cid)
	if !ok {
		log.Debug().Str("module", "signal").Str("cid", string(cl.cid)).Msg("binary frame outside a room dropped")
		return
	}
	ctl.broadcastFrame(cl, room, data)
}

func (ctl *SignalWSController) broadcastFrame(cl *client, room domain.RoomID, data []byte) {
	res, err := ctl.Orch.Rooms.BroadcastFrame(cl.cid, room, data)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("cid", string(cl.cid)).Msg("frame dropped")
		return
	}
	if len(res.Dropped) > 0 {
		log.Debug().Str("module", "signal").Str("room", string(room)).Int("dropped", len(res.Dropped)).Msg("frame missed by slow members")
	}
}
