package signal

import (
	"errors"

	"github.com/dkeye/relay/internal/adapters/rtc"
	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type callPeerReq struct {
	To   domain.UserID `json:"to"`
	From domain.UserID `json:"from"`
}

type callDescriptorReq struct {
	To  domain.UserID `json:"to"`
	SDP string        `json:"sdp"`
}

type candidateReq struct {
	To            domain.UserID `json:"to"`
	Candidate     string        `json:"candidate"`
	SDPMid        string        `json:"sdpMid"`
	SDPMLineIndex *uint16       `json:"sdpMLineIndex"`
}

func (ctl *SignalWSController) handleCallRequest(cl *client, data []byte) {
	var req callPeerReq
	if !ctl.decode(cl, data, &req, "call_request") {
		return
	}
	if !ctl.Limiter.Allow(cl.user.ID) {
		ctl.sendError(cl, "rate_limited", "call_request")
		return
	}
	_, err := ctl.Orch.Calls.Request(cl.user, req.To)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrInvalidCall):
		ctl.sendError(cl, "invalid_call", "call_request")
	case errors.Is(err, app.ErrCallerBusy):
		ctl.sendError(cl, "busy", "call_request")
	default:
		log.Error().Err(err).Str("module", "signal").Msg("call request")
		ctl.sendError(cl, "call_failed", "call_request")
	}
}

func (ctl *SignalWSController) handleCallAccept(cl *client, data []byte) {
	var req callPeerReq
	if !ctl.decode(cl, data, &req, "call_accept") {
		return
	}
	if err := ctl.Orch.Calls.Accept(cl.user.ID, req.From); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(cl.user.ID)).Msg("accept dropped")
	}
}

func (ctl *SignalWSController) handleCallDecline(cl *client, data []byte) {
	var req callPeerReq
	if !ctl.decode(cl, data, &req, "call_decline") {
		return
	}
	if err := ctl.Orch.Calls.Decline(cl.user.ID, req.From); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(cl.user.ID)).Msg("decline dropped")
	}
}

// handleCallDescriptor relays an offer or an answer. Descriptors that do not
// parse never reach the call machine.
func (ctl *SignalWSController) handleCallDescriptor(cl *client, data []byte, offer bool) {
	var req callDescriptorReq
	name, typ := "call_answer", webrtc.SDPTypeAnswer
	if offer {
		name, typ = "call_offer", webrtc.SDPTypeOffer
	}
	if !ctl.decode(cl, data, &req, name) {
		return
	}
	desc, err := rtc.ParseDescriptor(typ, req.SDP)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(cl.user.ID)).Msg("malformed descriptor dropped")
		return
	}
	if offer {
		err = ctl.Orch.Calls.RelayOffer(cl.user.ID, req.To, desc)
	} else {
		err = ctl.Orch.Calls.RelayAnswer(cl.user.ID, req.To, desc)
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("type", name).Msg("descriptor dropped")
	}
}

func (ctl *SignalWSController) handleCallCandidate(cl *client, data []byte) {
	var req candidateReq
	if !ctl.decode(cl, data, &req, "call_candidate") {
		return
	}
	cand, err := rtc.Candidate(req.Candidate, req.SDPMid, req.SDPMLineIndex)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(cl.user.ID)).Msg("malformed candidate dropped")
		return
	}
	if err := ctl.Orch.Calls.RelayCandidate(cl.user.ID, req.To, cand); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("candidate dropped")
	}
}

func (ctl *SignalWSController) handleCallEnd(cl *client, data []byte) {
	var req callPeerReq
	if !ctl.decode(cl, data, &req, "call_end") {
		return
	}
	ctl.Orch.Calls.End(cl.user.ID, req.To)
}
