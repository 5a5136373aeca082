package signal

import (
	"context"
	"errors"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type transferOfferReq struct {
	To      domain.UserID  `json:"to"`
	Payload domain.Payload `json:"payload"`
}

type transferRespondReq struct {
	RequestID domain.TransferID `json:"request_id"`
	Accepted  bool              `json:"accepted"`
}

func (ctl *SignalWSController) handleTransferOffer(ctx context.Context, cl *client, data []byte) {
	var req transferOfferReq
	if !ctl.decode(cl, data, &req, "transfer_offer") {
		return
	}
	if !ctl.Limiter.Allow(cl.user.ID) {
		ctl.sendError(cl, "rate_limited", "transfer_offer")
		return
	}
	_, err := ctl.Orch.Transfers.Offer(ctx, cl.user.ID, req.To, req.Payload)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrInvalidTransfer):
		ctl.sendError(cl, "invalid_transfer", "transfer_offer")
	default:
		log.Error().Err(err).Str("module", "signal").Str("user", string(cl.user.ID)).Msg("transfer offer")
		ctl.sendError(cl, "transfer_failed", "transfer_offer")
	}
}

func (ctl *SignalWSController) handleTransferRespond(ctx context.Context, cl *client, data []byte) {
	var req transferRespondReq
	if !ctl.decode(cl, data, &req, "transfer_respond") {
		return
	}
	_, err := ctl.Orch.Transfers.Respond(ctx, req.RequestID, cl.user.ID, req.Accepted)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrAlreadyResolved):
		log.Debug().Str("module", "signal").Str("id", string(req.RequestID)).Msg("late transfer response dropped")
	case errors.Is(err, app.ErrUnauthorized):
		ctl.sendError(cl, "transfer_failed", "transfer_respond")
	default:
		log.Error().Err(err).Str("module", "signal").Str("id", string(req.RequestID)).Msg("transfer respond")
		ctl.sendError(cl, "transfer_failed", "transfer_respond")
	}
}
