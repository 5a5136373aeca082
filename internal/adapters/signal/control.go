package signal

import (
	"context"
	"errors"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(cl *client) {
	ctl.send(cl, core.Pong{})
}

func (ctl *SignalWSController) handleWhoAmI(cl *client) {
	room, _ := ctl.Orch.Rooms.RoomOf(cl.cid)
	ctl.send(cl, core.WhoAmI{User: cl.user, Room: room})
}

func (ctl *SignalWSController) handleSetStatus(ctx context.Context, cl *client, data []byte) {
	var req struct {
		Status *int `json:"status"`
	}
	if !ctl.decode(cl, data, &req, "set_status") {
		return
	}
	if req.Status == nil {
		ctl.sendError(cl, "invalid_status", "set_status")
		return
	}
	status, err := domain.ParseStatus(*req.Status)
	if err != nil {
		ctl.sendError(cl, "invalid_status", "set_status")
		return
	}
	if err := ctl.Orch.Presence.SetStatus(ctx, cl.user.ID, status); err != nil {
		if errors.Is(err, domain.ErrInvalidStatus) {
			ctl.sendError(cl, "invalid_status", "set_status")
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("user", string(cl.user.ID)).Msg("set status")
		ctl.sendError(cl, "status_not_saved", "set_status")
	}
}
