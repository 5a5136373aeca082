package orch

import (
	"context"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties the connection lifecycle to the components.
type Orchestrator struct {
	Registry  *app.Registry
	Presence  *app.Presence
	Calls     *app.Calls
	Rooms     *app.Rooms
	Transfers *app.Transfers

	// ICEServers are advertised in Welcome for clients building peer connections.
	ICEServers []webrtc.ICEServer

	users userLocks
}

// Connect registers a live connection for an already verified user.
// Bind and presence reconciliation run under the user's lifecycle lock, so a
// concurrent last-connection Disconnect finishes before or starts after them.
func (o *Orchestrator) Connect(ctx context.Context, cid core.ConnID, user domain.User, sig core.SignalConnection, cancel context.CancelFunc) {
	unlock := o.users.lock(user.ID)
	first := o.Registry.Bind(cid, user, sig, cancel)
	if first {
		o.Presence.Connected(ctx, user.ID)
	}
	o.Registry.SendToConn(cid, core.Welcome{UserID: user.ID, ConnID: cid, ICEServers: o.ICEServers})
	o.Registry.SendToConn(cid, presenceSnapshot(o.Presence.Snapshot()))
	unlock()

	if o.Transfers != nil {
		if _, err := o.Transfers.Redeliver(ctx, cid, user.ID); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("redeliver pending transfers")
		}
	}
	log.Info().Str("module", "orch").Str("cid", string(cid)).Str("user", string(user.ID)).Bool("first", first).Msg("connected")
}

// Disconnect cleans up after a connection, graceful or not. Running it twice is harmless.
func (o *Orchestrator) Disconnect(ctx context.Context, cid core.ConnID) {
	bound, ok := o.Registry.UserOf(cid)
	if !ok {
		o.Rooms.Disconnect(cid)
		return
	}
	unlock := o.users.lock(bound.ID)
	defer unlock()

	o.Rooms.Disconnect(cid)
	user, last, ok := o.Registry.Unbind(cid)
	if !ok {
		return
	}
	if last {
		o.Calls.EndAll(user.ID)
		o.Presence.Disconnected(user.ID)
	}
	log.Info().Str("module", "orch").Str("cid", string(cid)).Str("user", string(user.ID)).Bool("last", last).Msg("disconnected")
}

func presenceSnapshot(recs []domain.PresenceRecord) core.PresenceSnapshot {
	out := core.PresenceSnapshot{Users: make([]core.PresenceEntry, 0, len(recs))}
	for _, r := range recs {
		out.Users = append(out.Users, core.PresenceEntry{UserID: r.UserID, Status: r.Status, StatusText: r.Status.String()})
	}
	return out
}
