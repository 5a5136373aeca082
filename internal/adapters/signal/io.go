package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cl.cid)).Msg("readPump closing")
		cancel()
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), cl.cid)
		cl.conn.Close()
	}()

	ws := cl.conn.conn
	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	pongWait := ctl.Cfg.PongWait()
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cl.cid)).Msg("readPump ctx done")
			return
		default:
			mt, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("cid", string(cl.cid)).Msg("readPump read error")
				}
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			if mt == websocket.BinaryMessage {
				ctl.handleBinaryFrame(ctx, cl, data)
				continue
			}
			ctl.handleSignal(ctx, cl, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cl.cid)).Msg("bad json")
		ctl.sendError(cl, "bad_payload", "")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(cl)
	case "whoami":
		ctl.handleWhoAmI(cl)
	case "set_status":
		ctl.handleSetStatus(ctx, cl, data)
	case "call_request":
		ctl.handleCallRequest(cl, data)
	case "call_accept":
		ctl.handleCallAccept(cl, data)
	case "call_decline":
		ctl.handleCallDecline(cl, data)
	case "call_offer":
		ctl.handleCallDescriptor(cl, data, true)
	case "call_answer":
		ctl.handleCallDescriptor(cl, data, false)
	case "call_candidate":
		ctl.handleCallCandidate(cl, data)
	case "call_end":
		ctl.handleCallEnd(cl, data)
	case "room_join":
		ctl.handleRoomJoin(cl, data)
	case "room_leave":
		ctl.handleRoomLeave(cl, data)
	case "camera_start":
		ctl.handleCamera(cl, data, true)
	case "camera_stop":
		ctl.handleCamera(cl, data, false)
	case "room_offer", "room_answer":
		ctl.handleRoomDescriptor(cl, env.Type, data)
	case "room_candidate":
		ctl.handleRoomCandidate(cl, data)
	case "room_frame":
		ctl.handleRoomFrame(cl, data)
	case "transfer_offer":
		ctl.handleTransferOffer(ctx, cl, data)
	case "transfer_respond":
		ctl.handleTransferRespond(ctx, cl, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(cl, "unknown_type", env.Type)
	}
}

func (ctl *SignalWSController) send(cl *client, ev core.Event) {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	_ = cl.conn.TrySend(f)
}

func (ctl *SignalWSController) sendError(cl *client, code, request string) {
	ctl.send(cl, core.Error{Code: code, Request: request})
}

// decode unmarshals a typed inbound payload and answers bad_payload on failure.
func (ctl *SignalWSController) decode(cl *client, data []byte, v any, request string) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("request", request).Msg("bad payload")
		ctl.sendError(cl, "bad_payload", request)
		return false
	}
	return true
}
