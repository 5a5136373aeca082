package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// UserKey is the gin context key the identity middleware stores the verified user under.
const UserKey = "user"

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Cfg     *config.Config
	Limiter *RateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Cfg:     cfg,
		Limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
	}
}

// WsSignalConn is the WebSocket side of core.SignalConnection.
// Writes go through a bounded queue drained by writePump, which keeps
// per-connection order and never blocks senders.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// client is one live connection as seen by the message handlers.
type client struct {
	cid  core.ConnID
	user domain.User
	conn *WsSignalConn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	v, ok := c.Get(UserKey)
	user, _ := v.(domain.User)
	if !ok || user.ID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("user", string(user.ID)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	cl := &client{cid: cid, user: user, conn: conn}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(ctx, cid, user, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cl)
}
