package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sergiobarbero91-prog/airband/internal/app"
	"github.com/sergiobarbero91-prog/airband/internal/config"
	"github.com/sergiobarbero91-prog/airband/internal/core"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// RadioWSController owns the radio WebSocket endpoint: one connection per
// session, JSON envelopes dispatched by type.
type RadioWSController struct {
	Coord   *app.Coordinator
	Limiter *AcquireRateLimiter
	Cfg     *config.Config
}

func NewRadioWSController(coord *app.Coordinator, limiter *AcquireRateLimiter, cfg *config.Config) *RadioWSController {
	return &RadioWSController{Coord: coord, Limiter: limiter, Cfg: cfg}
}

type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connState is owned by the connection's readPump goroutine.
type connState struct {
	identity domain.Identity
	name     string
	sid      domain.SessionID
	cancel   context.CancelFunc
}

func (ctl *RadioWSController) HandleRadio(ctx context.Context, c *gin.Context) {
	identity := domain.Identity(c.GetString("identity"))
	name := c.GetString("display_name")
	if name == "" {
		name = string(identity)
	}
	log.Info().Str("module", "signal").Str("identity", string(identity)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	state := &connState{identity: identity, name: name, cancel: cancel}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, state, conn)
}
