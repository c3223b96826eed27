package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/app"
	"github.com/avdeyev/voicemesh/internal/config"
	"github.com/avdeyev/voicemesh/internal/core"
	"github.com/avdeyev/voicemesh/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the websocket signaling endpoint. One connState per
// websocket; the participant field is nil until a successful join.
type Controller struct {
	Registry *app.Registry
	Relay    *app.Relay

	cfg     *config.Config
	limiter *AuthRateLimiter
}

func NewController(cfg *config.Config, reg *app.Registry, relay *app.Relay) *Controller {
	return &Controller{
		Registry: reg,
		Relay:    relay,
		cfg:      cfg,
		limiter:  NewAuthRateLimiter(5, time.Minute),
	}
}

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
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
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

// connState carries per-connection session data through the handlers.
type connState struct {
	sid  string
	conn *WsSignalConn

	mu          sync.Mutex
	participant *domain.Participant
}

func (s *connState) Participant() *domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

func (s *connState) setParticipant(p *domain.Participant) {
	s.mu.Lock()
	s.participant = p
	s.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("sid", sid).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	state := &connState{sid: sid, conn: conn}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, state)
	}()
}
