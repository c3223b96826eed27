package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, s *connState) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", s.sid).Msg("readPump closing")
		if p := s.Participant(); p != nil {
			ctl.Registry.Remove(p.ID)
		}
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", s.sid).Msg("readPump ctx done")
			return
		default:
			_, data, err := s.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", s.sid).Msg("readPump read error")
				return
			}
			ctl.handleSignal(s, data)
		}
	}
}

func (ctl *Controller) handleSignal(s *connState, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		ctl.handleJoin(s, data)
	case protocol.TypeLeave:
		ctl.handleLeave(s)
	case protocol.TypePing:
		ctl.handlePing(s.conn)
	case protocol.TypeOffer:
		ctl.handleOffer(s, data)
	case protocol.TypeAnswer:
		ctl.handleAnswer(s, data)
	case protocol.TypeCandidate:
		ctl.handleCandidate(s, data)
	case protocol.TypeMuteState:
		ctl.handleMuteState(s, data)
	case protocol.TypeMuteUser, protocol.TypeUnmuteUser, protocol.TypeMuteAll, protocol.TypeUnmuteAll:
		ctl.handleAdmin(s, env.Type, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsSignalConn, msg string) {
	ctl.sendJSON(c, protocol.ErrorMessage{Type: protocol.TypeError, Error: msg})
}
