package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *RadioWSController) writePump(ctx context.Context, c *WsConn) {
	var pings <-chan time.Time
	if ctl.Cfg.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.Cfg.PingPeriod)
		defer ticker.Stop()
		pings = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-pings:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
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

func (ctl *RadioWSController) readPump(ctx context.Context, state *connState, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(state.sid)).Msg("readPump closing")
		if state.sid != "" {
			ctl.Coord.OnDisconnect(state.sid)
		}
		c.Close()
		state.cancel()
	}()

	// A silently partitioned peer sends no FIN; missed pongs are the only
	// signal, so the read deadline advances on each pong and expiring it
	// tears the session down like any other disconnect.
	if ctl.Cfg.PingPeriod > 0 {
		pongWait := ctl.Cfg.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(state.sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(state.sid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(state, c, data)
		}
	}
}

func (ctl *RadioWSController) handleMessage(state *connState, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(state, c, data)
	case "acquire":
		ctl.handleAcquire(state, c)
	case "renew":
		ctl.handleRenew(state)
	case "release":
		ctl.handleRelease(state)
	case "audioFrame":
		ctl.handleAudioFrame(state, data)
	case "leave":
		ctl.handleLeave(state, c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message")
	}
}

func (ctl *RadioWSController) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
