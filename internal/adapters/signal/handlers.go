package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sergiobarbero91-prog/airband/internal/core"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

const reasonRateLimited = "RateLimited"

type transmissionStatus struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func (ctl *RadioWSController) sendError(c *WsConn, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": msg,
	})
}

func (ctl *RadioWSController) handleJoin(state *connState, c *WsConn, data []byte) {
	var p struct {
		Type      string `json:"type"`
		ChannelID int    `json:"channelId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}

	sid, err := ctl.Coord.Join(
		state.identity,
		state.name,
		domain.ChannelID(p.ChannelID),
		c,
		state.cancel,
	)
	if err != nil {
		// Fatal to this join attempt only; the connection stays open
		// for a retry with a different channel id.
		if errors.Is(err, domain.ErrChannelNotFound) {
			ctl.sendError(c, "ChannelNotFound")
		} else {
			ctl.sendError(c, err.Error())
		}
		log.Warn().Err(err).Str("module", "signal").
			Int("channel", p.ChannelID).Msg("join rejected")
		return
	}

	state.sid = sid
	ctl.sendJSON(c, map[string]any{
		"type":      "joined",
		"sessionId": sid,
		"channelId": p.ChannelID,
	})
}

func (ctl *RadioWSController) handleAcquire(state *connState, c *WsConn) {
	if state.sid == "" {
		ctl.sendJSON(c, transmissionStatus{Type: "transmissionStatus", Success: false, Reason: core.ReasonNotMember})
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(state.identity) {
		ctl.sendJSON(c, transmissionStatus{Type: "transmissionStatus", Success: false, Reason: reasonRateLimited})
		return
	}
	res := ctl.Coord.Acquire(state.sid)
	ctl.sendJSON(c, transmissionStatus{Type: "transmissionStatus", Success: res.Granted, Reason: res.Reason})
}

func (ctl *RadioWSController) handleRenew(state *connState) {
	if state.sid == "" {
		return
	}
	ctl.Coord.Renew(state.sid)
}

func (ctl *RadioWSController) handleRelease(state *connState) {
	if state.sid == "" {
		return
	}
	ctl.Coord.Release(state.sid)
}

func (ctl *RadioWSController) handleAudioFrame(state *connState, data []byte) {
	if state.sid == "" {
		return
	}
	var p struct {
		Type    string `json:"type"`
		Seq     uint64 `json:"seq"`
		Payload []byte `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad audioFrame payload")
		return
	}
	ctl.Coord.SubmitFrame(state.sid, p.Seq, p.Payload)
}

// handleLeave destroys the session; the connection stays open so the client
// can join another channel.
func (ctl *RadioWSController) handleLeave(state *connState, c *WsConn) {
	if state.sid != "" {
		ctl.Coord.Leave(state.sid)
		state.sid = ""
	}
	ctl.sendJSON(c, map[string]any{
		"type": "left",
	})
}

func (ctl *RadioWSController) handlePing(c *WsConn) {
	ctl.sendJSON(c, map[string]any{
		"type": "pong",
	})
}
