package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

// Wire messages pushed by the channel itself. Replies to client requests
// (transmissionStatus, error, pong) live in the signal adapter.

type statusMessage struct {
	Type          string           `json:"type"`
	ChannelID     domain.ChannelID `json:"channelId"`
	Members       []MemberState    `json:"members"`
	Busy          bool             `json:"busy"`
	TransmitterID domain.SessionID `json:"transmitterId,omitempty"`
}

type audioMessage struct {
	Type     string           `json:"type"`
	SenderID domain.SessionID `json:"senderId"`
	Seq      uint64           `json:"seq"`
	Payload  []byte           `json:"payload"`
}

func encodeStatus(id domain.ChannelID, snap Snapshot) (Frame, bool) {
	b, err := json.Marshal(statusMessage{
		Type:          "channelStatus",
		ChannelID:     id,
		Members:       snap.Members,
		Busy:          snap.Busy,
		TransmitterID: snap.TransmitterID,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "core.channel").Msg("encode channelStatus")
		return nil, false
	}
	return b, true
}

func encodeAudio(sender domain.SessionID, seq uint64, payload []byte) (Frame, bool) {
	b, err := json.Marshal(audioMessage{
		Type:     "audio",
		SenderID: sender,
		Seq:      seq,
		Payload:  payload,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "core.channel").Msg("encode audio")
		return nil, false
	}
	return b, true
}
