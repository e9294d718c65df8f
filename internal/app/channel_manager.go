package app

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sergiobarbero91-prog/airband/internal/core"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

type ChannelInfo struct {
	ID          domain.ChannelID `json:"id"`
	DisplayName string           `json:"displayName"`
	MemberCount int              `json:"memberCount"`
	Busy        bool             `json:"busy"`
}

// ChannelManager holds the fixed channel roster, provisioned at startup.
// The map is immutable after construction, so reads need no locking.
type ChannelManager struct {
	channels map[domain.ChannelID]core.ChannelService
	order    []domain.ChannelID
}

func NewChannelManager(roster []domain.Channel, lease time.Duration, policy core.Policy) *ChannelManager {
	m := &ChannelManager{channels: make(map[domain.ChannelID]core.ChannelService)}
	for _, ch := range roster {
		if ch.ID <= 0 || ch.DisplayName == "" {
			log.Warn().Str("module", "app.channels").Int("channel", int(ch.ID)).Msg("skipping invalid channel entry")
			continue
		}
		if _, ok := m.channels[ch.ID]; ok {
			log.Warn().Str("module", "app.channels").Int("channel", int(ch.ID)).Msg("skipping duplicate channel id")
			continue
		}
		ch := ch
		m.channels[ch.ID] = core.NewChannelService(&ch, lease, policy)
		m.order = append(m.order, ch.ID)
	}
	log.Info().Str("module", "app.channels").Int("count", len(m.order)).Msg("channels provisioned")
	return m
}

func (m *ChannelManager) Get(id domain.ChannelID) (core.ChannelService, bool) {
	ch, ok := m.channels[id]
	return ch, ok
}

// List reads one snapshot per channel; counters across channels are
// eventually consistent with concurrent joins and leaves.
func (m *ChannelManager) List() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(m.order))
	for _, id := range m.order {
		ch := m.channels[id]
		snap := ch.Snapshot()
		out = append(out, ChannelInfo{
			ID:          id,
			DisplayName: ch.Channel().DisplayName,
			MemberCount: len(snap.Members),
			Busy:        snap.Busy,
		})
	}
	return out
}

func (m *ChannelManager) Range(fn func(core.ChannelService)) {
	for _, id := range m.order {
		fn(m.channels[id])
	}
}

func (m *ChannelManager) StopAll() {
	for _, ch := range m.channels {
		ch.Stop()
	}
}
