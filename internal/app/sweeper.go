package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sergiobarbero91-prog/airband/internal/core"
)

// Sweeper force-releases expired leases. It never mutates channel state
// directly: each tick is submitted as a normal event into every channel's
// serial queue, so it cannot race a concurrent release or acquire.
type Sweeper struct {
	Channels *ChannelManager
	Interval time.Duration
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.sweeper").Dur("interval", s.Interval).Msg("lease sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("lease sweeper stopped")
			return
		case now := <-ticker.C:
			s.Channels.Range(func(ch core.ChannelService) {
				ch.SweepExpired(now)
			})
		}
	}
}
