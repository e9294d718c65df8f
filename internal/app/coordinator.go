package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sergiobarbero91-prog/airband/internal/core"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

// Coordinator is the composition root binding registry and channels.
// It routes every session operation to the owning channel's event loop.
type Coordinator struct {
	Registry *Registry
	Channels *ChannelManager

	// joinMu makes binding a session and enqueueing its channel join one
	// step. Without it, two racing joins for the same identity can enqueue
	// the loser's displacement leave before the loser's own join, leaving
	// a member in the channel with no registry entry to clean it up.
	joinMu sync.Mutex
}

// Join creates a session for identity on channelID. If the identity already
// holds a live session anywhere, that session is torn down first, releasing
// its lock if held.
func (c *Coordinator) Join(
	identity domain.Identity,
	displayName string,
	channelID domain.ChannelID,
	conn core.Conn,
	cancel context.CancelFunc,
) (domain.SessionID, error) {
	ch, ok := c.Channels.Get(channelID)
	if !ok {
		return "", domain.ErrChannelNotFound
	}
	meta, err := domain.NewMember(identity, displayName)
	if err != nil {
		return "", err
	}

	sid := domain.NewSessionID(identity)
	entry := &sessionEntry{
		SessionID: sid,
		Identity:  identity,
		ChannelID: channelID,
		Conn:      conn,
		Cancel:    cancel,
	}
	c.joinMu.Lock()
	if prev := c.Registry.Bind(entry); prev != nil {
		c.teardown(prev, conn)
	}
	ch.Join(sid, meta, conn)
	c.joinMu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Int("channel", int(channelID)).Msg("session joined")
	return sid, nil
}

// teardown removes a displaced session from its channel. The transport is
// closed only when it differs from the successor's: a channel switch on the
// same connection must keep that connection alive.
func (c *Coordinator) teardown(prev *sessionEntry, successor core.Conn) {
	if ch, ok := c.Channels.Get(prev.ChannelID); ok {
		ch.Leave(prev.SessionID)
	}
	if prev.Conn != successor {
		if prev.Cancel != nil {
			prev.Cancel()
		}
		prev.Conn.Close()
	}
	log.Info().Str("module", "app.coordinator").Str("sid", string(prev.SessionID)).
		Msg("displaced predecessor session")
}

// Leave is idempotent; a second call for the same session is a no-op.
// The channel actor releases the lock if the leaver held it.
func (c *Coordinator) Leave(sid domain.SessionID) {
	entry, ok := c.Registry.Unbind(sid)
	if !ok {
		return
	}
	if ch, ok := c.Channels.Get(entry.ChannelID); ok {
		ch.Leave(sid)
	}
}

// OnDisconnect handles an abrupt transport close: same cleanup as an
// explicit leave, always.
func (c *Coordinator) OnDisconnect(sid domain.SessionID) {
	c.Leave(sid)
}

func (c *Coordinator) Acquire(sid domain.SessionID) core.GrantResult {
	entry, ok := c.Registry.Lookup(sid)
	if !ok {
		return core.GrantResult{Granted: false, Reason: core.ReasonNotMember}
	}
	ch, ok := c.Channels.Get(entry.ChannelID)
	if !ok {
		return core.GrantResult{Granted: false, Reason: core.ReasonChannelClosed}
	}
	return ch.Acquire(sid)
}

func (c *Coordinator) Renew(sid domain.SessionID) {
	if entry, ok := c.Registry.Lookup(sid); ok {
		if ch, ok := c.Channels.Get(entry.ChannelID); ok {
			ch.Renew(sid)
		}
	}
}

func (c *Coordinator) Release(sid domain.SessionID) {
	if entry, ok := c.Registry.Lookup(sid); ok {
		if ch, ok := c.Channels.Get(entry.ChannelID); ok {
			ch.Release(sid)
		}
	}
}

func (c *Coordinator) SubmitFrame(sid domain.SessionID, seq uint64, payload []byte) {
	if entry, ok := c.Registry.Lookup(sid); ok {
		if ch, ok := c.Channels.Get(entry.ChannelID); ok {
			ch.SubmitFrame(sid, seq, payload)
		}
	}
}

func (c *Coordinator) ListChannels() []ChannelInfo {
	return c.Channels.List()
}
