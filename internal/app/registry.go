package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sergiobarbero91-prog/airband/internal/core"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

type sessionEntry struct {
	SessionID domain.SessionID
	Identity  domain.Identity
	ChannelID domain.ChannelID
	Conn      core.Conn
	Cancel    context.CancelFunc
}

// Registry tracks live sessions and enforces at most one per identity,
// system-wide. Binding a new session for an identity displaces its
// predecessor; the caller tears the predecessor down.
type Registry struct {
	mu         sync.Mutex
	byIdentity map[domain.Identity]*sessionEntry
	bySession  map[domain.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[domain.Identity]*sessionEntry),
		bySession:  make(map[domain.SessionID]*sessionEntry),
	}
}

func (r *Registry) Bind(e *sessionEntry) (prev *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev = r.byIdentity[e.Identity]
	if prev != nil {
		delete(r.bySession, prev.SessionID)
	}
	r.byIdentity[e.Identity] = e
	r.bySession[e.SessionID] = e
	log.Info().Str("module", "app.registry").Str("sid", string(e.SessionID)).
		Int("channel", int(e.ChannelID)).Msg("bound session")
	return prev
}

func (r *Registry) Lookup(sid domain.SessionID) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bySession[sid]
	return e, ok
}

// Unbind removes the session only if it is still the identity's current one,
// so a stale disconnect cannot evict a replacement session.
func (r *Registry) Unbind(sid domain.SessionID) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bySession[sid]
	if !ok {
		return nil, false
	}
	delete(r.bySession, sid)
	if cur := r.byIdentity[e.Identity]; cur == e {
		delete(r.byIdentity, e.Identity)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbound session")
	return e, true
}

func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySession)
}
