package core

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

type member struct {
	meta     *domain.Member
	conn     Conn
	failures int
}

// channelActor is one radio channel with a single event loop. The loop
// goroutine is the only writer of members/transmitter/lockExpiry; everything
// else reaches that state through the events queue, in arrival order.
type channelActor struct {
	ch     *domain.Channel
	lease  time.Duration
	policy Policy

	events chan event
	done   chan struct{}
	stop   sync.Once

	// loop-owned, never touched outside run().
	members     map[domain.SessionID]*member
	transmitter domain.SessionID
	lockExpiry  time.Time
}

func NewChannelService(ch *domain.Channel, lease time.Duration, policy Policy) ChannelService {
	a := &channelActor{
		ch:      ch,
		lease:   lease,
		policy:  policy,
		events:  make(chan event, 128),
		done:    make(chan struct{}),
		members: make(map[domain.SessionID]*member),
	}
	go a.run()
	return a
}

func (a *channelActor) Channel() *domain.Channel { return a.ch }

func (a *channelActor) Stop() {
	a.stop.Do(func() { close(a.done) })
}

// post enqueues a control event; gives up only once the channel is stopped.
func (a *channelActor) post(ev event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *channelActor) Join(sid domain.SessionID, meta *domain.Member, conn Conn) {
	a.post(event{kind: evJoin, sid: sid, meta: meta, conn: conn})
}

func (a *channelActor) Leave(sid domain.SessionID) {
	a.post(event{kind: evLeave, sid: sid})
}

func (a *channelActor) Acquire(sid domain.SessionID) GrantResult {
	grant := make(chan GrantResult, 1)
	a.post(event{kind: evAcquire, sid: sid, now: time.Now(), grant: grant})
	select {
	case res := <-grant:
		return res
	case <-a.done:
		return GrantResult{Granted: false, Reason: ReasonChannelClosed}
	}
}

func (a *channelActor) Renew(sid domain.SessionID) {
	a.post(event{kind: evRenew, sid: sid, now: time.Now()})
}

func (a *channelActor) Release(sid domain.SessionID) {
	a.post(event{kind: evRelease, sid: sid})
}

// SubmitFrame is fire-and-forget: if the queue is full the frame is lost,
// which is acceptable for live voice.
func (a *channelActor) SubmitFrame(sid domain.SessionID, seq uint64, payload []byte) {
	select {
	case a.events <- event{kind: evFrame, sid: sid, seq: seq, payload: payload}:
	default:
	}
}

func (a *channelActor) SweepExpired(now time.Time) {
	a.post(event{kind: evSweep, now: now})
}

func (a *channelActor) Snapshot() Snapshot {
	query := make(chan Snapshot, 1)
	a.post(event{kind: evQuery, query: query})
	select {
	case snap := <-query:
		return snap
	case <-a.done:
		return Snapshot{}
	}
}

func (a *channelActor) MemberCount() int { return len(a.Snapshot().Members) }

func (a *channelActor) Busy() bool { return a.Snapshot().Busy }

func (a *channelActor) run() {
	for {
		select {
		case <-a.done:
			return
		case ev := <-a.events:
			a.dispatch(ev)
		}
	}
}

func (a *channelActor) dispatch(ev event) {
	switch ev.kind {
	case evJoin:
		a.handleJoin(ev)
	case evLeave:
		a.handleLeave(ev)
	case evAcquire:
		a.handleAcquire(ev)
	case evRenew:
		a.handleRenew(ev)
	case evRelease:
		a.handleRelease(ev)
	case evFrame:
		a.handleFrame(ev)
	case evSweep:
		a.handleSweep(ev)
	case evQuery:
		ev.query <- a.snapshot()
	}
}

func (a *channelActor) handleJoin(ev event) {
	a.members[ev.sid] = &member{meta: ev.meta, conn: ev.conn}
	log.Info().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
		Str("sid", string(ev.sid)).Str("name", ev.meta.DisplayName).Msg("member joined")
	a.broadcastStatus()
}

func (a *channelActor) handleLeave(ev event) {
	if _, ok := a.members[ev.sid]; !ok {
		return
	}
	if a.transmitter == ev.sid {
		a.clearTransmitter()
		log.Info().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
			Str("sid", string(ev.sid)).Msg("lock released on leave")
	}
	delete(a.members, ev.sid)
	log.Info().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
		Str("sid", string(ev.sid)).Msg("member left")
	a.broadcastStatus()
}

func (a *channelActor) handleAcquire(ev event) {
	if _, ok := a.members[ev.sid]; !ok {
		ev.grant <- GrantResult{Granted: false, Reason: ReasonNotMember}
		return
	}
	if a.transmitter != "" && a.transmitter != ev.sid {
		ev.grant <- GrantResult{Granted: false, Reason: ReasonChannelBusy}
		return
	}
	renewOnly := a.transmitter == ev.sid
	a.transmitter = ev.sid
	a.lockExpiry = ev.now.Add(a.lease)
	ev.grant <- GrantResult{Granted: true}
	if renewOnly {
		return
	}
	log.Info().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
		Str("sid", string(ev.sid)).Msg("lock granted")
	a.broadcastStatus()
}

func (a *channelActor) handleRenew(ev event) {
	// Silent no-op for non-holders: a stale client must not resurrect
	// an expired lease.
	if a.transmitter != ev.sid {
		return
	}
	a.lockExpiry = ev.now.Add(a.lease)
}

func (a *channelActor) handleRelease(ev event) {
	if a.transmitter != ev.sid {
		return
	}
	a.clearTransmitter()
	log.Info().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
		Str("sid", string(ev.sid)).Msg("lock released")
	a.broadcastStatus()
}

func (a *channelActor) handleFrame(ev event) {
	// Only the current holder may transmit; late frames from a session
	// that just lost the lock are dropped, not queued. A frame is not
	// proof of life either: it never extends the lease.
	if a.transmitter == "" || a.transmitter != ev.sid {
		log.Debug().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
			Str("sid", string(ev.sid)).Uint64("seq", ev.seq).Msg("frame from non-holder dropped")
		return
	}
	frame, ok := encodeAudio(ev.sid, ev.seq, ev.payload)
	if !ok {
		return
	}
	a.fanOut(ev.sid, frame)
}

func (a *channelActor) handleSweep(ev event) {
	if a.transmitter == "" || ev.now.Before(a.lockExpiry) {
		return
	}
	sid := a.transmitter
	a.clearTransmitter()
	log.Info().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
		Str("sid", string(sid)).Msg("lease expired, lock force-released")
	a.broadcastStatus()
}

func (a *channelActor) clearTransmitter() {
	a.transmitter = ""
	a.lockExpiry = time.Time{}
}

func (a *channelActor) snapshot() Snapshot {
	snap := Snapshot{
		Members:       make([]MemberState, 0, len(a.members)),
		Busy:          a.transmitter != "",
		TransmitterID: a.transmitter,
	}
	for sid, m := range a.members {
		snap.Members = append(snap.Members, MemberState{
			SessionID:    sid,
			DisplayName:  m.meta.DisplayName,
			Transmitting: sid == a.transmitter,
		})
	}
	sort.Slice(snap.Members, func(i, j int) bool {
		return snap.Members[i].SessionID < snap.Members[j].SessionID
	})
	return snap
}

func (a *channelActor) broadcastStatus() {
	frame, ok := encodeStatus(a.ch.ID, a.snapshot())
	if !ok {
		return
	}
	for _, m := range a.members {
		_ = m.conn.TrySend(frame)
	}
}

// fanOut relays an audio frame to every member except the sender,
// best-effort. Members whose transport keeps refusing sends are handed to
// the backpressure policy.
func (a *channelActor) fanOut(from domain.SessionID, frame Frame) {
	var kicked []domain.SessionID
	for sid, m := range a.members {
		if sid == from {
			continue
		}
		if err := m.conn.TrySend(frame); err != nil {
			m.failures++
			if a.policy != nil && a.policy.OnBackpressure(a.ch, sid, m.failures) == KickMember {
				kicked = append(kicked, sid)
			}
			continue
		}
		m.failures = 0
	}
	for _, sid := range kicked {
		m := a.members[sid]
		delete(a.members, sid)
		m.conn.Close()
		log.Warn().Str("module", "core.channel").Int("channel", int(a.ch.ID)).
			Str("sid", string(sid)).Msg("member kicked on backpressure")
	}
	if len(kicked) > 0 {
		a.broadcastStatus()
	}
}
