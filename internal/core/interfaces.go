package core

import (
	"time"

	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

// Frame is a raw payload handed to a transport connection (already encoded).
type Frame []byte

// Conn abstracts a session's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// MemberState is one row of a presence snapshot.
type MemberState struct {
	SessionID    domain.SessionID `json:"sessionId"`
	DisplayName  string           `json:"displayName"`
	Transmitting bool             `json:"transmitting"`
}

// Snapshot is the channel state pushed to every member on each transition.
type Snapshot struct {
	Members       []MemberState    `json:"members"`
	Busy          bool             `json:"busy"`
	TransmitterID domain.SessionID `json:"transmitterId,omitempty"`
}

// GrantResult is the synchronous reply to an acquire.
type GrantResult struct {
	Granted bool
	Reason  string
}

// Grant denial reasons.
const (
	ReasonChannelBusy   = "ChannelBusy"
	ReasonNotMember     = "NotMember"
	ReasonChannelClosed = "ChannelClosed"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose transport keeps refusing
// sends. failures counts consecutive refused sends for that member.
type Policy interface {
	OnBackpressure(ch *domain.Channel, sid domain.SessionID, failures int) BackpressureAction
}

// ChannelService is the core-facing API of one radio channel.
// Every call is serialized onto the channel's event loop, so callers
// observe transitions in a single total order per channel.
type ChannelService interface {
	Channel() *domain.Channel
	MemberCount() int
	Busy() bool
	Snapshot() Snapshot

	Join(sid domain.SessionID, meta *domain.Member, conn Conn)
	Leave(sid domain.SessionID)
	Acquire(sid domain.SessionID) GrantResult
	Renew(sid domain.SessionID)
	Release(sid domain.SessionID)
	SubmitFrame(sid domain.SessionID, seq uint64, payload []byte)
	SweepExpired(now time.Time)
	Stop()
}
