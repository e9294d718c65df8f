package core

import (
	"time"

	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

type eventKind uint8

const (
	evJoin eventKind = iota
	evLeave
	evAcquire
	evRenew
	evRelease
	evFrame
	evSweep
	evQuery
)

// event carries every field any kind may need; only the fields relevant to
// the kind are set. Reply channels are buffered so the loop never blocks.
type event struct {
	kind    eventKind
	sid     domain.SessionID
	meta    *domain.Member
	conn    Conn
	seq     uint64
	payload []byte
	now     time.Time
	grant   chan GrantResult
	query   chan Snapshot
}
