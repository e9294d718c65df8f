package app

import (
	"github.com/sergiobarbero91-prog/airband/internal/core"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

// ThresholdPolicy tolerates transient backpressure during relay (loss is
// acceptable for live voice) but kicks a member whose transport refuses
// Limit sends in a row.
type ThresholdPolicy struct {
	Limit int
}

func (p ThresholdPolicy) OnBackpressure(_ *domain.Channel, _ domain.SessionID, failures int) core.BackpressureAction {
	if p.Limit > 0 && failures >= p.Limit {
		return core.KickMember
	}
	return core.DropFrame
}
