package staking

import (
	"time"

	"meetstake-backend/models"
)

// StakingCutoff is how long before the meeting start staking closes.
const StakingCutoff = time.Hour

// StakingDeadline is the last instant at which staking is accepted.
func StakingDeadline(m *models.MeetingStake) time.Time {
	return m.StartTime.Add(-StakingCutoff)
}

// DeriveStatus projects a meeting's status from its timestamps and the
// settled flag. Conditions are evaluated top to bottom and the first match
// wins; ranges overlap at boundary instants, so this ordering is the
// contract, not an optimization.
func DeriveStatus(m *models.MeetingStake, checkInDeadline, now time.Time) string {
	switch {
	case now.After(checkInDeadline):
		if m.IsSettled {
			return models.StatusSettled
		}
		return models.StatusPendingSettlement
	case now.After(m.EndTime):
		return models.StatusCheckInPeriod
	case !now.Before(m.StartTime):
		return models.StatusInProgress
	case now.After(StakingDeadline(m)):
		return models.StatusStakingClosed
	default:
		return models.StatusUpcoming
	}
}
