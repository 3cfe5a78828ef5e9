package models

import (
	"math/big"
	"time"
)

// Meeting status constants, derived from timestamps and the settled flag,
// never stored.
const (
	StatusUpcoming          = "UPCOMING"
	StatusStakingClosed     = "STAKING_CLOSED"
	StatusInProgress        = "IN_PROGRESS"
	StatusCheckInPeriod     = "CHECK_IN_PERIOD"
	StatusPendingSettlement = "PENDING_SETTLEMENT"
	StatusSettled           = "SETTLED"
)

// MeetingStake is the per-meeting staking ledger record, keyed by MeetingID.
type MeetingStake struct {
	MeetingID       string        `json:"meeting_id" db:"meeting_id"`
	EventID         string        `json:"event_id" db:"event_id"`
	Organizer       string        `json:"organizer_address" db:"organizer_address"`
	RequiredStake   *big.Int      `json:"-" db:"required_stake"`
	StartTime       time.Time     `json:"start_time" db:"start_time"`
	EndTime         time.Time     `json:"end_time" db:"end_time"`
	AttendanceCode  string        `json:"-" db:"attendance_code"`
	CodeGeneratedAt *time.Time    `json:"code_generated_at,omitempty" db:"code_generated_at"`
	IsSettled       bool          `json:"is_settled" db:"is_settled"`
	Stakes          []StakeRecord `json:"stakes"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// StakeRecord is one participant's stake within a meeting. WalletAddress is
// unique within the parent's Stakes list.
type StakeRecord struct {
	ID            string     `json:"id" db:"id"`
	WalletAddress string     `json:"wallet_address" db:"wallet_address"`
	Amount        *big.Int   `json:"-" db:"amount"`
	StakedAt      time.Time  `json:"staked_at" db:"staked_at"`
	HasCheckedIn  bool       `json:"has_checked_in" db:"has_checked_in"`
	CheckInTime   *time.Time `json:"check_in_time,omitempty" db:"check_in_time"`
	IsRefunded    bool       `json:"is_refunded" db:"is_refunded"`
}

// FindStake returns the stake record for a wallet, or nil.
func (m *MeetingStake) FindStake(walletAddress string) *StakeRecord {
	for i := range m.Stakes {
		if m.Stakes[i].WalletAddress == walletAddress {
			return &m.Stakes[i]
		}
	}
	return nil
}

// TotalStaked sums all stake amounts.
func (m *MeetingStake) TotalStaked() *big.Int {
	total := new(big.Int)
	for i := range m.Stakes {
		total.Add(total, m.Stakes[i].Amount)
	}
	return total
}

// CreateMeetingRequest creates a new staked meeting.
type CreateMeetingRequest struct {
	MeetingID     string    `json:"meeting_id" binding:"required"`
	EventID       string    `json:"event_id" binding:"required"`
	Organizer     string    `json:"organizer_address" binding:"required"`
	RequiredStake string    `json:"required_stake" binding:"required"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
}

// StakeRequest stakes the required amount for a meeting.
type StakeRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

// GenerateCodeRequest asks for the meeting's attendance code.
type GenerateCodeRequest struct {
	OrganizerAddress string `json:"organizer_address" binding:"required"`
}

// SubmitCodeRequest checks a participant in with the shared code.
type SubmitCodeRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Code          string `json:"code" binding:"required"`
}

// MeetingStats aggregates a meeting's staking state for status responses.
type MeetingStats struct {
	TotalParticipants     int    `json:"total_participants"`
	CheckedInParticipants int    `json:"checked_in_participants"`
	TotalStaked           string `json:"total_staked"`
	RequiredStake         string `json:"required_stake"`
	IsSettled             bool   `json:"is_settled"`
}

// UserStakeView is the caller's own stake within a status response.
type UserStakeView struct {
	WalletAddress string     `json:"wallet_address"`
	Amount        string     `json:"amount"`
	StakedAt      time.Time  `json:"staked_at"`
	HasCheckedIn  bool       `json:"has_checked_in"`
	CheckInTime   *time.Time `json:"check_in_time,omitempty"`
	IsRefunded    bool       `json:"is_refunded"`
}
