package staking

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"

	"meetstake-backend/models"
	"meetstake-backend/store"
)

// Manager is the meeting stake lifecycle state machine. Every policy check
// lives here — stake amount equality, the staking deadline, the code
// generation window, the check-in deadline, the settle-once rule — so the
// invariants hold regardless of which caller drives it. All mutations run
// inside the store's per-meeting critical section.
type Manager struct {
	store store.Store
	codes CodePolicy
	now   func() time.Time
}

func NewManager(st store.Store, codes CodePolicy) *Manager {
	return &Manager{
		store: st,
		codes: codes,
		now:   time.Now,
	}
}

// CodePolicy returns the manager's attendance code policy.
func (m *Manager) CodePolicy() CodePolicy {
	return m.codes
}

// CreateStakedMeeting persists a new meeting stake record with no stakes, no
// code and isSettled false. A duplicate meeting ID is a conflict, never an
// overwrite.
func (m *Manager) CreateStakedMeeting(ctx context.Context, meetingID, eventID, organizer string, requiredStake *big.Int, startTime, endTime time.Time) (string, error) {
	if meetingID == "" {
		return "", &ValidationError{Field: "meeting_id", Reason: "must not be empty"}
	}
	if organizer == "" {
		return "", &ValidationError{Field: "organizer_address", Reason: "must not be empty"}
	}
	if requiredStake == nil || requiredStake.Sign() <= 0 {
		return "", &ValidationError{Field: "required_stake", Reason: "must be positive"}
	}
	now := m.now()
	if !startTime.After(now) {
		return "", &ValidationError{Field: "start_time", Reason: "must be in the future"}
	}
	if !endTime.After(startTime) {
		return "", &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}

	rec := &models.MeetingStake{
		MeetingID:     meetingID,
		EventID:       eventID,
		Organizer:     organizer,
		RequiredStake: new(big.Int).Set(requiredStake),
		StartTime:     startTime,
		EndTime:       endTime,
	}

	if err := m.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrMeetingExists) {
			return "", ErrMeetingExists
		}
		return "", err
	}
	return meetingID, nil
}

// Stake appends a stake record for a wallet. The amount must equal the
// meeting's required stake, staking must still be open, and a wallet may
// stake at most once; the uniqueness check runs inside the same critical
// section as the append, so two concurrent first stakes cannot both land.
func (m *Manager) Stake(ctx context.Context, meetingID, walletAddress string, amount *big.Int) error {
	if walletAddress == "" {
		return &ValidationError{Field: "wallet_address", Reason: "must not be empty"}
	}
	if amount == nil || amount.Sign() <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	err := m.store.Update(ctx, meetingID, func(rec *models.MeetingStake) error {
		if rec.IsSettled {
			return ErrAlreadySettled
		}

		now := m.now()
		deadline := StakingDeadline(rec)
		if now.After(deadline) {
			return &PreconditionError{Op: "stake", Reason: "staking closed", Deadline: deadline}
		}

		if amount.Cmp(rec.RequiredStake) != 0 {
			return &ValidationError{Field: "amount", Reason: "must equal required stake of " + rec.RequiredStake.String()}
		}

		if rec.FindStake(walletAddress) != nil {
			return ErrAlreadyStaked
		}

		rec.Stakes = append(rec.Stakes, models.StakeRecord{
			ID:            uuid.NewString(),
			WalletAddress: walletAddress,
			Amount:        new(big.Int).Set(amount),
			StakedAt:      now.UTC(),
		})
		return nil
	})
	if errors.Is(err, store.ErrMeetingNotFound) {
		return ErrMeetingNotFound
	}
	return err
}

// GenerateCode sets the meeting's attendance code. Only the organizer may
// call it, and only while the meeting is running. Idempotent: once a code is
// set it is returned unchanged on every later call — the code shared with
// the room never silently changes underneath it.
func (m *Manager) GenerateCode(ctx context.Context, meetingID, organizerAddress string) (string, time.Time, error) {
	return m.setCode(ctx, meetingID, organizerAddress, false)
}

// RegenerateCode is the explicit overwrite path for organizer typo recovery.
// It replaces the current code and its generation time, invalidating
// whatever was shared before. Same window and authorization rules as
// GenerateCode.
func (m *Manager) RegenerateCode(ctx context.Context, meetingID, organizerAddress string) (string, time.Time, error) {
	return m.setCode(ctx, meetingID, organizerAddress, true)
}

func (m *Manager) setCode(ctx context.Context, meetingID, organizerAddress string, overwrite bool) (string, time.Time, error) {
	var code string
	var validUntil time.Time

	err := m.store.Update(ctx, meetingID, func(rec *models.MeetingStake) error {
		if rec.IsSettled {
			return ErrAlreadySettled
		}
		if rec.Organizer != organizerAddress {
			return ErrNotOrganizer
		}

		now := m.now()
		if now.Before(rec.StartTime) {
			return &PreconditionError{Op: "generate code", Reason: "meeting has not started", Deadline: rec.StartTime}
		}
		if now.After(rec.EndTime) {
			return &PreconditionError{Op: "generate code", Reason: "meeting has ended", Deadline: rec.EndTime}
		}

		validUntil = m.codes.ValidUntil(rec.EndTime)

		if rec.AttendanceCode != "" && !overwrite {
			code = rec.AttendanceCode
			return nil
		}

		generated, err := m.codes.Generate()
		if err != nil {
			return err
		}
		generatedAt := now.UTC()
		rec.AttendanceCode = generated
		rec.CodeGeneratedAt = &generatedAt
		code = generated
		return nil
	})
	if errors.Is(err, store.ErrMeetingNotFound) {
		return "", time.Time{}, ErrMeetingNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return code, validUntil, nil
}

// SubmitCode records a participant's check-in. The submitted code must match
// the generated one (case-insensitively) and arrive no later than the
// check-in deadline; submission exactly at the deadline still counts.
func (m *Manager) SubmitCode(ctx context.Context, meetingID, walletAddress, code string) error {
	err := m.store.Update(ctx, meetingID, func(rec *models.MeetingStake) error {
		if rec.IsSettled {
			return ErrAlreadySettled
		}

		r := rec.FindStake(walletAddress)
		if r == nil {
			return ErrNotStaked
		}
		if r.HasCheckedIn {
			return ErrAlreadyCheckedIn
		}
		if rec.AttendanceCode == "" {
			return ErrCodeNotGenerated
		}

		now := m.now()
		if now.After(m.codes.ValidUntil(rec.EndTime)) {
			return ErrCodeExpired
		}
		if !m.codes.Verify(rec.AttendanceCode, code) {
			return ErrInvalidCode
		}

		checkInTime := now.UTC()
		r.HasCheckedIn = true
		r.CheckInTime = &checkInTime
		return nil
	})
	if errors.Is(err, store.ErrMeetingNotFound) {
		return ErrMeetingNotFound
	}
	return err
}

// Settle computes the refund/forfeit split exactly once per meeting, after
// the check-in deadline has passed. A second call is a conflict, never a
// recompute. The whole updated record is persisted in one atomic write; the
// settled flag is checked and set inside the same critical section, so two
// racing settle calls cannot both succeed.
func (m *Manager) Settle(ctx context.Context, meetingID string) (Settlement, error) {
	var result Settlement

	err := m.store.Update(ctx, meetingID, func(rec *models.MeetingStake) error {
		if rec.IsSettled {
			return ErrAlreadySettled
		}

		deadline := m.codes.ValidUntil(rec.EndTime)
		if !m.now().After(deadline) {
			return &PreconditionError{Op: "settle", Reason: "check-in period still open", Deadline: deadline}
		}

		result = ComputeSettlement(rec.Stakes)
		rec.IsSettled = true
		return nil
	})
	if errors.Is(err, store.ErrMeetingNotFound) {
		return Settlement{}, ErrMeetingNotFound
	}
	if err != nil {
		return Settlement{}, err
	}
	return result, nil
}

// StatusView is the read-only projection of one meeting, optionally with the
// requesting wallet's own stake.
type StatusView struct {
	MeetingID       string                `json:"meeting_id"`
	EventID         string                `json:"event_id"`
	Organizer       string                `json:"organizer_address"`
	Status          string                `json:"status"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	StakingDeadline time.Time             `json:"staking_deadline"`
	CheckInDeadline time.Time             `json:"check_in_deadline"`
	Stats           models.MeetingStats   `json:"stats"`
	UserStake       *models.UserStakeView `json:"user_stake,omitempty"`
}

// Status derives the meeting's current status without mutating anything.
func (m *Manager) Status(ctx context.Context, meetingID, walletAddress string) (*StatusView, error) {
	rec, err := m.store.Get(ctx, meetingID)
	if err != nil {
		if errors.Is(err, store.ErrMeetingNotFound) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}

	checkInDeadline := m.codes.ValidUntil(rec.EndTime)

	checkedIn := 0
	for i := range rec.Stakes {
		if rec.Stakes[i].HasCheckedIn {
			checkedIn++
		}
	}

	view := &StatusView{
		MeetingID:       rec.MeetingID,
		EventID:         rec.EventID,
		Organizer:       rec.Organizer,
		Status:          DeriveStatus(rec, checkInDeadline, m.now()),
		StartTime:       rec.StartTime,
		EndTime:         rec.EndTime,
		StakingDeadline: StakingDeadline(rec),
		CheckInDeadline: checkInDeadline,
		Stats: models.MeetingStats{
			TotalParticipants:     len(rec.Stakes),
			CheckedInParticipants: checkedIn,
			TotalStaked:           rec.TotalStaked().String(),
			RequiredStake:         rec.RequiredStake.String(),
			IsSettled:             rec.IsSettled,
		},
	}

	if walletAddress != "" {
		if r := rec.FindStake(walletAddress); r != nil {
			view.UserStake = &models.UserStakeView{
				WalletAddress: r.WalletAddress,
				Amount:        r.Amount.String(),
				StakedAt:      r.StakedAt,
				HasCheckedIn:  r.HasCheckedIn,
				CheckInTime:   r.CheckInTime,
				IsRefunded:    r.IsRefunded,
			}
		}
	}

	return view, nil
}
