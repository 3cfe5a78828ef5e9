package store

import (
	"context"
	"errors"

	"meetstake-backend/models"
)

// ErrMeetingNotFound is returned when no record exists for a meeting ID.
var ErrMeetingNotFound = errors.New("meeting not found")

// ErrMeetingExists is returned when creating a record for a meeting ID that
// is already present.
var ErrMeetingExists = errors.New("meeting already exists")

// Store is the staking ledger's persistence layer: one MeetingStake record
// per meeting, keyed by meeting ID.
//
// Update runs fn against the current record inside a per-meeting critical
// section (row lock in Postgres, mutex in memory) and persists the mutated
// record all-or-nothing. If fn returns an error nothing is written and the
// error is returned unchanged. All lifecycle mutations go through Update so
// precondition checks and writes observe a single consistent snapshot.
type Store interface {
	Create(ctx context.Context, m *models.MeetingStake) error
	Get(ctx context.Context, meetingID string) (*models.MeetingStake, error)
	Update(ctx context.Context, meetingID string, fn func(m *models.MeetingStake) error) error
	Close()
}
