package staking

import (
	"errors"
	"fmt"
	"time"
)

// Conflict errors: the request contradicts state that already exists.
var (
	ErrMeetingExists    = errors.New("meeting already exists")
	ErrAlreadyStaked    = errors.New("wallet has already staked for this meeting")
	ErrAlreadyCheckedIn = errors.New("wallet has already checked in")
	ErrAlreadySettled   = errors.New("meeting has already been settled")
)

// Lookup errors.
var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrNotStaked       = errors.New("wallet has not staked for this meeting")
)

// Code submission errors, distinguished so the caller can message the user
// precisely.
var (
	ErrInvalidCode      = errors.New("attendance code does not match")
	ErrCodeExpired      = errors.New("attendance code has expired")
	ErrCodeNotGenerated = errors.New("attendance code has not been generated")
)

// ErrNotOrganizer is returned when anyone but the meeting organizer requests
// code generation.
var ErrNotOrganizer = errors.New("only the organizer may generate the attendance code")

// ValidationError rejects malformed input synchronously, before any state
// change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PreconditionError rejects an operation attempted outside its time window.
// Deadline carries the computed boundary so the caller can display
// "try again after X" (or "too late since X").
type PreconditionError struct {
	Op       string
	Reason   string
	Deadline time.Time
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s (deadline %s)", e.Op, e.Reason, e.Deadline.UTC().Format(time.RFC3339))
}
