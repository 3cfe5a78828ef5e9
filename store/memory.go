package store

import (
	"context"
	"math/big"
	"sync"
	"time"

	"meetstake-backend/models"
)

// Memory is an in-process Store used for tests and database-less runs.
// Each meeting gets its own mutex; records are deep-copied on the way in and
// out so callers never alias the stored state.
type Memory struct {
	mu       sync.RWMutex
	meetings map[string]*memoryEntry
}

type memoryEntry struct {
	mu  sync.Mutex
	rec *models.MeetingStake
}

func NewMemory() *Memory {
	return &Memory{meetings: make(map[string]*memoryEntry)}
}

func (s *Memory) Create(ctx context.Context, m *models.MeetingStake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[m.MeetingID]; ok {
		return ErrMeetingExists
	}

	rec := cloneMeeting(m)
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.meetings[m.MeetingID] = &memoryEntry{rec: rec}
	return nil
}

func (s *Memory) Get(ctx context.Context, meetingID string) (*models.MeetingStake, error) {
	entry, err := s.entry(meetingID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return cloneMeeting(entry.rec), nil
}

func (s *Memory) Update(ctx context.Context, meetingID string, fn func(m *models.MeetingStake) error) error {
	entry, err := s.entry(meetingID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// fn mutates a copy; the stored record is only replaced on success.
	rec := cloneMeeting(entry.rec)
	if err := fn(rec); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	entry.rec = rec
	return nil
}

func (s *Memory) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings = make(map[string]*memoryEntry)
}

func (s *Memory) entry(meetingID string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.meetings[meetingID]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	return entry, nil
}

func cloneMeeting(m *models.MeetingStake) *models.MeetingStake {
	cp := *m
	cp.RequiredStake = cloneAmount(m.RequiredStake)
	cp.CodeGeneratedAt = cloneTime(m.CodeGeneratedAt)
	cp.Stakes = make([]models.StakeRecord, len(m.Stakes))
	for i, r := range m.Stakes {
		r.Amount = cloneAmount(r.Amount)
		r.CheckInTime = cloneTime(r.CheckInTime)
		cp.Stakes[i] = r
	}
	return &cp
}

func cloneAmount(a *big.Int) *big.Int {
	if a == nil {
		return nil
	}
	return new(big.Int).Set(a)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
