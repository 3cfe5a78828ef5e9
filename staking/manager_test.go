package staking

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetstake-backend/models"
	"meetstake-backend/store"
)

// newTestManager returns a manager over a fresh in-memory store with an
// injected clock. Moving *clock moves the manager's notion of now.
func newTestManager(t *testing.T) (*Manager, *store.Memory, *time.Time) {
	t.Helper()
	st := store.NewMemory()
	mgr := NewManager(st, DefaultCodePolicy())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	mgr.now = func() time.Time { return *clock }
	return mgr, st, clock
}

// createMeeting creates a meeting starting 2h after the clock and running 1h,
// with a required stake of 10.
func createMeeting(t *testing.T, mgr *Manager, clock *time.Time, meetingID string) (start, end time.Time) {
	t.Helper()
	start = clock.Add(2 * time.Hour)
	end = start.Add(time.Hour)
	_, err := mgr.CreateStakedMeeting(context.Background(), meetingID, "evt-"+meetingID, "0xorganizer", big.NewInt(10), start, end)
	require.NoError(t, err)
	return start, end
}

func TestCreateStakedMeetingValidation(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	ctx := context.Background()
	start := clock.Add(2 * time.Hour)
	end := start.Add(time.Hour)

	var validationErr *ValidationError

	_, err := mgr.CreateStakedMeeting(ctx, "", "evt", "0xorg", big.NewInt(10), start, end)
	assert.ErrorAs(t, err, &validationErr)

	_, err = mgr.CreateStakedMeeting(ctx, "m1", "evt", "", big.NewInt(10), start, end)
	assert.ErrorAs(t, err, &validationErr)

	_, err = mgr.CreateStakedMeeting(ctx, "m1", "evt", "0xorg", big.NewInt(0), start, end)
	assert.ErrorAs(t, err, &validationErr)

	_, err = mgr.CreateStakedMeeting(ctx, "m1", "evt", "0xorg", big.NewInt(-5), start, end)
	assert.ErrorAs(t, err, &validationErr)

	_, err = mgr.CreateStakedMeeting(ctx, "m1", "evt", "0xorg", big.NewInt(10), clock.Add(-time.Minute), end)
	assert.ErrorAs(t, err, &validationErr, "start must be in the future")

	_, err = mgr.CreateStakedMeeting(ctx, "m1", "evt", "0xorg", big.NewInt(10), start, start)
	assert.ErrorAs(t, err, &validationErr, "end must be after start")
}

func TestCreateStakedMeetingDuplicate(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	createMeeting(t, mgr, clock, "mtg-1")

	start := clock.Add(2 * time.Hour)
	_, err := mgr.CreateStakedMeeting(context.Background(), "mtg-1", "evt-2", "0xother", big.NewInt(99), start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrMeetingExists, "duplicate meeting id must conflict, not overwrite")

	// The original record is untouched
	view, err := mgr.Status(context.Background(), "mtg-1", "")
	require.NoError(t, err)
	assert.Equal(t, "10", view.Stats.RequiredStake)
}

func TestStake(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))

	view, err := mgr.Status(ctx, "mtg-1", "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Stats.TotalParticipants)
	assert.Equal(t, "10", view.Stats.TotalStaked)
	require.NotNil(t, view.UserStake)
	assert.Equal(t, "10", view.UserStake.Amount)
	assert.False(t, view.UserStake.HasCheckedIn)
}

func TestStakeDuplicateWallet(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))
	assert.ErrorIs(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)), ErrAlreadyStaked)

	view, err := mgr.Status(ctx, "mtg-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Stats.TotalParticipants)
}

func TestStakeWrongAmount(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	createMeeting(t, mgr, clock, "mtg-1")

	var validationErr *ValidationError
	err := mgr.Stake(context.Background(), "mtg-1", "0xaaa", big.NewInt(7))
	assert.ErrorAs(t, err, &validationErr, "amount must equal the required stake")
}

func TestStakeAfterDeadline(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, _ := createMeeting(t, mgr, clock, "mtg-1")

	// Staking closes 1h before start; exactly at the deadline still works
	*clock = start.Add(-time.Hour)
	require.NoError(t, mgr.Stake(context.Background(), "mtg-1", "0xaaa", big.NewInt(10)))

	*clock = start.Add(-time.Hour + time.Second)
	var preconditionErr *PreconditionError
	err := mgr.Stake(context.Background(), "mtg-1", "0xbbb", big.NewInt(10))
	require.ErrorAs(t, err, &preconditionErr)
	assert.Equal(t, start.Add(-time.Hour), preconditionErr.Deadline)
}

func TestStakeUnknownMeeting(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	assert.ErrorIs(t, mgr.Stake(context.Background(), "nope", "0xaaa", big.NewInt(10)), ErrMeetingNotFound)
}

func TestGenerateCode(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, end := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	// Too early
	var preconditionErr *PreconditionError
	_, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.ErrorAs(t, err, &preconditionErr)

	*clock = start.Add(5 * time.Minute)

	// Wrong caller
	_, _, err = mgr.GenerateCode(ctx, "mtg-1", "0xsomeoneelse")
	assert.ErrorIs(t, err, ErrNotOrganizer)

	code, validUntil, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, end.Add(15*time.Minute), validUntil)

	// Idempotent: a second call returns the same code
	again, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)
	assert.Equal(t, code, again)

	// Too late
	*clock = end.Add(time.Minute)
	_, _, err = mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	assert.ErrorAs(t, err, &preconditionErr)
}

func TestRegenerateCodeOverwrites(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, _ := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))

	*clock = start.Add(5 * time.Minute)
	first, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	second, _, err := mgr.RegenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	// A 6-of-32 collision is possible but the old code must be dead either way
	if first != second {
		assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", first), ErrInvalidCode)
	}
	assert.NoError(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", second))
}

func TestSubmitCode(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, _ := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))

	*clock = start.Add(5 * time.Minute)

	// Nothing generated yet
	assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", "ABC234"), ErrCodeNotGenerated)

	code, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	// Not staked
	assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xstranger", code), ErrNotStaked)

	// Wrong code leaves the record untouched
	assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", "WRONG1"), ErrInvalidCode)
	view, err := mgr.Status(ctx, "mtg-1", "0xaaa")
	require.NoError(t, err)
	assert.False(t, view.UserStake.HasCheckedIn)

	require.NoError(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", code))
	view, err = mgr.Status(ctx, "mtg-1", "0xaaa")
	require.NoError(t, err)
	assert.True(t, view.UserStake.HasCheckedIn)
	require.NotNil(t, view.UserStake.CheckInTime)

	// Double check-in
	assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", code), ErrAlreadyCheckedIn)
}

func TestSubmitCodeCaseInsensitive(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, _ := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))

	*clock = start.Add(5 * time.Minute)
	code, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	assert.NoError(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", strings.ToLower(code)))
}

func TestSubmitCodeExpiryBoundary(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, end := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))
	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xbbb", big.NewInt(10)))

	*clock = start.Add(5 * time.Minute)
	code, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	// Exactly at endTime + 15m still counts
	*clock = end.Add(15 * time.Minute)
	assert.NoError(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", code))

	// One second later it is expired, and expired is not "invalid"
	*clock = end.Add(15*time.Minute + time.Second)
	assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xbbb", code), ErrCodeExpired)
}

// The full happy path: two stakers, one shows up, stakes split accordingly.
func TestSettleSplitsStakes(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, end := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))
	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xbbb", big.NewInt(10)))

	*clock = start.Add(5 * time.Minute)
	code, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	*clock = start.Add(10 * time.Minute)
	require.NoError(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", code))

	*clock = end.Add(16 * time.Minute)
	result, err := mgr.Settle(ctx, "mtg-1")
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(10), result.RefundedTotal)
	assert.Equal(t, big.NewInt(10), result.ForfeitedTotal)
	assert.Equal(t, 1, result.RefundedCount)
	assert.Equal(t, 1, result.ForfeitedCount)
	assert.Equal(t, []string{"0xaaa"}, result.RefundedWallets)
	assert.Equal(t, []string{"0xbbb"}, result.ForfeitedWallets)

	// Refund implies check-in, and the record is marked settled
	view, err := mgr.Status(ctx, "mtg-1", "0xaaa")
	require.NoError(t, err)
	assert.True(t, view.Stats.IsSettled)
	assert.Equal(t, models.StatusSettled, view.Status)
	assert.True(t, view.UserStake.IsRefunded)

	view, err = mgr.Status(ctx, "mtg-1", "0xbbb")
	require.NoError(t, err)
	assert.False(t, view.UserStake.IsRefunded)
}

func TestSettleBeforeDeadline(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, end := createMeeting(t, mgr, clock, "mtg-1")

	require.NoError(t, mgr.Stake(context.Background(), "mtg-1", "0xaaa", big.NewInt(10)))

	// 10 minutes after end: check-in window still open
	*clock = start.Add(time.Hour + 10*time.Minute)
	var preconditionErr *PreconditionError
	_, err := mgr.Settle(context.Background(), "mtg-1")
	require.ErrorAs(t, err, &preconditionErr)
	assert.Equal(t, end.Add(15*time.Minute), preconditionErr.Deadline)

	// Exactly at the deadline is still too early
	*clock = end.Add(15 * time.Minute)
	_, err = mgr.Settle(context.Background(), "mtg-1")
	assert.ErrorAs(t, err, &preconditionErr)
}

func TestSettleTwice(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	_, end := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))

	*clock = end.Add(16 * time.Minute)
	first, err := mgr.Settle(ctx, "mtg-1")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), first.ForfeitedTotal)

	_, err = mgr.Settle(ctx, "mtg-1")
	assert.ErrorIs(t, err, ErrAlreadySettled)

	// State unchanged by the rejected second call
	view, err := mgr.Status(ctx, "mtg-1", "")
	require.NoError(t, err)
	assert.True(t, view.Stats.IsSettled)
	assert.Equal(t, "10", view.Stats.TotalStaked)
}

func TestSettledMeetingIsFrozen(t *testing.T) {
	mgr, _, clock := newTestManager(t)
	start, end := createMeeting(t, mgr, clock, "mtg-1")
	ctx := context.Background()

	require.NoError(t, mgr.Stake(ctx, "mtg-1", "0xaaa", big.NewInt(10)))

	*clock = start.Add(5 * time.Minute)
	code, _, err := mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	require.NoError(t, err)

	*clock = end.Add(16 * time.Minute)
	_, err = mgr.Settle(ctx, "mtg-1")
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Stake(ctx, "mtg-1", "0xbbb", big.NewInt(10)), ErrAlreadySettled)
	assert.ErrorIs(t, mgr.SubmitCode(ctx, "mtg-1", "0xaaa", code), ErrAlreadySettled)
	_, _, err = mgr.GenerateCode(ctx, "mtg-1", "0xorganizer")
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestStatusUnknownMeeting(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, err := mgr.Status(context.Background(), "nope", "")
	assert.ErrorIs(t, err, ErrMeetingNotFound)
}
