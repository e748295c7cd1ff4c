package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlio/be-governance/internal/errors"
)

func TestStakeService_Stake_CreatesAndAccumulates(t *testing.T) {
	settlement := &fakeSettlement{}
	svc := newTestStakeService(settlement)
	ctx := context.Background()

	stake, err := svc.Stake(ctx, "alice", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stake.TotalStaked)

	stake, err = svc.Stake(ctx, "alice", 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), stake.TotalStaked)
	assert.Equal(t, 2, settlement.transferIns)

	total, err := svc.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), total)
}

func TestStakeService_Stake_RejectsInvalidInput(t *testing.T) {
	svc := newTestStakeService(&fakeSettlement{})
	ctx := context.Background()

	_, err := svc.Stake(ctx, "", 100)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	_, err = svc.Stake(ctx, "alice", 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	_, err = svc.Stake(ctx, "alice", -10)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestStakeService_Stake_SettlementFailureKeepsLedger(t *testing.T) {
	settlement := &fakeSettlement{failNext: true}
	svc := newTestStakeService(settlement)
	ctx := context.Background()

	stake, err := svc.Stake(ctx, "alice", 1000)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInternal))
	require.NotNil(t, stake)
	assert.Equal(t, int64(1000), stake.TotalStaked)

	// The ledger mutation survived the settlement failure.
	got, err := svc.GetStake(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.TotalStaked)
}

func TestStakeService_Unstake_RespectsLockedStake(t *testing.T) {
	svc := newTestStakeService(&fakeSettlement{})
	ctx := context.Background()

	_, err := svc.Stake(ctx, "alice", 1000)
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, "alice", "prop-1", 600))

	_, err = svc.Unstake(ctx, "alice", 500)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInsufficientUnlockedStake))

	stake, err := svc.Unstake(ctx, "alice", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(600), stake.TotalStaked)
	assert.Equal(t, int64(0), stake.Unlocked())
}

func TestStakeService_Unstake_UnknownParticipant(t *testing.T) {
	svc := newTestStakeService(&fakeSettlement{})

	_, err := svc.Unstake(context.Background(), "nobody", 100)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestStakeService_Lock_InsufficientUnlocked(t *testing.T) {
	svc := newTestStakeService(&fakeSettlement{})
	ctx := context.Background()

	err := svc.Lock(ctx, "ghost", "prop-1", 100)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInsufficientUnlockedStake))

	_, err = svc.Stake(ctx, "alice", 1000)
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, "alice", "prop-1", 800))

	err = svc.Lock(ctx, "alice", "prop-2", 300)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInsufficientUnlockedStake))
}

func TestStakeService_Unlock_PartialLeavesRemainder(t *testing.T) {
	svc := newTestStakeService(&fakeSettlement{})
	ctx := context.Background()

	_, err := svc.Stake(ctx, "alice", 1000)
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, "alice", "prop-1", 300))
	require.NoError(t, svc.Lock(ctx, "alice", "prop-1", 400))

	// Returning one lock's worth leaves the other untouched.
	require.NoError(t, svc.Unlock(ctx, "alice", "prop-1", 400))
	stake, err := svc.GetStake(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(300), stake.LockedTotal())
	assert.Equal(t, int64(700), stake.Unlocked())

	// Unlocking at or past the remainder drops the entry entirely.
	require.NoError(t, svc.Unlock(ctx, "alice", "prop-1", 500))
	stake, err = svc.GetStake(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stake.LockedTotal())

	// Missing lock and unknown participant are both no-ops.
	require.NoError(t, svc.Unlock(ctx, "alice", "prop-1", 100))
	require.NoError(t, svc.Unlock(ctx, "nobody", "prop-1", 100))
}

func TestStakeService_UnlockAll_Idempotent(t *testing.T) {
	svc := newTestStakeService(&fakeSettlement{})
	ctx := context.Background()

	_, err := svc.Stake(ctx, "alice", 1000)
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, "alice", "prop-1", 400))

	require.NoError(t, svc.UnlockAll(ctx, "alice", "prop-1"))
	stake, err := svc.GetStake(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stake.Unlocked())

	// Second unlock and unknown participant are both no-ops.
	require.NoError(t, svc.UnlockAll(ctx, "alice", "prop-1"))
	require.NoError(t, svc.UnlockAll(ctx, "nobody", "prop-1"))
}
