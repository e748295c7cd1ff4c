package service

import (
	"context"

	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/repository"
)

// StakeService owns the stake ledger: participant balances and the portions
// locked against individual proposals. It never triggers settlement before
// the ledger mutation has been recorded.
type StakeService struct {
	stakes     repository.StakeStore
	settlement SettlementClient
	audit      repository.AuditStore
	log        *logger.Logger
}

// NewStakeService creates a new StakeService.
func NewStakeService(
	stakes repository.StakeStore,
	settlement SettlementClient,
	audit repository.AuditStore,
	log *logger.Logger,
) *StakeService {
	return &StakeService{
		stakes:     stakes,
		settlement: settlement,
		audit:      audit,
		log:        log,
	}
}

// Stake credits the participant's total staked balance, then requests the
// inbound transfer from the settlement collaborator.
func (s *StakeService) Stake(ctx context.Context, participant string, amount int64) (*repository.Stake, error) {
	if participant == "" {
		return nil, errors.InvalidInput("participant", "participant is required")
	}
	if amount <= 0 {
		return nil, errors.InvalidInput("amount", "amount must be positive")
	}

	stake, err := s.stakes.Get(ctx, participant)
	switch {
	case errors.HasCode(err, errors.ErrCodeNotFound):
		stake = &repository.Stake{
			Participant: participant,
			TotalStaked: amount,
			Locked:      make(map[string]int64),
		}
		if err := s.stakes.Create(ctx, stake); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		stake.TotalStaked += amount
		if err := s.stakes.Update(ctx, stake); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Str("participant", participant).
		Int64("amount", amount).
		Int64("total_staked", stake.TotalStaked).
		Msg("Stake credited")

	s.appendAudit(ctx, "stake", participant, "staked", participant, nil, nil,
		map[string]interface{}{"amount": amount})

	// Ledger first, settlement second. A failed transfer request is surfaced
	// for retry; the recorded balance is the intended amount.
	if _, err := s.settlement.TransferIn(ctx, participant, amount); err != nil {
		return stake, errors.Wrap(err, errors.ErrCodeInternal, "stake recorded but settlement transfer failed")
	}

	return stake, nil
}

// Unstake debits the participant's unlocked balance, then requests the
// outbound transfer.
func (s *StakeService) Unstake(ctx context.Context, participant string, amount int64) (*repository.Stake, error) {
	if amount <= 0 {
		return nil, errors.InvalidInput("amount", "amount must be positive")
	}

	stake, err := s.stakes.Get(ctx, participant)
	if err != nil {
		return nil, err
	}

	if amount > stake.Unlocked() {
		return nil, errors.Newf(errors.ErrCodeInsufficientUnlockedStake,
			"cannot unstake %d: only %d unlocked (total %d, locked %d)",
			amount, stake.Unlocked(), stake.TotalStaked, stake.LockedTotal())
	}

	stake.TotalStaked -= amount
	if err := s.stakes.Update(ctx, stake); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("participant", participant).
		Int64("amount", amount).
		Int64("total_staked", stake.TotalStaked).
		Msg("Stake withdrawn")

	s.appendAudit(ctx, "stake", participant, "unstaked", participant, nil, nil,
		map[string]interface{}{"amount": amount})

	if _, err := s.settlement.TransferOut(ctx, participant, amount); err != nil {
		return stake, errors.Wrap(err, errors.ErrCodeInternal, "unstake recorded but settlement transfer failed")
	}

	return stake, nil
}

// Lock reserves part of the participant's unlocked stake against a proposal.
// No settlement is involved; locking is pure ledger bookkeeping.
func (s *StakeService) Lock(ctx context.Context, participant, proposalID string, amount int64) error {
	if amount <= 0 {
		return errors.InvalidInput("amount", "amount must be positive")
	}

	stake, err := s.stakes.Get(ctx, participant)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return errors.Newf(errors.ErrCodeInsufficientUnlockedStake,
			"participant '%s' has no stake", participant)
	}
	if err != nil {
		return err
	}

	if amount > stake.Unlocked() {
		return errors.Newf(errors.ErrCodeInsufficientUnlockedStake,
			"cannot lock %d: only %d unlocked", amount, stake.Unlocked())
	}

	stake.Locked[proposalID] += amount
	if err := s.stakes.Update(ctx, stake); err != nil {
		return err
	}

	s.log.Debug().
		Str("participant", participant).
		Str("proposal_id", proposalID).
		Int64("amount", amount).
		Msg("Stake locked")

	return nil
}

// Unlock returns part of the participant's lock for a proposal to the
// unlocked balance, dropping the entry when it reaches zero. Used to roll
// back a single failed lock without touching the rest of the participant's
// position on the same proposal. A missing lock is a no-op.
func (s *StakeService) Unlock(ctx context.Context, participant, proposalID string, amount int64) error {
	if amount <= 0 {
		return errors.InvalidInput("amount", "amount must be positive")
	}

	stake, err := s.stakes.Get(ctx, participant)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	locked, ok := stake.Locked[proposalID]
	if !ok {
		return nil
	}

	if amount >= locked {
		delete(stake.Locked, proposalID)
	} else {
		stake.Locked[proposalID] = locked - amount
	}
	if err := s.stakes.Update(ctx, stake); err != nil {
		return err
	}

	s.log.Debug().
		Str("participant", participant).
		Str("proposal_id", proposalID).
		Int64("amount", amount).
		Msg("Stake partially unlocked")

	return nil
}

// UnlockAll returns the participant's full locked amount for a proposal to
// the unlocked balance. Idempotent: a missing lock is a no-op.
func (s *StakeService) UnlockAll(ctx context.Context, participant, proposalID string) error {
	stake, err := s.stakes.Get(ctx, participant)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	amount, ok := stake.Locked[proposalID]
	if !ok {
		return nil
	}

	delete(stake.Locked, proposalID)
	if err := s.stakes.Update(ctx, stake); err != nil {
		return err
	}

	s.log.Debug().
		Str("participant", participant).
		Str("proposal_id", proposalID).
		Int64("amount", amount).
		Msg("Stake unlocked")

	return nil
}

// GetStake returns the participant's stake record.
func (s *StakeService) GetStake(ctx context.Context, participant string) (*repository.Stake, error) {
	return s.stakes.Get(ctx, participant)
}

// TotalSupply returns the current total staked supply, read at call time.
func (s *StakeService) TotalSupply(ctx context.Context) (int64, error) {
	return s.stakes.TotalSupply(ctx)
}

// appendAudit writes an audit entry, logging a warning on failure.
func (s *StakeService) appendAudit(ctx context.Context, resourceType, resourceID, action, performedBy string, before, after *string, metadata map[string]interface{}) {
	entry := &repository.AuditEntry{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		PerformedBy:  performedBy,
		StatusBefore: before,
		StatusAfter:  after,
		Metadata:     metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("resource_id", resourceID).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}
