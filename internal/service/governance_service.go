package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fundlio/be-governance/internal/config"
	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/repository"
)

// GovernanceService owns the proposal lifecycle: creation with a bonded
// stake, vote recording, and quorum resolution.
type GovernanceService struct {
	proposals repository.ProposalStore
	stakes    *StakeService
	audit     repository.AuditStore
	notifier  Notifier
	cfg       config.GovernanceConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewGovernanceService creates a new GovernanceService.
func NewGovernanceService(
	proposals repository.ProposalStore,
	stakes *StakeService,
	audit repository.AuditStore,
	notifier Notifier,
	cfg config.GovernanceConfig,
	log *logger.Logger,
) *GovernanceService {
	return &GovernanceService{
		proposals: proposals,
		stakes:    stakes,
		audit:     audit,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// CreateProposalRequest carries the inputs for a new funding proposal.
type CreateProposalRequest struct {
	Proposer        string `json:"proposer"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	RequestedAmount int64  `json:"requested_amount"`
}

// CreateProposal opens a proposal, locking the proposer's bond against its
// id. The proposal is immediately active; votes are accepted until the end
// of the voting period.
func (s *GovernanceService) CreateProposal(ctx context.Context, req *CreateProposalRequest) (*repository.Proposal, error) {
	if req.Proposer == "" {
		return nil, errors.InvalidInput("proposer", "proposer is required")
	}
	if req.Title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if req.RequestedAmount <= 0 {
		return nil, errors.InvalidInput("requested_amount", "requested amount must be positive")
	}

	now := s.now()
	p := &repository.Proposal{
		ID:              uuid.NewString(),
		Proposer:        req.Proposer,
		Title:           req.Title,
		Description:     req.Description,
		RequestedAmount: req.RequestedAmount,
		State:           repository.ProposalStateActive,
		StartTime:       now,
		EndTime:         now.Add(s.cfg.VotingPeriod),
		Votes:           make([]*repository.Vote, 0),
	}

	// Bond first: the lock is keyed by the proposal id, so the id must exist
	// before the row does. A failed insert rolls the lock back.
	if err := s.stakes.Lock(ctx, req.Proposer, p.ID, s.cfg.MinProposalBond); err != nil {
		if errors.HasCode(err, errors.ErrCodeInsufficientUnlockedStake) {
			return nil, errors.Newf(errors.ErrCodeInsufficientBondStake,
				"proposer must have at least %d unlocked stake to bond a proposal", s.cfg.MinProposalBond)
		}
		return nil, err
	}

	if err := s.proposals.Create(ctx, p); err != nil {
		if unlockErr := s.stakes.UnlockAll(ctx, req.Proposer, p.ID); unlockErr != nil {
			s.log.Warn().Err(unlockErr).
				Str("proposal_id", p.ID).
				Msg("Failed to roll back proposal bond")
		}
		return nil, err
	}

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("proposer", req.Proposer).
		Int64("requested_amount", req.RequestedAmount).
		Time("end_time", p.EndTime).
		Msg("Proposal created")

	s.appendAudit(ctx, p.ID, "created", req.Proposer, nil, statusPtr(string(p.State)),
		map[string]interface{}{"requested_amount": req.RequestedAmount, "bond": s.cfg.MinProposalBond})
	notify(ctx, s.notifier, "proposal_created", "proposal", p.ID, req.Proposer,
		map[string]interface{}{"title": p.Title, "requested_amount": p.RequestedAmount})

	return p, nil
}

// CastVote records a stake-weighted vote. The stake backing the vote is
// locked against the proposal until resolution.
func (s *GovernanceService) CastVote(ctx context.Context, proposalID, voter string, choice repository.VoteChoice, stakeAmount int64) (*repository.Vote, error) {
	if voter == "" {
		return nil, errors.InvalidInput("voter", "voter is required")
	}
	if stakeAmount <= 0 {
		return nil, errors.InvalidInput("stake_amount", "stake amount must be positive")
	}
	switch choice {
	case repository.VoteFor, repository.VoteAgainst, repository.VoteAbstain:
	default:
		return nil, errors.InvalidInput("choice", "choice must be for, against or abstain")
	}

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	if p.State != repository.ProposalStateActive {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"proposal is not active (state: %s)", p.State)
	}
	if s.now().After(p.EndTime) {
		return nil, errors.New(errors.ErrCodeStateConflict, "voting period has ended")
	}
	if p.HasVoted(voter) {
		return nil, errors.Newf(errors.ErrCodeAlreadyVoted,
			"participant '%s' has already voted on this proposal", voter)
	}

	if err := s.stakes.Lock(ctx, voter, proposalID, stakeAmount); err != nil {
		return nil, err
	}

	switch choice {
	case repository.VoteFor:
		p.ForVotes += stakeAmount
	case repository.VoteAgainst:
		p.AgainstVotes += stakeAmount
	case repository.VoteAbstain:
		p.AbstainVotes += stakeAmount
	}
	p.TotalLockedStake += stakeAmount

	vote := &repository.Vote{
		ProposalID: proposalID,
		Voter:      voter,
		Choice:     choice,
		Power:      stakeAmount,
		CastAt:     s.now(),
	}

	if err := s.proposals.RecordVote(ctx, p, vote); err != nil {
		// The vote lost the race or the write failed: return exactly the
		// amount this call locked. The voter may hold other locks under the
		// same proposal (the proposer's bond, a concurrent winning vote)
		// that must survive the rollback.
		if unlockErr := s.stakes.Unlock(ctx, voter, proposalID, stakeAmount); unlockErr != nil {
			s.log.Warn().Err(unlockErr).
				Str("proposal_id", proposalID).
				Str("voter", voter).
				Msg("Failed to roll back vote stake lock")
		}
		return nil, err
	}

	s.log.Info().
		Str("proposal_id", proposalID).
		Str("voter", voter).
		Str("choice", string(choice)).
		Int64("power", stakeAmount).
		Msg("Vote cast")

	s.appendAudit(ctx, proposalID, "vote_cast", voter, nil, nil,
		map[string]interface{}{"choice": string(choice), "power": stakeAmount})

	return vote, nil
}

// ExecuteProposal resolves a proposal after its voting period: quorum is
// checked against the live total supply, approval is a strict majority of
// For over Against, and every voter's lock (plus the proposer's bond) is
// returned. A second call fails with ALREADY_EXECUTED.
func (s *GovernanceService) ExecuteProposal(ctx context.Context, proposalID, executedBy string) (*repository.Proposal, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	if p.Executed {
		// The resolution is committed, but a previous call may have failed
		// partway through the unlock sweep. Re-running it here gives the
		// caller a retry path for stranded locks; the sweep is idempotent.
		if err := s.unlockParticipants(ctx, p); err != nil {
			s.log.Warn().Err(err).
				Str("proposal_id", proposalID).
				Msg("Unlock sweep on executed proposal failed")
		}
		return nil, errors.New(errors.ErrCodeAlreadyExecuted, "proposal has already been executed")
	}
	if p.State != repository.ProposalStateActive {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"proposal cannot be executed from state '%s'", p.State)
	}
	if !s.now().After(p.EndTime) {
		return nil, errors.New(errors.ErrCodeStateConflict, "voting period has not ended")
	}

	// Quorum denominator is read at execution time, never cached.
	totalSupply, err := s.stakes.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	quorumThreshold := totalSupply * s.cfg.QuorumPercent / 100
	totalVotes := p.TotalVotes()

	stateBefore := string(p.State)
	if totalVotes >= quorumThreshold && p.ForVotes > p.AgainstVotes {
		p.State = repository.ProposalStateSucceeded
	} else {
		p.State = repository.ProposalStateFailed
	}
	p.Executed = true

	if err := s.proposals.Update(ctx, p); err != nil {
		return nil, err
	}

	// Resolution committed; now return every lock. A partial failure here is
	// recoverable: calling ExecuteProposal again re-runs the sweep.
	if err := s.unlockParticipants(ctx, p); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal,
			"proposal resolved but stake unlock failed")
	}

	s.log.Info().
		Str("proposal_id", proposalID).
		Str("state", string(p.State)).
		Int64("for_votes", p.ForVotes).
		Int64("against_votes", p.AgainstVotes).
		Int64("abstain_votes", p.AbstainVotes).
		Int64("quorum_threshold", quorumThreshold).
		Msg("Proposal executed")

	s.appendAudit(ctx, proposalID, "executed", executedBy, statusPtr(stateBefore), statusPtr(string(p.State)),
		map[string]interface{}{
			"total_votes":      totalVotes,
			"quorum_threshold": quorumThreshold,
			"total_supply":     totalSupply,
		})
	notify(ctx, s.notifier, "proposal_resolved", "proposal", proposalID, executedBy,
		map[string]interface{}{"state": string(p.State)})

	return p, nil
}

// unlockParticipants returns every voter's lock and the proposer's bond for
// a resolved proposal. UnlockAll is idempotent, so the proposer's bond and a
// proposer vote do not double-unlock and repeated sweeps are safe.
func (s *GovernanceService) unlockParticipants(ctx context.Context, p *repository.Proposal) error {
	var firstErr error
	for _, v := range p.Votes {
		if err := s.stakes.UnlockAll(ctx, v.Voter, p.ID); err != nil {
			s.log.Warn().Err(err).
				Str("proposal_id", p.ID).
				Str("voter", v.Voter).
				Msg("Failed to unlock voter stake")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := s.stakes.UnlockAll(ctx, p.Proposer, p.ID); err != nil {
		s.log.Warn().Err(err).
			Str("proposal_id", p.ID).
			Str("proposer", p.Proposer).
			Msg("Failed to unlock proposer bond")
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetProposal returns a proposal with its votes.
func (s *GovernanceService) GetProposal(ctx context.Context, id string) (*repository.Proposal, error) {
	return s.proposals.GetByID(ctx, id)
}

// ListProposals lists proposals with filtering and pagination.
func (s *GovernanceService) ListProposals(ctx context.Context, proposer *string, state *repository.ProposalState, page, pageSize int) ([]*repository.Proposal, int64, error) {
	offset := (page - 1) * pageSize
	return s.proposals.List(ctx, proposer, state, pageSize, offset)
}

func (s *GovernanceService) appendAudit(ctx context.Context, proposalID, action, performedBy string, before, after *string, metadata map[string]interface{}) {
	entry := &repository.AuditEntry{
		ResourceType: "proposal",
		ResourceID:   proposalID,
		Action:       action,
		PerformedBy:  performedBy,
		StatusBefore: before,
		StatusAfter:  after,
		Metadata:     metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("proposal_id", proposalID).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}

func statusPtr(s string) *string {
	return &s
}
