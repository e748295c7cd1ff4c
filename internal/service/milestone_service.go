package service

import (
	"context"
	"time"

	"github.com/fundlio/be-governance/internal/config"
	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/repository"
)

// MilestoneService owns milestone creation, completion and the second
// stake-weighted approval vote that gates fund release.
type MilestoneService struct {
	milestones repository.MilestoneStore
	proposals  repository.ProposalStore
	stakes     *StakeService
	identity   IdentityClient
	audit      repository.AuditStore
	notifier   Notifier
	cfg        config.GovernanceConfig
	log        *logger.Logger
	now        func() time.Time
}

// NewMilestoneService creates a new MilestoneService.
func NewMilestoneService(
	milestones repository.MilestoneStore,
	proposals repository.ProposalStore,
	stakes *StakeService,
	identity IdentityClient,
	audit repository.AuditStore,
	notifier Notifier,
	cfg config.GovernanceConfig,
	log *logger.Logger,
) *MilestoneService {
	return &MilestoneService{
		milestones: milestones,
		proposals:  proposals,
		stakes:     stakes,
		identity:   identity,
		audit:      audit,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// CreateMilestone attaches a milestone to a succeeded proposal. Restricted
// to platform operators.
func (s *MilestoneService) CreateMilestone(ctx context.Context, callerID, proposalID, description string, fundingAmount int64) (*repository.Milestone, error) {
	if description == "" {
		return nil, errors.InvalidInput("description", "description is required")
	}
	if fundingAmount <= 0 {
		return nil, errors.InvalidInput("funding_amount", "funding amount must be positive")
	}

	ok, err := s.identity.HasRole(ctx, callerID, RolePlatformOperator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Unauthorized("only platform operators can create milestones")
	}

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.State != repository.ProposalStateSucceeded {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"milestones can only be created for a succeeded proposal (state: %s)", p.State)
	}

	m := &repository.Milestone{
		ProposalID:    proposalID,
		Description:   description,
		FundingAmount: fundingAmount,
		Voters:        make(map[string]bool),
	}
	if err := s.milestones.Create(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("milestone_id", m.ID).
		Str("proposal_id", proposalID).
		Int64("funding_amount", fundingAmount).
		Msg("Milestone created")

	s.appendAudit(ctx, m.ID, "created", callerID, nil, nil,
		map[string]interface{}{"proposal_id": proposalID, "funding_amount": fundingAmount})

	return m, nil
}

// CompleteMilestone marks a milestone delivered and opens its approval
// voting window. Allowed to the original proposer or a platform operator.
func (s *MilestoneService) CompleteMilestone(ctx context.Context, callerID, milestoneID string) (*repository.Milestone, error) {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	p, err := s.proposals.GetByID(ctx, m.ProposalID)
	if err != nil {
		return nil, err
	}

	if callerID != p.Proposer {
		ok, err := s.identity.HasRole(ctx, callerID, RolePlatformOperator)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Unauthorized("only the proposer or a platform operator can complete a milestone")
		}
	}

	if m.Completed {
		return nil, errors.New(errors.ErrCodeStateConflict, "milestone is already completed")
	}

	deadline := s.now().Add(s.cfg.MilestoneVotingPeriod)
	m.Completed = true
	m.VotingDeadline = &deadline
	if err := s.milestones.Update(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("milestone_id", milestoneID).
		Time("voting_deadline", deadline).
		Msg("Milestone completed, approval vote open")

	s.appendAudit(ctx, milestoneID, "completed", callerID, nil, nil,
		map[string]interface{}{"voting_deadline": deadline})
	notify(ctx, s.notifier, "milestone_completed", "milestone", milestoneID, callerID,
		map[string]interface{}{"proposal_id": m.ProposalID})

	return m, nil
}

// VoteOnMilestone records an approval or rejection vote weighted by the
// voter's current total stake. The vote does not lock stake.
//
// Approval is sticky: the moment approval votes exceed rejection votes the
// milestone is approved, and later votes never revoke it.
func (s *MilestoneService) VoteOnMilestone(ctx context.Context, milestoneID, voter string, approve bool) (*repository.Milestone, error) {
	if voter == "" {
		return nil, errors.InvalidInput("voter", "voter is required")
	}

	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	if !m.Completed {
		return nil, errors.New(errors.ErrCodeStateConflict, "milestone voting opens after completion")
	}
	if m.VotingDeadline != nil && s.now().After(*m.VotingDeadline) {
		return nil, errors.New(errors.ErrCodeStateConflict, "milestone voting period has ended")
	}
	if m.Voters[voter] {
		return nil, errors.Newf(errors.ErrCodeAlreadyVoted,
			"participant '%s' has already voted on this milestone", voter)
	}

	stake, err := s.stakes.GetStake(ctx, voter)
	if errors.HasCode(err, errors.ErrCodeNotFound) || (err == nil && stake.TotalStaked <= 0) {
		return nil, errors.InvalidInput("voter", "voter has no stake to weight the vote")
	}
	if err != nil {
		return nil, err
	}

	power := stake.TotalStaked
	if approve {
		m.ApprovalVotes += power
	} else {
		m.RejectionVotes += power
	}
	m.Voters[voter] = true

	approvedNow := false
	if !m.Approved && m.ApprovalVotes > m.RejectionVotes {
		m.Approved = true
		approvedNow = true
	}

	if err := s.milestones.Update(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("milestone_id", milestoneID).
		Str("voter", voter).
		Bool("approve", approve).
		Int64("power", power).
		Bool("approved", m.Approved).
		Msg("Milestone vote recorded")

	s.appendAudit(ctx, milestoneID, "vote_cast", voter, nil, nil,
		map[string]interface{}{"approve": approve, "power": power})
	if approvedNow {
		notify(ctx, s.notifier, "milestone_approved", "milestone", milestoneID, voter,
			map[string]interface{}{"proposal_id": m.ProposalID})
	}

	return m, nil
}

// GetMilestone returns a milestone by id.
func (s *MilestoneService) GetMilestone(ctx context.Context, id string) (*repository.Milestone, error) {
	return s.milestones.GetByID(ctx, id)
}

// ListMilestones returns all milestones of a proposal.
func (s *MilestoneService) ListMilestones(ctx context.Context, proposalID string) ([]*repository.Milestone, error) {
	return s.milestones.ListByProposal(ctx, proposalID)
}

func (s *MilestoneService) appendAudit(ctx context.Context, milestoneID, action, performedBy string, before, after *string, metadata map[string]interface{}) {
	entry := &repository.AuditEntry{
		ResourceType: "milestone",
		ResourceID:   milestoneID,
		Action:       action,
		PerformedBy:  performedBy,
		StatusBefore: before,
		StatusAfter:  after,
		Metadata:     metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("milestone_id", milestoneID).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}
