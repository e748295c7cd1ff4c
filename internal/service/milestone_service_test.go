package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/repository"
	"github.com/fundlio/be-governance/internal/repository/memory"
)

type milestoneHarness struct {
	gov        *GovernanceService
	milestones *MilestoneService
	stakes     *StakeService
	setNow     func(time.Time)
}

func newMilestoneHarness(t *testing.T) *milestoneHarness {
	t.Helper()
	stakes := newTestStakeService(&fakeSettlement{})
	proposalStore := memory.NewProposalStore()
	identity := &fakeIdentity{roles: map[string][]string{
		"operator": {RolePlatformOperator},
	}}
	cfg := testGovernanceConfig()

	gov := NewGovernanceService(proposalStore, stakes, memory.NewAuditStore(),
		nil, cfg, logger.Nop())
	ms := NewMilestoneService(memory.NewMilestoneStore(), proposalStore, stakes,
		identity, memory.NewAuditStore(), &fakeNotifier{}, cfg, logger.Nop())

	now, setNow := frozenClock(testEpoch)
	gov.now = now
	ms.now = now

	return &milestoneHarness{gov: gov, milestones: ms, stakes: stakes, setNow: setNow}
}

// succeededProposal runs a proposal through voting and execution so
// milestones can be attached to it.
func (h *milestoneHarness) succeededProposal(t *testing.T) *repository.Proposal {
	t.Helper()
	ctx := context.Background()

	p, err := h.gov.CreateProposal(ctx, &CreateProposalRequest{
		Proposer: "alice", Title: "Funding round", RequestedAmount: 300000,
	})
	require.NoError(t, err)

	_, err = h.gov.CastVote(ctx, p.ID, "bob", repository.VoteFor, 20000)
	require.NoError(t, err)

	h.setNow(testEpoch.Add(169 * time.Hour))
	p, err = h.gov.ExecuteProposal(ctx, p.ID, "operator")
	require.NoError(t, err)
	require.Equal(t, repository.ProposalStateSucceeded, p.State)
	return p
}

func TestMilestoneService_CreateMilestone_OperatorOnly(t *testing.T) {
	h := newMilestoneHarness(t)
	ctx := context.Background()
	mustStake(t, h.stakes, "alice", 50000)
	mustStake(t, h.stakes, "bob", 50000)
	p := h.succeededProposal(t)

	_, err := h.milestones.CreateMilestone(ctx, "alice", p.ID, "MVP shipped", 100000)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))

	m, err := h.milestones.CreateMilestone(ctx, "operator", p.ID, "MVP shipped", 100000)
	require.NoError(t, err)
	assert.False(t, m.Completed)
	assert.False(t, m.Approved)
}

func TestMilestoneService_CreateMilestone_RequiresSucceededProposal(t *testing.T) {
	h := newMilestoneHarness(t)
	ctx := context.Background()
	mustStake(t, h.stakes, "alice", 50000)

	p, err := h.gov.CreateProposal(ctx, &CreateProposalRequest{
		Proposer: "alice", Title: "Still open", RequestedAmount: 1,
	})
	require.NoError(t, err)

	_, err = h.milestones.CreateMilestone(ctx, "operator", p.ID, "Too early", 1000)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))
}

func TestMilestoneService_CompleteMilestone_OpensVotingWindow(t *testing.T) {
	h := newMilestoneHarness(t)
	ctx := context.Background()
	mustStake(t, h.stakes, "alice", 50000)
	mustStake(t, h.stakes, "bob", 50000)
	p := h.succeededProposal(t)

	m, err := h.milestones.CreateMilestone(ctx, "operator", p.ID, "MVP shipped", 100000)
	require.NoError(t, err)

	// A stranger cannot complete it.
	_, err = h.milestones.CompleteMilestone(ctx, "bob", m.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))

	// The proposer can.
	completedAt := testEpoch.Add(200 * time.Hour)
	h.setNow(completedAt)
	m, err = h.milestones.CompleteMilestone(ctx, "alice", m.ID)
	require.NoError(t, err)
	assert.True(t, m.Completed)
	require.NotNil(t, m.VotingDeadline)
	assert.Equal(t, completedAt.Add(72*time.Hour), *m.VotingDeadline)

	// Completing twice conflicts.
	_, err = h.milestones.CompleteMilestone(ctx, "alice", m.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))
}

func TestMilestoneService_VoteOnMilestone_StickyApproval(t *testing.T) {
	h := newMilestoneHarness(t)
	ctx := context.Background()
	mustStake(t, h.stakes, "alice", 50000)
	mustStake(t, h.stakes, "bob", 30000)
	mustStake(t, h.stakes, "carol", 20000)
	mustStake(t, h.stakes, "dave", 40000)
	p := h.succeededProposal(t)

	m, err := h.milestones.CreateMilestone(ctx, "operator", p.ID, "MVP shipped", 100000)
	require.NoError(t, err)

	// Voting before completion is refused.
	_, err = h.milestones.VoteOnMilestone(ctx, m.ID, "bob", true)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))

	_, err = h.milestones.CompleteMilestone(ctx, "alice", m.ID)
	require.NoError(t, err)

	m, err = h.milestones.VoteOnMilestone(ctx, m.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), m.ApprovalVotes)
	assert.True(t, m.Approved, "approval flips as soon as approvals lead")

	// A larger rejection afterwards does not revoke approval.
	m, err = h.milestones.VoteOnMilestone(ctx, m.ID, "dave", false)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), m.RejectionVotes)
	assert.True(t, m.Approved)

	// Repeat votes are rejected.
	_, err = h.milestones.VoteOnMilestone(ctx, m.ID, "bob", false)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyVoted))
}

func TestMilestoneService_VoteOnMilestone_RequiresStake(t *testing.T) {
	h := newMilestoneHarness(t)
	ctx := context.Background()
	mustStake(t, h.stakes, "alice", 50000)
	mustStake(t, h.stakes, "bob", 50000)
	p := h.succeededProposal(t)

	m, err := h.milestones.CreateMilestone(ctx, "operator", p.ID, "MVP shipped", 100000)
	require.NoError(t, err)
	_, err = h.milestones.CompleteMilestone(ctx, "alice", m.ID)
	require.NoError(t, err)

	_, err = h.milestones.VoteOnMilestone(ctx, m.ID, "nobody", true)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestMilestoneService_VoteOnMilestone_DeadlineEnforced(t *testing.T) {
	h := newMilestoneHarness(t)
	ctx := context.Background()
	mustStake(t, h.stakes, "alice", 50000)
	mustStake(t, h.stakes, "bob", 50000)
	p := h.succeededProposal(t)

	m, err := h.milestones.CreateMilestone(ctx, "operator", p.ID, "MVP shipped", 100000)
	require.NoError(t, err)

	completedAt := testEpoch.Add(200 * time.Hour)
	h.setNow(completedAt)
	_, err = h.milestones.CompleteMilestone(ctx, "alice", m.ID)
	require.NoError(t, err)

	h.setNow(completedAt.Add(73 * time.Hour))
	_, err = h.milestones.VoteOnMilestone(ctx, m.ID, "bob", true)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))
}
