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

type trancheHarness struct {
	tranches   *TrancheService
	milestones *memory.MilestoneStore
	settlement *fakeSettlement
	setNow     func(time.Time)
}

func newTrancheHarness(t *testing.T) *trancheHarness {
	t.Helper()
	milestoneStore := memory.NewMilestoneStore()
	settlement := &fakeSettlement{}
	identity := &fakeIdentity{roles: map[string][]string{
		"approver": {RoleFundingApprover},
	}}

	svc := NewTrancheService(memory.NewTrancheStore(), milestoneStore, identity,
		settlement, memory.NewAuditStore(), &fakeNotifier{}, logger.Nop())
	now, setNow := frozenClock(testEpoch)
	svc.now = now

	return &trancheHarness{
		tranches:   svc,
		milestones: milestoneStore,
		settlement: settlement,
		setNow:     setNow,
	}
}

// approvedTranche walks a fresh tranche through funding and approval. The
// milestone id is external, so approval relies on the approver alone.
func (h *trancheHarness) approvedTranche(t *testing.T, amount int64) *repository.Tranche {
	t.Helper()
	ctx := context.Background()

	tr, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
		ProjectID:        "proj-1",
		MilestoneID:      "ms-ext-1",
		Title:            "Phase 1",
		Amount:           amount,
		TrancheNumber:    1,
		RecipientAddress: "proj-1-treasury",
	})
	require.NoError(t, err)

	tr, err = h.tranches.FundEscrow(ctx, tr.ID, "treasurer")
	require.NoError(t, err)

	tr, err = h.tranches.MarkMilestoneComplete(ctx, tr.ID, "builder", "")
	require.NoError(t, err)

	tr, err = h.tranches.ApproveFunding(ctx, &ApproveFundingRequest{
		TrancheID: tr.ID, ApproverID: "approver", Approve: true,
	})
	require.NoError(t, err)
	require.Equal(t, repository.TrancheStatusApproved, tr.Status)
	return tr
}

func TestTrancheService_CreateTranche_DuplicatePair(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()

	req := &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: "ms-1", Amount: 1000,
		RecipientAddress: "addr",
	}
	_, err := h.tranches.CreateTranche(ctx, req)
	require.NoError(t, err)

	_, err = h.tranches.CreateTranche(ctx, req)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateTranche))

	// A different milestone under the same project is fine.
	req2 := &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: "ms-2", Amount: 1000,
		RecipientAddress: "addr",
	}
	_, err = h.tranches.CreateTranche(ctx, req2)
	require.NoError(t, err)
}

func TestTrancheService_Lifecycle_StateGuards(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()

	tr, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: "ms-1", Amount: 1000,
		RecipientAddress: "addr", RequiresEvidence: true,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusPending, tr.Status)

	// Releasing before approval is refused.
	_, err = h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{TrancheID: tr.ID, Amount: 100})
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))

	// Evidence is demanded when the tranche requires it.
	_, err = h.tranches.MarkMilestoneComplete(ctx, tr.ID, "builder", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	tr, err = h.tranches.MarkMilestoneComplete(ctx, tr.ID, "builder", "https://evidence.example/1")
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusAwaitingApproval, tr.Status)
	require.NotNil(t, tr.EvidenceURL)

	// Funding escrow after leaving pending is refused.
	_, err = h.tranches.FundEscrow(ctx, tr.ID, "treasurer")
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))

	// Only funding approvers may decide.
	_, err = h.tranches.ApproveFunding(ctx, &ApproveFundingRequest{
		TrancheID: tr.ID, ApproverID: "builder", Approve: true,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

func TestTrancheService_ApproveFunding_Rejection_Cancels(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()

	tr, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: "ms-1", Amount: 1000,
		RecipientAddress: "addr",
	})
	require.NoError(t, err)
	tr, err = h.tranches.MarkMilestoneComplete(ctx, tr.ID, "builder", "")
	require.NoError(t, err)

	tr, err = h.tranches.ApproveFunding(ctx, &ApproveFundingRequest{
		TrancheID: tr.ID, ApproverID: "approver", Approve: false, Notes: "insufficient delivery",
	})
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusCancelled, tr.Status)
	// The decider is recorded even on rejection.
	require.NotNil(t, tr.ApprovedBy)
	assert.Equal(t, "approver", *tr.ApprovedBy)
	require.NotNil(t, tr.ApprovedAt)
}

func TestTrancheService_ApproveFunding_MilestoneGate(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()

	// A milestone tracked locally must have passed its vote.
	m := &repository.Milestone{
		ProposalID: "prop-1", Description: "MVP", FundingAmount: 1000,
		Completed: true,
	}
	require.NoError(t, h.milestones.Create(ctx, m))

	tr, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: m.ID, Amount: 1000,
		RecipientAddress: "addr", MinVotingThreshold: 5000,
	})
	require.NoError(t, err)
	tr, err = h.tranches.MarkMilestoneComplete(ctx, tr.ID, "builder", "")
	require.NoError(t, err)

	_, err = h.tranches.ApproveFunding(ctx, &ApproveFundingRequest{
		TrancheID: tr.ID, ApproverID: "approver", Approve: true,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict), "unapproved milestone blocks funding")

	// Approved, but below the tranche's voting threshold.
	m.Approved = true
	m.ApprovalVotes = 4000
	require.NoError(t, h.milestones.Update(ctx, m))

	_, err = h.tranches.ApproveFunding(ctx, &ApproveFundingRequest{
		TrancheID: tr.ID, ApproverID: "approver", Approve: true,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict), "votes below threshold block funding")

	m.ApprovalVotes = 6000
	require.NoError(t, h.milestones.Update(ctx, m))

	tr, err = h.tranches.ApproveFunding(ctx, &ApproveFundingRequest{
		TrancheID: tr.ID, ApproverID: "approver", Approve: true,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusApproved, tr.Status)
	require.NotNil(t, tr.ApprovedBy)
	assert.Equal(t, "approver", *tr.ApprovedBy)
}

func TestTrancheService_ReleaseFunds_PartialReleases(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()
	tr := h.approvedTranche(t, 300000)

	rel, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 100000, ProcessedBy: "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, repository.ReleaseStatusCompleted, rel.Status)

	_, err = h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 150000, ProcessedBy: "ops",
	})
	require.NoError(t, err)

	got, err := h.tranches.GetTranche(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), got.ActualAmountReleased)
	assert.Equal(t, int64(50000), got.Remaining())
	assert.Equal(t, repository.TrancheStatusApproved, got.Status)

	// The final slice exhausts escrow and closes the tranche.
	_, err = h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 50000, ProcessedBy: "ops",
	})
	require.NoError(t, err)

	got, err = h.tranches.GetTranche(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Remaining())
	assert.Equal(t, repository.TrancheStatusReleased, got.Status)
	assert.Equal(t, []int64{100000, 150000, 50000}, h.settlement.disbursed)
}

func TestTrancheService_ReleaseFunds_OverReleaseLeavesStateUntouched(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()
	tr := h.approvedTranche(t, 300000)

	_, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 250000, ProcessedBy: "ops",
	})
	require.NoError(t, err)

	_, err = h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 50001, ProcessedBy: "ops",
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeOverRelease))

	got, err := h.tranches.GetTranche(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), got.ActualAmountReleased)
	assert.Equal(t, repository.TrancheStatusApproved, got.Status)
	require.Len(t, got.Releases, 1, "the rejected release leaves no record")
}

func TestTrancheService_ManualReviewRelease(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()
	tr := h.approvedTranche(t, 100000)

	rel, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 60000, ProcessedBy: "ops", RequiresManualReview: true,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.ReleaseStatusUnderReview, rel.Status)
	assert.Empty(t, h.settlement.disbursed, "no disbursement while under review")

	// Held releases do not consume escrow yet.
	got, err := h.tranches.GetTranche(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.ActualAmountReleased)

	rel, err = h.tranches.CompleteRelease(ctx, tr.ID, rel.ID, "reviewer", "PAY-42")
	require.NoError(t, err)
	assert.Equal(t, repository.ReleaseStatusCompleted, rel.Status)
	assert.True(t, rel.IsVerified)
	require.NotNil(t, rel.CompletedAt)

	got, err = h.tranches.GetTranche(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), got.ActualAmountReleased)
	assert.Equal(t, []int64{60000}, h.settlement.disbursed)

	// Completing the same release again conflicts.
	_, err = h.tranches.CompleteRelease(ctx, tr.ID, rel.ID, "reviewer", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))
}

func TestTrancheService_ManualReviewRelease_OverReleaseOnCompletion(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()
	tr := h.approvedTranche(t, 100000)

	held, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 60000, ProcessedBy: "ops", RequiresManualReview: true,
	})
	require.NoError(t, err)

	// A direct release consumes the escrow the held one was counting on.
	_, err = h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 70000, ProcessedBy: "ops",
	})
	require.NoError(t, err)

	_, err = h.tranches.CompleteRelease(ctx, tr.ID, held.ID, "reviewer", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeOverRelease))
}

func TestTrancheService_ManualReviewRelease_CancelledTrancheKeepsEscrow(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()
	tr := h.approvedTranche(t, 100000)

	held, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 60000, ProcessedBy: "ops", RequiresManualReview: true,
	})
	require.NoError(t, err)

	_, err = h.tranches.CancelTranche(ctx, tr.ID, "operator", "project wound down")
	require.NoError(t, err)

	// The cancellation voided the held release; completing it must not move
	// any escrow.
	_, err = h.tranches.CompleteRelease(ctx, tr.ID, held.ID, "reviewer", "PAY-43")
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))

	got, err := h.tranches.GetTranche(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusCancelled, got.Status)
	assert.Equal(t, int64(0), got.ActualAmountReleased)
	assert.Empty(t, h.settlement.disbursed)
	require.Len(t, got.Releases, 1)
	assert.Equal(t, repository.ReleaseStatusFailed, got.Releases[0].Status)
}

func TestTrancheService_SideExits(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()

	tr, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: "ms-1", Amount: 1000,
		RecipientAddress: "addr",
	})
	require.NoError(t, err)

	tr, err = h.tranches.DisputeTranche(ctx, tr.ID, "observer", "evidence contested")
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusDisputed, tr.Status)

	// A second transition out of a non-terminal side state is allowed...
	tr, err = h.tranches.CancelTranche(ctx, tr.ID, "operator", "dispute upheld")
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusCancelled, tr.Status)

	// ...but terminal states are final.
	_, err = h.tranches.DisputeTranche(ctx, tr.ID, "observer", "too late")
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))

	other, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
		ProjectID: "proj-1", MilestoneID: "ms-2", Amount: 1000,
		RecipientAddress: "addr",
	})
	require.NoError(t, err)

	other, err = h.tranches.FailTranche(ctx, other.ID, "operator", "escrow account closed")
	require.NoError(t, err)
	assert.Equal(t, repository.TrancheStatusFailed, other.Status)

	_, err = h.tranches.CancelTranche(ctx, other.ID, "operator", "cleanup")
	assert.True(t, errors.HasCode(err, errors.ErrCodeStateConflict))
}

func TestTrancheService_FundingProgress(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()
	tr := h.approvedTranche(t, 200000)

	start := testEpoch.Add(24 * time.Hour)
	h.setNow(start)
	_, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 50000, ProcessedBy: "ops",
	})
	require.NoError(t, err)

	held, err := h.tranches.ReleaseFunds(ctx, &ReleaseFundsRequest{
		TrancheID: tr.ID, Amount: 25000, ProcessedBy: "ops", RequiresManualReview: true,
	})
	require.NoError(t, err)

	progress, err := h.tranches.GetFundingProgress(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), progress.Released)
	assert.Equal(t, int64(150000), progress.Remaining)
	assert.InDelta(t, 25.0, progress.ProgressPercent, 0.001)
	assert.Equal(t, 1, progress.CompletedReleases)
	assert.Equal(t, 1, progress.PendingReleases)

	// Completing the held release two hours later moves the latency average.
	h.setNow(start.Add(2 * time.Hour))
	_, err = h.tranches.CompleteRelease(ctx, tr.ID, held.ID, "reviewer", "")
	require.NoError(t, err)

	progress, err = h.tranches.GetFundingProgress(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.CompletedReleases)
	assert.Equal(t, time.Hour, progress.AverageReleaseLatency)
}

func TestTrancheService_ListTranchesAndReleases(t *testing.T) {
	h := newTrancheHarness(t)
	ctx := context.Background()

	for i, ms := range []string{"ms-a", "ms-b"} {
		_, err := h.tranches.CreateTranche(ctx, &CreateTrancheRequest{
			ProjectID: "proj-1", MilestoneID: ms, Amount: 1000,
			TrancheNumber: i + 1, RecipientAddress: "addr",
		})
		require.NoError(t, err)
	}

	list, total, err := h.tranches.ListTranches(ctx, "proj-1", nil, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].TrancheNumber)

	pending := repository.TrancheStatusPending
	_, total, err = h.tranches.ListTranches(ctx, "proj-1", &pending, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	releases, err := h.tranches.ListProjectReleases(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, releases)
}
