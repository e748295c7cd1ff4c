package service

import (
	"context"
	"time"

	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/metrics"
	"github.com/fundlio/be-governance/internal/repository"
)

// TrancheService owns escrow bookkeeping for funding tranches and the
// processing of (possibly partial) fund releases against them.
type TrancheService struct {
	tranches   repository.TrancheStore
	milestones repository.MilestoneStore
	identity   IdentityClient
	settlement SettlementClient
	audit      repository.AuditStore
	notifier   Notifier
	log        *logger.Logger
	now        func() time.Time
}

// NewTrancheService creates a new TrancheService.
func NewTrancheService(
	tranches repository.TrancheStore,
	milestones repository.MilestoneStore,
	identity IdentityClient,
	settlement SettlementClient,
	audit repository.AuditStore,
	notifier Notifier,
	log *logger.Logger,
) *TrancheService {
	return &TrancheService{
		tranches:   tranches,
		milestones: milestones,
		identity:   identity,
		settlement: settlement,
		audit:      audit,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// CreateTrancheRequest carries the inputs for a new funding tranche.
type CreateTrancheRequest struct {
	ProjectID          string `json:"project_id"`
	MilestoneID        string `json:"milestone_id"`
	Title              string `json:"title"`
	Amount             int64  `json:"amount"`
	TrancheNumber      int    `json:"tranche_number"`
	RecipientAddress   string `json:"recipient_address"`
	MinVotingThreshold int64  `json:"min_voting_threshold"`
	RequiresEvidence   bool   `json:"requires_evidence"`
}

// CreateTranche registers a tranche for a (project, milestone) pair.
// At most one tranche may exist per pair.
func (s *TrancheService) CreateTranche(ctx context.Context, req *CreateTrancheRequest) (*repository.Tranche, error) {
	if req.ProjectID == "" {
		return nil, errors.InvalidInput("project_id", "project id is required")
	}
	if req.MilestoneID == "" {
		return nil, errors.InvalidInput("milestone_id", "milestone id is required")
	}
	if req.Amount <= 0 {
		return nil, errors.InvalidInput("amount", "amount must be positive")
	}
	if req.RecipientAddress == "" {
		return nil, errors.InvalidInput("recipient_address", "recipient address is required")
	}
	if req.MinVotingThreshold < 0 {
		return nil, errors.InvalidInput("min_voting_threshold", "threshold cannot be negative")
	}

	t := &repository.Tranche{
		ProjectID:          req.ProjectID,
		MilestoneID:        req.MilestoneID,
		Title:              req.Title,
		Amount:             req.Amount,
		TrancheNumber:      req.TrancheNumber,
		Status:             repository.TrancheStatusPending,
		MinVotingThreshold: req.MinVotingThreshold,
		RequiresEvidence:   req.RequiresEvidence,
		RecipientAddress:   req.RecipientAddress,
		Releases:           make([]*repository.Release, 0),
	}
	if err := s.tranches.Create(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tranche_id", t.ID).
		Str("project_id", req.ProjectID).
		Str("milestone_id", req.MilestoneID).
		Int64("amount", req.Amount).
		Msg("Tranche created")

	s.appendAudit(ctx, t.ID, "created", "", nil, statusPtr(string(t.Status)),
		map[string]interface{}{"project_id": req.ProjectID, "amount": req.Amount})

	return t, nil
}

// FundEscrow records that the tranche amount has been placed in escrow.
func (s *TrancheService) FundEscrow(ctx context.Context, trancheID, callerID string) (*repository.Tranche, error) {
	t, err := s.tranches.GetByID(ctx, trancheID)
	if err != nil {
		return nil, err
	}
	if t.Status != repository.TrancheStatusPending {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"escrow can only be funded from pending (status: %s)", t.Status)
	}

	before := string(t.Status)
	t.Status = repository.TrancheStatusInEscrow
	if err := s.tranches.Update(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info().Str("tranche_id", trancheID).Msg("Tranche escrow funded")
	s.appendAudit(ctx, trancheID, "escrow_funded", callerID, statusPtr(before), statusPtr(string(t.Status)), nil)

	return t, nil
}

// MarkMilestoneComplete records milestone delivery on the tranche and moves
// it to awaiting approval. Evidence is required when the tranche demands it.
func (s *TrancheService) MarkMilestoneComplete(ctx context.Context, trancheID, callerID, evidenceURL string) (*repository.Tranche, error) {
	t, err := s.tranches.GetByID(ctx, trancheID)
	if err != nil {
		return nil, err
	}

	if t.Status != repository.TrancheStatusPending && t.Status != repository.TrancheStatusInEscrow {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"milestone completion is only allowed from pending or in_escrow (status: %s)", t.Status)
	}
	if t.RequiresEvidence && evidenceURL == "" {
		return nil, errors.InvalidInput("evidence_url", "evidence is required for this tranche")
	}

	before := string(t.Status)
	t.Status = repository.TrancheStatusAwaitingApproval
	if evidenceURL != "" {
		t.EvidenceURL = &evidenceURL
	}
	if err := s.tranches.Update(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tranche_id", trancheID).
		Str("evidence_url", evidenceURL).
		Msg("Tranche milestone marked complete")
	s.appendAudit(ctx, trancheID, "milestone_completed", callerID, statusPtr(before), statusPtr(string(t.Status)),
		map[string]interface{}{"evidence_url": evidenceURL})

	return t, nil
}

// ApproveFundingRequest carries a funding approval decision.
type ApproveFundingRequest struct {
	TrancheID   string `json:"tranche_id"`
	ApproverID  string `json:"approver_id"`
	Approve     bool   `json:"approve"`
	EvidenceURL string `json:"evidence_url"`
	Notes       string `json:"notes"`
}

// ApproveFunding resolves an awaiting-approval tranche. Approving requires
// the linked milestone (when tracked here) to have passed its vote and met
// the tranche's voting threshold; rejection cancels the tranche.
func (s *TrancheService) ApproveFunding(ctx context.Context, req *ApproveFundingRequest) (*repository.Tranche, error) {
	ok, err := s.identity.HasRole(ctx, req.ApproverID, RoleFundingApprover)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Unauthorized("only funding approvers can resolve tranche approval")
	}

	t, err := s.tranches.GetByID(ctx, req.TrancheID)
	if err != nil {
		return nil, err
	}
	if t.Status != repository.TrancheStatusAwaitingApproval {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"funding approval is only allowed from awaiting_approval (status: %s)", t.Status)
	}

	if req.Approve {
		if err := s.checkMilestoneGate(ctx, t); err != nil {
			return nil, err
		}
	}

	before := string(t.Status)
	now := s.now()
	// The decider is recorded either way; the status carries the outcome.
	t.ApprovedBy = &req.ApproverID
	t.ApprovedAt = &now
	if req.Approve {
		t.Status = repository.TrancheStatusApproved
	} else {
		t.Status = repository.TrancheStatusCancelled
	}
	if req.EvidenceURL != "" {
		t.EvidenceURL = &req.EvidenceURL
	}
	if err := s.tranches.Update(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tranche_id", req.TrancheID).
		Str("approver_id", req.ApproverID).
		Bool("approved", req.Approve).
		Msg("Tranche funding decision recorded")

	s.appendAudit(ctx, req.TrancheID, "funding_decided", req.ApproverID,
		statusPtr(before), statusPtr(string(t.Status)),
		map[string]interface{}{"approved": req.Approve, "notes": req.Notes})
	notify(ctx, s.notifier, "funding_decided", "tranche", req.TrancheID, req.ApproverID,
		map[string]interface{}{"approved": req.Approve})

	return t, nil
}

// checkMilestoneGate enforces the milestone vote outcome when the linked
// milestone is tracked in this service. Tranches referencing externally
// tracked milestones rely on the approver acting as gatekeeper.
func (s *TrancheService) checkMilestoneGate(ctx context.Context, t *repository.Tranche) error {
	m, err := s.milestones.GetByID(ctx, t.MilestoneID)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !m.Approved {
		return errors.New(errors.ErrCodeStateConflict,
			"linked milestone has not been approved by vote")
	}
	if t.MinVotingThreshold > 0 && m.ApprovalVotes < t.MinVotingThreshold {
		return errors.Newf(errors.ErrCodeStateConflict,
			"milestone approval votes (%d) below the tranche threshold (%d)",
			m.ApprovalVotes, t.MinVotingThreshold)
	}
	return nil
}

// ReleaseFundsRequest carries a fund release instruction.
type ReleaseFundsRequest struct {
	TrancheID            string `json:"tranche_id"`
	Amount               int64  `json:"amount"`
	Recipient            string `json:"recipient"`
	RequiresManualReview bool   `json:"requires_manual_review"`
	ProcessedBy          string `json:"processed_by"`
}

// ReleaseFunds disburses part or all of an approved tranche. A release under
// manual review is recorded but does not touch the released total until it
// is completed separately; otherwise the release completes immediately.
func (s *TrancheService) ReleaseFunds(ctx context.Context, req *ReleaseFundsRequest) (*repository.Release, error) {
	if req.Amount <= 0 {
		return nil, errors.InvalidInput("amount", "amount must be positive")
	}

	t, err := s.tranches.GetByID(ctx, req.TrancheID)
	if err != nil {
		return nil, err
	}
	if t.Status != repository.TrancheStatusApproved {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"funds can only be released from an approved tranche (status: %s)", t.Status)
	}
	if req.Amount > t.Remaining() {
		return nil, errors.Newf(errors.ErrCodeOverRelease,
			"release of %d exceeds remaining escrow %d", req.Amount, t.Remaining())
	}

	recipient := req.Recipient
	if recipient == "" {
		recipient = t.RecipientAddress
	}

	now := s.now()
	rel := &repository.Release{
		TrancheID:            t.ID,
		ProjectID:            t.ProjectID,
		Amount:               req.Amount,
		InitiatedAt:          now,
		ProcessedBy:          req.ProcessedBy,
		RequiresManualReview: req.RequiresManualReview,
	}

	before := string(t.Status)
	if req.RequiresManualReview {
		rel.Status = repository.ReleaseStatusUnderReview
	} else {
		completedAt := now
		rel.Status = repository.ReleaseStatusCompleted
		rel.CompletedAt = &completedAt
		t.ActualAmountReleased += req.Amount
		if t.Remaining() == 0 {
			t.Status = repository.TrancheStatusReleased
		}
	}

	if err := s.tranches.RecordRelease(ctx, t, rel); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tranche_id", t.ID).
		Str("release_id", rel.ID).
		Int64("amount", req.Amount).
		Str("release_status", string(rel.Status)).
		Int64("remaining", t.Remaining()).
		Msg("Fund release recorded")

	s.appendAudit(ctx, t.ID, "funds_released", req.ProcessedBy,
		statusPtr(before), statusPtr(string(t.Status)),
		map[string]interface{}{"release_id": rel.ID, "amount": req.Amount, "manual_review": req.RequiresManualReview})

	if rel.Status == repository.ReleaseStatusCompleted {
		metrics.ObserveFundsReleased(rel.Amount)
		notify(ctx, s.notifier, "funds_released", "tranche", t.ID, req.ProcessedBy,
			map[string]interface{}{"amount": req.Amount, "remaining": t.Remaining()})
		if err := s.settle(ctx, t, rel, recipient); err != nil {
			return rel, err
		}
	}

	return rel, nil
}

// CompleteRelease finishes a release that was held for manual review. Only
// now does the released total move.
func (s *TrancheService) CompleteRelease(ctx context.Context, trancheID, releaseID, callerID, paymentReference string) (*repository.Release, error) {
	t, err := s.tranches.GetByID(ctx, trancheID)
	if err != nil {
		return nil, err
	}
	// The tranche may have been disputed, cancelled or failed while the
	// release sat in review; escrow only moves while it is approved.
	if t.Status != repository.TrancheStatusApproved {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"releases can only be completed on an approved tranche (status: %s)", t.Status)
	}

	var rel *repository.Release
	for _, r := range t.Releases {
		if r.ID == releaseID {
			rel = r
			break
		}
	}
	if rel == nil {
		return nil, errors.NotFound("release", releaseID)
	}
	if rel.Status != repository.ReleaseStatusUnderReview {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"release is not under review (status: %s)", rel.Status)
	}
	// Releases completed while this one sat in review may have consumed the
	// escrow it was counting on.
	if rel.Amount > t.Remaining() {
		return nil, errors.Newf(errors.ErrCodeOverRelease,
			"release of %d exceeds remaining escrow %d", rel.Amount, t.Remaining())
	}

	before := string(t.Status)
	now := s.now()
	rel.Status = repository.ReleaseStatusCompleted
	rel.CompletedAt = &now
	rel.IsVerified = true
	if paymentReference != "" {
		rel.PaymentReference = &paymentReference
	}
	t.ActualAmountReleased += rel.Amount
	if t.Remaining() == 0 {
		t.Status = repository.TrancheStatusReleased
	}

	if err := s.tranches.UpdateRelease(ctx, t, rel); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tranche_id", trancheID).
		Str("release_id", releaseID).
		Int64("amount", rel.Amount).
		Msg("Reviewed release completed")

	s.appendAudit(ctx, trancheID, "release_completed", callerID,
		statusPtr(before), statusPtr(string(t.Status)),
		map[string]interface{}{"release_id": releaseID, "amount": rel.Amount})
	metrics.ObserveFundsReleased(rel.Amount)
	notify(ctx, s.notifier, "funds_released", "tranche", trancheID, callerID,
		map[string]interface{}{"amount": rel.Amount, "remaining": t.Remaining()})

	if err := s.settle(ctx, t, rel, t.RecipientAddress); err != nil {
		return rel, err
	}
	return rel, nil
}

// settle requests disbursement for a completed release and attaches the
// settlement reference. The release stays completed even when settlement
// must be retried.
func (s *TrancheService) settle(ctx context.Context, t *repository.Tranche, rel *repository.Release, recipient string) error {
	ref, err := s.settlement.Disburse(ctx, recipient, rel.Amount, rel.ID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("release_id", rel.ID).
			Msg("Settlement disbursement failed, release already recorded")
		return errors.Wrap(err, errors.ErrCodeInternal, "release recorded but settlement disbursement failed")
	}
	if ref == "" {
		return nil
	}
	rel.PaymentReference = &ref
	if err := s.tranches.UpdateRelease(ctx, t, rel); err != nil {
		s.log.Warn().Err(err).
			Str("release_id", rel.ID).
			Msg("Failed to attach settlement reference")
	}
	return nil
}

// DisputeTranche moves a non-terminal tranche to disputed.
func (s *TrancheService) DisputeTranche(ctx context.Context, trancheID, callerID, reason string) (*repository.Tranche, error) {
	return s.sideExit(ctx, trancheID, callerID, reason, repository.TrancheStatusDisputed, "disputed")
}

// CancelTranche moves a non-terminal tranche to cancelled.
func (s *TrancheService) CancelTranche(ctx context.Context, trancheID, callerID, reason string) (*repository.Tranche, error) {
	return s.sideExit(ctx, trancheID, callerID, reason, repository.TrancheStatusCancelled, "cancelled")
}

// FailTranche moves a non-terminal tranche to failed, e.g. after an
// unrecoverable settlement problem confirmed out of band.
func (s *TrancheService) FailTranche(ctx context.Context, trancheID, callerID, reason string) (*repository.Tranche, error) {
	return s.sideExit(ctx, trancheID, callerID, reason, repository.TrancheStatusFailed, "failed")
}

func (s *TrancheService) sideExit(ctx context.Context, trancheID, callerID, reason string, target repository.TrancheStatus, action string) (*repository.Tranche, error) {
	t, err := s.tranches.GetByID(ctx, trancheID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"tranche is already in terminal status '%s'", t.Status)
	}

	before := string(t.Status)
	t.Status = target
	if err := s.tranches.Update(ctx, t); err != nil {
		return nil, err
	}

	// Releases still held for review can never complete now; mark them
	// failed so they are not mistaken for pending work.
	for _, rel := range t.Releases {
		if rel.Status != repository.ReleaseStatusUnderReview {
			continue
		}
		rel.Status = repository.ReleaseStatusFailed
		if err := s.tranches.UpdateRelease(ctx, t, rel); err != nil {
			s.log.Warn().Err(err).
				Str("tranche_id", trancheID).
				Str("release_id", rel.ID).
				Msg("Failed to void held release")
		}
	}

	s.log.Info().
		Str("tranche_id", trancheID).
		Str("status", string(target)).
		Str("reason", reason).
		Msg("Tranche moved to side exit")
	s.appendAudit(ctx, trancheID, action, callerID, statusPtr(before), statusPtr(string(target)),
		map[string]interface{}{"reason": reason})

	return t, nil
}

// FundingProgress is a derived, never-persisted view over a tranche's
// releases.
type FundingProgress struct {
	TrancheID             string        `json:"tranche_id"`
	Amount                int64         `json:"amount"`
	Released              int64         `json:"released"`
	Remaining             int64         `json:"remaining"`
	ProgressPercent       float64       `json:"progress_percent"`
	CompletedReleases     int           `json:"completed_releases"`
	PendingReleases       int           `json:"pending_releases"`
	AverageReleaseLatency time.Duration `json:"average_release_latency"`
}

// GetFundingProgress computes release metrics for a tranche on demand.
func (s *TrancheService) GetFundingProgress(ctx context.Context, trancheID string) (*FundingProgress, error) {
	t, err := s.tranches.GetByID(ctx, trancheID)
	if err != nil {
		return nil, err
	}

	progress := &FundingProgress{
		TrancheID: t.ID,
		Amount:    t.Amount,
		Released:  t.ActualAmountReleased,
		Remaining: t.Remaining(),
	}
	if t.Amount > 0 {
		progress.ProgressPercent = float64(t.ActualAmountReleased) / float64(t.Amount) * 100
	}

	var totalLatency time.Duration
	for _, rel := range t.Releases {
		if rel.Status == repository.ReleaseStatusCompleted && rel.CompletedAt != nil {
			progress.CompletedReleases++
			totalLatency += rel.CompletedAt.Sub(rel.InitiatedAt)
		} else if rel.Status == repository.ReleaseStatusUnderReview || rel.Status == repository.ReleaseStatusProcessing {
			progress.PendingReleases++
		}
	}
	if progress.CompletedReleases > 0 {
		progress.AverageReleaseLatency = totalLatency / time.Duration(progress.CompletedReleases)
	}

	return progress, nil
}

// GetTranche returns a tranche with its releases.
func (s *TrancheService) GetTranche(ctx context.Context, id string) (*repository.Tranche, error) {
	return s.tranches.GetByID(ctx, id)
}

// ListTranches lists a project's tranches with an optional status filter.
func (s *TrancheService) ListTranches(ctx context.Context, projectID string, status *repository.TrancheStatus, page, pageSize int) ([]*repository.Tranche, int64, error) {
	offset := (page - 1) * pageSize
	return s.tranches.ListByProject(ctx, projectID, status, pageSize, offset)
}

// ListProjectReleases returns every release across a project's tranches.
func (s *TrancheService) ListProjectReleases(ctx context.Context, projectID string) ([]*repository.Release, error) {
	return s.tranches.ListReleasesByProject(ctx, projectID)
}

func (s *TrancheService) appendAudit(ctx context.Context, trancheID, action, performedBy string, before, after *string, metadata map[string]interface{}) {
	entry := &repository.AuditEntry{
		ResourceType: "tranche",
		ResourceID:   trancheID,
		Action:       action,
		PerformedBy:  performedBy,
		StatusBefore: before,
		StatusAfter:  after,
		Metadata:     metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("tranche_id", trancheID).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}
