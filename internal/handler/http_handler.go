package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/metrics"
	"github.com/fundlio/be-governance/internal/repository"
	"github.com/fundlio/be-governance/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	stakes     *service.StakeService
	governance *service.GovernanceService
	milestones *service.MilestoneService
	tranches   *service.TrancheService
	audit      repository.AuditStore
	log        *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	stakes *service.StakeService,
	governance *service.GovernanceService,
	milestones *service.MilestoneService,
	tranches *service.TrancheService,
	audit repository.AuditStore,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		stakes:     stakes,
		governance: governance,
		milestones: milestones,
		tranches:   tranches,
		audit:      audit,
		log:        log,
	}
}

// RegisterRoutes attaches all governance routes to the mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/stakes", h.GetStake)
	mux.HandleFunc("/api/v1/stakes/deposit", h.DepositStake)
	mux.HandleFunc("/api/v1/stakes/withdraw", h.WithdrawStake)
	mux.HandleFunc("/api/v1/stakes/total-supply", h.GetTotalSupply)

	mux.HandleFunc("/api/v1/proposals", h.Proposals)
	mux.HandleFunc("/api/v1/proposals/get", h.GetProposal)
	mux.HandleFunc("/api/v1/proposals/vote", h.CastVote)
	mux.HandleFunc("/api/v1/proposals/execute", h.ExecuteProposal)

	mux.HandleFunc("/api/v1/milestones", h.Milestones)
	mux.HandleFunc("/api/v1/milestones/get", h.GetMilestone)
	mux.HandleFunc("/api/v1/milestones/complete", h.CompleteMilestone)
	mux.HandleFunc("/api/v1/milestones/vote", h.VoteOnMilestone)

	mux.HandleFunc("/api/v1/tranches", h.Tranches)
	mux.HandleFunc("/api/v1/tranches/get", h.GetTranche)
	mux.HandleFunc("/api/v1/tranches/fund-escrow", h.FundEscrow)
	mux.HandleFunc("/api/v1/tranches/milestone-complete", h.MarkMilestoneComplete)
	mux.HandleFunc("/api/v1/tranches/approve", h.ApproveFunding)
	mux.HandleFunc("/api/v1/tranches/release", h.ReleaseFunds)
	mux.HandleFunc("/api/v1/tranches/complete-release", h.CompleteRelease)
	mux.HandleFunc("/api/v1/tranches/dispute", h.DisputeTranche)
	mux.HandleFunc("/api/v1/tranches/cancel", h.CancelTranche)
	mux.HandleFunc("/api/v1/tranches/fail", h.FailTranche)
	mux.HandleFunc("/api/v1/tranches/progress", h.GetFundingProgress)
	mux.HandleFunc("/api/v1/tranches/releases", h.ListProjectReleases)

	mux.HandleFunc("/api/v1/audit", h.ListAuditLog)
}

// writeError maps a service error to an HTTP status and JSON body.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeValidation:
		status = http.StatusBadRequest
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case errors.ErrCodeConflict,
		errors.ErrCodeStateConflict,
		errors.ErrCodeAlreadyVoted,
		errors.ErrCodeAlreadyExecuted,
		errors.ErrCodeDuplicateTranche:
		status = http.StatusConflict
	case errors.ErrCodeInsufficientUnlockedStake,
		errors.ErrCodeInsufficientBondStake,
		errors.ErrCodeOverRelease:
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *HTTPHandler) observe(command string, err error) {
	metrics.ObserveCommand(command, err)
}

func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return page, pageSize
}

// ── Stakes ───────────────────────────────────────────────────────────────────

// DepositStake handles stake deposit HTTP requests
func (h *HTTPHandler) DepositStake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Participant string `json:"participant"`
		Amount      int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stake, err := h.stakes.Stake(r.Context(), req.Participant, req.Amount)
	h.observe("stake_deposit", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stake)
}

// WithdrawStake handles stake withdrawal HTTP requests
func (h *HTTPHandler) WithdrawStake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Participant string `json:"participant"`
		Amount      int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stake, err := h.stakes.Unstake(r.Context(), req.Participant, req.Amount)
	h.observe("stake_withdraw", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stake)
}

// GetStake handles get stake HTTP requests
func (h *HTTPHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	participant := r.URL.Query().Get("participant")
	if participant == "" {
		http.Error(w, "Participant is required", http.StatusBadRequest)
		return
	}

	stake, err := h.stakes.GetStake(r.Context(), participant)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stake)
}

// GetTotalSupply handles total staked supply HTTP requests
func (h *HTTPHandler) GetTotalSupply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	total, err := h.stakes.TotalSupply(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"total_supply": total})
}

// ── Proposals ────────────────────────────────────────────────────────────────

// Proposals dispatches proposal collection requests by method.
func (h *HTTPHandler) Proposals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createProposal(w, r)
	case http.MethodGet:
		h.listProposals(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createProposal(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	proposal, err := h.governance.CreateProposal(r.Context(), &req)
	h.observe("proposal_create", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, proposal)
}

func (h *HTTPHandler) listProposals(w http.ResponseWriter, r *http.Request) {
	proposer := r.URL.Query().Get("proposer")
	state := r.URL.Query().Get("state")

	var proposerPtr *string
	if proposer != "" {
		proposerPtr = &proposer
	}

	var statePtr *repository.ProposalState
	if state != "" {
		s := repository.ProposalState(state)
		statePtr = &s
	}

	page, pageSize := pagination(r)

	proposals, total, err := h.governance.ListProposals(r.Context(), proposerPtr, statePtr, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposals": proposals,
		"total":     total,
		"page":      page,
		"pageSize":  pageSize,
	})
}

// GetProposal handles get proposal HTTP requests
func (h *HTTPHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Proposal ID is required", http.StatusBadRequest)
		return
	}

	proposal, err := h.governance.GetProposal(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proposal)
}

// CastVote handles proposal vote HTTP requests
func (h *HTTPHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ProposalID  string `json:"proposal_id"`
		Voter       string `json:"voter"`
		Choice      string `json:"choice"`
		StakeAmount int64  `json:"stake_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	vote, err := h.governance.CastVote(r.Context(), req.ProposalID, req.Voter, repository.VoteChoice(req.Choice), req.StakeAmount)
	h.observe("vote_cast", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, vote)
}

// ExecuteProposal handles proposal execution HTTP requests
func (h *HTTPHandler) ExecuteProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ProposalID string `json:"proposal_id"`
		ExecutedBy string `json:"executed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	proposal, err := h.governance.ExecuteProposal(r.Context(), req.ProposalID, req.ExecutedBy)
	h.observe("proposal_execute", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proposal)
}

// ── Milestones ───────────────────────────────────────────────────────────────

// Milestones dispatches milestone collection requests by method.
func (h *HTTPHandler) Milestones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createMilestone(w, r)
	case http.MethodGet:
		h.listMilestones(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createMilestone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallerID      string `json:"caller_id"`
		ProposalID    string `json:"proposal_id"`
		Description   string `json:"description"`
		FundingAmount int64  `json:"funding_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	milestone, err := h.milestones.CreateMilestone(r.Context(), req.CallerID, req.ProposalID, req.Description, req.FundingAmount)
	h.observe("milestone_create", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, milestone)
}

func (h *HTTPHandler) listMilestones(w http.ResponseWriter, r *http.Request) {
	proposalID := r.URL.Query().Get("proposal_id")
	if proposalID == "" {
		http.Error(w, "Proposal ID is required", http.StatusBadRequest)
		return
	}

	milestones, err := h.milestones.ListMilestones(r.Context(), proposalID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"milestones": milestones})
}

// GetMilestone handles get milestone HTTP requests
func (h *HTTPHandler) GetMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Milestone ID is required", http.StatusBadRequest)
		return
	}

	milestone, err := h.milestones.GetMilestone(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, milestone)
}

// CompleteMilestone handles milestone completion HTTP requests
func (h *HTTPHandler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CallerID    string `json:"caller_id"`
		MilestoneID string `json:"milestone_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	milestone, err := h.milestones.CompleteMilestone(r.Context(), req.CallerID, req.MilestoneID)
	h.observe("milestone_complete", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, milestone)
}

// VoteOnMilestone handles milestone vote HTTP requests
func (h *HTTPHandler) VoteOnMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		MilestoneID string `json:"milestone_id"`
		Voter       string `json:"voter"`
		Approve     bool   `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	milestone, err := h.milestones.VoteOnMilestone(r.Context(), req.MilestoneID, req.Voter, req.Approve)
	h.observe("milestone_vote", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, milestone)
}

// ── Tranches ─────────────────────────────────────────────────────────────────

// Tranches dispatches tranche collection requests by method.
func (h *HTTPHandler) Tranches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTranche(w, r)
	case http.MethodGet:
		h.listTranches(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createTranche(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTrancheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tranche, err := h.tranches.CreateTranche(r.Context(), &req)
	h.observe("tranche_create", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tranche)
}

func (h *HTTPHandler) listTranches(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		http.Error(w, "Project ID is required", http.StatusBadRequest)
		return
	}

	status := r.URL.Query().Get("status")
	var statusPtr *repository.TrancheStatus
	if status != "" {
		s := repository.TrancheStatus(status)
		statusPtr = &s
	}

	page, pageSize := pagination(r)

	tranches, total, err := h.tranches.ListTranches(r.Context(), projectID, statusPtr, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tranches": tranches,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GetTranche handles get tranche HTTP requests
func (h *HTTPHandler) GetTranche(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Tranche ID is required", http.StatusBadRequest)
		return
	}

	tranche, err := h.tranches.GetTranche(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tranche)
}

// FundEscrow handles escrow funding HTTP requests
func (h *HTTPHandler) FundEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TrancheID string `json:"tranche_id"`
		CallerID  string `json:"caller_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tranche, err := h.tranches.FundEscrow(r.Context(), req.TrancheID, req.CallerID)
	h.observe("escrow_fund", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tranche)
}

// MarkMilestoneComplete handles tranche milestone delivery HTTP requests
func (h *HTTPHandler) MarkMilestoneComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TrancheID   string `json:"tranche_id"`
		CallerID    string `json:"caller_id"`
		EvidenceURL string `json:"evidence_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tranche, err := h.tranches.MarkMilestoneComplete(r.Context(), req.TrancheID, req.CallerID, req.EvidenceURL)
	h.observe("tranche_milestone_complete", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tranche)
}

// ApproveFunding handles funding approval HTTP requests
func (h *HTTPHandler) ApproveFunding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.ApproveFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tranche, err := h.tranches.ApproveFunding(r.Context(), &req)
	h.observe("funding_approve", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tranche)
}

// ReleaseFunds handles fund release HTTP requests
func (h *HTTPHandler) ReleaseFunds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.ReleaseFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	release, err := h.tranches.ReleaseFunds(r.Context(), &req)
	h.observe("funds_release", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, release)
}

// CompleteRelease handles reviewed release completion HTTP requests
func (h *HTTPHandler) CompleteRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TrancheID        string `json:"tranche_id"`
		ReleaseID        string `json:"release_id"`
		CallerID         string `json:"caller_id"`
		PaymentReference string `json:"payment_reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	release, err := h.tranches.CompleteRelease(r.Context(), req.TrancheID, req.ReleaseID, req.CallerID, req.PaymentReference)
	h.observe("release_complete", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, release)
}

// DisputeTranche handles tranche dispute HTTP requests
func (h *HTTPHandler) DisputeTranche(w http.ResponseWriter, r *http.Request) {
	h.sideExit(w, r, "tranche_dispute", h.tranches.DisputeTranche)
}

// CancelTranche handles tranche cancellation HTTP requests
func (h *HTTPHandler) CancelTranche(w http.ResponseWriter, r *http.Request) {
	h.sideExit(w, r, "tranche_cancel", h.tranches.CancelTranche)
}

// FailTranche handles tranche failure HTTP requests
func (h *HTTPHandler) FailTranche(w http.ResponseWriter, r *http.Request) {
	h.sideExit(w, r, "tranche_fail", h.tranches.FailTranche)
}

func (h *HTTPHandler) sideExit(w http.ResponseWriter, r *http.Request, command string, fn func(ctx context.Context, trancheID, callerID, reason string) (*repository.Tranche, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TrancheID string `json:"tranche_id"`
		CallerID  string `json:"caller_id"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tranche, err := fn(r.Context(), req.TrancheID, req.CallerID, req.Reason)
	h.observe(command, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tranche)
}

// GetFundingProgress handles funding progress HTTP requests
func (h *HTTPHandler) GetFundingProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("tranche_id")
	if id == "" {
		http.Error(w, "Tranche ID is required", http.StatusBadRequest)
		return
	}

	progress, err := h.tranches.GetFundingProgress(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// ListProjectReleases handles project release listing HTTP requests
func (h *HTTPHandler) ListProjectReleases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		http.Error(w, "Project ID is required", http.StatusBadRequest)
		return
	}

	releases, err := h.tranches.ListProjectReleases(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"releases": releases})
}

// ── Audit ────────────────────────────────────────────────────────────────────

// ListAuditLog handles audit log listing HTTP requests
func (h *HTTPHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resourceType := r.URL.Query().Get("resource_type")
	resourceID := r.URL.Query().Get("resource_id")
	if resourceType == "" || resourceID == "" {
		http.Error(w, "Resource type and resource ID are required", http.StatusBadRequest)
		return
	}

	entries, err := h.audit.ListByResource(r.Context(), resourceType, resourceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
