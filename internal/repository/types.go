package repository

import "time"

// ── Proposal voting ──────────────────────────────────────────────────────────

// ProposalState is the lifecycle state of a funding proposal.
type ProposalState string

const (
	ProposalStateActive    ProposalState = "active"
	ProposalStateSucceeded ProposalState = "succeeded"
	ProposalStateFailed    ProposalState = "failed"
)

// VoteChoice is the direction of a proposal vote.
type VoteChoice string

const (
	VoteFor     VoteChoice = "for"
	VoteAgainst VoteChoice = "against"
	VoteAbstain VoteChoice = "abstain"
)

// Proposal is a funding request put to a stake-weighted vote.
// Tallies are token-weighted; TotalLockedStake always equals the sum of
// the recorded votes' Power.
type Proposal struct {
	ID               string
	Proposer         string
	Title            string
	Description      string
	RequestedAmount  int64
	State            ProposalState
	StartTime        time.Time
	EndTime          time.Time
	ForVotes         int64
	AgainstVotes     int64
	AbstainVotes     int64
	TotalLockedStake int64
	Executed         bool
	Votes            []*Vote // ordered by cast time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasVoted reports whether the participant already cast a vote.
func (p *Proposal) HasVoted(voter string) bool {
	for _, v := range p.Votes {
		if v.Voter == voter {
			return true
		}
	}
	return false
}

// TotalVotes is the quorum-relevant tally (abstain included).
func (p *Proposal) TotalVotes() int64 {
	return p.ForVotes + p.AgainstVotes + p.AbstainVotes
}

// Vote is an immutable record of one participant's proposal vote.
type Vote struct {
	ID         string
	ProposalID string
	Voter      string
	Choice     VoteChoice
	Power      int64 // stake locked behind this vote
	CastAt     time.Time
}

// ── Stake ledger ─────────────────────────────────────────────────────────────

// Stake is one participant's balance: total staked tokens plus the portions
// locked against individual proposals.
type Stake struct {
	Participant string
	TotalStaked int64
	Locked      map[string]int64 // proposal id -> locked amount
	Version     int64
	UpdatedAt   time.Time
}

// LockedTotal is the sum of all per-proposal locks.
func (s *Stake) LockedTotal() int64 {
	var total int64
	for _, amount := range s.Locked {
		total += amount
	}
	return total
}

// Unlocked is the stake available for new locks or unstaking.
func (s *Stake) Unlocked() int64 {
	return s.TotalStaked - s.LockedTotal()
}

// ── Milestones ───────────────────────────────────────────────────────────────

// Milestone is a deliverable of a succeeded proposal. Fund release is gated
// behind completion plus a second stake-weighted approval vote.
type Milestone struct {
	ID             string
	ProposalID     string
	Description    string
	FundingAmount  int64
	Completed      bool
	Approved       bool
	ApprovalVotes  int64
	RejectionVotes int64
	VotingDeadline *time.Time      // set when the milestone is marked complete
	Voters         map[string]bool // hasVoted set
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ── Tranches and releases ────────────────────────────────────────────────────

// TrancheStatus is the lifecycle state of an escrowed funding tranche.
type TrancheStatus string

const (
	TrancheStatusPending          TrancheStatus = "pending"
	TrancheStatusInEscrow         TrancheStatus = "in_escrow"
	TrancheStatusAwaitingApproval TrancheStatus = "awaiting_approval"
	TrancheStatusApproved         TrancheStatus = "approved"
	TrancheStatusReleased         TrancheStatus = "released"
	TrancheStatusDisputed         TrancheStatus = "disputed"
	TrancheStatusCancelled        TrancheStatus = "cancelled"
	TrancheStatusFailed           TrancheStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TrancheStatus) Terminal() bool {
	switch s {
	case TrancheStatusReleased, TrancheStatusCancelled, TrancheStatusFailed:
		return true
	}
	return false
}

// Tranche is one escrowed slice of a project's funding, tied to a milestone.
// ActualAmountReleased never exceeds Amount; it equals the sum of completed
// release amounts.
type Tranche struct {
	ID                   string
	ProjectID            string
	MilestoneID          string
	Title                string
	Amount               int64
	TrancheNumber        int
	Status               TrancheStatus
	ApprovedBy           *string
	ApprovedAt           *time.Time
	MinVotingThreshold   int64
	RequiresEvidence     bool
	EvidenceURL          *string
	ActualAmountReleased int64
	RecipientAddress     string
	Releases             []*Release
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Remaining is the amount still held in escrow for this tranche.
func (t *Tranche) Remaining() int64 {
	return t.Amount - t.ActualAmountReleased
}

// ReleaseStatus is the processing state of one fund release.
type ReleaseStatus string

const (
	ReleaseStatusUnderReview ReleaseStatus = "under_review"
	ReleaseStatusProcessing  ReleaseStatus = "processing"
	ReleaseStatusCompleted   ReleaseStatus = "completed"
	ReleaseStatusFailed      ReleaseStatus = "failed"
)

// Release is one (possibly partial) disbursement against a tranche.
type Release struct {
	ID                   string
	TrancheID            string
	ProjectID            string
	Amount               int64
	Status               ReleaseStatus
	InitiatedAt          time.Time
	CompletedAt          *time.Time
	PaymentReference     *string // settlement tx hash or bank reference
	ProcessedBy          string
	RequiresManualReview bool
	IsVerified           bool
}

// ── Audit log ────────────────────────────────────────────────────────────────

// AuditEntry is one immutable record in the governance audit log.
type AuditEntry struct {
	ID           string
	ResourceType string // proposal | milestone | tranche | stake
	ResourceID   string
	Action       string
	PerformedBy  string
	PerformedAt  time.Time
	StatusBefore *string
	StatusAfter  *string
	Metadata     map[string]interface{}
}
