package repository

import "context"

// Store interfaces for each transactional aggregate. All Update-style methods
// perform an optimistic version check against the Version field the caller
// read: on success the in-memory Version is incremented, on a lost race the
// call fails with ErrCodeConflict and the aggregate is left unchanged.

// StakeStore persists per-participant stake balances.
type StakeStore interface {
	// Get returns the participant's stake, or ErrCodeNotFound.
	Get(ctx context.Context, participant string) (*Stake, error)
	// Create inserts a new stake record at version 1.
	Create(ctx context.Context, stake *Stake) error
	// Update writes the full stake record with a version check.
	Update(ctx context.Context, stake *Stake) error
	// TotalSupply returns the sum of all participants' TotalStaked,
	// read at call time (never cached).
	TotalSupply(ctx context.Context) (int64, error)
}

// ProposalStore persists proposals and their votes.
type ProposalStore interface {
	Create(ctx context.Context, proposal *Proposal) error
	// GetByID returns the proposal with its votes, ordered by cast time.
	GetByID(ctx context.Context, id string) (*Proposal, error)
	// List filters by proposer and/or state with pagination.
	List(ctx context.Context, proposer *string, state *ProposalState, limit, offset int) ([]*Proposal, int64, error)
	// Update writes proposal header fields with a version check.
	Update(ctx context.Context, proposal *Proposal) error
	// RecordVote atomically updates the proposal header (tallies,
	// TotalLockedStake) and appends the vote, with a version check.
	RecordVote(ctx context.Context, proposal *Proposal, vote *Vote) error
}

// MilestoneStore persists milestones.
type MilestoneStore interface {
	Create(ctx context.Context, milestone *Milestone) error
	GetByID(ctx context.Context, id string) (*Milestone, error)
	ListByProposal(ctx context.Context, proposalID string) ([]*Milestone, error)
	Update(ctx context.Context, milestone *Milestone) error
}

// TrancheStore persists tranches and their releases.
type TrancheStore interface {
	// Create inserts a tranche; fails with ErrCodeDuplicateTranche when a
	// tranche already exists for the (projectID, milestoneID) pair.
	Create(ctx context.Context, tranche *Tranche) error
	// GetByID returns the tranche with its releases.
	GetByID(ctx context.Context, id string) (*Tranche, error)
	ListByProject(ctx context.Context, projectID string, status *TrancheStatus, limit, offset int) ([]*Tranche, int64, error)
	// Update writes tranche header fields with a version check.
	Update(ctx context.Context, tranche *Tranche) error
	// RecordRelease atomically updates the tranche header and inserts the
	// release, with a version check.
	RecordRelease(ctx context.Context, tranche *Tranche, release *Release) error
	// UpdateRelease atomically updates the tranche header and an existing
	// release, with a version check.
	UpdateRelease(ctx context.Context, tranche *Tranche, release *Release) error
	// ListReleasesByProject returns all releases across a project's tranches.
	ListReleasesByProject(ctx context.Context, projectID string) ([]*Release, error)
}

// AuditStore appends and reads immutable audit log entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]*AuditEntry, error)
}
