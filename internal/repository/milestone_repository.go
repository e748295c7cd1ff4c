package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fundlio/be-governance/internal/database"
	"github.com/fundlio/be-governance/internal/errors"
)

// PostgresMilestoneRepository implements MilestoneStore on Postgres.
type PostgresMilestoneRepository struct {
	db *database.DB
}

// NewPostgresMilestoneRepository creates a new PostgresMilestoneRepository.
func NewPostgresMilestoneRepository(db *database.DB) *PostgresMilestoneRepository {
	return &PostgresMilestoneRepository{db: db}
}

// Create inserts a new milestone at version 1.
func (r *PostgresMilestoneRepository) Create(ctx context.Context, m *Milestone) error {
	query := `
		INSERT INTO milestones (proposal_id, description, funding_amount, version)
		VALUES ($1, $2, $3, 1)
		RETURNING id, version, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, m.ProposalID, m.Description, m.FundingAmount).
		Scan(&m.ID, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create milestone")
	}
	return nil
}

// GetByID returns the milestone with its voter set.
func (r *PostgresMilestoneRepository) GetByID(ctx context.Context, id string) (*Milestone, error) {
	m := &Milestone{Voters: make(map[string]bool)}

	query := `
		SELECT id, proposal_id, description, funding_amount,
		       completed, approved, approval_votes, rejection_votes,
		       voting_deadline, version, created_at, updated_at
		FROM milestones
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.ProposalID,
		&m.Description,
		&m.FundingAmount,
		&m.Completed,
		&m.Approved,
		&m.ApprovalVotes,
		&m.RejectionVotes,
		&m.VotingDeadline,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("milestone", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get milestone")
	}

	rows, err := r.db.Query(ctx,
		`SELECT voter FROM milestone_voters WHERE milestone_id = $1`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get milestone voters")
	}
	defer rows.Close()

	for rows.Next() {
		var voter string
		if err := rows.Scan(&voter); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan milestone voter")
		}
		m.Voters[voter] = true
	}

	return m, nil
}

// ListByProposal returns all milestones of a proposal, oldest first.
func (r *PostgresMilestoneRepository) ListByProposal(ctx context.Context, proposalID string) ([]*Milestone, error) {
	query := `
		SELECT id, proposal_id, description, funding_amount,
		       completed, approved, approval_votes, rejection_votes,
		       voting_deadline, version, created_at, updated_at
		FROM milestones
		WHERE proposal_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list milestones")
	}
	defer rows.Close()

	milestones := make([]*Milestone, 0)
	for rows.Next() {
		m := &Milestone{Voters: make(map[string]bool)}
		err := rows.Scan(
			&m.ID,
			&m.ProposalID,
			&m.Description,
			&m.FundingAmount,
			&m.Completed,
			&m.Approved,
			&m.ApprovalVotes,
			&m.RejectionVotes,
			&m.VotingDeadline,
			&m.Version,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan milestone")
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}

// Update writes the milestone header and adds any new voters, guarded by the
// version the caller read. Voter rows are never removed.
func (r *PostgresMilestoneRepository) Update(ctx context.Context, m *Milestone) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE milestones
			SET completed = $3,
			    approved = $4,
			    approval_votes = $5,
			    rejection_votes = $6,
			    voting_deadline = $7,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		err := tx.QueryRow(ctx, query,
			m.ID, m.Version,
			m.Completed, m.Approved, m.ApprovalVotes, m.RejectionVotes, m.VotingDeadline,
		).Scan(&m.Version, &m.UpdatedAt)
		if err == pgx.ErrNoRows {
			return r.versionError(ctx, tx, m.ID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update milestone")
		}

		for voter := range m.Voters {
			_, err := tx.Exec(ctx, `
				INSERT INTO milestone_voters (milestone_id, voter)
				VALUES ($1, $2)
				ON CONFLICT (milestone_id, voter) DO NOTHING
			`, m.ID, voter)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to record milestone voter")
			}
		}
		return nil
	})
}

func (r *PostgresMilestoneRepository) versionError(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM milestones WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check milestone existence")
	}
	if !exists {
		return errors.NotFound("milestone", id)
	}
	return errors.Conflict("milestone was modified concurrently, retry the operation")
}
