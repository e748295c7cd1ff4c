package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fundlio/be-governance/internal/database"
	"github.com/fundlio/be-governance/internal/errors"
)

// PostgresProposalRepository implements ProposalStore on Postgres.
type PostgresProposalRepository struct {
	db *database.DB
}

// NewPostgresProposalRepository creates a new PostgresProposalRepository.
func NewPostgresProposalRepository(db *database.DB) *PostgresProposalRepository {
	return &PostgresProposalRepository{db: db}
}

// Create inserts a new proposal at version 1. The id is assigned by the
// caller: the proposer's bond is locked against it before the insert.
func (r *PostgresProposalRepository) Create(ctx context.Context, p *Proposal) error {
	query := `
		INSERT INTO proposals (id, proposer, title, description, requested_amount,
		                       state, start_time, end_time, version)
		VALUES ($1, $2, $3, $4, $5, $6::proposal_state, $7, $8, 1)
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.Proposer,
		p.Title,
		p.Description,
		p.RequestedAmount,
		p.State,
		p.StartTime,
		p.EndTime,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create proposal")
	}
	return nil
}

// GetByID returns the proposal with its votes ordered oldest-first.
func (r *PostgresProposalRepository) GetByID(ctx context.Context, id string) (*Proposal, error) {
	p := &Proposal{}

	query := `
		SELECT id, proposer, title, description, requested_amount,
		       state, start_time, end_time,
		       for_votes, against_votes, abstain_votes,
		       total_locked_stake, executed, version,
		       created_at, updated_at
		FROM proposals
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Proposer,
		&p.Title,
		&p.Description,
		&p.RequestedAmount,
		&p.State,
		&p.StartTime,
		&p.EndTime,
		&p.ForVotes,
		&p.AgainstVotes,
		&p.AbstainVotes,
		&p.TotalLockedStake,
		&p.Executed,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("proposal", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal")
	}

	votes, err := r.getVotes(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Votes = votes

	return p, nil
}

func (r *PostgresProposalRepository) getVotes(ctx context.Context, proposalID string) ([]*Vote, error) {
	query := `
		SELECT id, proposal_id, voter, choice, power, cast_at
		FROM proposal_votes
		WHERE proposal_id = $1
		ORDER BY cast_at, id
	`
	rows, err := r.db.Query(ctx, query, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal votes")
	}
	defer rows.Close()

	votes := make([]*Vote, 0)
	for rows.Next() {
		v := &Vote{}
		if err := rows.Scan(&v.ID, &v.ProposalID, &v.Voter, &v.Choice, &v.Power, &v.CastAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan vote")
		}
		votes = append(votes, v)
	}
	return votes, nil
}

// List retrieves proposals with filtering and pagination, newest first.
func (r *PostgresProposalRepository) List(ctx context.Context, proposer *string, state *ProposalState, limit, offset int) ([]*Proposal, int64, error) {
	query := `
		SELECT id, proposer, title, description, requested_amount,
		       state, start_time, end_time,
		       for_votes, against_votes, abstain_votes,
		       total_locked_stake, executed, version,
		       created_at, updated_at
		FROM proposals
		WHERE TRUE
	`
	countQuery := `SELECT COUNT(*) FROM proposals WHERE TRUE`

	args := []any{}
	argCount := 1

	if proposer != nil {
		query += fmt.Sprintf(" AND proposer = $%d", argCount)
		countQuery += fmt.Sprintf(" AND proposer = $%d", argCount)
		args = append(args, *proposer)
		argCount++
	}
	if state != nil {
		query += fmt.Sprintf(" AND state = $%d::proposal_state", argCount)
		countQuery += fmt.Sprintf(" AND state = $%d::proposal_state", argCount)
		args = append(args, *state)
		argCount++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count proposals")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list proposals")
	}
	defer rows.Close()

	proposals := make([]*Proposal, 0)
	for rows.Next() {
		p := &Proposal{}
		err := rows.Scan(
			&p.ID,
			&p.Proposer,
			&p.Title,
			&p.Description,
			&p.RequestedAmount,
			&p.State,
			&p.StartTime,
			&p.EndTime,
			&p.ForVotes,
			&p.AgainstVotes,
			&p.AbstainVotes,
			&p.TotalLockedStake,
			&p.Executed,
			&p.Version,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan proposal")
		}
		proposals = append(proposals, p)
	}

	return proposals, total, nil
}

// Update writes the proposal header with a version check.
func (r *PostgresProposalRepository) Update(ctx context.Context, p *Proposal) error {
	query := `
		UPDATE proposals
		SET state = $3::proposal_state,
		    for_votes = $4,
		    against_votes = $5,
		    abstain_votes = $6,
		    total_locked_stake = $7,
		    executed = $8,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.Version,
		p.State, p.ForVotes, p.AgainstVotes, p.AbstainVotes,
		p.TotalLockedStake, p.Executed,
	).Scan(&p.Version, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return r.versionError(ctx, p.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update proposal")
	}
	return nil
}

// RecordVote updates tallies and appends the vote in one transaction,
// guarded by the proposal version the caller read.
func (r *PostgresProposalRepository) RecordVote(ctx context.Context, p *Proposal, v *Vote) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE proposals
			SET for_votes = $3,
			    against_votes = $4,
			    abstain_votes = $5,
			    total_locked_stake = $6,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		err := tx.QueryRow(ctx, query,
			p.ID, p.Version,
			p.ForVotes, p.AgainstVotes, p.AbstainVotes, p.TotalLockedStake,
		).Scan(&p.Version, &p.UpdatedAt)
		if err == pgx.ErrNoRows {
			return r.versionError(ctx, p.ID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update proposal tallies")
		}

		voteQuery := `
			INSERT INTO proposal_votes (proposal_id, voter, choice, power, cast_at)
			VALUES ($1, $2, $3::vote_choice, $4, $5)
			RETURNING id
		`
		err = tx.QueryRow(ctx, voteQuery, v.ProposalID, v.Voter, v.Choice, v.Power, v.CastAt).
			Scan(&v.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record vote")
		}
		return nil
	})
}

func (r *PostgresProposalRepository) versionError(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM proposals WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check proposal existence")
	}
	if !exists {
		return errors.NotFound("proposal", id)
	}
	return errors.Conflict("proposal was modified concurrently, retry the operation")
}
