package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fundlio/be-governance/internal/database"
	"github.com/fundlio/be-governance/internal/errors"
)

// PostgresStakeRepository implements StakeStore on Postgres.
type PostgresStakeRepository struct {
	db *database.DB
}

// NewPostgresStakeRepository creates a new PostgresStakeRepository.
func NewPostgresStakeRepository(db *database.DB) *PostgresStakeRepository {
	return &PostgresStakeRepository{db: db}
}

// Get returns the participant's stake with all per-proposal locks.
func (r *PostgresStakeRepository) Get(ctx context.Context, participant string) (*Stake, error) {
	stake := &Stake{Participant: participant, Locked: make(map[string]int64)}

	query := `
		SELECT total_staked, version, updated_at
		FROM stakes
		WHERE participant = $1
	`
	err := r.db.QueryRow(ctx, query, participant).Scan(
		&stake.TotalStaked, &stake.Version, &stake.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("stake", participant)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get stake")
	}

	lockQuery := `
		SELECT proposal_id, amount
		FROM stake_locks
		WHERE participant = $1
	`
	rows, err := r.db.Query(ctx, lockQuery, participant)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get stake locks")
	}
	defer rows.Close()

	for rows.Next() {
		var proposalID string
		var amount int64
		if err := rows.Scan(&proposalID, &amount); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stake lock")
		}
		stake.Locked[proposalID] = amount
	}

	return stake, nil
}

// Create inserts a new stake record at version 1.
func (r *PostgresStakeRepository) Create(ctx context.Context, stake *Stake) error {
	query := `
		INSERT INTO stakes (participant, total_staked, version)
		VALUES ($1, $2, 1)
		RETURNING version, updated_at
	`
	err := r.db.QueryRow(ctx, query, stake.Participant, stake.TotalStaked).
		Scan(&stake.Version, &stake.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create stake")
	}
	return nil
}

// Update writes the stake balance and replaces its lock set, guarded by the
// version the caller read.
func (r *PostgresStakeRepository) Update(ctx context.Context, stake *Stake) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE stakes
			SET total_staked = $3,
			    version = version + 1,
			    updated_at = NOW()
			WHERE participant = $1 AND version = $2
			RETURNING version, updated_at
		`
		err := tx.QueryRow(ctx, query, stake.Participant, stake.Version, stake.TotalStaked).
			Scan(&stake.Version, &stake.UpdatedAt)
		if err == pgx.ErrNoRows {
			return r.versionError(ctx, tx, stake.Participant)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update stake")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM stake_locks WHERE participant = $1`, stake.Participant); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear stake locks")
		}
		for proposalID, amount := range stake.Locked {
			_, err := tx.Exec(ctx,
				`INSERT INTO stake_locks (participant, proposal_id, amount) VALUES ($1, $2, $3)`,
				stake.Participant, proposalID, amount)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to write stake lock")
			}
		}
		return nil
	})
	return err
}

// TotalSupply sums all participants' staked tokens at call time.
func (r *PostgresStakeRepository) TotalSupply(ctx context.Context) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(total_staked), 0) FROM stakes`
	if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to compute total supply")
	}
	return total, nil
}

// versionError distinguishes a missing row from a lost version race.
func (r *PostgresStakeRepository) versionError(ctx context.Context, tx pgx.Tx, participant string) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stakes WHERE participant = $1)`, participant).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check stake existence")
	}
	if !exists {
		return errors.NotFound("stake", participant)
	}
	return errors.Conflict("stake was modified concurrently, retry the operation")
}
