package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fundlio/be-governance/internal/database"
	"github.com/fundlio/be-governance/internal/errors"
)

// uniqueViolation is the Postgres error code raised by the
// (project_id, milestone_id) unique constraint.
const uniqueViolation = "23505"

// PostgresTrancheRepository implements TrancheStore on Postgres.
type PostgresTrancheRepository struct {
	db *database.DB
}

// NewPostgresTrancheRepository creates a new PostgresTrancheRepository.
func NewPostgresTrancheRepository(db *database.DB) *PostgresTrancheRepository {
	return &PostgresTrancheRepository{db: db}
}

// Create inserts a tranche; the unique (project_id, milestone_id) constraint
// surfaces as ErrCodeDuplicateTranche.
func (r *PostgresTrancheRepository) Create(ctx context.Context, t *Tranche) error {
	query := `
		INSERT INTO funding_tranches (project_id, milestone_id, title, amount,
		                              tranche_number, status, min_voting_threshold,
		                              requires_evidence, recipient_address, version)
		VALUES ($1, $2, $3, $4, $5, $6::tranche_status, $7, $8, $9, 1)
		RETURNING id, version, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.ProjectID,
		t.MilestoneID,
		t.Title,
		t.Amount,
		t.TrancheNumber,
		t.Status,
		t.MinVotingThreshold,
		t.RequiresEvidence,
		t.RecipientAddress,
	).Scan(&t.ID, &t.Version, &t.CreatedAt, &t.UpdatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Newf(errors.ErrCodeDuplicateTranche,
			"tranche already exists for project '%s' milestone '%s'", t.ProjectID, t.MilestoneID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create tranche")
	}
	return nil
}

// GetByID returns the tranche with its releases ordered oldest-first.
func (r *PostgresTrancheRepository) GetByID(ctx context.Context, id string) (*Tranche, error) {
	t := &Tranche{}

	query := `
		SELECT id, project_id, milestone_id, title, amount, tranche_number,
		       status, approved_by, approved_at, min_voting_threshold,
		       requires_evidence, evidence_url, actual_amount_released,
		       recipient_address, version, created_at, updated_at
		FROM funding_tranches
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.ProjectID,
		&t.MilestoneID,
		&t.Title,
		&t.Amount,
		&t.TrancheNumber,
		&t.Status,
		&t.ApprovedBy,
		&t.ApprovedAt,
		&t.MinVotingThreshold,
		&t.RequiresEvidence,
		&t.EvidenceURL,
		&t.ActualAmountReleased,
		&t.RecipientAddress,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("tranche", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get tranche")
	}

	releases, err := r.getReleases(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Releases = releases

	return t, nil
}

func (r *PostgresTrancheRepository) getReleases(ctx context.Context, trancheID string) ([]*Release, error) {
	query := `
		SELECT id, tranche_id, project_id, amount, status,
		       initiated_at, completed_at, payment_reference,
		       processed_by, requires_manual_review, is_verified
		FROM funding_releases
		WHERE tranche_id = $1
		ORDER BY initiated_at, id
	`
	rows, err := r.db.Query(ctx, query, trancheID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get releases")
	}
	defer rows.Close()

	return scanReleases(rows)
}

// ListByProject retrieves a project's tranches with optional status filter.
func (r *PostgresTrancheRepository) ListByProject(ctx context.Context, projectID string, status *TrancheStatus, limit, offset int) ([]*Tranche, int64, error) {
	query := `
		SELECT id, project_id, milestone_id, title, amount, tranche_number,
		       status, approved_by, approved_at, min_voting_threshold,
		       requires_evidence, evidence_url, actual_amount_released,
		       recipient_address, version, created_at, updated_at
		FROM funding_tranches
		WHERE project_id = $1
	`
	countQuery := `SELECT COUNT(*) FROM funding_tranches WHERE project_id = $1`

	args := []any{projectID}
	argCount := 2

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d::tranche_status", argCount)
		countQuery += fmt.Sprintf(" AND status = $%d::tranche_status", argCount)
		args = append(args, *status)
		argCount++
	}

	query += " ORDER BY tranche_number"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count tranches")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list tranches")
	}
	defer rows.Close()

	tranches := make([]*Tranche, 0)
	for rows.Next() {
		t := &Tranche{}
		err := rows.Scan(
			&t.ID,
			&t.ProjectID,
			&t.MilestoneID,
			&t.Title,
			&t.Amount,
			&t.TrancheNumber,
			&t.Status,
			&t.ApprovedBy,
			&t.ApprovedAt,
			&t.MinVotingThreshold,
			&t.RequiresEvidence,
			&t.EvidenceURL,
			&t.ActualAmountReleased,
			&t.RecipientAddress,
			&t.Version,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan tranche")
		}
		tranches = append(tranches, t)
	}

	return tranches, total, nil
}

// Update writes the tranche header with a version check.
func (r *PostgresTrancheRepository) Update(ctx context.Context, t *Tranche) error {
	err := r.updateHeader(ctx, r.db.QueryRow, t)
	if err == pgx.ErrNoRows {
		return r.versionError(ctx, t.ID)
	}
	return err
}

type rowQuerier func(ctx context.Context, sql string, args ...any) pgx.Row

func (r *PostgresTrancheRepository) updateHeader(ctx context.Context, queryRow rowQuerier, t *Tranche) error {
	query := `
		UPDATE funding_tranches
		SET status = $3::tranche_status,
		    approved_by = $4,
		    approved_at = $5,
		    evidence_url = $6,
		    actual_amount_released = $7,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	err := queryRow(ctx, query,
		t.ID, t.Version,
		t.Status, t.ApprovedBy, t.ApprovedAt, t.EvidenceURL, t.ActualAmountReleased,
	).Scan(&t.Version, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return err
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update tranche")
	}
	return nil
}

// RecordRelease updates the tranche header and inserts the release in one
// transaction, guarded by the tranche version the caller read.
func (r *PostgresTrancheRepository) RecordRelease(ctx context.Context, t *Tranche, rel *Release) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := r.updateHeader(ctx, tx.QueryRow, t); err != nil {
			if err == pgx.ErrNoRows {
				return r.versionError(ctx, t.ID)
			}
			return err
		}

		query := `
			INSERT INTO funding_releases (tranche_id, project_id, amount, status,
			                              initiated_at, completed_at, payment_reference,
			                              processed_by, requires_manual_review, is_verified)
			VALUES ($1, $2, $3, $4::release_status, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			rel.TrancheID,
			rel.ProjectID,
			rel.Amount,
			rel.Status,
			rel.InitiatedAt,
			rel.CompletedAt,
			rel.PaymentReference,
			rel.ProcessedBy,
			rel.RequiresManualReview,
			rel.IsVerified,
		).Scan(&rel.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record release")
		}
		return nil
	})
}

// UpdateRelease updates the tranche header and an existing release in one
// transaction, guarded by the tranche version the caller read.
func (r *PostgresTrancheRepository) UpdateRelease(ctx context.Context, t *Tranche, rel *Release) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := r.updateHeader(ctx, tx.QueryRow, t); err != nil {
			if err == pgx.ErrNoRows {
				return r.versionError(ctx, t.ID)
			}
			return err
		}

		query := `
			UPDATE funding_releases
			SET status = $2::release_status,
			    completed_at = $3,
			    payment_reference = $4,
			    is_verified = $5
			WHERE id = $1
			RETURNING id
		`
		var returnedID string
		err := tx.QueryRow(ctx, query,
			rel.ID, rel.Status, rel.CompletedAt, rel.PaymentReference, rel.IsVerified,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("release", rel.ID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update release")
		}
		return nil
	})
}

// ListReleasesByProject returns all releases across a project's tranches.
func (r *PostgresTrancheRepository) ListReleasesByProject(ctx context.Context, projectID string) ([]*Release, error) {
	query := `
		SELECT id, tranche_id, project_id, amount, status,
		       initiated_at, completed_at, payment_reference,
		       processed_by, requires_manual_review, is_verified
		FROM funding_releases
		WHERE project_id = $1
		ORDER BY initiated_at, id
	`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list project releases")
	}
	defer rows.Close()

	return scanReleases(rows)
}

func scanReleases(rows pgx.Rows) ([]*Release, error) {
	releases := make([]*Release, 0)
	for rows.Next() {
		rel := &Release{}
		err := rows.Scan(
			&rel.ID,
			&rel.TrancheID,
			&rel.ProjectID,
			&rel.Amount,
			&rel.Status,
			&rel.InitiatedAt,
			&rel.CompletedAt,
			&rel.PaymentReference,
			&rel.ProcessedBy,
			&rel.RequiresManualReview,
			&rel.IsVerified,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan release")
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

func (r *PostgresTrancheRepository) versionError(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM funding_tranches WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check tranche existence")
	}
	if !exists {
		return errors.NotFound("tranche", id)
	}
	return errors.Conflict("tranche was modified concurrently, retry the operation")
}
