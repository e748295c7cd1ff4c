package repository

import (
	"context"
	"encoding/json"

	"github.com/fundlio/be-governance/internal/database"
	"github.com/fundlio/be-governance/internal/errors"
)

// PostgresAuditRepository appends and reads immutable governance audit
// log entries. Append is the only mutation exposed.
type PostgresAuditRepository struct {
	db *database.DB
}

// NewPostgresAuditRepository creates a new PostgresAuditRepository.
func NewPostgresAuditRepository(db *database.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *PostgresAuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO governance_audit_log
		    (resource_type, resource_id, action, performed_by,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, performed_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ResourceType,
		entry.ResourceID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByResource returns the audit trail for a resource, oldest first.
func (r *PostgresAuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, resource_type, resource_id, action, performed_by,
		       performed_at, status_before, status_after, metadata
		FROM governance_audit_log
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY performed_at ASC
	`
	rows, err := r.db.Query(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.ResourceType,
			&entry.ResourceID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
