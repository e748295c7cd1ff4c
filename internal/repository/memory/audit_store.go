package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fundlio/be-governance/internal/repository"
)

// AuditStore is an in-memory repository.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*repository.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append records one audit entry.
func (s *AuditStore) Append(ctx context.Context, entry *repository.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.PerformedAt = time.Now()
	s.entries = append(s.entries, cloneAuditEntry(entry))
	return nil
}

// ListByResource returns the audit trail for a resource, oldest first.
func (s *AuditStore) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*repository.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*repository.AuditEntry, 0)
	for _, e := range s.entries {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			matched = append(matched, cloneAuditEntry(e))
		}
	}
	return matched, nil
}
