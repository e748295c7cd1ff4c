package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/repository"
)

// MilestoneStore is an in-memory repository.MilestoneStore.
type MilestoneStore struct {
	mu         sync.RWMutex
	milestones map[string]*repository.Milestone
}

// NewMilestoneStore creates an empty MilestoneStore.
func NewMilestoneStore() *MilestoneStore {
	return &MilestoneStore{milestones: make(map[string]*repository.Milestone)}
}

// Create inserts a new milestone at version 1, assigning an id when missing.
func (s *MilestoneStore) Create(ctx context.Context, m *repository.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Voters == nil {
		m.Voters = make(map[string]bool)
	}
	s.milestones[m.ID] = cloneMilestone(m)
	return nil
}

// GetByID returns the milestone, or ErrCodeNotFound.
func (s *MilestoneStore) GetByID(ctx context.Context, id string) (*repository.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.milestones[id]
	if !ok {
		return nil, errors.NotFound("milestone", id)
	}
	return cloneMilestone(m), nil
}

// ListByProposal returns all milestones of a proposal, oldest first.
func (s *MilestoneStore) ListByProposal(ctx context.Context, proposalID string) ([]*repository.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*repository.Milestone, 0)
	for _, m := range s.milestones {
		if m.ProposalID == proposalID {
			matched = append(matched, cloneMilestone(m))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// Update writes the milestone with a version check.
func (s *MilestoneStore) Update(ctx context.Context, m *repository.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.milestones[m.ID]
	if !ok {
		return errors.NotFound("milestone", m.ID)
	}
	if existing.Version != m.Version {
		return errors.Conflict("milestone was modified concurrently, retry the operation")
	}
	m.Version++
	m.UpdatedAt = time.Now()
	s.milestones[m.ID] = cloneMilestone(m)
	return nil
}
