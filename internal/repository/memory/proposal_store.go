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

// ProposalStore is an in-memory repository.ProposalStore.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals map[string]*repository.Proposal
}

// NewProposalStore creates an empty ProposalStore.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{proposals: make(map[string]*repository.Proposal)}
}

// Create inserts a new proposal at version 1, assigning an id when missing.
func (s *ProposalStore) Create(ctx context.Context, p *repository.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	s.proposals[p.ID] = cloneProposal(p)
	return nil
}

// GetByID returns the proposal with its votes.
func (s *ProposalStore) GetByID(ctx context.Context, id string) (*repository.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, errors.NotFound("proposal", id)
	}
	return cloneProposal(p), nil
}

// List filters by proposer and/or state, newest first.
func (s *ProposalStore) List(ctx context.Context, proposer *string, state *repository.ProposalState, limit, offset int) ([]*repository.Proposal, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*repository.Proposal, 0)
	for _, p := range s.proposals {
		if proposer != nil && p.Proposer != *proposer {
			continue
		}
		if state != nil && p.State != *state {
			continue
		}
		matched = append(matched, cloneProposal(p))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*repository.Proposal{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// Update writes the proposal header with a version check.
func (s *ProposalStore) Update(ctx context.Context, p *repository.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.proposals[p.ID]
	if !ok {
		return errors.NotFound("proposal", p.ID)
	}
	if existing.Version != p.Version {
		return errors.Conflict("proposal was modified concurrently, retry the operation")
	}
	p.Version++
	p.UpdatedAt = time.Now()
	stored := cloneProposal(p)
	stored.Votes = existing.Votes // header update never touches votes
	s.proposals[p.ID] = stored
	return nil
}

// RecordVote updates tallies and appends the vote atomically with a
// version check.
func (s *ProposalStore) RecordVote(ctx context.Context, p *repository.Proposal, v *repository.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.proposals[p.ID]
	if !ok {
		return errors.NotFound("proposal", p.ID)
	}
	if existing.Version != p.Version {
		return errors.Conflict("proposal was modified concurrently, retry the operation")
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	p.Version++
	p.UpdatedAt = time.Now()
	stored := cloneProposal(p)
	stored.Votes = append(existing.Votes, cloneVote(v))
	s.proposals[p.ID] = stored
	return nil
}
