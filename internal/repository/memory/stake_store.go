package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fundlio/be-governance/internal/errors"
	"github.com/fundlio/be-governance/internal/repository"
)

// StakeStore is an in-memory repository.StakeStore.
type StakeStore struct {
	mu     sync.RWMutex
	stakes map[string]*repository.Stake
}

// NewStakeStore creates an empty StakeStore.
func NewStakeStore() *StakeStore {
	return &StakeStore{stakes: make(map[string]*repository.Stake)}
}

// Get returns the participant's stake, or ErrCodeNotFound.
func (s *StakeStore) Get(ctx context.Context, participant string) (*repository.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stake, ok := s.stakes[participant]
	if !ok {
		return nil, errors.NotFound("stake", participant)
	}
	return cloneStake(stake), nil
}

// Create inserts a new stake record at version 1.
func (s *StakeStore) Create(ctx context.Context, stake *repository.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stakes[stake.Participant]; ok {
		return errors.Conflict("stake already exists for participant " + stake.Participant)
	}
	stake.Version = 1
	stake.UpdatedAt = time.Now()
	if stake.Locked == nil {
		stake.Locked = make(map[string]int64)
	}
	s.stakes[stake.Participant] = cloneStake(stake)
	return nil
}

// Update writes the stake record with a version check.
func (s *StakeStore) Update(ctx context.Context, stake *repository.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stakes[stake.Participant]
	if !ok {
		return errors.NotFound("stake", stake.Participant)
	}
	if existing.Version != stake.Version {
		return errors.Conflict("stake was modified concurrently, retry the operation")
	}
	stake.Version++
	stake.UpdatedAt = time.Now()
	s.stakes[stake.Participant] = cloneStake(stake)
	return nil
}

// TotalSupply sums all participants' staked tokens.
func (s *StakeStore) TotalSupply(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, stake := range s.stakes {
		total += stake.TotalStaked
	}
	return total, nil
}
