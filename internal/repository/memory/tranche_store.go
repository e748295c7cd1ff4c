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

// TrancheStore is an in-memory repository.TrancheStore.
type TrancheStore struct {
	mu       sync.RWMutex
	tranches map[string]*repository.Tranche
	byPair   map[string]string // projectID + "/" + milestoneID -> tranche id
}

// NewTrancheStore creates an empty TrancheStore.
func NewTrancheStore() *TrancheStore {
	return &TrancheStore{
		tranches: make(map[string]*repository.Tranche),
		byPair:   make(map[string]string),
	}
}

func pairKey(projectID, milestoneID string) string {
	return projectID + "/" + milestoneID
}

// Create inserts a tranche, enforcing (projectID, milestoneID) uniqueness.
func (s *TrancheStore) Create(ctx context.Context, t *repository.Tranche) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(t.ProjectID, t.MilestoneID)
	if _, ok := s.byPair[key]; ok {
		return errors.Newf(errors.ErrCodeDuplicateTranche,
			"tranche already exists for project '%s' milestone '%s'", t.ProjectID, t.MilestoneID)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tranches[t.ID] = cloneTranche(t)
	s.byPair[key] = t.ID
	return nil
}

// GetByID returns the tranche with its releases.
func (s *TrancheStore) GetByID(ctx context.Context, id string) (*repository.Tranche, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tranches[id]
	if !ok {
		return nil, errors.NotFound("tranche", id)
	}
	return cloneTranche(t), nil
}

// ListByProject returns a project's tranches ordered by tranche number.
func (s *TrancheStore) ListByProject(ctx context.Context, projectID string, status *repository.TrancheStatus, limit, offset int) ([]*repository.Tranche, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*repository.Tranche, 0)
	for _, t := range s.tranches {
		if t.ProjectID != projectID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		matched = append(matched, cloneTranche(t))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].TrancheNumber < matched[j].TrancheNumber
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*repository.Tranche{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// Update writes the tranche header with a version check.
func (s *TrancheStore) Update(ctx context.Context, t *repository.Tranche) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.checkVersion(t)
	if err != nil {
		return err
	}
	t.Version++
	t.UpdatedAt = time.Now()
	stored := cloneTranche(t)
	stored.Releases = existing.Releases // header update never touches releases
	s.tranches[t.ID] = stored
	return nil
}

// RecordRelease updates the tranche header and appends the release
// atomically with a version check.
func (s *TrancheStore) RecordRelease(ctx context.Context, t *repository.Tranche, rel *repository.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.checkVersion(t)
	if err != nil {
		return err
	}
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	t.Version++
	t.UpdatedAt = time.Now()
	stored := cloneTranche(t)
	stored.Releases = append(existing.Releases, cloneRelease(rel))
	s.tranches[t.ID] = stored
	return nil
}

// UpdateRelease updates the tranche header and an existing release
// atomically with a version check.
func (s *TrancheStore) UpdateRelease(ctx context.Context, t *repository.Tranche, rel *repository.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.checkVersion(t)
	if err != nil {
		return err
	}

	found := false
	releases := make([]*repository.Release, 0, len(existing.Releases))
	for _, r := range existing.Releases {
		if r.ID == rel.ID {
			releases = append(releases, cloneRelease(rel))
			found = true
			continue
		}
		releases = append(releases, r)
	}
	if !found {
		return errors.NotFound("release", rel.ID)
	}

	t.Version++
	t.UpdatedAt = time.Now()
	stored := cloneTranche(t)
	stored.Releases = releases
	s.tranches[t.ID] = stored
	return nil
}

// ListReleasesByProject returns all releases across a project's tranches.
func (s *TrancheStore) ListReleasesByProject(ctx context.Context, projectID string) ([]*repository.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	releases := make([]*repository.Release, 0)
	for _, t := range s.tranches {
		if t.ProjectID != projectID {
			continue
		}
		for _, rel := range t.Releases {
			releases = append(releases, cloneRelease(rel))
		}
	}
	sort.Slice(releases, func(i, j int) bool {
		return releases[i].InitiatedAt.Before(releases[j].InitiatedAt)
	})
	return releases, nil
}

// checkVersion must be called with the write lock held.
func (s *TrancheStore) checkVersion(t *repository.Tranche) (*repository.Tranche, error) {
	existing, ok := s.tranches[t.ID]
	if !ok {
		return nil, errors.NotFound("tranche", t.ID)
	}
	if existing.Version != t.Version {
		return nil, errors.Conflict("tranche was modified concurrently, retry the operation")
	}
	return existing, nil
}
