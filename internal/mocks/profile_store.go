package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/store"
)

// ProfileStore is an in-memory store.ProfileStore holding one snapshot
// per learner.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*domain.Profile
}

var _ store.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[uuid.UUID]*domain.Profile)}
}

// Put seeds the learner's latest snapshot.
func (s *ProfileStore) Put(profile *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.LearnerID] = profile
}

func (s *ProfileStore) GetLatest(_ context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[learnerID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	return profile, nil
}
