package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/store"
)

// LearnerStore is an in-memory store.LearnerStore. Reads and writes move
// copies, so mutations only become visible through Update calls, matching
// database behavior.
type LearnerStore struct {
	mu    sync.Mutex
	units map[uuid.UUID]*domain.LearnerUnit
	items map[uuid.UUID]*domain.LearnerContentItem
}

var _ store.LearnerStore = (*LearnerStore)(nil)

// NewLearnerStore creates an empty in-memory learner store.
func NewLearnerStore() *LearnerStore {
	return &LearnerStore{
		units: make(map[uuid.UUID]*domain.LearnerUnit),
		items: make(map[uuid.UUID]*domain.LearnerContentItem),
	}
}

func cloneUnit(unit *domain.LearnerUnit) *domain.LearnerUnit {
	c := *unit
	c.AuditTrail = append([]domain.AuditEntry(nil), unit.AuditTrail...)
	return &c
}

func cloneItem(item *domain.LearnerContentItem) *domain.LearnerContentItem {
	c := *item
	return &c
}

func (s *LearnerStore) CreateUnit(_ context.Context, unit *domain.LearnerUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.units {
		if existing.LearnerID == unit.LearnerID && existing.SourceUnitID == unit.SourceUnitID {
			return store.ErrLearnerUnitExists
		}
	}
	s.units[unit.ID] = cloneUnit(unit)
	return nil
}

func (s *LearnerStore) GetUnit(_ context.Context, id uuid.UUID) (*domain.LearnerUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, store.ErrLearnerUnitNotFound
	}
	return cloneUnit(unit), nil
}

func (s *LearnerStore) GetUnitBySource(_ context.Context, learnerID, sourceUnitID uuid.UUID) (*domain.LearnerUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, unit := range s.units {
		if unit.LearnerID == learnerID && unit.SourceUnitID == sourceUnitID {
			return cloneUnit(unit), nil
		}
	}
	return nil, store.ErrLearnerUnitNotFound
}

func (s *LearnerStore) ListUnitsByLearner(_ context.Context, learnerID uuid.UUID) ([]*domain.LearnerUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var units []*domain.LearnerUnit
	for _, unit := range s.units {
		if unit.LearnerID == learnerID {
			units = append(units, cloneUnit(unit))
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Position < units[j].Position })
	return units, nil
}

func (s *LearnerStore) ListUnitsBySource(_ context.Context, sourceUnitID uuid.UUID) ([]*domain.LearnerUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var units []*domain.LearnerUnit
	for _, unit := range s.units {
		if unit.SourceUnitID == sourceUnitID {
			units = append(units, cloneUnit(unit))
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].CreatedAt.Before(units[j].CreatedAt) })
	return units, nil
}

func (s *LearnerStore) UpdateUnit(_ context.Context, unit *domain.LearnerUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[unit.ID]; !ok {
		return store.ErrLearnerUnitNotFound
	}
	s.units[unit.ID] = cloneUnit(unit)
	return nil
}

func (s *LearnerStore) CreateItem(_ context.Context, item *domain.LearnerContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *LearnerStore) GetItem(_ context.Context, id uuid.UUID) (*domain.LearnerContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrLearnerItemNotFound
	}
	return cloneItem(item), nil
}

func (s *LearnerStore) ListItems(_ context.Context, learnerUnitID uuid.UUID) ([]*domain.LearnerContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*domain.LearnerContentItem
	for _, item := range s.items {
		if item.LearnerUnitID == learnerUnitID {
			items = append(items, cloneItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

func (s *LearnerStore) UpdateItem(_ context.Context, item *domain.LearnerContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return store.ErrLearnerItemNotFound
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

// WithTx returns the store itself; the in-memory implementation has no
// transactions.
func (s *LearnerStore) WithTx(_ *sql.Tx) store.LearnerStore {
	return s
}
