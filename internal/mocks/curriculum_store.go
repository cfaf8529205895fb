package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/store"
)

// CurriculumStore is an in-memory store.CurriculumStore seeded through
// AddUnit and AddItem.
type CurriculumStore struct {
	mu    sync.Mutex
	units map[uuid.UUID]*domain.CurriculumUnit
	items map[uuid.UUID]*domain.ContentItem
}

var _ store.CurriculumStore = (*CurriculumStore)(nil)

// NewCurriculumStore creates an empty in-memory curriculum store.
func NewCurriculumStore() *CurriculumStore {
	return &CurriculumStore{
		units: make(map[uuid.UUID]*domain.CurriculumUnit),
		items: make(map[uuid.UUID]*domain.ContentItem),
	}
}

// AddUnit seeds a curriculum unit.
func (s *CurriculumStore) AddUnit(unit *domain.CurriculumUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
}

// AddItem seeds a content item.
func (s *CurriculumStore) AddItem(item *domain.ContentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// RemoveItem drops a seeded content item, simulating an authoring-side
// deletion.
func (s *CurriculumStore) RemoveItem(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *CurriculumStore) GetUnit(_ context.Context, id uuid.UUID) (*domain.CurriculumUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, store.ErrUnitNotFound
	}
	return unit, nil
}

func (s *CurriculumStore) ListModules(_ context.Context, planID uuid.UUID) ([]*domain.CurriculumUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var modules []*domain.CurriculumUnit
	for _, unit := range s.units {
		if unit.PlanID == planID && unit.Kind == domain.UnitKindModule {
			modules = append(modules, unit)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Position < modules[j].Position })
	return modules, nil
}

func (s *CurriculumStore) ListChildUnits(_ context.Context, parentID uuid.UUID) ([]*domain.CurriculumUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var topics []*domain.CurriculumUnit
	for _, unit := range s.units {
		if unit.ParentID.Valid && unit.ParentID.UUID == parentID {
			topics = append(topics, unit)
		}
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Position < topics[j].Position })
	return topics, nil
}

func (s *CurriculumStore) GetContentItem(_ context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrContentItemNotFound
	}
	return item, nil
}

func (s *CurriculumStore) ListContentItems(_ context.Context, unitID uuid.UUID) ([]*domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*domain.ContentItem
	for _, item := range s.items {
		if item.UnitID == unitID {
			items = append(items, item)
			continue
		}
		for _, covering := range item.CoveringUnitIDs {
			if covering == unitID {
				items = append(items, item)
				break
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}
