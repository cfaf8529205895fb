package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/store"
)

// OutcomeStore is an in-memory store.OutcomeStore. UnitProgress derives
// the aggregate from the learner store's items, the same way the postgres
// implementation derives it from the learner item table.
type OutcomeStore struct {
	mu      sync.Mutex
	records []*domain.OutcomeRecord

	// Learners backs the UnitProgress aggregate.
	Learners *LearnerStore
}

var _ store.OutcomeStore = (*OutcomeStore)(nil)

// NewOutcomeStore creates an in-memory outcome store over the given
// learner store.
func NewOutcomeStore(learners *LearnerStore) *OutcomeStore {
	return &OutcomeStore{Learners: learners}
}

func (s *OutcomeStore) Create(_ context.Context, record *domain.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *record
	s.records = append(s.records, &c)
	return nil
}

func (s *OutcomeStore) ListByLearnerItem(_ context.Context, learnerItemID uuid.UUID) ([]*domain.OutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*domain.OutcomeRecord
	for _, record := range s.records {
		if record.LearnerItemID == learnerItemID {
			c := *record
			matched = append(matched, &c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RecordedAt.After(matched[j].RecordedAt) })
	return matched, nil
}

func (s *OutcomeStore) UnitProgress(ctx context.Context, learnerUnitID uuid.UUID) (float64, error) {
	items, err := s.Learners.ListItems(ctx, learnerUnitID)
	if err != nil {
		return 0, err
	}
	total, completed := 0, 0
	for _, item := range items {
		if item.Retired {
			continue
		}
		total++
		if item.Completed() {
			completed++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return 100 * float64(completed) / float64(total), nil
}
