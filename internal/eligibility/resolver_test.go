package eligibility_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/eligibility"
	"github.com/pathforge/pathforge-api/internal/mocks"
)

type fixture struct {
	curriculum *mocks.CurriculumStore
	learners   *mocks.LearnerStore
	resolver   *eligibility.Resolver
	planID     uuid.UUID
	learnerID  uuid.UUID
}

func newFixture(t *testing.T, cfg eligibility.Config) *fixture {
	t.Helper()
	curriculum := mocks.NewCurriculumStore()
	learners := mocks.NewLearnerStore()
	return &fixture{
		curriculum: curriculum,
		learners:   learners,
		resolver:   eligibility.NewResolver(curriculum, learners, cfg),
		planID:     uuid.New(),
		learnerID:  uuid.New(),
	}
}

func (f *fixture) addModule(position int, publishable, enabled bool) *domain.CurriculumUnit {
	module := &domain.CurriculumUnit{
		ID:          uuid.New(),
		PlanID:      f.planID,
		Kind:        domain.UnitKindModule,
		Position:    position,
		Publishable: publishable,
		Enabled:     enabled,
		CreatedAt:   time.Now().UTC(),
	}
	f.curriculum.AddUnit(module)
	return module
}

func (f *fixture) addTopic(module *domain.CurriculumUnit, position int, publishable bool) *domain.CurriculumUnit {
	topic := &domain.CurriculumUnit{
		ID:          uuid.New(),
		ParentID:    uuid.NullUUID{UUID: module.ID, Valid: true},
		PlanID:      f.planID,
		Kind:        domain.UnitKindTopic,
		Position:    position,
		Publishable: publishable,
		Enabled:     module.Enabled,
		CreatedAt:   time.Now().UTC(),
	}
	f.curriculum.AddUnit(topic)
	return topic
}

func (f *fixture) materialize(t *testing.T, source *domain.CurriculumUnit) *domain.LearnerUnit {
	t.Helper()
	unit, err := domain.NewLearnerUnit(f.learnerID, source, uuid.New(), 0)
	require.NoError(t, err)
	require.NoError(t, f.learners.CreateUnit(context.Background(), unit))
	return unit
}

func unitIDs(units []*domain.CurriculumUnit) []uuid.UUID {
	ids := make([]uuid.UUID, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

func TestNextUnitsSeedsBoundedBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eligibility.Config{KModule: 3, KTopic: 2})
	m1 := f.addModule(1, true, true)
	m2 := f.addModule(2, true, true)
	f.addModule(3, false, true) // unpublished, never selected or queued
	m4 := f.addModule(4, true, true)
	t1 := f.addTopic(m1, 1, true)
	t2 := f.addTopic(m1, 2, true)
	f.addTopic(m1, 3, false) // unpublished topic is skipped entirely
	t4 := f.addTopic(m1, 4, true)

	batch, err := f.resolver.NextUnits(context.Background(), f.learnerID, f.planID)
	require.NoError(t, err)

	assert.Equal(t, eligibility.ReasonOK, batch.Reason)
	assert.Equal(t, []uuid.UUID{m1.ID, t1.ID, t2.ID}, unitIDs(batch.Immediate))
	assert.ElementsMatch(t, []uuid.UUID{t4.ID, m2.ID, m4.ID}, unitIDs(batch.Queued))
}

func TestNextUnitsNothingPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eligibility.Config{})
	f.addModule(1, false, true)
	f.addModule(2, true, false)

	batch, err := f.resolver.NextUnits(context.Background(), f.learnerID, f.planID)
	require.NoError(t, err)

	assert.True(t, batch.Empty())
	assert.Equal(t, eligibility.ReasonNothingPublished, batch.Reason)
}

func TestNextUnitsCaughtUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eligibility.Config{KModule: 2, KTopic: 2})
	m1 := f.addModule(1, true, true)
	t1 := f.addTopic(m1, 1, true)
	f.materialize(t, m1)
	f.materialize(t, t1)

	batch, err := f.resolver.NextUnits(context.Background(), f.learnerID, f.planID)
	require.NoError(t, err)

	assert.True(t, batch.Empty())
	assert.Equal(t, eligibility.ReasonCaughtUp, batch.Reason)
}

func TestNextUnitsConsumedWindowReportsCaughtUp(t *testing.T) {
	t.Parallel()

	// An eligible module beyond the KModule window does not keep the batch
	// alive: it is only reachable through NextAfter once the frontier moves.
	f := newFixture(t, eligibility.Config{KModule: 2, KTopic: 2})
	m1 := f.addModule(1, true, true)
	m2 := f.addModule(2, true, true)
	m3 := f.addModule(3, true, true)
	f.materialize(t, m1)
	f.materialize(t, m2)

	batch, err := f.resolver.NextUnits(context.Background(), f.learnerID, f.planID)
	require.NoError(t, err)

	assert.True(t, batch.Empty())
	assert.Equal(t, eligibility.ReasonCaughtUp, batch.Reason)

	next, err := f.resolver.NextAfter(context.Background(), f.learnerID, m2)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, m3.ID, next.ID)
}

func TestNextUnitsSkipsMaterializedButKeepsBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eligibility.Config{KModule: 2, KTopic: 2})
	m1 := f.addModule(1, true, true)
	t1 := f.addTopic(m1, 1, true)
	t2 := f.addTopic(m1, 2, true)
	t3 := f.addTopic(m1, 3, true)
	f.materialize(t, m1)
	f.materialize(t, t1)

	batch, err := f.resolver.NextUnits(context.Background(), f.learnerID, f.planID)
	require.NoError(t, err)

	// t1 consumed one immediate slot even though it is already
	// materialized, so only t2 goes immediate and t3 is queued.
	assert.Equal(t, []uuid.UUID{t2.ID}, unitIDs(batch.Immediate))
	assert.Equal(t, []uuid.UUID{t3.ID}, unitIDs(batch.Queued))
}

func TestNextAfter(t *testing.T) {
	t.Parallel()

	t.Run("next topic in the same module", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, eligibility.Config{})
		m1 := f.addModule(1, true, true)
		t1 := f.addTopic(m1, 1, true)
		t2 := f.addTopic(m1, 2, true)
		f.materialize(t, t1)

		next, err := f.resolver.NextAfter(context.Background(), f.learnerID, t1)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, t2.ID, next.ID)
	})

	t.Run("last topic falls through to the next module", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, eligibility.Config{})
		m1 := f.addModule(1, true, true)
		m2 := f.addModule(2, true, true)
		t1 := f.addTopic(m1, 1, true)
		f.materialize(t, m1)
		f.materialize(t, t1)

		next, err := f.resolver.NextAfter(context.Background(), f.learnerID, t1)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, m2.ID, next.ID)
	})

	t.Run("unpublished successors are skipped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, eligibility.Config{})
		m1 := f.addModule(1, true, true)
		t1 := f.addTopic(m1, 1, true)
		f.addTopic(m1, 2, false)
		t3 := f.addTopic(m1, 3, true)
		f.materialize(t, t1)

		next, err := f.resolver.NextAfter(context.Background(), f.learnerID, t1)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, t3.ID, next.ID)
	})

	t.Run("nothing eligible returns nil", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, eligibility.Config{})
		m1 := f.addModule(1, true, true)
		f.materialize(t, m1)

		next, err := f.resolver.NextAfter(context.Background(), f.learnerID, m1)
		require.NoError(t, err)
		assert.Nil(t, next)
	})
}
