package materializer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/materializer"
	"github.com/pathforge/pathforge-api/internal/mocks"
	"github.com/pathforge/pathforge-api/internal/personalization"
)

type env struct {
	curriculum *mocks.CurriculumStore
	learners   *mocks.LearnerStore
	tasks      *mocks.TaskStore
	learnerID  uuid.UUID
	profile    *domain.Profile
	unit       *domain.CurriculumUnit
}

func newEnv(t *testing.T) *env {
	t.Helper()
	learnerID := uuid.New()
	unit := &domain.CurriculumUnit{
		ID:          uuid.New(),
		PlanID:      uuid.New(),
		Kind:        domain.UnitKindModule,
		Position:    1,
		Publishable: true,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
	}
	e := &env{
		curriculum: mocks.NewCurriculumStore(),
		learners:   mocks.NewLearnerStore(),
		tasks:      mocks.NewTaskStore(),
		learnerID:  learnerID,
		profile: &domain.Profile{
			ID:        uuid.New(),
			LearnerID: learnerID,
			Preferences: map[domain.Modality]float64{
				domain.ModalityReading: 0.9,
			},
		},
		unit: unit,
	}
	e.curriculum.AddUnit(unit)
	return e
}

func (e *env) addItem(position int, kind domain.ContentKind) *domain.ContentItem {
	item := &domain.ContentItem{
		ID:        uuid.New(),
		UnitID:    e.unit.ID,
		Kind:      kind,
		Modality:  domain.ModalityReading,
		Position:  position,
		Payload:   json.RawMessage(`{"title":"Lesson"}`),
		CreatedAt: time.Now().UTC(),
	}
	e.curriculum.AddItem(item)
	return item
}

func (e *env) materializer(cfg materializer.Config, p personalization.Personalizer) *materializer.Materializer {
	if p == nil {
		p = personalization.NewMarkerPersonalizer()
	}
	return materializer.New(e.curriculum, e.learners, e.tasks, p, cfg)
}

func TestMaterializeCommitsUnitAndItems(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addItem(1, domain.ContentKindStatic)
	e.addItem(2, domain.ContentKindInteractive)
	m := e.materializer(materializer.Config{SynthesizeFloor: 2}, nil)

	unit, outcome, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.NoError(t, err)
	assert.Equal(t, materializer.OutcomeOK, outcome)
	assert.Equal(t, domain.LearnerUnitActive, unit.Status)
	assert.Equal(t, e.profile.ID, unit.ProfileSnapshotID)

	items, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Empty(t, e.tasks.All())
}

func TestMaterializeIsIdempotent(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addItem(1, domain.ContentKindStatic)
	m := e.materializer(materializer.Config{SynthesizeFloor: 2}, nil)

	first, _, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.NoError(t, err)

	second, outcome, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.NoError(t, err)
	assert.Equal(t, materializer.OutcomeOK, outcome)
	assert.Equal(t, first.ID, second.ID)

	items, err := e.learners.ListItems(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// unreliableLearnerStore fails CreateItem once per listed source item,
// simulating a store write error mid-generation.
type unreliableLearnerStore struct {
	*mocks.LearnerStore
	failOnce map[uuid.UUID]bool
}

func (s *unreliableLearnerStore) CreateItem(ctx context.Context, item *domain.LearnerContentItem) error {
	if s.failOnce[item.SourceItemID] {
		delete(s.failOnce, item.SourceItemID)
		return errors.New("connection reset during insert")
	}
	return s.LearnerStore.CreateItem(ctx, item)
}

func TestMaterializeResumesInterruptedRun(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	written := e.addItem(1, domain.ContentKindStatic)
	dropped := e.addItem(2, domain.ContentKindInteractive)

	flaky := &unreliableLearnerStore{
		LearnerStore: e.learners,
		failOnce:     map[uuid.UUID]bool{dropped.ID: true},
	}
	m := materializer.New(e.curriculum, flaky, e.tasks,
		personalization.NewMarkerPersonalizer(), materializer.Config{SynthesizeFloor: 2})

	// First attempt dies on the second item's insert, after the shell and
	// the first item are committed.
	_, _, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.Error(t, err)

	stuck, err := e.learners.GetUnitBySource(context.Background(), e.learnerID, e.unit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LearnerUnitGenerating, stuck.Status)
	assert.Empty(t, e.tasks.All())

	// The retry must finish the unit, not declare the half-built copy done.
	unit, outcome, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.NoError(t, err)
	assert.Equal(t, materializer.OutcomeOK, outcome)
	assert.Equal(t, domain.LearnerUnitActive, unit.Status)

	items, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, written.ID, items[0].SourceItemID)
	assert.Equal(t, dropped.ID, items[1].SourceItemID)
}

func TestMaterializeTimeoutLeavesNoPartialWrite(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addItem(1, domain.ContentKindStatic)
	m := e.materializer(materializer.Config{Deadline: time.Nanosecond, SynthesizeFloor: 2}, nil)

	_, outcome, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	assert.ErrorIs(t, err, materializer.ErrTimeout)
	assert.Equal(t, materializer.OutcomeTimeout, outcome)

	_, err = e.learners.GetUnitBySource(context.Background(), e.learnerID, e.unit.ID)
	assert.Error(t, err)
	assert.Empty(t, e.tasks.All())
}

func TestMaterializeSourceMissing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.materializer(materializer.Config{}, nil)

	_, _, err := m.Materialize(context.Background(), e.learnerID, uuid.New(), e.profile)
	assert.ErrorIs(t, err, materializer.ErrSourceMissing)
}

func TestMaterializePartialSchedulesFollowUps(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	good := e.addItem(1, domain.ContentKindStatic)
	bad1 := e.addItem(2, domain.ContentKindInteractive)
	bad2 := e.addItem(3, domain.ContentKindAssessment)

	failing := map[uuid.UUID]bool{bad1.ID: true, bad2.ID: true}
	p := mocks.PersonalizerFunc(func(_ context.Context, item *domain.ContentItem, _ *domain.Profile) (*personalization.Result, error) {
		if failing[item.ID] {
			return nil, personalization.ErrTransientFailure
		}
		return &personalization.Result{}, nil
	})
	m := e.materializer(materializer.Config{SynthesizeFloor: 2}, p)

	unit, outcome, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.NoError(t, err)
	assert.Equal(t, materializer.OutcomePartial, outcome)
	assert.Equal(t, domain.LearnerUnitActive, unit.Status)

	items, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, good.ID, items[0].SourceItemID)

	followUps := e.tasks.All()
	require.Len(t, followUps, 2)
	scheduled := map[uuid.UUID]bool{}
	for _, task := range followUps {
		assert.Equal(t, domain.TaskKindGenerateUnit, task.Kind)
		assert.Equal(t, domain.PriorityAdvance, task.Priority)
		assert.Equal(t, e.unit.ID, task.UnitID)
		require.True(t, task.ItemID.Valid)
		scheduled[task.ItemID.UUID] = true
	}
	assert.True(t, scheduled[bad1.ID])
	assert.True(t, scheduled[bad2.ID])
}

func TestCompleteItem(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	item := e.addItem(1, domain.ContentKindStatic)
	late := e.addItem(2, domain.ContentKindInteractive)

	failing := map[uuid.UUID]bool{late.ID: true}
	p := mocks.PersonalizerFunc(func(_ context.Context, i *domain.ContentItem, _ *domain.Profile) (*personalization.Result, error) {
		if failing[i.ID] {
			return nil, personalization.ErrTransientFailure
		}
		return &personalization.Result{}, nil
	})
	m := e.materializer(materializer.Config{SynthesizeFloor: 2}, p)

	unit, outcome, err := m.Materialize(context.Background(), e.learnerID, e.unit.ID, e.profile)
	require.NoError(t, err)
	require.Equal(t, materializer.OutcomePartial, outcome)

	// The backend recovered; the follow-up completes the missing item.
	delete(failing, late.ID)
	require.NoError(t, m.CompleteItem(context.Background(), unit, late.ID, e.profile))

	items, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Re-running the follow-up must not duplicate the item.
	require.NoError(t, m.CompleteItem(context.Background(), unit, late.ID, e.profile))
	items, err = e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Re-completion of an item that was never missing is also a no-op.
	require.NoError(t, m.CompleteItem(context.Background(), unit, item.ID, e.profile))
}

func TestMarkFailed(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addItem(1, domain.ContentKindStatic)
	m := e.materializer(materializer.Config{SynthesizeFloor: 2}, nil)

	t.Run("no copy is a no-op", func(t *testing.T) {
		assert.NoError(t, m.MarkFailed(context.Background(), e.learnerID, uuid.New(), "source gone"))
	})

	t.Run("generating copy transitions to failed", func(t *testing.T) {
		shell, err := domain.NewLearnerUnit(e.learnerID, e.unit, e.profile.ID, 0)
		require.NoError(t, err)
		require.NoError(t, e.learners.CreateUnit(context.Background(), shell))

		require.NoError(t, m.MarkFailed(context.Background(), e.learnerID, e.unit.ID, "source gone"))

		got, err := e.learners.GetUnit(context.Background(), shell.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LearnerUnitFailed, got.Status)
		require.NotEmpty(t, got.AuditTrail)
		assert.Contains(t, got.AuditTrail[0].Change, "source gone")

		// Already failed; marking again stays a no-op.
		assert.NoError(t, m.MarkFailed(context.Background(), e.learnerID, e.unit.ID, "again"))
	})
}
