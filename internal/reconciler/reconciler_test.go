package reconciler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/eligibility"
	"github.com/pathforge/pathforge-api/internal/mocks"
	"github.com/pathforge/pathforge-api/internal/personalization"
	"github.com/pathforge/pathforge-api/internal/reconciler"
)

type recEnv struct {
	curriculum *mocks.CurriculumStore
	learners   *mocks.LearnerStore
	tasks      *mocks.TaskStore
	profiles   *mocks.ProfileStore
	rec        *reconciler.Reconciler
	planID     uuid.UUID
}

func newRecEnv(t *testing.T) *recEnv {
	return newRecEnvAt(t, 80)
}

func newRecEnvAt(t *testing.T, threshold float64) *recEnv {
	t.Helper()
	curriculum := mocks.NewCurriculumStore()
	learners := mocks.NewLearnerStore()
	tasks := mocks.NewTaskStore()
	profiles := mocks.NewProfileStore()
	resolver := eligibility.NewResolver(curriculum, learners, eligibility.Config{})
	return &recEnv{
		curriculum: curriculum,
		learners:   learners,
		tasks:      tasks,
		profiles:   profiles,
		rec: reconciler.New(curriculum, learners, tasks, profiles,
			personalization.NewMarkerPersonalizer(), resolver, threshold),
		planID: uuid.New(),
	}
}

func (e *recEnv) addModule(position int) *domain.CurriculumUnit {
	module := &domain.CurriculumUnit{
		ID:          uuid.New(),
		PlanID:      e.planID,
		Kind:        domain.UnitKindModule,
		Position:    position,
		Publishable: true,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
	}
	e.curriculum.AddUnit(module)
	return module
}

func (e *recEnv) addItem(unitID uuid.UUID, position int, payload string) *domain.ContentItem {
	item := &domain.ContentItem{
		ID:        uuid.New(),
		UnitID:    unitID,
		Kind:      domain.ContentKindStatic,
		Modality:  domain.ModalityReading,
		Position:  position,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}
	e.curriculum.AddItem(item)
	return item
}

// seedLearner materializes an active copy of the unit with learner copies
// of the given source items, fingerprinted against their current payloads.
func (e *recEnv) seedLearner(t *testing.T, source *domain.CurriculumUnit, items ...*domain.ContentItem) (uuid.UUID, *domain.LearnerUnit) {
	t.Helper()
	learnerID := uuid.New()
	e.profiles.Put(&domain.Profile{ID: uuid.New(), LearnerID: learnerID})

	unit, err := domain.NewLearnerUnit(learnerID, source, uuid.New(), 0)
	require.NoError(t, err)
	require.NoError(t, unit.TransitionTo(domain.LearnerUnitActive))
	require.NoError(t, e.learners.CreateUnit(context.Background(), unit))

	for _, item := range items {
		copy := domain.NewLearnerContentItem(unit.ID, item, nil)
		copy.SourceFingerprint = reconciler.Fingerprint(item.Payload)
		require.NoError(t, e.learners.CreateItem(context.Background(), copy))
	}
	return learnerID, unit
}

func itemChange(kind reconciler.ChangeKind, unitID, itemID uuid.UUID) *reconciler.SourceChange {
	return &reconciler.SourceChange{
		Kind:   kind,
		UnitID: unitID,
		ItemID: uuid.NullUUID{UUID: itemID, Valid: true},
	}
}

func TestSourceChangeValidate(t *testing.T) {
	t.Parallel()

	missingUnit := &reconciler.SourceChange{Kind: reconciler.ChangeItemModified}
	assert.ErrorIs(t, missingUnit.Validate(), reconciler.ErrChangeInvalid)

	missingItem := &reconciler.SourceChange{Kind: reconciler.ChangeItemModified, UnitID: uuid.New()}
	assert.ErrorIs(t, missingItem.Validate(), reconciler.ErrChangeInvalid)

	unknown := &reconciler.SourceChange{Kind: "item_renamed", UnitID: uuid.New()}
	assert.ErrorIs(t, unknown.Validate(), reconciler.ErrChangeInvalid)

	published := &reconciler.SourceChange{Kind: reconciler.ChangeUnitPublished, UnitID: uuid.New()}
	assert.NoError(t, published.Validate())
}

func TestOnSourceChangeUnchangedFingerprintIsNoOp(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	item := e.addItem(module.ID, 1, `{"title":"Intro","body":"text"}`)
	e.seedLearner(t, module, item)

	// Reformat the payload without changing its content.
	item.Payload = json.RawMessage(`{ "body": "text", "title": "Intro" }`)

	queued, err := e.rec.OnSourceChange(context.Background(),
		itemChange(reconciler.ChangeItemModified, module.ID, item.ID))
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Empty(t, e.tasks.All())
}

func TestOnSourceChangeModifiedFansOutToStaleCopies(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	item := e.addItem(module.ID, 1, `{"title":"Intro"}`)
	staleLearner, _ := e.seedLearner(t, module, item)
	e.seedLearner(t, module) // copy without the item, never queued

	item.Payload = json.RawMessage(`{"title":"Rewritten"}`)

	queued, err := e.rec.OnSourceChange(context.Background(),
		itemChange(reconciler.ChangeItemModified, module.ID, item.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	tasks := e.tasks.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskKindUpdateUnit, tasks[0].Kind)
	assert.Equal(t, staleLearner, tasks[0].LearnerID)
	assert.Equal(t, domain.PriorityBackground, tasks[0].Priority)
	require.True(t, tasks[0].ItemID.Valid)
	assert.Equal(t, item.ID, tasks[0].ItemID.UUID)
}

func TestOnSourceChangeAddedFansOutToAllCopies(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	added := e.addItem(module.ID, 2, `{"title":"New"}`)
	e.seedLearner(t, module)
	e.seedLearner(t, module)

	queued, err := e.rec.OnSourceChange(context.Background(),
		itemChange(reconciler.ChangeItemAdded, module.ID, added.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
}

func TestOnSourceChangePublicationFansOutToAdvancedLearners(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	m1 := e.addModule(1)
	m2 := e.addModule(2)

	// Learner past the threshold on the preceding unit.
	advanced, advancedUnit := e.seedLearner(t, m1)
	advancedUnit.Progress = 90
	require.NoError(t, e.learners.UpdateUnit(context.Background(), advancedUnit))

	// Learner still early on the preceding unit.
	e.seedLearner(t, m1)

	queued, err := e.rec.OnSourceChange(context.Background(),
		&reconciler.SourceChange{Kind: reconciler.ChangeUnitPublished, UnitID: m2.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	tasks := e.tasks.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskKindGenerateUnit, tasks[0].Kind)
	assert.Equal(t, advanced, tasks[0].LearnerID)
	assert.Equal(t, m2.ID, tasks[0].UnitID)
}

func TestOnSourceChangePublicationHonorsConfiguredThreshold(t *testing.T) {
	t.Parallel()

	e := newRecEnvAt(t, 60)
	m1 := e.addModule(1)
	m2 := e.addModule(2)

	// Past the configured threshold but below the default one.
	included, includedUnit := e.seedLearner(t, m1)
	includedUnit.Progress = 65
	require.NoError(t, e.learners.UpdateUnit(context.Background(), includedUnit))

	excluded, excludedUnit := e.seedLearner(t, m1)
	excludedUnit.Progress = 55
	require.NoError(t, e.learners.UpdateUnit(context.Background(), excludedUnit))

	queued, err := e.rec.OnSourceChange(context.Background(),
		&reconciler.SourceChange{Kind: reconciler.ChangeUnitPublished, UnitID: m2.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	tasks := e.tasks.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, included, tasks[0].LearnerID)
	assert.NotEqual(t, excluded, tasks[0].LearnerID)
}

func TestOnSourceChangePublicationOfFirstUnitQueuesNothing(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	m1 := e.addModule(1)

	queued, err := e.rec.OnSourceChange(context.Background(),
		&reconciler.SourceChange{Kind: reconciler.ChangeUnitPublished, UnitID: m1.ID})
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func newUpdateTask(t *testing.T, learnerID, unitID uuid.UUID, itemID uuid.NullUUID) *domain.GenerationTask {
	t.Helper()
	task, err := domain.NewGenerationTask(domain.TaskKindUpdateUnit, learnerID, unitID, domain.PriorityBackground)
	require.NoError(t, err)
	task.ItemID = itemID
	return task
}

func TestApplyUpdateModifiedItemPreservesCompletion(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	item := e.addItem(module.ID, 1, `{"title":"Old"}`)
	learnerID, unit := e.seedLearner(t, module, item)

	// The learner completed the item before the edit.
	copies, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	copies[0].RecordOutcome(95, time.Now().UTC())
	require.NoError(t, e.learners.UpdateItem(context.Background(), copies[0]))

	item.Payload = json.RawMessage(`{"title":"New"}`)

	task := newUpdateTask(t, learnerID, module.ID, uuid.NullUUID{UUID: item.ID, Valid: true})
	require.NoError(t, e.rec.ApplyUpdate(context.Background(), task))

	updated, err := e.learners.GetItem(context.Background(), copies[0].ID)
	require.NoError(t, err)
	assert.Equal(t, reconciler.Fingerprint(item.Payload), updated.SourceFingerprint)
	assert.True(t, updated.Completed(), "completion record must survive the patch")
	assert.InDelta(t, 95, updated.Score, 0.001)

	patched, err := e.learners.GetUnit(context.Background(), unit.ID)
	require.NoError(t, err)
	require.NotEmpty(t, patched.AuditTrail)
	assert.Contains(t, patched.AuditTrail[len(patched.AuditTrail)-1].Change, "updated from source")
}

func TestApplyUpdateRemovedItemIsRetired(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	item := e.addItem(module.ID, 1, `{"title":"Doomed"}`)
	learnerID, unit := e.seedLearner(t, module, item)

	e.curriculum.RemoveItem(item.ID)

	task := newUpdateTask(t, learnerID, module.ID, uuid.NullUUID{UUID: item.ID, Valid: true})
	require.NoError(t, e.rec.ApplyUpdate(context.Background(), task))

	copies, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.True(t, copies[0].Retired, "removed items are retired, never deleted")

	patched, err := e.learners.GetUnit(context.Background(), unit.ID)
	require.NoError(t, err)
	require.NotEmpty(t, patched.AuditTrail)
	assert.Contains(t, patched.AuditTrail[len(patched.AuditTrail)-1].Change, "retired")
}

func TestApplyUpdateAddedItemAppendsCopy(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	existing := e.addItem(module.ID, 1, `{"title":"Kept"}`)
	learnerID, unit := e.seedLearner(t, module, existing)

	added := e.addItem(module.ID, 2, `{"title":"Appended"}`)

	task := newUpdateTask(t, learnerID, module.ID, uuid.NullUUID{UUID: added.ID, Valid: true})
	require.NoError(t, e.rec.ApplyUpdate(context.Background(), task))

	copies, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	assert.Equal(t, existing.ID, copies[0].SourceItemID)
	assert.Equal(t, added.ID, copies[1].SourceItemID)
}

func TestApplyUpdateFullResync(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	kept := e.addItem(module.ID, 1, `{"title":"Kept"}`)
	edited := e.addItem(module.ID, 2, `{"title":"Old"}`)
	removed := e.addItem(module.ID, 3, `{"title":"Doomed"}`)
	learnerID, unit := e.seedLearner(t, module, kept, edited, removed)

	edited.Payload = json.RawMessage(`{"title":"New"}`)
	e.curriculum.RemoveItem(removed.ID)
	appended := e.addItem(module.ID, 4, `{"title":"Appended"}`)

	task := newUpdateTask(t, learnerID, module.ID, uuid.NullUUID{})
	require.NoError(t, e.rec.ApplyUpdate(context.Background(), task))

	copies, err := e.learners.ListItems(context.Background(), unit.ID)
	require.NoError(t, err)
	require.Len(t, copies, 4)

	bySource := map[uuid.UUID]*domain.LearnerContentItem{}
	for _, c := range copies {
		bySource[c.SourceItemID] = c
	}
	assert.False(t, bySource[kept.ID].Retired)
	assert.Equal(t, reconciler.Fingerprint(edited.Payload), bySource[edited.ID].SourceFingerprint)
	assert.True(t, bySource[removed.ID].Retired)
	require.Contains(t, bySource, appended.ID)

	patched, err := e.learners.GetUnit(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Len(t, patched.AuditTrail, 3, "one audit entry per applied change")
}

func TestApplyUpdateUnmaterializedTargetIsSkipped(t *testing.T) {
	t.Parallel()

	e := newRecEnv(t)
	module := e.addModule(1)
	item := e.addItem(module.ID, 1, `{"title":"Intro"}`)
	learnerID := uuid.New()
	e.profiles.Put(&domain.Profile{ID: uuid.New(), LearnerID: learnerID})

	task := newUpdateTask(t, learnerID, module.ID, uuid.NullUUID{UUID: item.ID, Valid: true})
	assert.NoError(t, e.rec.ApplyUpdate(context.Background(), task))
}
