package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/domain"
)

func newSourceUnit(kind domain.UnitKind) *domain.CurriculumUnit {
	unit := &domain.CurriculumUnit{
		ID:          uuid.New(),
		PlanID:      uuid.New(),
		Kind:        kind,
		Title:       "Fractions",
		Position:    1,
		Publishable: true,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if kind == domain.UnitKindTopic {
		unit.ParentID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	}
	return unit
}

func TestNewLearnerUnit(t *testing.T) {
	t.Parallel()

	source := newSourceUnit(domain.UnitKindModule)
	learnerID := uuid.New()
	snapshotID := uuid.New()

	unit, err := domain.NewLearnerUnit(learnerID, source, snapshotID, 0.2)
	require.NoError(t, err)

	assert.Equal(t, learnerID, unit.LearnerID)
	assert.Equal(t, source.ID, unit.SourceUnitID)
	assert.Equal(t, source.Kind, unit.Kind)
	assert.Equal(t, source.Position, unit.Position)
	assert.Equal(t, snapshotID, unit.ProfileSnapshotID)
	assert.Equal(t, domain.LearnerUnitGenerating, unit.Status)
	assert.Zero(t, unit.Progress)
}

func TestNewLearnerUnitRejectsOutOfRangeAdjustment(t *testing.T) {
	t.Parallel()

	_, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindModule), uuid.New(), 0.7)
	assert.Error(t, err)
}

func TestLearnerUnitTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    domain.LearnerUnitStatus
		to      domain.LearnerUnitStatus
		wantErr bool
	}{
		{"pending to generating", domain.LearnerUnitPending, domain.LearnerUnitGenerating, false},
		{"pending to failed", domain.LearnerUnitPending, domain.LearnerUnitFailed, false},
		{"generating to active", domain.LearnerUnitGenerating, domain.LearnerUnitActive, false},
		{"generating to failed", domain.LearnerUnitGenerating, domain.LearnerUnitFailed, false},
		{"active to completed", domain.LearnerUnitActive, domain.LearnerUnitCompleted, false},
		{"active to failed", domain.LearnerUnitActive, domain.LearnerUnitFailed, true},
		{"completed is terminal", domain.LearnerUnitCompleted, domain.LearnerUnitActive, true},
		{"failed is terminal", domain.LearnerUnitFailed, domain.LearnerUnitPending, true},
		{"no skipping generation", domain.LearnerUnitPending, domain.LearnerUnitActive, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			unit, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindModule), uuid.New(), 0)
			require.NoError(t, err)
			unit.Status = tc.from

			err = unit.TransitionTo(tc.to)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				assert.Equal(t, tc.from, unit.Status)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.to, unit.Status)
			}
		})
	}
}

func TestLearnerUnitRecordProgress(t *testing.T) {
	t.Parallel()

	t.Run("progress is monotonic", func(t *testing.T) {
		t.Parallel()
		unit, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindTopic), uuid.New(), 0)
		require.NoError(t, err)
		unit.Status = domain.LearnerUnitActive

		require.NoError(t, unit.RecordProgress(40))
		assert.InDelta(t, 40, unit.Progress, 0.001)

		err = unit.RecordProgress(25)
		assert.ErrorIs(t, err, domain.ErrProgressRegression)
		assert.InDelta(t, 40, unit.Progress, 0.001)
	})

	t.Run("reaching 100 completes an active unit", func(t *testing.T) {
		t.Parallel()
		unit, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindTopic), uuid.New(), 0)
		require.NoError(t, err)
		unit.Status = domain.LearnerUnitActive

		require.NoError(t, unit.RecordProgress(100))
		assert.Equal(t, domain.LearnerUnitCompleted, unit.Status)
	})

	t.Run("completed unit ignores further signals", func(t *testing.T) {
		t.Parallel()
		unit, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindTopic), uuid.New(), 0)
		require.NoError(t, err)
		unit.Status = domain.LearnerUnitActive
		require.NoError(t, unit.RecordProgress(100))

		assert.NoError(t, unit.RecordProgress(50))
		assert.InDelta(t, 100, unit.Progress, 0.001)
		assert.Equal(t, domain.LearnerUnitCompleted, unit.Status)
	})

	t.Run("out of range is rejected", func(t *testing.T) {
		t.Parallel()
		unit, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindTopic), uuid.New(), 0)
		require.NoError(t, err)

		assert.ErrorIs(t, unit.RecordProgress(-1), domain.ErrProgressOutOfRange)
		assert.ErrorIs(t, unit.RecordProgress(101), domain.ErrProgressOutOfRange)
	})
}

func TestLearnerUnitAppendAudit(t *testing.T) {
	t.Parallel()

	unit, err := domain.NewLearnerUnit(uuid.New(), newSourceUnit(domain.UnitKindModule), uuid.New(), 0)
	require.NoError(t, err)

	unit.AppendAudit("item a updated from source")
	unit.AppendAudit("item b retired, source removed")

	require.Len(t, unit.AuditTrail, 2)
	assert.Equal(t, "item a updated from source", unit.AuditTrail[0].Change)
	assert.Equal(t, "item b retired, source removed", unit.AuditTrail[1].Change)
	assert.False(t, unit.AuditTrail[0].At.IsZero())
}

func TestNewLearnerContentItem(t *testing.T) {
	t.Parallel()

	source := &domain.ContentItem{
		ID:          uuid.New(),
		UnitID:      uuid.New(),
		Kind:        domain.ContentKindInteractive,
		Modality:    domain.ModalityKinesthetic,
		Position:    3,
		Fingerprint: 0xfeedface,
		CreatedAt:   time.Now().UTC(),
	}
	unitID := uuid.New()

	item := domain.NewLearnerContentItem(unitID, source, nil)
	assert.Equal(t, unitID, item.LearnerUnitID)
	assert.Equal(t, source.ID, item.SourceItemID)
	assert.Equal(t, source.Kind, item.Kind)
	assert.Equal(t, source.Position, item.Position)
	assert.Equal(t, source.Fingerprint, item.SourceFingerprint)
	assert.Nil(t, item.Personalized)
	assert.False(t, item.Completed())
}

func TestLearnerContentItemRecordOutcome(t *testing.T) {
	t.Parallel()

	item := domain.NewLearnerContentItem(uuid.New(), &domain.ContentItem{
		ID:     uuid.New(),
		UnitID: uuid.New(),
		Kind:   domain.ContentKindAssessment,
	}, nil)

	completedAt := time.Now().UTC()
	item.RecordOutcome(87.5, completedAt)

	assert.Equal(t, 1, item.Attempts)
	assert.InDelta(t, 87.5, item.Score, 0.001)
	require.NotNil(t, item.CompletedAt)
	assert.True(t, item.Completed())

	item.RecordOutcome(92, completedAt.Add(time.Minute))
	assert.Equal(t, 2, item.Attempts)
	assert.InDelta(t, 92, item.Score, 0.001)
}
