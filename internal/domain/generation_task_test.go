package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/domain"
)

func TestNewGenerationTask(t *testing.T) {
	t.Parallel()

	learnerID, unitID := uuid.New(), uuid.New()
	task, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, learnerID, unitID, domain.PriorityImmediate)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, learnerID, task.LearnerID)
	assert.Equal(t, unitID, task.UnitID)
	assert.Zero(t, task.RetryCount)
	assert.False(t, task.Terminal())
}

func TestGenerationTaskValidate(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown kind", func(t *testing.T) {
		t.Parallel()
		_, err := domain.NewGenerationTask("delete_unit", uuid.New(), uuid.New(), domain.PriorityAdvance)
		assert.ErrorIs(t, err, domain.ErrTaskKindInvalid)
	})

	t.Run("rejects missing target", func(t *testing.T) {
		t.Parallel()
		_, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, uuid.Nil, uuid.New(), domain.PriorityAdvance)
		assert.ErrorIs(t, err, domain.ErrTaskTargetEmpty)
	})

	t.Run("rejects priority outside the defined set", func(t *testing.T) {
		t.Parallel()
		_, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, uuid.New(), uuid.New(), 0)
		assert.ErrorIs(t, err, domain.ErrTaskPriorityInvalid)
		_, err = domain.NewGenerationTask(domain.TaskKindGenerateUnit, uuid.New(), uuid.New(), 4)
		assert.ErrorIs(t, err, domain.ErrTaskPriorityInvalid)
	})
}

func TestGenerationTaskRecordFailure(t *testing.T) {
	t.Parallel()

	task, err := domain.NewGenerationTask(domain.TaskKindUpdateUnit, uuid.New(), uuid.New(), domain.PriorityBackground)
	require.NoError(t, err)

	task.RecordFailure("connection refused")
	task.RecordFailure("deadline exceeded")

	assert.Equal(t, 2, task.RetryCount)
	assert.Contains(t, task.ErrorDetail, "attempt 1: connection refused")
	assert.Contains(t, task.ErrorDetail, "attempt 2: deadline exceeded")
}

func TestGenerationTaskTerminal(t *testing.T) {
	t.Parallel()

	task, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, uuid.New(), uuid.New(), domain.PriorityAdvance)
	require.NoError(t, err)

	task.Status = domain.TaskStatusProcessing
	assert.False(t, task.Terminal())
	task.Status = domain.TaskStatusCompleted
	assert.True(t, task.Terminal())
	task.Status = domain.TaskStatusFailed
	assert.True(t, task.Terminal())
}
