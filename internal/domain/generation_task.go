package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskKindInvalid is returned when a task kind is not a known variant.
	ErrTaskKindInvalid = errors.New("task kind is not a known variant")

	// ErrTaskTargetEmpty is returned when a task is missing its learner or
	// unit reference.
	ErrTaskTargetEmpty = errors.New("task must target a (learner, unit) pair")

	// ErrTaskPriorityInvalid is returned when a priority is outside the
	// defined set.
	ErrTaskPriorityInvalid = errors.New("task priority must be 1, 2 or 3")
)

// TaskKind identifies what a generation task does to its target unit.
type TaskKind string

// Possible task kinds
const (
	// TaskKindGenerateUnit materializes (or finishes materializing) a
	// learner copy of the target unit.
	TaskKindGenerateUnit TaskKind = "generate_unit"

	// TaskKindUpdateUnit patches an existing learner copy after a source
	// curriculum edit.
	TaskKindUpdateUnit TaskKind = "update_unit"
)

// TaskStatus represents the current state of a generation task.
type TaskStatus string

// Possible task status values. Completed and failed are terminal; the
// queue's dedup constraint only considers non-terminal rows.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task priorities, lower is sooner.
const (
	// PriorityImmediate is for user-triggered generation.
	PriorityImmediate = 1

	// PriorityAdvance is for progress-triggered frontier advances.
	PriorityAdvance = 2

	// PriorityBackground is for pre-fetch and reconciliation fan-out.
	PriorityBackground = 3
)

// GenerationTask is the queue's unit of work: one generation or update
// step against a single (learner, unit) pair.
type GenerationTask struct {
	ID        uuid.UUID  `json:"id"`
	Kind      TaskKind   `json:"kind"`
	LearnerID uuid.UUID  `json:"learner_id"`
	UnitID    uuid.UUID  `json:"unit_id"`
	Priority  int        `json:"priority"`
	Status    TaskStatus `json:"status"`

	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`

	// ErrorDetail accumulates one failure reason per attempt.
	ErrorDetail string `json:"error_detail,omitempty"`

	// ItemID optionally narrows a generate task to a single missing
	// content item (follow-up after a partial materialization) or an
	// update task to a single edited item.
	ItemID uuid.NullUUID `json:"item_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGenerationTask creates a pending task for the given target.
func NewGenerationTask(kind TaskKind, learnerID, unitID uuid.UUID, priority int) (*GenerationTask, error) {
	now := time.Now().UTC()
	t := &GenerationTask{
		ID:        uuid.New(),
		Kind:      kind,
		LearnerID: learnerID,
		UnitID:    unitID,
		Priority:  priority,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the GenerationTask has valid data.
func (t *GenerationTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}
	if t.Kind != TaskKindGenerateUnit && t.Kind != TaskKindUpdateUnit {
		return ErrTaskKindInvalid
	}
	if t.LearnerID == uuid.Nil || t.UnitID == uuid.Nil {
		return ErrTaskTargetEmpty
	}
	if t.Priority < PriorityImmediate || t.Priority > PriorityBackground {
		return ErrTaskPriorityInvalid
	}
	return nil
}

// Terminal reports whether the task has reached a final status.
func (t *GenerationTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// RecordFailure appends a failure reason and bumps the retry count. The
// caller decides whether the task goes back to pending or terminally fails
// based on the retry bound.
func (t *GenerationTask) RecordFailure(reason string) {
	t.RetryCount++
	if t.ErrorDetail != "" {
		t.ErrorDetail += "; "
	}
	t.ErrorDetail += fmt.Sprintf("attempt %d: %s", t.RetryCount, reason)
	t.UpdatedAt = time.Now().UTC()
}
