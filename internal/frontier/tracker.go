// Package frontier tracks each learner's materialized boundary and
// advances it when progress signals cross the configured threshold.
package frontier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/eligibility"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// DefaultAdvanceThreshold is the progress percentage at which the next
// unit is scheduled.
const DefaultAdvanceThreshold = 80.0

// ErrUnitNotMaterialized is returned when a progress signal targets a
// source unit the learner has no copy of.
var ErrUnitNotMaterialized = errors.New("progress signal for unmaterialized unit")

// Advance is the tracker's answer to one progress signal.
type Advance struct {
	// Recorded reports whether the signal moved the stored progress.
	// Repeated or regressing signals leave it false.
	Recorded bool `json:"recorded"`

	// Completed reports whether this signal completed the unit.
	Completed bool `json:"completed"`

	// Queued reports whether a new generation task was enqueued for the
	// next unit. False on repeated signals: the queue's dedup makes the
	// trigger idempotent.
	Queued bool `json:"queued"`

	// NextUnitID is the next eligible source unit, when one exists.
	NextUnitID uuid.NullUUID `json:"next_unit_id"`

	// CaughtUp reports that no eligible unit remains beyond the frontier,
	// so the caller can render an accurate "waiting for content" state.
	CaughtUp bool `json:"caught_up"`
}

// Tracker consumes progress signals and schedules frontier advances.
type Tracker struct {
	learners   store.LearnerStore
	curriculum store.CurriculumStore
	tasks      store.TaskStore
	resolver   *eligibility.Resolver
	threshold  float64
}

// NewTracker creates a Tracker. A non-positive threshold falls back to
// DefaultAdvanceThreshold.
func NewTracker(
	learners store.LearnerStore,
	curriculum store.CurriculumStore,
	tasks store.TaskStore,
	resolver *eligibility.Resolver,
	threshold float64,
) *Tracker {
	if threshold <= 0 {
		threshold = DefaultAdvanceThreshold
	}
	return &Tracker{
		learners:   learners,
		curriculum: curriculum,
		tasks:      tasks,
		resolver:   resolver,
		threshold:  threshold,
	}
}

// Advance applies one progress signal for (learner, source unit). Progress
// is monotonic: signals below the stored value record nothing and a
// completed unit never regresses. Crossing the threshold schedules a
// priority-2 generate task for the next eligible unit at the same
// granularity; the trigger is idempotent because the queue deduplicates
// live tasks and already-materialized units are skipped by the resolver.
func (t *Tracker) Advance(ctx context.Context, learnerID, sourceUnitID uuid.UUID, progress float64) (*Advance, error) {
	log := logger.FromContext(ctx).With(
		"learner_id", learnerID,
		"unit_id", sourceUnitID,
	)

	unit, err := t.learners.GetUnitBySource(ctx, learnerID, sourceUnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnitNotMaterialized, sourceUnitID)
		}
		return nil, fmt.Errorf("failed to load learner unit: %w", err)
	}

	result := &Advance{}
	wasCompleted := unit.Status == domain.LearnerUnitCompleted

	if progress > unit.Progress && !wasCompleted {
		if err := unit.RecordProgress(progress); err != nil {
			return nil, fmt.Errorf("failed to record progress: %w", err)
		}
		if err := t.learners.UpdateUnit(ctx, unit); err != nil {
			return nil, fmt.Errorf("failed to save progress: %w", err)
		}
		result.Recorded = true
	}
	result.Completed = unit.Status == domain.LearnerUnitCompleted && !wasCompleted

	if unit.Progress < t.threshold {
		return result, nil
	}

	source, err := t.curriculum.GetUnit(ctx, sourceUnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source unit: %w", err)
	}
	next, err := t.resolver.NextAfter(ctx, learnerID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve next unit: %w", err)
	}
	if next == nil {
		log.Info("frontier caught up, waiting for content")
		result.CaughtUp = true
		return result, nil
	}
	result.NextUnitID = uuid.NullUUID{UUID: next.ID, Valid: true}

	task, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, learnerID, next.ID, domain.PriorityAdvance)
	if err != nil {
		return nil, fmt.Errorf("failed to build advance task: %w", err)
	}
	if err := t.tasks.Enqueue(ctx, task); err != nil {
		if errors.Is(err, store.ErrDuplicateTask) {
			// Repeated signal above threshold; the earlier task stands.
			log.Debug("advance task already queued", "next_unit_id", next.ID)
			return result, nil
		}
		return nil, fmt.Errorf("failed to enqueue advance task: %w", err)
	}
	result.Queued = true
	log.Info("frontier advance queued",
		"next_unit_id", next.ID,
		"task_id", task.ID,
		"progress", unit.Progress)
	return result, nil
}
