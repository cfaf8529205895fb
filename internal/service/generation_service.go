// Package service exposes the orchestration boundary external callers use
// to kick off generation, signal progress, drain the queue, and read unit
// status. It translates API calls into eligibility decisions, immediate
// best-effort materialization, and queue operations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/eligibility"
	"github.com/pathforge/pathforge-api/internal/frontier"
	"github.com/pathforge/pathforge-api/internal/materializer"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
	"github.com/pathforge/pathforge-api/internal/task"
)

// StartResult is the orchestrator's answer to a start-generation call: the
// immediately materialized units plus the set queued for background
// generation.
type StartResult struct {
	// First is the first materialized unit, the one the client renders
	// right away. Nil only when CaughtUp.
	First *domain.LearnerUnit `json:"first,omitempty"`

	// Materialized lists every unit generated inline, in curriculum order.
	Materialized []*domain.LearnerUnit `json:"materialized"`

	// Queued lists source unit IDs enqueued for background generation.
	Queued []uuid.UUID `json:"queued"`

	// CaughtUp reports that every eligible unit was already materialized;
	// re-invoking start on a seeded learner is a no-op, not an error.
	CaughtUp bool `json:"caught_up"`
}

// ItemStatus is one content item in a unit status read.
type ItemStatus struct {
	ID           uuid.UUID          `json:"id"`
	SourceItemID uuid.UUID          `json:"source_item_id"`
	Kind         domain.ContentKind `json:"kind"`
	Personalized bool               `json:"personalized"`
	Synthesized  bool               `json:"synthesized"`
	Retired      bool               `json:"retired"`
	Completed    bool               `json:"completed"`
	Score        float64            `json:"score"`
}

// UnitStatus is the status read for one (learner, unit) pair.
type UnitStatus struct {
	Status               domain.LearnerUnitStatus `json:"status"`
	Progress             float64                  `json:"progress"`
	DifficultyAdjustment float64                  `json:"difficulty_adjustment"`
	Items                []ItemStatus             `json:"items"`

	// LastError surfaces terminal task failures (retry exhaustion, missing
	// source) so the client can distinguish "nothing to show yet" from
	// "something is broken".
	LastError string `json:"last_error,omitempty"`
}

// StatusCache is a read-through cache for unit status responses.
// Implementations must treat misses and backend failures identically: a
// (nil, nil) return.
type StatusCache interface {
	Get(ctx context.Context, learnerID, unitID uuid.UUID) (*UnitStatus, error)
	Set(ctx context.Context, learnerID, unitID uuid.UUID, status *UnitStatus) error
	Invalidate(ctx context.Context, learnerID, unitID uuid.UUID) error
}

// GenerationService orchestrates the progressive generation engine.
type GenerationService struct {
	resolver  *eligibility.Resolver
	mat       *materializer.Materializer
	tracker   *frontier.Tracker
	processor *task.Processor
	learners  store.LearnerStore
	tasks     store.TaskStore
	profiles  store.ProfileStore
	outcomes  store.OutcomeStore
	cache     StatusCache
}

// NewGenerationService creates the orchestration service. The cache may be
// nil, in which case status reads always hit the store.
func NewGenerationService(
	resolver *eligibility.Resolver,
	mat *materializer.Materializer,
	tracker *frontier.Tracker,
	processor *task.Processor,
	learners store.LearnerStore,
	tasks store.TaskStore,
	profiles store.ProfileStore,
	outcomes store.OutcomeStore,
	cache StatusCache,
) *GenerationService {
	return &GenerationService{
		resolver:  resolver,
		mat:       mat,
		tracker:   tracker,
		processor: processor,
		learners:  learners,
		tasks:     tasks,
		profiles:  profiles,
		outcomes:  outcomes,
		cache:     cache,
	}
}

// StartGeneration seeds a learner's personalized copy of a plan: the first
// batch of eligible units is resolved, the immediate ones are materialized
// inline best-effort, and the rest are queued. Returns ErrNotEligible when
// the plan has nothing publishable at all.
func (s *GenerationService) StartGeneration(ctx context.Context, learnerID, planID uuid.UUID) (*StartResult, error) {
	log := logger.FromContext(ctx).With("learner_id", learnerID, "plan_id", planID)

	profile, err := s.profiles.GetLatest(ctx, learnerID)
	if err != nil {
		return nil, newServiceError("start_generation", "failed to load cognitive profile", err)
	}

	batch, err := s.resolver.NextUnits(ctx, learnerID, planID)
	if err != nil {
		return nil, newServiceError("start_generation", "failed to resolve eligible units", err)
	}
	if batch.Empty() {
		if batch.Reason == eligibility.ReasonNothingPublished {
			return nil, fmt.Errorf("%w: plan %s", ErrNotEligible, planID)
		}
		log.Info("start requested but learner is caught up")
		return &StartResult{CaughtUp: true}, nil
	}

	result := &StartResult{}
	for _, unit := range batch.Immediate {
		lu, outcome, err := s.mat.Materialize(ctx, learnerID, unit.ID, profile)
		if err != nil {
			if errors.Is(err, materializer.ErrTimeout) {
				// Inline generation is best effort; push the unit onto the
				// queue at user priority and move on.
				if qErr := s.enqueueGenerate(ctx, learnerID, unit.ID, domain.PriorityImmediate); qErr != nil {
					return nil, newServiceError("start_generation", "failed to queue timed-out unit", qErr)
				}
				result.Queued = append(result.Queued, unit.ID)
				continue
			}
			return nil, newServiceError("start_generation", "failed to materialize unit", err)
		}
		s.invalidateStatus(ctx, learnerID, unit.ID)
		result.Materialized = append(result.Materialized, lu)
		if result.First == nil {
			result.First = lu
		}
		_ = outcome // partial units carry their own follow-up tasks
	}

	for _, unit := range batch.Queued {
		if err := s.enqueueGenerate(ctx, learnerID, unit.ID, domain.PriorityBackground); err != nil {
			return nil, newServiceError("start_generation", "failed to queue unit", err)
		}
		result.Queued = append(result.Queued, unit.ID)
	}

	log.Info("generation started",
		"materialized", len(result.Materialized),
		"queued", len(result.Queued))
	return result, nil
}

// Advance applies a progress signal and advances the learner's frontier
// when it crosses the threshold.
func (s *GenerationService) Advance(ctx context.Context, learnerID, unitID uuid.UUID, progress float64) (*frontier.Advance, error) {
	adv, err := s.tracker.Advance(ctx, learnerID, unitID, progress)
	if err != nil {
		return nil, newServiceError("advance", "failed to advance frontier", err)
	}
	if adv.Recorded {
		s.invalidateStatus(ctx, learnerID, unitID)
	}
	return adv, nil
}

// ProcessQueue drains up to max pending tasks; intended for periodic
// external invocation.
func (s *GenerationService) ProcessQueue(ctx context.Context, max int) ([]task.Result, error) {
	results, err := s.processor.ProcessBatch(ctx, max)
	if err != nil {
		return nil, newServiceError("process_queue", "failed to process batch", err)
	}
	for _, r := range results {
		// Any settled task may have changed its unit's materialized state.
		s.invalidateStatus(ctx, r.LearnerID, r.UnitID)
	}
	return results, nil
}

// UnitStatus reads lifecycle status, progress, and the materialized
// content list for a (learner, unit) pair, through the cache when one is
// configured. When no copy exists yet, queue state stands in: a live task
// reports pending, a terminally failed one reports failed with its error.
func (s *GenerationService) UnitStatus(ctx context.Context, learnerID, unitID uuid.UUID) (*UnitStatus, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, learnerID, unitID); err == nil && cached != nil {
			return cached, nil
		}
	}

	status, err := s.buildStatus(ctx, learnerID, unitID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, learnerID, unitID, status); err != nil {
			logger.FromContext(ctx).Warn("failed to cache unit status", "error", err)
		}
	}
	return status, nil
}

// RecordOutcome writes one interaction outcome to the result sink, updates
// the item's completion record, and folds the unit's aggregate progress
// forward.
func (s *GenerationService) RecordOutcome(ctx context.Context, learnerID, learnerItemID uuid.UUID, score float64, completed bool) error {
	item, err := s.learners.GetItem(ctx, learnerItemID)
	if err != nil {
		return newServiceError("record_outcome", "failed to load learner item", err)
	}

	record, err := domain.NewOutcomeRecord(learnerID, learnerItemID, item.Kind, score, completed)
	if err != nil {
		return newServiceError("record_outcome", "invalid outcome", err)
	}
	if err := s.outcomes.Create(ctx, record); err != nil {
		return newServiceError("record_outcome", "failed to persist outcome", err)
	}

	if completed {
		item.RecordOutcome(score, record.RecordedAt)
		if err := s.learners.UpdateItem(ctx, item); err != nil {
			return newServiceError("record_outcome", "failed to update completion record", err)
		}
	}

	unit, err := s.learners.GetUnit(ctx, item.LearnerUnitID)
	if err != nil {
		return newServiceError("record_outcome", "failed to load learner unit", err)
	}
	aggregate, err := s.outcomes.UnitProgress(ctx, unit.ID)
	if err != nil {
		return newServiceError("record_outcome", "failed to aggregate progress", err)
	}
	if aggregate > unit.Progress {
		if err := unit.RecordProgress(aggregate); err != nil {
			return newServiceError("record_outcome", "failed to record progress", err)
		}
		if err := s.learners.UpdateUnit(ctx, unit); err != nil {
			return newServiceError("record_outcome", "failed to save progress", err)
		}
	}
	s.invalidateStatus(ctx, learnerID, unit.SourceUnitID)
	return nil
}

// buildStatus assembles a status response from the stores.
func (s *GenerationService) buildStatus(ctx context.Context, learnerID, unitID uuid.UUID) (*UnitStatus, error) {
	unit, err := s.learners.GetUnitBySource(ctx, learnerID, unitID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, newServiceError("unit_status", "failed to load learner unit", err)
		}
		return s.statusFromQueue(ctx, learnerID, unitID)
	}

	items, err := s.learners.ListItems(ctx, unit.ID)
	if err != nil {
		return nil, newServiceError("unit_status", "failed to list items", err)
	}

	status := &UnitStatus{
		Status:               unit.Status,
		Progress:             unit.Progress,
		DifficultyAdjustment: unit.DifficultyAdjustment,
		Items:                make([]ItemStatus, 0, len(items)),
	}
	for _, item := range items {
		status.Items = append(status.Items, ItemStatus{
			ID:           item.ID,
			SourceItemID: item.SourceItemID,
			Kind:         item.Kind,
			Personalized: len(item.Personalized) > 0,
			Synthesized:  item.Synthesized,
			Retired:      item.Retired,
			Completed:    item.Completed(),
			Score:        item.Score,
		})
	}

	if unit.Status == domain.LearnerUnitFailed {
		status.LastError = s.lastTaskError(ctx, learnerID, unitID)
	}
	return status, nil
}

// statusFromQueue reports queue state for a unit with no materialized copy.
func (s *GenerationService) statusFromQueue(ctx context.Context, learnerID, unitID uuid.UUID) (*UnitStatus, error) {
	tasks, err := s.tasks.ListForTarget(ctx, learnerID, unitID)
	if err != nil {
		return nil, newServiceError("unit_status", "failed to list tasks", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: unit %s", ErrStatusNotFound, unitID)
	}
	for _, t := range tasks {
		if !t.Terminal() {
			return &UnitStatus{Status: domain.LearnerUnitPending}, nil
		}
	}
	// Only terminal tasks remain; surface the most recent failure.
	return &UnitStatus{
		Status:    domain.LearnerUnitFailed,
		LastError: tasks[0].ErrorDetail,
	}, nil
}

// lastTaskError returns the newest terminal failure detail for the target.
func (s *GenerationService) lastTaskError(ctx context.Context, learnerID, unitID uuid.UUID) string {
	tasks, err := s.tasks.ListForTarget(ctx, learnerID, unitID)
	if err != nil {
		return ""
	}
	for _, t := range tasks {
		if t.Status == domain.TaskStatusFailed {
			return t.ErrorDetail
		}
	}
	return ""
}

// enqueueGenerate queues a generate task, treating duplicate suppression
// as success.
func (s *GenerationService) enqueueGenerate(ctx context.Context, learnerID, unitID uuid.UUID, priority int) error {
	t, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, learnerID, unitID, priority)
	if err != nil {
		return err
	}
	if err := s.tasks.Enqueue(ctx, t); err != nil && !errors.Is(err, store.ErrDuplicateTask) {
		return err
	}
	return nil
}

// invalidateStatus drops the cached status for a target, best effort.
func (s *GenerationService) invalidateStatus(ctx context.Context, learnerID, unitID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, learnerID, unitID); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate status cache",
			"learner_id", learnerID,
			"unit_id", unitID,
			"error", err)
	}
}
