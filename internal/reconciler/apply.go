package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// ApplyUpdate executes one update task against the targeted learner copy:
// patch a modified item (discarding any stale stored personalization and
// regenerating from the new source), append an added item without
// disturbing prior completion records, or retire a removed item. An
// item-scoped task patches just that item; a task without an item
// resynchronizes the whole unit. Every applied change lands on the unit's
// audit trail.
func (r *Reconciler) ApplyUpdate(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContext(ctx).With(
		"learner_id", task.LearnerID,
		"unit_id", task.UnitID,
		"task_id", task.ID,
	)

	unit, err := r.learners.GetUnitBySource(ctx, task.LearnerID, task.UnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Copy never materialized; nothing to patch.
			log.Debug("update task targets unmaterialized unit, skipping")
			return nil
		}
		return fmt.Errorf("failed to load learner unit: %w", err)
	}

	profile, err := r.profiles.GetLatest(ctx, task.LearnerID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	items, err := r.learners.ListItems(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("failed to list learner items: %w", err)
	}
	bySource := make(map[uuid.UUID]*domain.LearnerContentItem, len(items))
	for _, item := range items {
		bySource[item.SourceItemID] = item
	}

	applied := 0
	if task.ItemID.Valid {
		n, err := r.reconcileItem(ctx, unit, task.ItemID.UUID, bySource, profile)
		if err != nil {
			return err
		}
		applied += n
	} else {
		sourceItems, err := r.curriculum.ListContentItems(ctx, task.UnitID)
		if err != nil {
			return fmt.Errorf("failed to list source items: %w", err)
		}
		seen := make(map[uuid.UUID]bool, len(sourceItems))
		for _, source := range sourceItems {
			if !source.AnchoredTo(task.UnitID) {
				continue
			}
			seen[source.ID] = true
			n, err := r.reconcileItem(ctx, unit, source.ID, bySource, profile)
			if err != nil {
				return err
			}
			applied += n
		}
		// Learner copies whose source vanished entirely.
		for sourceID, copy := range bySource {
			if seen[sourceID] || copy.Retired || copy.Synthesized {
				continue
			}
			if err := r.retireItem(ctx, unit, copy); err != nil {
				return err
			}
			applied++
		}
	}

	if applied > 0 {
		if err := r.learners.UpdateUnit(ctx, unit); err != nil {
			return fmt.Errorf("failed to save audit trail: %w", err)
		}
	}
	log.Info("update task applied", "changes", applied)
	return nil
}

// reconcileItem brings one learner item copy in line with its source,
// returning how many changes were applied (0 or 1).
func (r *Reconciler) reconcileItem(
	ctx context.Context,
	unit *domain.LearnerUnit,
	sourceItemID uuid.UUID,
	bySource map[uuid.UUID]*domain.LearnerContentItem,
	profile *domain.Profile,
) (int, error) {
	source, err := r.curriculum.GetContentItem(ctx, sourceItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			copy, ok := bySource[sourceItemID]
			if !ok || copy.Retired {
				return 0, nil
			}
			if err := r.retireItem(ctx, unit, copy); err != nil {
				return 0, err
			}
			return 1, nil
		}
		return 0, fmt.Errorf("failed to load source item: %w", err)
	}

	copy, ok := bySource[sourceItemID]
	if !ok {
		// Item added after materialization: append it in curriculum order,
		// leaving every existing completion record untouched.
		result, err := r.personalizer.Personalize(ctx, source, profile)
		if err != nil {
			return 0, fmt.Errorf("failed to personalize added item: %w", err)
		}
		learnerItem := domain.NewLearnerContentItem(unit.ID, source, result.Transformed)
		learnerItem.SourceFingerprint = Fingerprint(source.Payload)
		if err := r.learners.CreateItem(ctx, learnerItem); err != nil {
			return 0, fmt.Errorf("failed to append learner item: %w", err)
		}
		unit.AppendAudit(fmt.Sprintf("item %s added from source", source.ID))
		return 1, nil
	}

	fingerprint := Fingerprint(source.Payload)
	if copy.SourceFingerprint == fingerprint && !copy.Retired {
		return 0, nil
	}

	// Stale copy: discard any stored personalized transformation and
	// regenerate from the new source rather than keeping drifted content.
	// The completion record (attempts, score, timestamp) is preserved.
	result, err := r.personalizer.Personalize(ctx, source, profile)
	if err != nil {
		return 0, fmt.Errorf("failed to re-personalize item: %w", err)
	}
	copy.Personalized = result.Transformed
	copy.SourceFingerprint = fingerprint
	copy.Retired = false
	copy.Position = source.Position
	if err := r.learners.UpdateItem(ctx, copy); err != nil {
		return 0, fmt.Errorf("failed to update learner item: %w", err)
	}
	unit.AppendAudit(fmt.Sprintf("item %s updated from source", source.ID))
	return 1, nil
}

// retireItem marks a learner item whose source was removed. Retired items
// are kept (never physically deleted) so result history survives.
func (r *Reconciler) retireItem(ctx context.Context, unit *domain.LearnerUnit, copy *domain.LearnerContentItem) error {
	copy.Retired = true
	if err := r.learners.UpdateItem(ctx, copy); err != nil {
		return fmt.Errorf("failed to retire learner item: %w", err)
	}
	unit.AppendAudit(fmt.Sprintf("item %s retired, source removed", copy.SourceItemID))
	return nil
}
