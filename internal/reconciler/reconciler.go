// Package reconciler propagates source-curriculum edits into
// already-materialized learner copies. Edits fan out as priority-3 update
// tasks through the shared queue; applying a task patches one learner
// unit in place and appends to its audit trail, preserving the learner's
// completion history throughout.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/eligibility"
	"github.com/pathforge/pathforge-api/internal/frontier"
	"github.com/pathforge/pathforge-api/internal/personalization"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// ChangeKind identifies what edit the authoring system reported.
type ChangeKind string

// Possible change kinds
const (
	// ChangeItemModified means an existing content item's payload changed.
	ChangeItemModified ChangeKind = "item_modified"

	// ChangeItemAdded means a content item was added to a unit.
	ChangeItemAdded ChangeKind = "item_added"

	// ChangeItemRemoved means a content item was removed from a unit.
	ChangeItemRemoved ChangeKind = "item_removed"

	// ChangeUnitPublished means a unit became eligible for the first time.
	ChangeUnitPublished ChangeKind = "unit_published"
)

// ErrChangeInvalid is returned when a reported change is missing its
// target references.
var ErrChangeInvalid = errors.New("source change is missing required references")

// SourceChange is one edit reported by the content-authoring system.
type SourceChange struct {
	Kind   ChangeKind    `json:"kind"`
	UnitID uuid.UUID     `json:"unit_id"`
	ItemID uuid.NullUUID `json:"item_id"`
}

// Validate checks the change references what its kind requires.
func (c *SourceChange) Validate() error {
	if c.UnitID == uuid.Nil {
		return fmt.Errorf("%w: unit ID", ErrChangeInvalid)
	}
	switch c.Kind {
	case ChangeItemModified, ChangeItemAdded, ChangeItemRemoved:
		if !c.ItemID.Valid {
			return fmt.Errorf("%w: item ID for %s", ErrChangeInvalid, c.Kind)
		}
	case ChangeUnitPublished:
	default:
		return fmt.Errorf("%w: unknown change kind %q", ErrChangeInvalid, c.Kind)
	}
	return nil
}

// Reconciler detects drift between source curriculum and learner copies
// and schedules/applies the patches.
type Reconciler struct {
	curriculum   store.CurriculumStore
	learners     store.LearnerStore
	tasks        store.TaskStore
	profiles     store.ProfileStore
	personalizer personalization.Personalizer
	resolver     *eligibility.Resolver
	threshold    float64
}

// New creates a Reconciler. The threshold must match the frontier
// tracker's advance threshold so publication fan-out and progress-driven
// advancement agree on which learners a new unit reaches; a non-positive
// value falls back to the tracker's default.
func New(
	curriculum store.CurriculumStore,
	learners store.LearnerStore,
	tasks store.TaskStore,
	profiles store.ProfileStore,
	personalizer personalization.Personalizer,
	resolver *eligibility.Resolver,
	threshold float64,
) *Reconciler {
	if threshold <= 0 {
		threshold = frontier.DefaultAdvanceThreshold
	}
	return &Reconciler{
		curriculum:   curriculum,
		learners:     learners,
		tasks:        tasks,
		profiles:     profiles,
		personalizer: personalizer,
		resolver:     resolver,
		threshold:    threshold,
	}
}

// OnSourceChange fans a reported edit out as queue tasks: one priority-3
// update task per learner copy of the changed unit, or generate tasks when
// a newly published unit extends some learners' frontiers. Returns how
// many tasks were enqueued. Unchanged content (matching fingerprints)
// enqueues nothing.
func (r *Reconciler) OnSourceChange(ctx context.Context, change *SourceChange) (int, error) {
	if err := change.Validate(); err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx).With("unit_id", change.UnitID, "change", change.Kind)

	if change.Kind == ChangeUnitPublished {
		return r.fanOutPublication(ctx, change.UnitID)
	}

	// Fingerprint short-circuit for modifications: an edit that normalizes
	// to the same payload is not a change.
	var newFingerprint uint64
	if change.Kind == ChangeItemModified {
		item, err := r.curriculum.GetContentItem(ctx, change.ItemID.UUID)
		if err != nil {
			return 0, fmt.Errorf("failed to load changed item: %w", err)
		}
		newFingerprint = Fingerprint(item.Payload)
	}

	copies, err := r.learners.ListUnitsBySource(ctx, change.UnitID)
	if err != nil {
		return 0, fmt.Errorf("failed to list learner copies: %w", err)
	}

	queued := 0
	for _, copy := range copies {
		if change.Kind == ChangeItemModified {
			stale, err := r.copyStale(ctx, copy, change.ItemID.UUID, newFingerprint)
			if err != nil {
				return queued, err
			}
			if !stale {
				continue
			}
		}

		task, err := domain.NewGenerationTask(domain.TaskKindUpdateUnit, copy.LearnerID, change.UnitID, domain.PriorityBackground)
		if err != nil {
			return queued, err
		}
		task.ItemID = change.ItemID
		if err := r.tasks.Enqueue(ctx, task); err != nil {
			if errors.Is(err, store.ErrDuplicateTask) {
				continue
			}
			return queued, fmt.Errorf("failed to enqueue update task: %w", err)
		}
		queued++
	}

	log.Info("source change fanned out", "copies", len(copies), "queued", queued)
	return queued, nil
}

// copyStale reports whether a learner copy of the item exists and predates
// the new fingerprint.
func (r *Reconciler) copyStale(ctx context.Context, unit *domain.LearnerUnit, sourceItemID uuid.UUID, fingerprint uint64) (bool, error) {
	items, err := r.learners.ListItems(ctx, unit.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list learner items: %w", err)
	}
	for _, item := range items {
		if item.SourceItemID == sourceItemID {
			return item.SourceFingerprint != fingerprint, nil
		}
	}
	// No copy selected for this learner; nothing to patch.
	return false, nil
}

// fanOutPublication schedules generation of a newly published unit for
// every learner whose frontier would now include it: learners who are
// past the advance threshold on the unit immediately before it.
func (r *Reconciler) fanOutPublication(ctx context.Context, unitID uuid.UUID) (int, error) {
	unit, err := r.curriculum.GetUnit(ctx, unitID)
	if err != nil {
		return 0, fmt.Errorf("failed to load published unit: %w", err)
	}

	prev, err := r.precedingUnit(ctx, unit)
	if err != nil || prev == nil {
		return 0, err
	}

	copies, err := r.learners.ListUnitsBySource(ctx, prev.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list learner copies: %w", err)
	}

	queued := 0
	for _, copy := range copies {
		next, err := r.resolver.NextAfter(ctx, copy.LearnerID, prev)
		if err != nil {
			return queued, err
		}
		if next == nil || next.ID != unitID {
			continue
		}
		if copy.Status != domain.LearnerUnitCompleted && copy.Progress < r.threshold {
			continue
		}
		task, err := domain.NewGenerationTask(domain.TaskKindGenerateUnit, copy.LearnerID, unitID, domain.PriorityBackground)
		if err != nil {
			return queued, err
		}
		if err := r.tasks.Enqueue(ctx, task); err != nil {
			if errors.Is(err, store.ErrDuplicateTask) {
				continue
			}
			return queued, fmt.Errorf("failed to enqueue publication task: %w", err)
		}
		queued++
	}
	return queued, nil
}

// precedingUnit finds the unit immediately before the given one at the
// same granularity, or nil when it is first.
func (r *Reconciler) precedingUnit(ctx context.Context, unit *domain.CurriculumUnit) (*domain.CurriculumUnit, error) {
	var siblings []*domain.CurriculumUnit
	var err error
	if unit.Kind == domain.UnitKindTopic {
		siblings, err = r.curriculum.ListChildUnits(ctx, unit.ParentID.UUID)
	} else {
		siblings, err = r.curriculum.ListModules(ctx, unit.PlanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list siblings: %w", err)
	}

	var prev *domain.CurriculumUnit
	for _, sibling := range siblings {
		if sibling.Position < unit.Position {
			if prev == nil || sibling.Position > prev.Position {
				prev = sibling
			}
		}
	}
	return prev, nil
}
