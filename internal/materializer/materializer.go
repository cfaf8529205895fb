// Package materializer executes single generation steps: producing a
// learner-scoped, personalized copy of one curriculum unit under a hard
// wall-clock deadline. A unit is always left in a well-defined state —
// either nothing was written, or a committed unit whose missing items are
// scheduled as follow-up tasks.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/personalization"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// Materializer errors
var (
	// ErrTimeout is returned when the deadline expires before even the unit
	// shell could be committed. Nothing is persisted; the caller may retry.
	ErrTimeout = errors.New("materialization deadline exceeded before commit")

	// ErrSourceMissing is returned when the referenced source unit has
	// vanished. This is unrecoverable: the learner unit (if any) is marked
	// failed and the task must not be retried.
	ErrSourceMissing = errors.New("source curriculum unit is missing")
)

// Outcome describes how a materialization call ended.
type Outcome string

// Possible outcomes
const (
	// OutcomeOK means the unit and all selected items were committed.
	OutcomeOK Outcome = "ok"

	// OutcomePartial means the unit was committed active but some items ran
	// out of deadline and were scheduled as follow-up tasks.
	OutcomePartial Outcome = "partial"

	// OutcomeTimeout means the deadline expired before the shell was
	// committed; nothing was persisted.
	OutcomeTimeout Outcome = "timeout"
)

// DefaultDeadline bounds a single materialization call when the caller
// does not supply one.
const DefaultDeadline = 10 * time.Second

// Config holds materializer tuning.
type Config struct {
	// Deadline is the wall-clock budget per materialization call.
	Deadline time.Duration

	// TopN caps how many content items are selected per unit.
	TopN int

	// SynthesizeFloor is the minimum preference score a modality needs
	// before the engine synthesizes a placeholder item to cover it.
	SynthesizeFloor float64

	// NoAutoGenerate lists modalities that must never be synthesized
	// (e.g. visual diagrams), to avoid low-quality filler.
	NoAutoGenerate []domain.Modality

	// FollowUpPriority is the queue priority of follow-up tasks created
	// after a partial materialization.
	FollowUpPriority int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Deadline:         DefaultDeadline,
		TopN:             5,
		SynthesizeFloor:  0.5,
		NoAutoGenerate:   []domain.Modality{domain.ModalityVisual},
		FollowUpPriority: domain.PriorityAdvance,
	}
}

// Materializer produces learner copies of curriculum units.
type Materializer struct {
	curriculum   store.CurriculumStore
	learners     store.LearnerStore
	tasks        store.TaskStore
	personalizer personalization.Personalizer
	cfg          Config
}

// New creates a Materializer. Zero config fields fall back to defaults.
func New(
	curriculum store.CurriculumStore,
	learners store.LearnerStore,
	tasks store.TaskStore,
	personalizer personalization.Personalizer,
	cfg Config,
) *Materializer {
	def := DefaultConfig()
	if cfg.Deadline <= 0 {
		cfg.Deadline = def.Deadline
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.SynthesizeFloor <= 0 {
		cfg.SynthesizeFloor = def.SynthesizeFloor
	}
	if cfg.FollowUpPriority == 0 {
		cfg.FollowUpPriority = def.FollowUpPriority
	}
	return &Materializer{
		curriculum:   curriculum,
		learners:     learners,
		tasks:        tasks,
		personalizer: personalizer,
		cfg:          cfg,
	}
}

// Deadline returns the configured per-call budget.
func (m *Materializer) Deadline() time.Duration {
	return m.cfg.Deadline
}

// Materialize produces the learner's copy of the given source unit.
// Idempotent: an existing active, completed or failed copy for (learner,
// source unit) is returned unchanged, and a copy left in generating state
// by an interrupted earlier attempt is resumed rather than declared done.
// The call is bounded by the configured deadline (or an earlier one
// already on ctx); see Outcome for the three ways it can end.
func (m *Materializer) Materialize(
	ctx context.Context,
	learnerID uuid.UUID,
	sourceUnitID uuid.UUID,
	profile *domain.Profile,
) (*domain.LearnerUnit, Outcome, error) {
	log := logger.FromContext(ctx).With(
		"learner_id", learnerID,
		"unit_id", sourceUnitID,
	)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Deadline)
	defer cancel()

	// Idempotency check before any work. A copy still in generating state
	// means an earlier attempt died between the shell commit and
	// activation; returning it unchanged would complete the task while the
	// unit stays half-built, so those are resumed instead.
	existing, err := m.learners.GetUnitBySource(ctx, learnerID, sourceUnitID)
	if err == nil {
		if existing.Status != domain.LearnerUnitGenerating {
			log.Debug("unit already materialized, returning existing copy",
				"learner_unit_id", existing.ID,
				"status", existing.Status)
			return existing, OutcomeOK, nil
		}
		log.Warn("resuming interrupted materialization",
			"learner_unit_id", existing.ID)
		return m.resume(ctx, existing, profile)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to check existing unit: %w", err)
	}

	unit, err := m.curriculum.GetUnit(ctx, sourceUnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrSourceMissing, sourceUnitID)
		}
		return nil, "", fmt.Errorf("failed to load source unit: %w", err)
	}

	items, err := m.curriculum.ListContentItems(ctx, unit.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list source items: %w", err)
	}
	selected := m.selectItems(items, unit.ID, profile)

	if ctx.Err() != nil {
		// Deadline hit before the shell exists: leave no partial write.
		return nil, OutcomeTimeout, ErrTimeout
	}

	shell, err := domain.NewLearnerUnit(learnerID, unit, profile.ID, profile.DifficultyAdjustment())
	if err != nil {
		return nil, "", fmt.Errorf("failed to build learner unit: %w", err)
	}
	if err := m.learners.CreateUnit(ctx, shell); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost an insert race; the winner's copy is the copy.
			winner, getErr := m.learners.GetUnitBySource(ctx, learnerID, sourceUnitID)
			if getErr != nil {
				return nil, "", fmt.Errorf("failed to load racing unit: %w", getErr)
			}
			return winner, OutcomeOK, nil
		}
		return nil, "", fmt.Errorf("failed to create learner unit: %w", err)
	}

	missing, err := m.generateItems(ctx, shell, selected, profile)
	if err != nil {
		// A store write failed with time still on the clock. The shell is
		// already committed, so surface the error but leave the unit in
		// generating state; the retry resumes it.
		return shell, OutcomePartial, err
	}
	return m.finish(ctx, shell, len(selected)-len(missing), missing)
}

// resume finishes a unit an earlier attempt left mid-generation: items
// already persisted are kept, the rest of the selection is generated or
// scheduled as follow-ups, and the unit is activated.
func (m *Materializer) resume(
	ctx context.Context,
	shell *domain.LearnerUnit,
	profile *domain.Profile,
) (*domain.LearnerUnit, Outcome, error) {
	unit, err := m.curriculum.GetUnit(ctx, shell.SourceUnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrSourceMissing, shell.SourceUnitID)
		}
		return nil, "", fmt.Errorf("failed to load source unit: %w", err)
	}
	items, err := m.curriculum.ListContentItems(ctx, unit.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list source items: %w", err)
	}
	selected := m.selectItems(items, unit.ID, profile)

	existing, err := m.learners.ListItems(ctx, shell.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list learner items: %w", err)
	}
	have := make(map[uuid.UUID]bool, len(existing))
	haveSynth := 0
	for _, it := range existing {
		if it.Synthesized {
			haveSynth++
			continue
		}
		have[it.SourceItemID] = true
	}

	var remaining []*domain.ContentItem
	for _, item := range selected {
		if item.CreatedAt.IsZero() {
			// Synthesized filler has no stable source ID across selection
			// runs; count the copies already present instead.
			if haveSynth > 0 {
				haveSynth--
				continue
			}
			remaining = append(remaining, item)
			continue
		}
		if !have[item.ID] {
			remaining = append(remaining, item)
		}
	}

	missing, err := m.generateItems(ctx, shell, remaining, profile)
	if err != nil {
		return shell, OutcomePartial, err
	}
	return m.finish(ctx, shell, len(selected)-len(missing), missing)
}

// finish activates a committed shell and schedules follow-up tasks for the
// items that did not make it. The shell is committed by now, so deadline
// exhaustion from here on is a partial result, never a failure.
func (m *Materializer) finish(
	ctx context.Context,
	shell *domain.LearnerUnit,
	generated int,
	missing []*domain.ContentItem,
) (*domain.LearnerUnit, Outcome, error) {
	log := logger.FromContext(ctx).With("learner_unit_id", shell.ID)

	if err := shell.TransitionTo(domain.LearnerUnitActive); err != nil {
		return nil, "", err
	}
	// Persist with a fresh context: the deadline bounds generation work,
	// not the final bookkeeping writes.
	commitCtx := context.WithoutCancel(ctx)
	if err := m.learners.UpdateUnit(commitCtx, shell); err != nil {
		return nil, "", fmt.Errorf("failed to activate learner unit: %w", err)
	}

	if len(missing) == 0 {
		log.Info("unit materialized", "items", generated)
		return shell, OutcomeOK, nil
	}

	if err := m.scheduleFollowUps(commitCtx, shell, missing); err != nil {
		return shell, OutcomePartial, err
	}
	log.Warn("unit materialized partially, follow-ups scheduled",
		"generated", generated,
		"missing", len(missing))
	return shell, OutcomePartial, nil
}

// generateItems personalizes and persists the selected items one by one,
// stopping when the deadline expires. Returns the items that did not make
// it.
func (m *Materializer) generateItems(
	ctx context.Context,
	shell *domain.LearnerUnit,
	selected []*domain.ContentItem,
	profile *domain.Profile,
) ([]*domain.ContentItem, error) {
	log := logger.FromContext(ctx)
	var missing []*domain.ContentItem
	for i, item := range selected {
		if ctx.Err() != nil {
			return append(missing, selected[i:]...), nil
		}
		if err := m.generateItem(ctx, shell, item, profile); err != nil {
			if ctx.Err() != nil {
				return append(missing, selected[i:]...), nil
			}
			if errors.Is(err, personalization.ErrTransientFailure) ||
				errors.Is(err, personalization.ErrPersonalizationFailed) {
				// Personalization hiccup on one item: schedule it for a
				// follow-up task instead of sinking the whole unit.
				log.Warn("item personalization failed, deferring",
					"item_id", item.ID,
					"error", err)
				missing = append(missing, item)
				continue
			}
			return append(missing, selected[i:]...), err
		}
	}
	return missing, nil
}

// generateItem personalizes one source item and persists the learner copy.
func (m *Materializer) generateItem(
	ctx context.Context,
	shell *domain.LearnerUnit,
	item *domain.ContentItem,
	profile *domain.Profile,
) error {
	result, err := m.personalizer.Personalize(ctx, item, profile)
	if err != nil {
		return fmt.Errorf("failed to personalize item %s: %w", item.ID, err)
	}

	learnerItem := domain.NewLearnerContentItem(shell.ID, item, result.Transformed)
	learnerItem.Synthesized = item.CreatedAt.IsZero()
	if err := m.learners.CreateItem(context.WithoutCancel(ctx), learnerItem); err != nil {
		return fmt.Errorf("failed to persist learner item %s: %w", item.ID, err)
	}
	return nil
}

// CompleteItem finishes one missing item of an already-committed unit.
// Used by the queue consumer for follow-up tasks after a partial
// materialization. Idempotent: an already-present learner copy of the
// source item is left untouched.
func (m *Materializer) CompleteItem(
	ctx context.Context,
	learnerUnit *domain.LearnerUnit,
	sourceItemID uuid.UUID,
	profile *domain.Profile,
) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Deadline)
	defer cancel()

	existing, err := m.learners.ListItems(ctx, learnerUnit.ID)
	if err != nil {
		return fmt.Errorf("failed to list learner items: %w", err)
	}
	for _, it := range existing {
		if it.SourceItemID == sourceItemID {
			return nil
		}
	}

	item, err := m.curriculum.GetContentItem(ctx, sourceItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: item %s", ErrSourceMissing, sourceItemID)
		}
		return fmt.Errorf("failed to load source item: %w", err)
	}
	return m.generateItem(ctx, learnerUnit, item, profile)
}

// MarkFailed transitions a learner unit to failed after an unrecoverable
// error, when a copy exists to mark.
func (m *Materializer) MarkFailed(ctx context.Context, learnerID, sourceUnitID uuid.UUID, reason string) error {
	unit, err := m.learners.GetUnitBySource(ctx, learnerID, sourceUnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if unit.Status == domain.LearnerUnitFailed {
		return nil
	}
	if err := unit.TransitionTo(domain.LearnerUnitFailed); err != nil {
		return err
	}
	unit.AppendAudit("generation failed: " + reason)
	return m.learners.UpdateUnit(ctx, unit)
}

// scheduleFollowUps enqueues one item-scoped generate task per missing
// item. Dedup in the task store makes re-scheduling idempotent.
func (m *Materializer) scheduleFollowUps(ctx context.Context, shell *domain.LearnerUnit, missing []*domain.ContentItem) error {
	log := logger.FromContext(ctx)
	for _, item := range missing {
		if item.CreatedAt.IsZero() {
			// Synthesized filler has no authored source to regenerate from;
			// it is best-effort and not worth a queue slot.
			continue
		}
		task, err := domain.NewGenerationTask(
			domain.TaskKindGenerateUnit,
			shell.LearnerID,
			shell.SourceUnitID,
			m.cfg.FollowUpPriority,
		)
		if err != nil {
			return fmt.Errorf("failed to build follow-up task: %w", err)
		}
		task.ItemID = uuid.NullUUID{UUID: item.ID, Valid: true}
		if err := m.tasks.Enqueue(ctx, task); err != nil {
			if errors.Is(err, store.ErrDuplicateTask) {
				continue
			}
			return fmt.Errorf("failed to enqueue follow-up task: %w", err)
		}
		log.Debug("follow-up task enqueued",
			"task_id", task.ID,
			"item_id", item.ID,
			"learner_unit_id", shell.ID)
	}
	return nil
}
