// Package eligibility decides which curriculum units may be materialized
// next for a learner: it traverses the plan in declared order, applies the
// publication predicate, and caps the initial batch so generation stays a
// bounded number of units ahead of the learner.
package eligibility

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// Batch size defaults: the initial seed materializes a bounded number of
// modules and, within the first module, a bounded number of topics.
const (
	DefaultKModule = 3
	DefaultKTopic  = 2
)

// Reason explains an empty batch. Callers must render the two empty cases
// differently: nothing published is a content-owner state, caught up is a
// learner state.
type Reason string

// Possible batch reasons
const (
	// ReasonOK means the batch contains units to materialize.
	ReasonOK Reason = "ok"

	// ReasonNothingPublished means the plan has no eligible units at all.
	ReasonNothingPublished Reason = "nothing_published"

	// ReasonCaughtUp means the learner has consumed every currently
	// eligible unit.
	ReasonCaughtUp Reason = "caught_up"
)

// Batch is the resolver's answer for an initial seed: units to materialize
// immediately and units to enqueue for background generation. Only
// eligible, not-yet-materialized units ever appear in either list — the
// resolver never returns a placeholder for an unpublished unit.
type Batch struct {
	Immediate []*domain.CurriculumUnit
	Queued    []*domain.CurriculumUnit
	Reason    Reason
}

// Empty reports whether the batch holds no units.
func (b *Batch) Empty() bool {
	return len(b.Immediate) == 0 && len(b.Queued) == 0
}

// Config holds the resolver's batch limits.
type Config struct {
	// KModule caps how many module-level units an initial batch may span.
	KModule int

	// KTopic caps how many topics of the first module are materialized
	// immediately.
	KTopic int
}

// Resolver computes eligible next units against the curriculum store and
// the learner's materialized frontier.
type Resolver struct {
	curriculum store.CurriculumStore
	learners   store.LearnerStore
	cfg        Config
}

// NewResolver creates a Resolver. Zero config fields fall back to the
// package defaults.
func NewResolver(curriculum store.CurriculumStore, learners store.LearnerStore, cfg Config) *Resolver {
	if cfg.KModule <= 0 {
		cfg.KModule = DefaultKModule
	}
	if cfg.KTopic <= 0 {
		cfg.KTopic = DefaultKTopic
	}
	return &Resolver{
		curriculum: curriculum,
		learners:   learners,
		cfg:        cfg,
	}
}

// NextUnits computes the initial materialization batch for a learner on a
// plan: up to KModule eligible modules, and within the first selected
// module up to KTopic topics materialized immediately with the remaining
// eligible topics queued. Eligibility resolves purely on per-unit flags;
// content completeness checks are advisory to the content owner and never
// block here.
func (r *Resolver) NextUnits(ctx context.Context, learnerID, planID uuid.UUID) (*Batch, error) {
	log := logger.FromContext(ctx)

	modules, err := r.curriculum.ListModules(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan modules: %w", err)
	}

	batch := &Batch{Reason: ReasonOK}
	anyEligible := false
	selectedModules := 0

	for _, module := range modules {
		if !module.Eligible(nil) {
			// Never queue a placeholder for a unit lacking publishable
			// content.
			continue
		}
		anyEligible = true
		if selectedModules >= r.cfg.KModule {
			// Eligible modules beyond the window are reachable only through
			// NextAfter as the frontier moves. A fully materialized window
			// therefore reports caught up even when such modules exist.
			break
		}

		materialized, err := r.materialized(ctx, learnerID, module.ID)
		if err != nil {
			return nil, err
		}

		first := selectedModules == 0
		selectedModules++

		if !materialized {
			if first {
				batch.Immediate = append(batch.Immediate, module)
			} else {
				batch.Queued = append(batch.Queued, module)
			}
		}

		// Topic-level batching applies only within the first selected
		// module; later modules get their topics when the frontier reaches
		// them.
		if !first {
			continue
		}
		if err := r.seedTopics(ctx, learnerID, module, batch); err != nil {
			return nil, err
		}
	}

	if batch.Empty() {
		if !anyEligible {
			batch.Reason = ReasonNothingPublished
		} else {
			batch.Reason = ReasonCaughtUp
		}
	}

	log.Debug("resolved next units",
		"learner_id", learnerID,
		"plan_id", planID,
		"immediate", len(batch.Immediate),
		"queued", len(batch.Queued),
		"reason", batch.Reason)
	return batch, nil
}

// seedTopics appends the first module's eligible, unmaterialized topics to
// the batch: up to KTopic immediately, the rest queued.
func (r *Resolver) seedTopics(ctx context.Context, learnerID uuid.UUID, module *domain.CurriculumUnit, batch *Batch) error {
	topics, err := r.curriculum.ListChildUnits(ctx, module.ID)
	if err != nil {
		return fmt.Errorf("failed to list module topics: %w", err)
	}

	immediate := 0
	for _, topic := range topics {
		if !topic.Eligible(module) {
			continue
		}
		materialized, err := r.materialized(ctx, learnerID, topic.ID)
		if err != nil {
			return err
		}
		if materialized {
			// Already on the learner's side of the frontier; it still
			// counts against the immediate budget so re-seeding does not
			// over-generate.
			if immediate < r.cfg.KTopic {
				immediate++
			}
			continue
		}
		if immediate < r.cfg.KTopic {
			batch.Immediate = append(batch.Immediate, topic)
			immediate++
		} else {
			batch.Queued = append(batch.Queued, topic)
		}
	}
	return nil
}

// NextAfter resolves the frontier tracker's follow-up unit at the same
// granularity as the current one: the next eligible topic in the same
// module, falling through to the next eligible module when the current
// topic was the last. Topics of a module the learner has not materialized
// are never returned, which keeps per-learner materialization causally
// ordered. Returns nil when nothing is eligible.
func (r *Resolver) NextAfter(ctx context.Context, learnerID uuid.UUID, current *domain.CurriculumUnit) (*domain.CurriculumUnit, error) {
	if current.Kind == domain.UnitKindTopic {
		module, err := r.curriculum.GetUnit(ctx, current.ParentID.UUID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent module: %w", err)
		}
		topics, err := r.curriculum.ListChildUnits(ctx, module.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list module topics: %w", err)
		}
		for _, topic := range topics {
			if topic.Position <= current.Position || !topic.Eligible(module) {
				continue
			}
			materialized, err := r.materialized(ctx, learnerID, topic.ID)
			if err != nil {
				return nil, err
			}
			if !materialized {
				return topic, nil
			}
		}
		// Last topic consumed; advance at module granularity.
		current = module
	}

	modules, err := r.curriculum.ListModules(ctx, current.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan modules: %w", err)
	}
	for _, module := range modules {
		if module.Position <= current.Position || !module.Eligible(nil) {
			continue
		}
		materialized, err := r.materialized(ctx, learnerID, module.ID)
		if err != nil {
			return nil, err
		}
		if !materialized {
			return module, nil
		}
	}
	return nil, nil
}

// materialized reports whether the learner already has a copy of the
// source unit, in any lifecycle state.
func (r *Resolver) materialized(ctx context.Context, learnerID, sourceUnitID uuid.UUID) (bool, error) {
	_, err := r.learners.GetUnitBySource(ctx, learnerID, sourceUnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check materialized unit: %w", err)
	}
	return true, nil
}
